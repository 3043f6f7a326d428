// Package metrics exposes a Runtime's live metrics set in the
// Prometheus/VictoriaMetrics exposition format, for mounting on the
// control-plane HTTP API.
package metrics

import (
	"net/http"

	vmmetrics "github.com/VictoriaMetrics/metrics"
)

// Handler returns an http.HandlerFunc that writes set's current values in
// exposition format.
func Handler(set *vmmetrics.Set) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set.WritePrometheus(w)
	}
}
