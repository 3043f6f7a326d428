// Package httpapi is the control-plane HTTP surface: read-only
// introspection of a running Runtime plus the one on-demand regroup
// mutation the engine already defines.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/saxsflow/saxsflow/core"
	"github.com/saxsflow/saxsflow/internal/metrics"
)

// NewRouter builds the control-plane router for rt.
func NewRouter(rt *core.Runtime, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/metrics", metrics.Handler(rt.Metrics()))

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, statusOf(rt))
	})

	r.Post("/regroup", func(w http.ResponseWriter, req *http.Request) {
		minStage, err := strconv.ParseUint(req.URL.Query().Get("min_stage"), 10, 32)
		if err != nil {
			http.Error(w, "invalid min_stage: "+err.Error(), http.StatusBadRequest)
			return
		}
		maxCount, _ := strconv.Atoi(req.URL.Query().Get("max_count"))

		samples := rt.Regroup(uint32(minStage), maxCount)
		log.Debug().Int("count", len(samples)).Uint64("min_stage", minStage).Msg("on-demand regroup")

		out := make([]regroupedSample, len(samples))
		for i, s := range samples {
			out[i] = regroupedSample{Id: s.Id, StageNum: s.StageNum}
		}
		writeJSON(w, out)
	})

	return r
}

type statusResponse struct {
	Pending   int             `json:"pending"`
	Completed int             `json:"completed"`
	Stages    []stageSnapshot `json:"stages"`
}

type stageSnapshot struct {
	Stage      uint32 `json:"stage"`
	Count      int    `json:"count"`
	Checkpoint bool   `json:"checkpoint"`
}

type regroupedSample struct {
	Id       string `json:"sample_id"`
	StageNum uint32 `json:"stage_num"`
}

func statusOf(rt *core.Runtime) statusResponse {
	stages := rt.PoolStagesWithSamples()
	snapshots := make([]stageSnapshot, len(stages))
	for i, stage := range stages {
		checkpoint := rt.PoolIsCheckpoint(stage)
		snapshots[i] = stageSnapshot{
			Stage:      stage,
			Count:      rt.PoolCountAtStage(stage),
			Checkpoint: checkpoint,
		}
	}
	return statusResponse{
		Pending:   rt.PendingCount(),
		Completed: rt.CompletedCount(),
		Stages:    snapshots,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
