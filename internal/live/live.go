// Package live broadcasts a Runtime's progress events to connected
// WebSocket clients.
package live

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/saxsflow/saxsflow/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type progressFrame struct {
	Stage     uint32 `json:"stage"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

type sampleFrame struct {
	SampleId string `json:"sample_id"`
	StageNum uint32 `json:"stage_num"`
}

// Feed relays rt's ProgressEvents to every connected WebSocket client.
// Each connection is individually rate-limited so a slow client cannot
// make the broadcaster block the Runtime; frames dropped under
// backpressure are counted but never silently lost from the engine's own
// accounting (the Runtime's completed store is unaffected by the feed).
type Feed struct {
	rt  *core.Runtime
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]*rate.Limiter

	dropped int64
}

func NewFeed(rt *core.Runtime, log zerolog.Logger) *Feed {
	f := &Feed{
		rt:      rt,
		log:     log,
		clients: make(map[*websocket.Conn]*rate.Limiter),
	}
	go f.run()
	return f
}

// DroppedFrames returns the running count of frames dropped under
// per-connection backpressure.
func (f *Feed) DroppedFrames() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func (f *Feed) run() {
	for ev := range f.rt.Subscribe() {
		var frame any
		switch ev.Kind {
		case core.ProgressTick:
			frame = progressFrame{Stage: ev.Stage, Completed: ev.Completed, Total: ev.Total}
		case core.ProgressSample:
			frame = sampleFrame{SampleId: ev.Sample.Id, StageNum: ev.Stage}
		default:
			continue
		}
		f.broadcast(frame)
	}
}

func (f *Feed) broadcast(frame any) {
	buf, err := json.Marshal(frame)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn, limiter := range f.clients {
		if !limiter.Allow() {
			f.dropped++
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			f.log.Warn().Err(err).Msg("live feed: write error, dropping client")
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// ServeHTTP upgrades the connection and keeps it registered until it
// closes or errors on read.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn().Err(err).Msg("live feed: upgrade failed")
		return
	}

	f.mu.Lock()
	f.clients[conn] = rate.NewLimiter(rate.Limit(20), 20)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
