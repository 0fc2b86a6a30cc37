package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/jajabor-ai/tutor/pkg/playback"
	"github.com/jajabor-ai/tutor/pkg/stream"
)

// eventSink writes tutor output as server-sent events. Frames come from the
// session goroutine and scroll requests from timers, so writes are
// serialized.
type eventSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func newEventSink(w http.ResponseWriter) (*eventSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventSink{w: w, flusher: flusher}, nil
}

func (e *eventSink) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data)
	e.flusher.Flush()
}

// close drops every later event; the handler is about to return.
func (e *eventSink) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (e *eventSink) Frame(f playback.Frame) {
	e.send("frame", f)
}

func (e *eventSink) ScrollToBottom() {
	e.send("scroll", struct{}{})
}

func (e *eventSink) State(st stream.State) {
	e.send("state", map[string]string{"state": st.String()})
}
