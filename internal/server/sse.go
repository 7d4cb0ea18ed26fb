package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/jonathan/trend-radar/internal/orchestrator"
)

// progressBuffer is how many progress events may wait for a slow stream client
const progressBuffer = 256

// eventStream writes the progress of a run as Server-Sent Events. Events carry a
// sequence id starting at 1. Writes are serialized, and once a write fails every later
// event is dropped with the same error.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
	err     error
}

// streamComplete is the payload of the final event of a stream
type streamComplete struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Errors int    `json:"errors"`
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &eventStream{w: w, flusher: flusher}, nil
}

func (s *eventStream) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, payload); err != nil {
		s.err = err
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventStream) fail(message string) error {
	return s.send("error", map[string]string{"error": message})
}

func (s *eventStream) complete(runID, status string, errorCount int) error {
	return s.send("complete", streamComplete{RunID: runID, Status: status, Errors: errorCount})
}

// progressRelay hands progress events from the run's committer to the goroutine that
// writes the stream. publish never blocks; events beyond the buffer are counted and
// dropped.
type progressRelay struct {
	events  chan orchestrator.ProgressEvent
	dropped atomic.Int64
}

func newProgressRelay(size int) *progressRelay {
	return &progressRelay{events: make(chan orchestrator.ProgressEvent, size)}
}

func (p *progressRelay) publish(e orchestrator.ProgressEvent) {
	select {
	case p.events <- e:
	default:
		p.dropped.Add(1)
	}
}

// forward writes events to the stream until done is closed, then writes what is still
// buffered. Publishing must have stopped once done is closed.
func (p *progressRelay) forward(stream *eventStream, done <-chan struct{}) {
	for {
		select {
		case e := <-p.events:
			_ = stream.send("progress", e)
		case <-done:
			for {
				select {
				case e := <-p.events:
					_ = stream.send("progress", e)
				default:
					return
				}
			}
		}
	}
}
