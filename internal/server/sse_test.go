package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trend-radar/internal/orchestrator"
)

func TestEventStream_Sequence(t *testing.T) {
	w := httptest.NewRecorder()
	stream, err := newEventStream(w)
	require.NoError(t, err)

	require.NoError(t, stream.send("started", map[string]string{"run_id": "r1"}))
	require.NoError(t, stream.fail("boom"))
	require.NoError(t, stream.complete("r1", "interrupted", 2))

	want := "id: 1\nevent: started\ndata: {\"run_id\":\"r1\"}\n\n" +
		"id: 2\nevent: error\ndata: {\"error\":\"boom\"}\n\n" +
		"id: 3\nevent: complete\ndata: {\"run_id\":\"r1\",\"status\":\"interrupted\",\"errors\":2}\n\n"
	assert.Equal(t, want, w.Body.String())
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.True(t, w.Flushed)
}

func TestEventStream_EncodeError(t *testing.T) {
	w := httptest.NewRecorder()
	stream, err := newEventStream(w)
	require.NoError(t, err)

	assert.Error(t, stream.send("progress", make(chan int)))
	require.NoError(t, stream.send("progress", 1))
	assert.Equal(t, "id: 1\nevent: progress\ndata: 1\n\n", w.Body.String())
}

type brokenWriter struct {
	header http.Header
	writes int
}

func (b *brokenWriter) Header() http.Header { return b.header }
func (b *brokenWriter) WriteHeader(int) {}
func (b *brokenWriter) Flush() {}
func (b *brokenWriter) Write([]byte) (int, error) {
	b.writes++
	return 0, errors.New("connection reset")
}

func TestEventStream_StopsAfterWriteFailure(t *testing.T) {
	w := &brokenWriter{header: http.Header{}}
	stream, err := newEventStream(w)
	require.NoError(t, err)

	first := stream.send("progress", 1)
	require.Error(t, first)
	assert.Equal(t, first, stream.send("progress", 2))
	assert.Equal(t, 1, w.writes)
}

type plainWriter struct{ http.ResponseWriter }

func TestNewEventStream_RequiresFlusher(t *testing.T) {
	_, err := newEventStream(plainWriter{httptest.NewRecorder()})
	assert.Error(t, err)
}

func TestProgressRelay_PublishNeverBlocks(t *testing.T) {
	relay := newProgressRelay(2)
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < 5; i++ {
			relay.publish(orchestrator.ProgressEvent{RunID: "r1", Kind: orchestrator.EventStageStarted, Stage: fmt.Sprintf("s%d", i)})
		}
	}()
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish blocked while nothing was reading")
	}
	assert.Equal(t, int64(3), relay.dropped.Load())

	w := httptest.NewRecorder()
	stream, err := newEventStream(w)
	require.NoError(t, err)
	done := make(chan struct{})
	close(done)
	relay.forward(stream, done)

	body := w.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: progress\n"))
	assert.Less(t, strings.Index(body, `"stage":"s0"`), strings.Index(body, `"stage":"s1"`))
	assert.NotContains(t, body, `"stage":"s2"`)
}

// slowWriter delays every write like a client that reads slowly
type slowWriter struct {
	*httptest.ResponseRecorder
	delay time.Duration
}

func (s slowWriter) Write(p []byte) (int, error) {
	time.Sleep(s.delay)
	return s.ResponseRecorder.Write(p)
}

func TestProgressRelay_SlowClientDoesNotStallPublisher(t *testing.T) {
	relay := newProgressRelay(progressBuffer)
	stream, err := newEventStream(slowWriter{ResponseRecorder: httptest.NewRecorder(), delay: 20 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan struct{})
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		relay.forward(stream, done)
	}()

	start := time.Now()
	for i := 0; i < 10; i++ {
		relay.publish(orchestrator.ProgressEvent{Kind: orchestrator.EventStageCompleted, Stage: fmt.Sprintf("s%d", i)})
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "publishing must not wait on the stream writer")
	close(done)

	<-forwarded
	assert.Zero(t, relay.dropped.Load())
	assert.Equal(t, 10, stream.seq)
}
