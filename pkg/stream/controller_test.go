package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jajabor-ai/tutor/pkg/config"
)

type staticResolver struct {
	ep  config.EndpointConfig
	err error
}

func (r staticResolver) Resolve(string) (config.EndpointConfig, error) {
	return r.ep, r.err
}

type saved struct {
	question, answer, subject, chapter string
}

type fakeSaver struct {
	mu    sync.Mutex
	saves []saved
}

func (f *fakeSaver) Put(_ context.Context, q, a, s, c string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, saved{q, a, s, c})
	return true
}

func (f *fakeSaver) all() []saved {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]saved(nil), f.saves...)
}

func chunk(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": content}}},
	})
	return "data: " + string(b) + "\n\n"
}

func sseUpstream(t *testing.T, handler func(w http.ResponseWriter, flush func())) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		handler(w, flusher.Flush)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestController(t *testing.T, srv *httptest.Server, saver Saver) *Controller {
	t.Helper()
	c := NewController(
		staticResolver{ep: config.EndpointConfig{Name: "test", URL: srv.URL}},
		WithHTTPClient(srv.Client()),
		WithSaver(saver),
	)
	t.Cleanup(c.Close)
	return c
}

type recorder struct {
	mu     sync.Mutex
	deltas []Delta
	states []State
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnDelta: func(_ *Session, d Delta) {
			r.mu.Lock()
			r.deltas = append(r.deltas, d)
			r.mu.Unlock()
		},
		OnState: func(_ *Session, st State) {
			r.mu.Lock()
			r.states = append(r.states, st)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]Delta, []State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delta(nil), r.deltas...), append([]State(nil), r.states...)
}

var mathReq = Request{Question: "What is HCF?", SubjectID: "math", ChapterID: "math_1"}

func TestStreamDeliversDeltasInOrder(t *testing.T) {
	srv := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, chunk("গ.সা.উ. "))
		flush()
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, chunk("হৈছে "))
		fmt.Fprint(w, chunk(""))
		flush()
		fmt.Fprint(w, chunk("highest common factor"))
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, chunk("after done"))
		flush()
	})
	saver := &fakeSaver{}
	c := newTestController(t, srv, saver)

	rec := &recorder{}
	s := c.Start(context.Background(), mathReq, rec.hooks())
	s.Wait()

	deltas, states := rec.snapshot()
	require.Len(t, deltas, 3)
	assert.Equal(t, "গ.সা.উ. ", deltas[0].Text)
	assert.Equal(t, "হৈছে ", deltas[1].Text)
	assert.Equal(t, "গ.সা.উ. হৈছে highest common factor", deltas[2].Accumulated)

	assert.Equal(t, []State{AwaitingFirstToken, Streaming, Completed}, states)
	assert.Equal(t, Completed, s.State())
	assert.Equal(t, "গ.সা.উ. হৈছে highest common factor", s.Text())
	assert.Nil(t, c.Active())

	c.Close()
	got := saver.all()
	require.Len(t, got, 1)
	assert.Equal(t, saved{"What is HCF?", "গ.সা.উ. হৈছে highest common factor", "math", "math_1"}, got[0])
}

func TestStreamEndOfBodyCompletes(t *testing.T) {
	srv := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, chunk("no done marker"))
	})
	c := newTestController(t, srv, nil)

	rec := &recorder{}
	s := c.Start(context.Background(), mathReq, rec.hooks())
	s.Wait()
	assert.Equal(t, Completed, s.State())
	assert.Equal(t, "no done marker", s.Text())

	deltas, _ := rec.snapshot()
	require.Len(t, deltas, 1)
	assert.True(t, deltas[0].BatchEnd)
}

func TestRejectionAndEmptyAnswersAreNotSaved(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"rejection", chunk("❌ এই প্ৰশ্নটো SEBA দশম শ্ৰেণীৰ পাঠ্যক্ৰমৰ ভিতৰত নাই। অনুগ্ৰহ কৰি পাঠ্যপুথিৰ ভিতৰৰ প্ৰশ্ন সুধক।")},
		{"whitespace", chunk("  \n ")},
		{"nothing", "data: [DONE]\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
				fmt.Fprint(w, tt.body)
			})
			saver := &fakeSaver{}
			c := newTestController(t, srv, saver)

			s := c.Start(context.Background(), mathReq, Hooks{})
			s.Wait()
			c.Close()
			assert.Equal(t, Completed, s.State())
			assert.Empty(t, saver.all())
		})
	}
}

func TestUpstreamErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	saver := &fakeSaver{}
	c := newTestController(t, srv, saver)

	rec := &recorder{}
	s := c.Start(context.Background(), mathReq, rec.hooks())
	s.Wait()

	assert.Equal(t, Failed, s.State())
	assert.True(t, errors.Is(s.Err(), ErrUpstreamStatus))
	deltas, _ := rec.snapshot()
	assert.Empty(t, deltas)
	assert.Empty(t, saver.all())
}

func TestResolverErrorFails(t *testing.T) {
	c := NewController(staticResolver{err: errors.New("no endpoints configured")})
	t.Cleanup(c.Close)

	s := c.Start(context.Background(), mathReq, Hooks{})
	s.Wait()
	assert.Equal(t, Failed, s.State())
	assert.Error(t, s.Err())
}

func blockingUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, chunk("partial "))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func TestCancelMidStream(t *testing.T) {
	srv := blockingUpstream(t)
	saver := &fakeSaver{}
	c := newTestController(t, srv, saver)

	got := make(chan struct{}, 1)
	s := c.Start(context.Background(), mathReq, Hooks{
		OnDelta: func(*Session, Delta) { got <- struct{}{} },
	})

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no delta received")
	}
	assert.True(t, c.CancelActive())
	assert.Equal(t, Cancelled, s.State())
	assert.Empty(t, s.Text())

	s.Wait()
	c.Close()
	assert.Equal(t, Cancelled, s.State())
	assert.Empty(t, saver.all())
	assert.False(t, c.CancelActive())
}

func TestStartCancelsPreviousSession(t *testing.T) {
	blocking := blockingUpstream(t)
	done := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, chunk("second answer"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var calls int
	var mu sync.Mutex
	resolver := resolverFunc(func(string) (config.EndpointConfig, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return config.EndpointConfig{URL: blocking.URL}, nil
		}
		return config.EndpointConfig{URL: done.URL}, nil
	})
	saver := &fakeSaver{}
	c := NewController(resolver, WithSaver(saver))
	t.Cleanup(c.Close)

	got := make(chan struct{}, 1)
	first := c.Start(context.Background(), mathReq, Hooks{
		OnDelta: func(*Session, Delta) { got <- struct{}{} },
	})
	<-got

	second := c.Start(context.Background(), mathReq, Hooks{})
	select {
	case <-first.Done():
	default:
		t.Fatal("previous session still running after Start returned")
	}
	assert.Equal(t, Cancelled, first.State())

	second.Wait()
	c.Close()
	assert.Equal(t, Completed, second.State())
	require.Len(t, saver.all(), 1)
	assert.Equal(t, "second answer", saver.all()[0].answer)
}

type resolverFunc func(string) (config.EndpointConfig, error)

func (f resolverFunc) Resolve(s string) (config.EndpointConfig, error) { return f(s) }

func TestRequestShape(t *testing.T) {
	var body completionRequest
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	c := NewController(staticResolver{ep: config.EndpointConfig{URL: srv.URL, APIKey: "sk-1", Model: "deepseek"}})
	t.Cleanup(c.Close)

	req := mathReq
	req.SubjectName = "গণিত"
	req.ChapterName = "বাস্তৱ সংখ্যা"
	s := c.Start(context.Background(), req, Hooks{})
	s.Wait()

	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", header.Get("Accept"))
	assert.Equal(t, "Bearer sk-1", header.Get("Authorization"))
	assert.True(t, body.Stream)
	assert.Equal(t, "deepseek", body.Model)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Contains(t, body.Messages[0].Content, "বিষয়: গণিত")
	assert.Contains(t, body.Messages[0].Content, "অধ্যায়: বাস্তৱ সংখ্যা")
	assert.Contains(t, body.Messages[0].Content, "What is HCF?")
}

func TestReplay(t *testing.T) {
	c := NewController(staticResolver{})
	t.Cleanup(c.Close)

	played := make(chan string, 1)
	rec := &recorder{}
	s := c.Replay(context.Background(), mathReq, func(ctx context.Context, s *Session) error {
		played <- s.Request.Question
		assert.True(t, s.Reveal("HCF is the highest common factor."))
		return nil
	}, rec.hooks())
	s.Wait()

	assert.Equal(t, "What is HCF?", <-played)
	assert.Equal(t, Completed, s.State())
	assert.Equal(t, "HCF is the highest common factor.", s.Text())
	assert.Equal(t, KindReplay, s.Kind)
	_, states := rec.snapshot()
	assert.Equal(t, []State{Streaming, Completed}, states)
}

func TestReplayCancelled(t *testing.T) {
	c := NewController(staticResolver{})
	t.Cleanup(c.Close)

	started := make(chan struct{})
	s := c.Replay(context.Background(), mathReq, func(ctx context.Context, s *Session) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, Hooks{})
	<-started
	c.Cancel(s)
	s.Wait()
	assert.Equal(t, Cancelled, s.State())
	assert.False(t, s.Reveal("late"), "a stopped replay keeps no text")
	assert.Empty(t, s.Text())
}

func TestReplayFailure(t *testing.T) {
	c := NewController(staticResolver{})
	t.Cleanup(c.Close)

	s := c.Replay(context.Background(), mathReq, func(context.Context, *Session) error {
		return io.ErrUnexpectedEOF
	}, Hooks{})
	s.Wait()
	assert.Equal(t, Failed, s.State())
	assert.ErrorIs(t, s.Err(), io.ErrUnexpectedEOF)
}

func TestDrained(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("data: a\n\ndata: b\n\n"))
	_, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.False(t, drained(r))

	_, _ = r.ReadString('\n')
	_, _ = r.ReadString('\n')
	assert.True(t, drained(r))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_first_token", AwaitingFirstToken.String())
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Streaming.Terminal())
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("গণিত", "বহুপদ", "বহুপদ কি?")
	assert.True(t, strings.HasPrefix(p, "\nতুমি এজন কড়া"))
	assert.Contains(t, p, `$$\frac{-b \pm \sqrt{b^2 - 4ac}}{2a}$$`)
	assert.True(t, strings.HasSuffix(p, "ছাত্ৰৰ প্ৰশ্ন:\nবহুপদ কি?\n"))
}
