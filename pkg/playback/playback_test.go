package playback

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jajabor-ai/tutor/pkg/config"
	"github.com/jajabor-ai/tutor/pkg/stream"
)

type upper struct{}

func (upper) Render(raw string) string { return strings.ToUpper(raw) }

type gate struct{ suspended atomic.Bool }

func (g *gate) Suspended() bool { return g.suspended.Load() }

type sink struct {
	mu      sync.Mutex
	frames  []Frame
	scrolls int
	onFrame func(n int)
}

func (s *sink) Frame(f Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	n := len(s.frames)
	cb := s.onFrame
	s.mu.Unlock()
	if cb != nil {
		cb(n)
	}
}

func (s *sink) ScrollToBottom() {
	s.mu.Lock()
	s.scrolls++
	s.mu.Unlock()
}

func (s *sink) snapshot() ([]Frame, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...), s.scrolls
}

const answer = "বাস্তৱ সংখ্যা এটা **সংখ্যা**। It has $x^2$ parts.\n\n1. first step!\n2. second step\n"

func TestCachedFramesArePrefixes(t *testing.T) {
	e := New(upper{}, nil, Timing{})
	out := &sink{}
	require.NoError(t, e.Cached(context.Background(), answer, out))

	frames, scrolls := out.snapshot()
	require.NotEmpty(t, frames)
	prev := 0
	for _, f := range frames {
		assert.True(t, strings.HasPrefix(answer, f.Text), "frame %q is not a prefix", f.Text)
		assert.GreaterOrEqual(t, len(f.Text), prev)
		assert.Equal(t, strings.ToUpper(f.Text), f.Markup)
		prev = len(f.Text)
	}
	assert.Equal(t, answer, frames[len(frames)-1].Text)
	assert.Equal(t, len(frames), scrolls)
}

func TestCachedWordFrames(t *testing.T) {
	e := New(upper{}, nil, Timing{})
	out := &sink{}
	require.NoError(t, e.Cached(context.Background(), "one two\n\nthree", out))

	frames, _ := out.snapshot()
	var texts []string
	for _, f := range frames {
		texts = append(texts, f.Text)
	}
	assert.Equal(t, []string{"one", "one two", "one two\n\n", "one two\n\nthree"}, texts)
}

func TestCachedEmptyAnswer(t *testing.T) {
	e := New(upper{}, nil, Timing{})
	out := &sink{}
	require.NoError(t, e.Cached(context.Background(), "", out))
	frames, _ := out.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, "", frames[0].Text)
}

func TestCachedInterrupted(t *testing.T) {
	e := New(upper{}, nil, Timing{Typing: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &sink{onFrame: func(n int) {
		if n == 3 {
			cancel()
		}
	}}

	err := e.Cached(ctx, answer, out)
	assert.ErrorIs(t, err, context.Canceled)
	frames, _ := out.snapshot()
	assert.Len(t, frames, 3)
	assert.NotEqual(t, answer, frames[len(frames)-1].Text)
}

func TestCachedWaitsWhileSuspended(t *testing.T) {
	g := &gate{}
	g.suspended.Store(true)
	e := New(upper{}, g, Timing{Poll: 2 * time.Millisecond})
	out := &sink{}

	done := make(chan error, 1)
	go func() { done <- e.Cached(context.Background(), "এক। দুই। তিনি।", out) }()

	time.Sleep(50 * time.Millisecond)
	frames, scrolls := out.snapshot()
	assert.Len(t, frames, 1, "playback must hold at the sentence boundary while suspended")
	assert.Equal(t, 0, scrolls)

	g.suspended.Store(false)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not resume")
	}
	frames, _ = out.snapshot()
	assert.Equal(t, "এক। দুই। তিনি।", frames[len(frames)-1].Text)
}

func TestPlan(t *testing.T) {
	tm := Timing{Typing: 60 * time.Millisecond}
	steps := plan("abcde কখগ।\n \nxy", tm)
	require.Len(t, steps, 4)

	assert.Equal(t, step{end: 5, delay: 60 * time.Millisecond}, steps[0])
	assert.Equal(t, len("abcde কখগ।"), steps[1].end)
	assert.Equal(t, 48*time.Millisecond, steps[1].delay)
	assert.Equal(t, sentenceBoundary, steps[1].boundary)
	assert.Equal(t, paragraphBoundary, steps[2].boundary)
	assert.Equal(t, len("abcde কখগ।\n \n"), steps[2].end)
	assert.Equal(t, sentenceBoundary, steps[3].boundary)
}

func TestLiveHook(t *testing.T) {
	g := &gate{}
	e := New(upper{}, g, Timing{Yield: time.Millisecond, Poll: time.Millisecond})
	out := &sink{}
	hook := e.Live(out)

	c := stream.NewController(nil)
	t.Cleanup(c.Close)
	s := c.Replay(context.Background(), stream.Request{Question: "q"}, func(ctx context.Context, s *stream.Session) error {
		hook(s, stream.Delta{Text: "ab", Accumulated: "ab"})
		hook(s, stream.Delta{Text: "c", Accumulated: "abc", BatchEnd: true})
		g.suspended.Store(true)
		hook(s, stream.Delta{Text: "d", Accumulated: "abcd"})
		return nil
	}, stream.Hooks{})
	s.Wait()

	frames, scrolls := out.snapshot()
	require.Len(t, frames, 3)
	assert.Equal(t, Frame{Text: "abcd", Markup: "ABCD"}, frames[2])
	assert.Equal(t, 2, scrolls)
}

func TestLiveHookStopsWaitingWhenCancelled(t *testing.T) {
	g := &gate{}
	g.suspended.Store(true)
	e := New(upper{}, g, Timing{Poll: time.Hour})
	hook := e.Live(&sink{})

	c := stream.NewController(nil)
	t.Cleanup(c.Close)
	entered := make(chan struct{})
	s := c.Replay(context.Background(), stream.Request{}, func(ctx context.Context, s *stream.Session) error {
		close(entered)
		hook(s, stream.Delta{Text: "a", Accumulated: "a", BatchEnd: true})
		return ctx.Err()
	}, stream.Hooks{})

	<-entered
	c.Cancel(s)
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("live hook kept waiting after cancel")
	}
	assert.Equal(t, stream.Cancelled, s.State())
}

func TestTimingFromConfig(t *testing.T) {
	tm := TimingFromConfig(config.PlaybackConfig{Typing: 30 * time.Millisecond})
	assert.Equal(t, 30*time.Millisecond, tm.Typing)
	assert.Equal(t, DefaultTiming().Poll, tm.Poll)
	assert.Equal(t, DefaultTiming().Chunk, tm.Chunk)
}
