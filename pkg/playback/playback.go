// Package playback turns answer text into display frames, either as live
// deltas arrive or by replaying a cached answer with typing-like pacing.
package playback

import (
	"context"
	"time"

	"github.com/jajabor-ai/tutor/pkg/config"
	"github.com/jajabor-ai/tutor/pkg/stream"
)

// Frame is the full answer as displayed at one instant.
type Frame struct {
	Text   string `json:"text"`
	Markup string `json:"markup"`
}

// Sink receives frames and scroll requests.
type Sink interface {
	Frame(Frame)
	ScrollToBottom()
}

// Renderer converts raw answer text to markup.
type Renderer interface {
	Render(raw string) string
}

// Gate reports whether auto-scroll is suspended by user interaction.
type Gate interface {
	Suspended() bool
}

// Timing paces playback.
type Timing struct {
	Yield  time.Duration // after each network batch of a live answer
	Poll   time.Duration // re-check interval while scrolling is suspended
	Typing time.Duration // per five runes of a cached word
	Chunk  time.Duration // sentence pause is 2x, paragraph pause 3x
}

// DefaultTiming returns the standard pacing.
func DefaultTiming() Timing {
	return Timing{
		Yield:  10 * time.Millisecond,
		Poll:   500 * time.Millisecond,
		Typing: 60 * time.Millisecond,
		Chunk:  40 * time.Millisecond,
	}
}

// TimingFromConfig fills unset fields from DefaultTiming.
func TimingFromConfig(cfg config.PlaybackConfig) Timing {
	t := DefaultTiming()
	if cfg.Yield > 0 {
		t.Yield = cfg.Yield
	}
	if cfg.Poll > 0 {
		t.Poll = cfg.Poll
	}
	if cfg.Typing > 0 {
		t.Typing = cfg.Typing
	}
	if cfg.Chunk > 0 {
		t.Chunk = cfg.Chunk
	}
	return t
}

// Engine drives a Sink. It is stateless between calls.
type Engine struct {
	render Renderer
	gate   Gate
	timing Timing
}

// New creates an Engine. A nil gate never suspends.
func New(r Renderer, g Gate, t Timing) *Engine {
	return &Engine{render: r, gate: g, timing: t}
}

func (e *Engine) suspended() bool {
	return e.gate != nil && e.gate.Suspended()
}

// Show emits text as one frame and scrolls unless suspended.
func (e *Engine) Show(sink Sink, text string) {
	sink.Frame(Frame{Text: text, Markup: e.render.Render(text)})
	if !e.suspended() {
		sink.ScrollToBottom()
	}
}

// Live returns an OnDelta hook that shows the accumulated answer. At the end
// of each network batch it yields briefly, or waits while scrolling is
// suspended.
func (e *Engine) Live(sink Sink) func(*stream.Session, stream.Delta) {
	return func(s *stream.Session, d stream.Delta) {
		e.Show(sink, d.Accumulated)
		if !d.BatchEnd {
			return
		}
		ctx := s.Context()
		if !e.suspended() {
			_ = sleep(ctx, e.timing.Yield)
			return
		}
		_ = e.waitResumed(ctx)
	}
}

// Finish shows the final answer exactly.
func (e *Engine) Finish(sink Sink, text string) {
	e.Show(sink, text)
}

// waitResumed polls until scrolling resumes or ctx is done.
func (e *Engine) waitResumed(ctx context.Context) error {
	for e.suspended() {
		if err := sleep(ctx, e.timing.Poll); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
