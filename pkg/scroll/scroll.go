// Package scroll tracks whether auto-scroll is suspended because the user is
// interacting with the chat area.
package scroll

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jajabor-ai/tutor/pkg/config"
	"github.com/jajabor-ai/tutor/pkg/logging"
	"github.com/jajabor-ai/tutor/pkg/models"
)

// Interaction kinds.
const (
	Pointer = "pointer"
	Touch   = "touch"
)

// Timing controls how suspension ends.
type Timing struct {
	Brief    time.Duration // pointer visits shorter than this resume at once
	Debounce time.Duration // delay before resuming after a pointer leaves
	Cooldown time.Duration // delay before the forced scroll, and before touch resumes
}

// DefaultTiming returns the standard timings.
func DefaultTiming() Timing {
	return Timing{
		Brief:    100 * time.Millisecond,
		Debounce: 100 * time.Millisecond,
		Cooldown: 2 * time.Second,
	}
}

// TimingFromConfig fills unset fields from DefaultTiming.
func TimingFromConfig(cfg config.ScrollConfig) Timing {
	t := DefaultTiming()
	if cfg.Brief > 0 {
		t.Brief = cfg.Brief
	}
	if cfg.Debounce > 0 {
		t.Debounce = cfg.Debounce
	}
	if cfg.Cooldown > 0 {
		t.Cooldown = cfg.Cooldown
	}
	return t
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrDiscard(l).With("component", "scroll") }
}

// Coordinator is safe for concurrent use. Timers started by one interaction
// are ignored once another interaction starts.
type Coordinator struct {
	timing Timing
	now    func() time.Time
	logger *slog.Logger

	mu          sync.Mutex
	suspended   bool
	interacting bool
	hoverStart  time.Time
	gen         uint64
	closed      bool
	force       func()
}

// New creates a Coordinator with scrolling enabled.
func New(t Timing, opts ...Option) *Coordinator {
	c := &Coordinator{
		timing: t,
		now:    time.Now,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnForceScroll sets the callback run when scrolling resumes with a jump to
// the bottom.
func (c *Coordinator) OnForceScroll(fn func()) {
	c.mu.Lock()
	c.force = fn
	c.mu.Unlock()
}

// Suspended reports whether auto-scroll is paused.
func (c *Coordinator) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// State returns a snapshot.
func (c *Coordinator) State() models.ScrollState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := models.ScrollState{Suspended: c.suspended}
	if c.interacting && !c.hoverStart.IsZero() {
		at := c.hoverStart
		st.HoverStartedAt = &at
	}
	return st
}

// InteractionStart suspends scrolling immediately.
func (c *Coordinator) InteractionStart(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.gen++
	c.interacting = true
	c.suspended = true
	c.hoverStart = time.Time{}
	if kind == Pointer {
		c.hoverStart = c.now()
	}
	c.logger.Debug("scroll suspended", "kind", kind)
}

// InteractionEnd schedules the resume for kind.
func (c *Coordinator) InteractionEnd(kind string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.interacting = false
	gen := c.gen

	if kind == Touch {
		c.mu.Unlock()
		time.AfterFunc(c.timing.Cooldown, func() { c.resume(gen) })
		return
	}

	if c.hoverStart.IsZero() || c.now().Sub(c.hoverStart) <= c.timing.Brief {
		c.suspended = false
		force := c.force
		c.mu.Unlock()
		c.logger.Debug("scroll resumed", "kind", kind, "brief", true)
		if force != nil {
			force()
		}
		return
	}
	c.mu.Unlock()

	time.AfterFunc(c.timing.Debounce, func() {
		if !c.resume(gen) {
			return
		}
		time.AfterFunc(c.timing.Cooldown, func() { c.forceIfIdle(gen) })
	})
}

// Close invalidates pending timers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.gen++
	c.mu.Unlock()
}

func (c *Coordinator) resume(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.interacting {
		return false
	}
	c.suspended = false
	c.logger.Debug("scroll resumed")
	return true
}

func (c *Coordinator) forceIfIdle(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.interacting {
		c.mu.Unlock()
		return
	}
	force := c.force
	c.mu.Unlock()
	if force != nil {
		force()
	}
}
