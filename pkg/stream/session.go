package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a session lifecycle state.
type State int

const (
	Idle State = iota
	AwaitingFirstToken
	Streaming
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingFirstToken:
		return "awaiting_first_token"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Kind distinguishes live upstream answers from cached replays.
type Kind string

const (
	KindLive   Kind = "live"
	KindReplay Kind = "replay"
)

// Request is one question within a subject and chapter. The display names
// fill the prompt; they default to the ids.
type Request struct {
	Question    string
	SubjectID   string
	ChapterID   string
	SubjectName string
	ChapterName string
}

// Delta is one piece of upstream text.
type Delta struct {
	Text        string
	Accumulated string
	// BatchEnd is set when no further upstream data is buffered, so the next
	// read waits on the network.
	BatchEnd bool
}

// Hooks receive session events. OnDelta runs on the session goroutine in
// arrival order. OnState runs on whichever goroutine caused the transition.
// Either may be nil.
type Hooks struct {
	OnDelta func(*Session, Delta)
	OnState func(*Session, State)
}

// Session is one answer in flight.
type Session struct {
	ID        string
	Kind      Kind
	Request   Request
	StartedAt time.Time

	hooks  Hooks
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	text  strings.Builder
	err   error
}

func newSession(kind Kind, req Request, hooks Hooks) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		Request:   req,
		StartedAt: time.Now(),
		hooks:     hooks,
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the session has not reached a terminal state.
func (s *Session) Active() bool {
	return !s.State().Terminal()
}

// Text returns the accumulated answer. It is empty once cancelled.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Err returns the failure cause for a Failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Context is cancelled when the session is stopped.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Done is closed when the session goroutine has exited and released its
// transport.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until Done is closed.
func (s *Session) Wait() {
	<-s.done
}

// transition moves to next unless the session is already terminal.
func (s *Session) transition(next State) bool {
	s.mu.Lock()
	if s.state.Terminal() || s.state == next {
		s.mu.Unlock()
		return false
	}
	s.state = next
	if next == Cancelled {
		s.text.Reset()
	}
	s.mu.Unlock()

	if s.hooks.OnState != nil {
		s.hooks.OnState(s, next)
	}
	return true
}

func (s *Session) fail(err error) bool {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.err = err
	}
	s.mu.Unlock()
	return s.transition(Failed)
}

// Reveal records text as the accumulated answer of a replay, or reports
// false if the session has been stopped.
func (s *Session) Reveal(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.text.Reset()
	s.text.WriteString(text)
	return true
}

// appendText adds text and reports the accumulated answer, or false if the
// session has been stopped.
func (s *Session) appendText(text string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return "", false
	}
	s.text.WriteString(text)
	return s.text.String(), true
}
