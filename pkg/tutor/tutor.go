// Package tutor orchestrates one student's chat: the syllabus gate, the
// answer cache, live or cached playback and scroll suspension.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jajabor-ai/tutor/pkg/audit"
	"github.com/jajabor-ai/tutor/pkg/cache"
	"github.com/jajabor-ai/tutor/pkg/logging"
	"github.com/jajabor-ai/tutor/pkg/metrics"
	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/jajabor-ai/tutor/pkg/playback"
	"github.com/jajabor-ai/tutor/pkg/render"
	"github.com/jajabor-ai/tutor/pkg/scroll"
	"github.com/jajabor-ai/tutor/pkg/stream"
	"github.com/jajabor-ai/tutor/pkg/syllabus"
	"github.com/jajabor-ai/tutor/pkg/tracker"
)

// Fixed messages shown in place of an answer.
const (
	RejectionMessage = "❌ " + syllabus.RejectionPhrase + "।\n\nঅনুগ্ৰহ কৰি পাঠ্যপুথিৰ ভিতৰৰ প্ৰশ্ন সুধক।"
	StoppedMessage   = "⏹️ উত্তৰ দিয়া বন্ধ কৰা হ'ল"
	ErrorMessage     = "❌ নেটৱৰ্ক সমস্যা। অনুগ্ৰহ কৰি পুনৰ চেষ্টা কৰক।"
)

var (
	// ErrMissingScope is returned when the subject or chapter is not selected.
	ErrMissingScope = errors.New("subject and chapter are required")
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrBadInteraction is returned for an unknown interaction kind or phase.
	ErrBadInteraction = errors.New("unknown interaction")
)

// Sink receives everything the student sees for one question.
type Sink interface {
	playback.Sink
	State(stream.State)
}

// Namer supplies display names for the prompt.
type Namer interface {
	DisplayNames(subjectID, chapterID string) (string, string)
}

// Transcripts receives a copy of every exchange.
type Transcripts interface {
	Log(ctx context.Context, e models.TranscriptEntry) error
}

// Outcome describes how a question was answered.
type Outcome struct {
	SessionID string       `json:"session_id,omitempty"`
	Source    string       `json:"source"`
	State     stream.State `json:"-"`
	Text      string       `json:"-"`
}

// Deps are the collaborators shared by every Tutor.
type Deps struct {
	Filter     *syllabus.Filter
	Cache      *cache.Store
	Resolver   stream.Resolver
	Catalog    Namer
	Tracker    tracker.Tracker
	Audit      Transcripts
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	HTTPClient *http.Client
	Renderer   playback.Renderer
	Playback   playback.Timing
	Scroll     scroll.Timing
}

// Tutor serves one chat transcript. Asking a new question stops the
// previous answer.
type Tutor struct {
	user    models.User
	filter  *syllabus.Filter
	cache   *cache.Store
	ctrl    *stream.Controller
	engine  *playback.Engine
	scroll  *scroll.Coordinator
	namer   Namer
	tracker tracker.Tracker
	audit   Transcripts
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu   sync.Mutex
	sink Sink
}

// New creates a Tutor for user.
func New(user models.User, d Deps) *Tutor {
	logger := logging.OrDiscard(d.Logger)
	if user.Email != "" {
		logger = logger.With("user", user.Email)
	}
	if d.Filter == nil {
		d.Filter = syllabus.New(syllabus.DefaultPolicy())
	}

	if d.Renderer == nil {
		d.Renderer = render.New(nil, logger)
	}

	opts := []stream.Option{
		stream.WithLogger(logger),
		stream.WithMetrics(d.Metrics),
	}
	if d.Cache != nil {
		opts = append(opts, stream.WithSaver(d.Cache))
	}
	if d.HTTPClient != nil {
		opts = append(opts, stream.WithHTTPClient(d.HTTPClient))
	}

	t := &Tutor{
		user:    user,
		filter:  d.Filter,
		cache:   d.Cache,
		ctrl:    stream.NewController(d.Resolver, opts...),
		scroll:  scroll.New(d.Scroll, scroll.WithLogger(logger)),
		namer:   d.Catalog,
		tracker: d.Tracker,
		audit:   d.Audit,
		metrics: d.Metrics,
		logger:  logger.With("component", "tutor"),
	}
	t.engine = playback.New(d.Renderer, t.scroll, d.Playback)
	t.scroll.OnForceScroll(t.forceScroll)
	return t
}

// User returns the student this Tutor serves.
func (t *Tutor) User() models.User {
	return t.user
}

func (t *Tutor) forceScroll() {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink != nil {
		sink.ScrollToBottom()
	}
}

func (t *Tutor) attach(sink Sink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

func (t *Tutor) detach(sink Sink) {
	t.mu.Lock()
	if t.sink == sink {
		t.sink = nil
	}
	t.mu.Unlock()
}

// Ask answers req into sink and blocks until the answer is complete,
// stopped or failed. Only validation errors are returned; every other
// outcome is reported through sink and the Outcome.
func (t *Tutor) Ask(ctx context.Context, req models.AskRequest, sink Sink) (Outcome, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Outcome{}, ErrEmptyQuestion
	}
	if req.SubjectID == "" || req.ChapterID == "" {
		return Outcome{}, ErrMissingScope
	}

	t.attach(sink)
	defer t.detach(sink)
	start := time.Now()

	if t.filter.IsOutOfSyllabus(question) {
		t.ctrl.CancelActive()
		t.metrics.Rejected()
		t.logger.Info("question out of syllabus", "question", truncate(question, 50))
		t.engine.Show(sink, RejectionMessage)
		out := Outcome{Source: models.SourceRejected, State: stream.Completed, Text: RejectionMessage}
		t.record(question, req, out, start)
		return out, nil
	}

	sreq := stream.Request{Question: question, SubjectID: req.SubjectID, ChapterID: req.ChapterID}
	if t.namer != nil {
		sreq.SubjectName, sreq.ChapterName = t.namer.DisplayNames(req.SubjectID, req.ChapterID)
	}
	hooks := stream.Hooks{OnState: func(_ *stream.Session, st stream.State) { sink.State(st) }}

	var s *stream.Session
	source := models.SourceLive
	if answer, ok := t.cache.Get(ctx, question, req.SubjectID, req.ChapterID); ok {
		source = models.SourceCache
		s = t.ctrl.Replay(ctx, sreq, func(ctx context.Context, rs *stream.Session) error {
			if err := t.engine.Cached(ctx, answer, sink); err != nil {
				return err
			}
			rs.Reveal(answer)
			return nil
		}, hooks)
	} else {
		hooks.OnDelta = t.engine.Live(sink)
		s = t.ctrl.Start(ctx, sreq, hooks)
	}
	s.Wait()

	out := Outcome{SessionID: s.ID, Source: source, State: s.State()}
	switch out.State {
	case stream.Completed:
		out.Text = s.Text()
		if source == models.SourceLive {
			t.engine.Finish(sink, out.Text)
		}
	case stream.Cancelled:
		out.Text = StoppedMessage
		t.engine.Show(sink, StoppedMessage)
	default:
		out.Text = ErrorMessage
		t.logger.Warn("answer failed", "session", s.ID, "err", s.Err())
		t.engine.Show(sink, ErrorMessage)
	}
	t.record(question, req, out, start)
	return out, nil
}

// Stop cancels the answer in progress and reports whether there was one.
func (t *Tutor) Stop() bool {
	return t.ctrl.CancelActive()
}

// Active reports whether an answer is in progress.
func (t *Tutor) Active() bool {
	return t.ctrl.Active() != nil
}

// Interaction forwards a pointer or touch event to the scroll coordinator.
func (t *Tutor) Interaction(ev models.InteractionEvent) error {
	if ev.Kind != scroll.Pointer && ev.Kind != scroll.Touch {
		return fmt.Errorf("%w: kind %q", ErrBadInteraction, ev.Kind)
	}
	switch ev.Phase {
	case "start":
		t.scroll.InteractionStart(ev.Kind)
	case "end":
		t.scroll.InteractionEnd(ev.Kind)
	default:
		return fmt.Errorf("%w: phase %q", ErrBadInteraction, ev.Phase)
	}
	return nil
}

// ScrollState returns the current scroll suspension state.
func (t *Tutor) ScrollState() models.ScrollState {
	return t.scroll.State()
}

// Close stops any answer in progress and waits for background cache writes.
func (t *Tutor) Close() {
	t.ctrl.Close()
	t.scroll.Close()
}

func (t *Tutor) record(question string, req models.AskRequest, out Outcome, start time.Time) {
	if t.tracker == nil && t.audit == nil {
		return
	}
	id := out.SessionID
	if id == "" {
		id = "rej_" + start.UTC().Format("20060102T150405.000000000")
	}
	elapsed := time.Since(start)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if t.tracker != nil {
		rec := models.SessionRecord{
			ID:        id,
			UserEmail: t.user.Email,
			Source:    out.Source,
			SubjectID: req.SubjectID,
			ChapterID: req.ChapterID,
			Outcome:   outcomeName(out),
			Chars:     len([]rune(out.Text)),
			Duration:  elapsed,
			CreatedAt: start,
		}
		if err := t.tracker.Record(ctx, rec); err != nil {
			t.logger.Warn("failed to record session", "err", err)
		}
	}
	if t.audit != nil {
		hash, prefix := audit.HashUser(t.user.Email)
		entry := models.TranscriptEntry{
			SessionID:  id,
			UserHash:   hash,
			UserPrefix: prefix,
			SubjectID:  req.SubjectID,
			ChapterID:  req.ChapterID,
			Source:     out.Source,
			Outcome:    outcomeName(out),
			Question:   question,
			Answer:     out.Text,
			LatencyMs:  elapsed.Milliseconds(),
			CreatedAt:  start,
		}
		if err := t.audit.Log(ctx, entry); err != nil {
			t.logger.Warn("failed to log transcript", "err", err)
		}
	}
}

func outcomeName(out Outcome) string {
	if out.Source == models.SourceRejected {
		return "rejected"
	}
	return out.State.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
