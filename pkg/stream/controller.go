// Package stream runs answer sessions: live answers streamed from an upstream
// completion endpoint and replays of cached answers. At most one session per
// Controller is active at a time.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jajabor-ai/tutor/pkg/config"
	"github.com/jajabor-ai/tutor/pkg/logging"
	"github.com/jajabor-ai/tutor/pkg/metrics"
	"github.com/jajabor-ai/tutor/pkg/syllabus"
)

// ErrUpstreamStatus is returned when the endpoint answers with a non-2xx status.
var ErrUpstreamStatus = errors.New("upstream returned error status")

// Resolver picks the endpoint for a subject.
type Resolver interface {
	Resolve(subjectID string) (config.EndpointConfig, error)
}

// Saver persists completed answers.
type Saver interface {
	Put(ctx context.Context, question, answer, subjectID, chapterID string) bool
}

// PlayFunc drives a replay session. It returns nil when the replay ran to the
// end and ctx.Err() when it was interrupted.
type PlayFunc func(ctx context.Context, s *Session) error

// Option configures a Controller.
type Option func(*Controller)

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(ctl *Controller) { ctl.client = c }
}

// WithSaver stores completed live answers.
func WithSaver(s Saver) Option {
	return func(ctl *Controller) { ctl.saver = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = logging.OrDiscard(l).With("component", "stream") }
}

// WithMetrics records session outcomes and tokens.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ctl *Controller) { ctl.metrics = m }
}

// Controller owns the active session.
type Controller struct {
	resolver Resolver
	saver    Saver
	client   *http.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics

	startMu sync.Mutex // serialises Start and Replay
	mu      sync.Mutex
	active  *Session
	saves   sync.WaitGroup
}

// NewController creates a Controller resolving endpoints with r.
func NewController(r Resolver, opts ...Option) *Controller {
	c := &Controller{
		resolver: r,
		client:   &http.Client{},
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Active returns the session in flight, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil || !s.Active() {
		return nil
	}
	return s
}

// Start cancels any active session, waits for it to release its transport
// and begins streaming a live answer to req.
func (c *Controller) Start(ctx context.Context, req Request, hooks Hooks) *Session {
	s, sctx := c.begin(ctx, KindLive, req, hooks)
	go c.runLive(sctx, s)
	return s
}

// Replay is Start for an answer that is already known. play drives the
// session; nothing is sent upstream and nothing is saved.
func (c *Controller) Replay(ctx context.Context, req Request, play PlayFunc, hooks Hooks) *Session {
	s, sctx := c.begin(ctx, KindReplay, req, hooks)
	go c.runReplay(sctx, s, play)
	return s
}

func (c *Controller) begin(parent context.Context, kind Kind, req Request, hooks Hooks) (*Session, context.Context) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if prev := c.Active(); prev != nil {
		c.Cancel(prev)
	}
	c.mu.Lock()
	prev := c.active
	c.mu.Unlock()
	if prev != nil {
		<-prev.done
	}

	if req.SubjectName == "" {
		req.SubjectName = req.SubjectID
	}
	if req.ChapterName == "" {
		req.ChapterName = req.ChapterID
	}
	s := newSession(kind, req, hooks)
	ctx, cancel := context.WithCancel(parent)
	s.ctx, s.cancel = ctx, cancel

	c.mu.Lock()
	c.active = s
	c.mu.Unlock()

	c.logger.Debug("session started", "session", s.ID, "kind", kind, "subject", req.SubjectID, "chapter", req.ChapterID)
	return s, ctx
}

// Cancel stops s: it becomes Cancelled, its text is discarded and its
// transport is aborted. Cancel does not wait for the goroutine to exit.
func (c *Controller) Cancel(s *Session) {
	if s == nil {
		return
	}
	if s.transition(Cancelled) {
		c.logger.Debug("session cancelled", "session", s.ID)
	}
	s.cancel()
}

// CancelActive cancels the active session, if any, and reports whether
// there was one.
func (c *Controller) CancelActive() bool {
	s := c.Active()
	if s == nil {
		return false
	}
	c.Cancel(s)
	return true
}

// Close cancels the active session and waits for it and any pending cache
// saves to finish.
func (c *Controller) Close() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s != nil {
		c.Cancel(s)
		<-s.done
	}
	c.saves.Wait()
}

func (c *Controller) finished(s *Session) {
	st := s.State()
	c.metrics.SessionFinished(string(s.Kind), st.String())
	c.logger.Info("session finished",
		"session", s.ID,
		"kind", s.Kind,
		"state", st.String(),
		"chars", len(s.Text()),
		"duration", time.Since(s.StartedAt).Round(time.Millisecond),
	)
}

func (c *Controller) runReplay(ctx context.Context, s *Session, play PlayFunc) {
	defer s.cancel()
	defer close(s.done)
	defer c.finished(s)

	s.transition(Streaming)
	err := play(ctx, s)
	switch {
	case err == nil:
		s.transition(Completed)
	case ctx.Err() != nil:
		s.transition(Cancelled)
	default:
		s.fail(err)
	}
}

func (c *Controller) runLive(ctx context.Context, s *Session) {
	defer s.cancel()
	defer close(s.done)
	defer c.finished(s)

	s.transition(AwaitingFirstToken)

	ep, err := c.resolver.Resolve(s.Request.SubjectID)
	if err != nil {
		c.logger.Error("no endpoint for subject", "subject", s.Request.SubjectID, "err", err)
		s.fail(err)
		return
	}

	resp, err := c.openStream(ctx, ep, s.Request)
	if err != nil {
		c.stopWith(ctx, s, err)
		return
	}
	defer resp.Body.Close()

	if err := c.consume(ctx, s, resp.Body); err != nil {
		c.stopWith(ctx, s, err)
		return
	}

	if !s.transition(Completed) {
		return
	}
	answer := s.Text()
	if strings.TrimSpace(answer) == "" || syllabus.IsRejection(answer) {
		return
	}
	if c.saver == nil {
		return
	}
	req := s.Request
	c.saves.Add(1)
	go func() {
		defer c.saves.Done()
		c.saver.Put(context.Background(), req.Question, answer, req.SubjectID, req.ChapterID)
	}()
}

func (c *Controller) stopWith(ctx context.Context, s *Session, err error) {
	if ctx.Err() != nil {
		s.transition(Cancelled)
		return
	}
	c.logger.Warn("stream failed", "session", s.ID, "err", err)
	s.fail(err)
}

// completionRequest is the upstream request body. Model is optional.
type completionRequest struct {
	Model    string                         `json:"model,omitempty"`
	Messages []openai.ChatCompletionMessage `json:"messages"`
	Stream   bool                           `json:"stream"`
}

func (c *Controller) openStream(ctx context.Context, ep config.EndpointConfig, req Request) (*http.Response, error) {
	body, err := json.Marshal(completionRequest{
		Model: ep.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: BuildPrompt(req.SubjectName, req.ChapterName, req.Question),
		}},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if ep.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}
	return resp, nil
}

// consume parses the SSE body and delivers deltas until [DONE], end of body
// or cancellation.
func (c *Controller) consume(ctx context.Context, s *Session, body io.Reader) error {
	reader := bufio.NewReader(body)
	first := true
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("reading stream: %w", readErr)
		}

		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return nil
			}
			text, ok := c.parseChunk(s, data)
			if ok && text != "" {
				acc, live := s.appendText(text)
				if !live {
					return ctx.Err()
				}
				if first {
					first = false
					s.transition(Streaming)
					c.metrics.ObserveFirstToken(time.Since(s.StartedAt).Seconds())
				}
				c.metrics.Token()
				if s.hooks.OnDelta != nil {
					s.hooks.OnDelta(s, Delta{
						Text:        text,
						Accumulated: acc,
						BatchEnd:    drained(reader),
					})
				}
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (c *Controller) parseChunk(s *Session, data string) (string, bool) {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		c.logger.Debug("skipping malformed chunk", "session", s.ID, "err", err)
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}

// drained reports whether the reader holds nothing but whitespace, meaning
// the next event needs another network read.
func drained(r *bufio.Reader) bool {
	n := r.Buffered()
	if n == 0 {
		return true
	}
	buf, err := r.Peek(n)
	if err != nil {
		return false
	}
	return len(bytes.TrimSpace(buf)) == 0
}
