// Package server is the HTTP API: question streaming over server-sent
// events, stop and interaction controls, catalog browsing and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jajabor-ai/tutor/pkg/catalog"
	"github.com/jajabor-ai/tutor/pkg/config"
	"github.com/jajabor-ai/tutor/pkg/logging"
	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/jajabor-ai/tutor/pkg/quota"
	"github.com/jajabor-ai/tutor/pkg/tutor"
)

// anonymous is the user when no tokens are configured. Each browser is told
// apart by the clientCookie value appended to the name.
var anonymous = models.User{Name: "student"}

const clientCookie = "tutor_client"

// Deps are the collaborators shared by every student's Tutor.
type Deps struct {
	Tutor    tutor.Deps
	Catalog  *catalog.Catalog
	Quota    *quota.Enforcer
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server serves the tutor API. Each authenticated student gets one Tutor.
type Server struct {
	cfg    *config.Config
	deps   Deps
	users  map[string]models.User
	mux    *http.ServeMux
	logger *slog.Logger

	mu       sync.Mutex
	tutors   map[string]*tutor.Tutor
	limiters map[string]*rate.Limiter
}

// New creates a Server.
func New(cfg *config.Config, d Deps) *Server {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Catalog == nil {
		d.Catalog = catalog.New(nil, d.Logger)
		d.Catalog.Load(context.Background())
	}
	if d.Tutor.Catalog == nil {
		d.Tutor.Catalog = d.Catalog
	}
	s := &Server{
		cfg:      cfg,
		deps:     d,
		users:    make(map[string]models.User, len(cfg.Auth.Users)),
		mux:      http.NewServeMux(),
		logger:   logging.OrDiscard(d.Logger).With("component", "server"),
		tutors:   make(map[string]*tutor.Tutor),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, u := range cfg.Auth.Users {
		s.users[u.Token] = u.User
	}

	s.mux.HandleFunc("POST /v1/ask", s.handleAsk)
	s.mux.HandleFunc("POST /v1/stop", s.handleStop)
	s.mux.HandleFunc("POST /v1/interaction", s.handleInteraction)
	s.mux.HandleFunc("GET /v1/subjects", s.handleSubjects)
	s.mux.HandleFunc("GET /v1/subjects/{id}/chapters", s.handleChapters)
	s.mux.HandleFunc("GET /v1/chapters/{id}/questions", s.handleQuestions)
	s.mux.HandleFunc("GET /v1/me", s.handleMe)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("tutor listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// Close stops every student's answer in progress.
func (s *Server) Close() {
	s.mu.Lock()
	tutors := make([]*tutor.Tutor, 0, len(s.tutors))
	for _, t := range s.tutors {
		tutors = append(tutors, t)
	}
	s.mu.Unlock()
	for _, t := range tutors {
		t.Close()
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	if len(s.users) == 0 {
		return clientUser(w, r), true
	}
	token := extractAPIKey(r)
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing token")
		return models.User{}, false
	}
	u, ok := s.users[token]
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
		return models.User{}, false
	}
	return u, true
}

// clientUser identifies an anonymous browser by its cookie, issuing a new one
// when it is missing or malformed.
func clientUser(w http.ResponseWriter, r *http.Request) models.User {
	id := ""
	if c, err := r.Cookie(clientCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			id = c.Value
		}
	}
	if id == "" {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     clientCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	u := anonymous
	u.Name = anonymous.Name + "-" + id
	return u
}

func userKey(u models.User) string {
	if u.Email != "" {
		return u.Email
	}
	return u.Name
}

func (s *Server) tutorFor(u models.User) *tutor.Tutor {
	key := userKey(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tutors[key]
	if !ok {
		d := s.deps.Tutor
		if d.Logger == nil {
			d.Logger = s.deps.Logger
		}
		t = tutor.New(u, d)
		s.tutors[key] = t
	}
	return t
}

func (s *Server) allow(u models.User) bool {
	rl := s.cfg.RateLimit
	if rl.PerMinute <= 0 {
		return true
	}
	key := userKey(u)
	s.mu.Lock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rl.PerMinute/60), max(rl.Burst, 1))
		s.limiters[key] = l
	}
	s.mu.Unlock()
	return l.Allow()
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	switch {
	case req.Question == "":
		writeJSONError(w, http.StatusBadRequest, tutor.ErrEmptyQuestion.Error())
		return
	case req.SubjectID == "" || req.ChapterID == "":
		writeJSONError(w, http.StatusBadRequest, tutor.ErrMissingScope.Error())
		return
	}

	if err := s.deps.Quota.Check(r.Context(), u.Email); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			writeJSONError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		s.logger.Warn("quota check failed", "user", u.Email, "err", err)
	}
	if !s.allow(u) {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	sink, err := newEventSink(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer sink.close()

	out, err := s.tutorFor(u).Ask(r.Context(), req, sink)
	if err != nil {
		sink.send("error", map[string]string{"message": err.Error()})
		return
	}
	sink.send("done", map[string]string{
		"session_id": out.SessionID,
		"source":     out.Source,
		"state":      out.State.String(),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": s.tutorFor(u).Stop()})
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var ev models.InteractionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.tutorFor(u).Interaction(ev); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Catalog.Subjects())
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	id := r.PathValue("id")
	if _, ok := s.deps.Catalog.Subject(id); !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown subject %q", id))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Catalog.Chapters(r.Context(), id))
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Catalog.Questions(r.Context(), r.PathValue("id")))
}

type meResponse struct {
	User   models.User          `json:"user"`
	Active bool                 `json:"active"`
	Scroll models.ScrollState   `json:"scroll"`
	Quota  []models.QuotaStatus `json:"quota,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	t := s.tutorFor(u)
	resp := meResponse{User: u, Active: t.Active(), Scroll: t.ScrollState()}
	statuses, err := s.deps.Quota.Status(r.Context(), u.Email)
	if err != nil {
		s.logger.Warn("quota status failed", "user", u.Email, "err", err)
	}
	resp.Quota = statuses
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"catalog_fallback": s.deps.Catalog.UsingFallback(),
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("x-api-key")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"tutor_error","code":%d}}`, message, code)
}
