// Package catalog serves the subject, chapter and exercise question lists.
// Data comes from a Source; built-in fallback data is used when the source
// is empty or failing.
package catalog

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jajabor-ai/tutor/pkg/logging"
	"github.com/jajabor-ai/tutor/pkg/models"
)

// Source is a catalog store. Empty ids mean "all".
type Source interface {
	Subjects(ctx context.Context) ([]models.Subject, error)
	Chapters(ctx context.Context, subjectID string) ([]models.Chapter, error)
	Questions(ctx context.Context, chapterID string) ([]models.Question, error)
}

// Catalog is an in-memory view over a Source. Safe for concurrent use.
type Catalog struct {
	src    Source
	logger *slog.Logger
	flight singleflight.Group

	mu        sync.RWMutex
	subjects  []models.Subject
	chapters  map[string][]models.Chapter  // by subject
	questions map[string][]models.Question // by chapter
	fallback  bool
}

// New creates an empty Catalog. src may be nil, in which case Load installs
// the fallback data.
func New(src Source, logger *slog.Logger) *Catalog {
	return &Catalog{
		src:       src,
		logger:    logging.OrDiscard(logger).With("component", "catalog"),
		chapters:  make(map[string][]models.Chapter),
		questions: make(map[string][]models.Question),
	}
}

// Load reads all three tables in parallel. If any read fails or there are
// no subjects, the fallback data is installed instead. Load never fails.
func (c *Catalog) Load(ctx context.Context) {
	if c.src == nil {
		c.installFallback("no catalog source")
		return
	}

	var (
		subjects  []models.Subject
		chapters  []models.Chapter
		questions []models.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		subjects, err = c.src.Subjects(gctx)
		return err
	})
	g.Go(func() (err error) {
		chapters, err = c.src.Chapters(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		questions, err = c.src.Questions(gctx, "")
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("catalog load failed, using fallback data", "err", err)
		c.installFallback("load failed")
		return
	}
	if len(subjects) == 0 {
		c.installFallback("no subjects in database")
		return
	}

	c.install(subjects, chapters, questions, false)
	c.logger.Info("catalog loaded", "subjects", len(subjects), "chapters", len(chapters), "questions", len(questions))
}

func (c *Catalog) installFallback(reason string) {
	s, ch, q := Fallback()
	c.install(s, ch, q, true)
	c.logger.Info("using fallback catalog", "reason", reason)
}

func (c *Catalog) install(subjects []models.Subject, chapters []models.Chapter, questions []models.Question, fallback bool) {
	byS := make(map[string][]models.Chapter)
	for _, ch := range chapters {
		byS[ch.SubjectID] = append(byS[ch.SubjectID], ch)
	}
	byC := make(map[string][]models.Question)
	for _, q := range questions {
		byC[q.ChapterID] = append(byC[q.ChapterID], q)
	}

	c.mu.Lock()
	c.subjects = subjects
	c.chapters = byS
	c.questions = byC
	c.fallback = fallback
	c.mu.Unlock()
}

// UsingFallback reports whether the built-in data is being served.
func (c *Catalog) UsingFallback() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fallback
}

// Subjects returns all subjects.
func (c *Catalog) Subjects() []models.Subject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Subject(nil), c.subjects...)
}

// Subject looks up one subject.
func (c *Catalog) Subject(id string) (models.Subject, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.subjects {
		if s.ID == id {
			return s, true
		}
	}
	return models.Subject{}, false
}

// Chapter looks up one chapter among those loaded.
func (c *Catalog) Chapter(id string) (models.Chapter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, chs := range c.chapters {
		for _, ch := range chs {
			if ch.ID == id {
				return ch, true
			}
		}
	}
	return models.Chapter{}, false
}

// Chapters returns the chapters of subjectID. Subjects with no loaded
// chapters are fetched from the source on demand; concurrent fetches of the
// same subject share one query.
func (c *Catalog) Chapters(ctx context.Context, subjectID string) []models.Chapter {
	c.mu.RLock()
	cached := c.chapters[subjectID]
	c.mu.RUnlock()
	if len(cached) > 0 || c.src == nil {
		return append([]models.Chapter(nil), cached...)
	}

	v, err, _ := c.flight.Do("chapters:"+subjectID, func() (any, error) {
		chs, err := c.src.Chapters(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if len(chs) > 0 {
			c.mu.Lock()
			c.chapters[subjectID] = chs
			c.mu.Unlock()
		}
		return chs, nil
	})
	if err != nil {
		c.logger.Warn("chapter fetch failed", "subject", subjectID, "err", err)
		return nil
	}
	return append([]models.Chapter(nil), v.([]models.Chapter)...)
}

// Questions returns the exercise questions of chapterID, fetching them on
// demand like Chapters.
func (c *Catalog) Questions(ctx context.Context, chapterID string) []models.Question {
	c.mu.RLock()
	cached := c.questions[chapterID]
	c.mu.RUnlock()
	if len(cached) > 0 || c.src == nil {
		return append([]models.Question(nil), cached...)
	}

	v, err, _ := c.flight.Do("questions:"+chapterID, func() (any, error) {
		qs, err := c.src.Questions(ctx, chapterID)
		if err != nil {
			return nil, err
		}
		if len(qs) > 0 {
			c.mu.Lock()
			c.questions[chapterID] = qs
			c.mu.Unlock()
		}
		return qs, nil
	})
	if err != nil {
		c.logger.Warn("question fetch failed", "chapter", chapterID, "err", err)
		return nil
	}
	return append([]models.Question(nil), v.([]models.Question)...)
}

// DisplayNames returns the names shown to the model for a subject and
// chapter, defaulting to the ids.
func (c *Catalog) DisplayNames(subjectID, chapterID string) (string, string) {
	subject, chapter := subjectID, chapterID
	if s, ok := c.Subject(subjectID); ok && s.DisplayName != "" {
		subject = s.DisplayName
	}
	if ch, ok := c.Chapter(chapterID); ok && ch.DisplayName != "" {
		chapter = ch.DisplayName
	}
	return subject, chapter
}
