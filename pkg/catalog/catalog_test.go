package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jajabor-ai/tutor/pkg/models"
)

func newTestSource(t *testing.T) *SQLiteSource {
	t.Helper()
	src, err := NewSQLite(filepath.Join(t.TempDir(), "catalog_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestLoadFromSQLite(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)
	require.NoError(t, src.Seed(ctx,
		[]models.Subject{{ID: "science", Name: "science", DisplayName: "বিজ্ঞান"}},
		[]models.Chapter{{ID: "sci_1", SubjectID: "science", Name: "light", DisplayName: "পোহৰ"}},
		[]models.Question{{ID: "10", ChapterID: "sci_1", Question: "What is refraction?"}},
	))

	c := New(src, nil)
	c.Load(ctx)

	assert.False(t, c.UsingFallback())
	require.Len(t, c.Subjects(), 1)
	assert.Equal(t, "পোহৰ", c.Chapters(ctx, "science")[0].DisplayName)
	assert.Equal(t, "What is refraction?", c.Questions(ctx, "sci_1")[0].Question)

	subject, chapter := c.DisplayNames("science", "sci_1")
	assert.Equal(t, "বিজ্ঞান", subject)
	assert.Equal(t, "পোহৰ", chapter)
}

func TestEmptyDatabaseUsesFallback(t *testing.T) {
	ctx := context.Background()
	c := New(newTestSource(t), nil)
	c.Load(ctx)

	assert.True(t, c.UsingFallback())
	assert.Len(t, c.Subjects(), 6)
	assert.Len(t, c.Chapters(ctx, "math"), 2)
	assert.Len(t, c.Questions(ctx, "math_1"), 2)

	subject, chapter := c.DisplayNames("math", "math_2")
	assert.Equal(t, "📐 গণিত (Mathematics)", subject)
	assert.Equal(t, "বহুপদ (Polynomials)", chapter)

	subject, chapter = c.DisplayNames("unknown", "nope")
	assert.Equal(t, "unknown", subject)
	assert.Equal(t, "nope", chapter)
}

func TestNilSourceUsesFallback(t *testing.T) {
	c := New(nil, nil)
	c.Load(context.Background())
	assert.True(t, c.UsingFallback())
	assert.Empty(t, c.Chapters(context.Background(), "science"))
}

type failingSource struct{}

func (failingSource) Subjects(context.Context) ([]models.Subject, error) {
	return nil, errors.New("db down")
}
func (failingSource) Chapters(context.Context, string) ([]models.Chapter, error) {
	return nil, errors.New("db down")
}
func (failingSource) Questions(context.Context, string) ([]models.Question, error) {
	return nil, errors.New("db down")
}

func TestFailingSourceUsesFallback(t *testing.T) {
	ctx := context.Background()
	c := New(failingSource{}, nil)
	c.Load(ctx)
	assert.True(t, c.UsingFallback())
	assert.Len(t, c.Subjects(), 6)
	assert.Empty(t, c.Chapters(ctx, "science"))
}

// slowSource counts chapter queries and blocks them until released.
type slowSource struct {
	failingSource
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowSource) Chapters(ctx context.Context, subjectID string) ([]models.Chapter, error) {
	if subjectID == "" {
		return nil, errors.New("db down")
	}
	s.calls.Add(1)
	<-s.release
	return []models.Chapter{{ID: subjectID + "_1", SubjectID: subjectID}}, nil
}

func TestLazyChaptersAreDeduplicated(t *testing.T) {
	ctx := context.Background()
	src := &slowSource{release: make(chan struct{})}
	c := New(src, nil)
	c.Load(ctx) // fails, installs fallback

	var wg sync.WaitGroup
	results := make([][]models.Chapter, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Chapters(ctx, "science")
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	for _, r := range results {
		require.Len(t, r, 1)
		assert.Equal(t, "science_1", r[0].ID)
	}
	assert.LessOrEqual(t, src.calls.Load(), int32(2))

	// Now cached.
	before := src.calls.Load()
	c.Chapters(ctx, "science")
	assert.Equal(t, before, src.calls.Load())
}
