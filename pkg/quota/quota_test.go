package quota

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/jajabor-ai/tutor/pkg/tracker"
)

func setup(t *testing.T) (*tracker.SQLiteTracker, context.Context) {
	t.Helper()
	tr, err := tracker.New(filepath.Join(t.TempDir(), "quota_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, context.Background()
}

func record(t *testing.T, tr *tracker.SQLiteTracker, id, email string, at time.Time) {
	t.Helper()
	err := tr.Record(context.Background(), models.SessionRecord{
		ID: id, UserEmail: email, Source: models.SourceLive,
		SubjectID: "math", ChapterID: "math_1", Outcome: "completed",
		CreatedAt: at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCheckUnderQuota(t *testing.T) {
	tr, ctx := setup(t)
	record(t, tr, "s1", "rina@example.com", time.Now().UTC())

	e := New([]models.QuotaPolicy{{User: "*", MaxQuestions: 2, Period: models.QuotaDaily}}, tr)
	if err := e.Check(ctx, "rina@example.com"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckExceeded(t *testing.T) {
	tr, ctx := setup(t)
	record(t, tr, "s1", "rina@example.com", time.Now().UTC())
	record(t, tr, "s2", "rina@example.com", time.Now().UTC())

	e := New([]models.QuotaPolicy{{User: "*", MaxQuestions: 2, Period: models.QuotaDaily}}, tr)
	if err := e.Check(ctx, "rina@example.com"); err != ErrQuotaExceeded {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
	if err := e.Check(ctx, "anu@example.com"); err != nil {
		t.Errorf("other students are unaffected, got %v", err)
	}
}

func TestYesterdayDoesNotCount(t *testing.T) {
	tr, ctx := setup(t)
	record(t, tr, "s1", "rina@example.com", time.Now().UTC().AddDate(0, 0, -1))

	e := New([]models.QuotaPolicy{{User: "*", MaxQuestions: 1, Period: models.QuotaDaily}}, tr)
	if err := e.Check(ctx, "rina@example.com"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	tr, ctx := setup(t)
	record(t, tr, "s1", "rina@example.com", time.Now().UTC())

	e := New([]models.QuotaPolicy{
		{User: "rina@example.com", MaxQuestions: 10, Period: models.QuotaDaily},
		{User: "*", MaxQuestions: 100, Period: models.QuotaMonthly},
	}, tr)

	statuses, err := e.Status(ctx, "rina@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Used != 1 || statuses[0].Remaining != 9 {
		t.Errorf("unexpected daily status: %+v", statuses[0])
	}

	statuses, err = e.Status(ctx, "anu@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected only the wildcard policy, got %d", len(statuses))
	}
}

func TestNilEnforcerAllows(t *testing.T) {
	var e *Enforcer
	if err := e.Check(context.Background(), "anyone"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 3, 17, 15, 4, 5, 0, time.UTC)
	if got := periodStart(models.QuotaDaily, now); !got.Equal(time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("daily: got %v", got)
	}
	if got := periodStart(models.QuotaMonthly, now); !got.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly: got %v", got)
	}
}
