package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Reality-Reimagined/TruthScope/internal/store"
	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("truthscope_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr))
	// Re-running is a no-op.
	require.NoError(t, store.RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func submission(id string, source models.Source, at time.Time) models.Submission {
	title := "clip.mp4"
	if source == models.SourceYouTube {
		title = "YouTube Video"
	}
	return models.Submission{JobID: id, Video: models.Video{Title: title, Source: source}, SubmittedAt: at}
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	assert.NoError(t, s.Ping(context.Background()))
}

func TestAnalysis_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	sub := submission("abc123", models.SourceYouTube, now)
	sub.Video.URL = "https://www.youtube.com/embed/x"
	require.NoError(t, s.CreateAnalysis(ctx, sub))

	rec, err := s.GetAnalysis(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", rec.JobID)
	assert.Equal(t, sub.Video, rec.Video)
	assert.Equal(t, models.StatusUploading, rec.Status)
	assert.True(t, now.Equal(rec.SubmittedAt))
	assert.Nil(t, rec.Results)
	assert.Nil(t, rec.CompletedAt)
}

func TestAnalysis_CreateDuplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.CreateAnalysis(ctx, submission("dup", models.SourceUpload, time.Now())))
	err := s.CreateAnalysis(ctx, submission("dup", models.SourceUpload, time.Now()))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	// Recording tolerates duplicates.
	assert.NoError(t, s.RecordSubmission(ctx, submission("dup", models.SourceUpload, time.Now())))
}

func TestAnalysis_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	_, err := s.GetAnalysis(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnalysis_UpdateStateLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, s.CreateAnalysis(ctx, submission("job1", models.SourceUpload, time.Now())))

	require.NoError(t, s.UpdateAnalysisState(ctx, "job1",
		models.Job{Status: models.StatusProcessing, Progress: 0.4, Message: "Analyzing"}))
	rec, err := s.GetAnalysis(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, rec.Status)
	assert.Equal(t, 0.4, rec.Progress)
	assert.Equal(t, "Analyzing", rec.Message)
	assert.Nil(t, rec.CompletedAt)

	require.NoError(t, s.UpdateAnalysisState(ctx, "job1",
		models.Job{Status: models.StatusError, Progress: 0.4, Message: "video too long"}))
	rec, err = s.GetAnalysis(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, rec.Status)
	assert.Equal(t, "video too long", rec.Message)
	assert.NotNil(t, rec.CompletedAt)

	err = s.UpdateAnalysisState(ctx, "job1", models.Job{Status: models.StatusProcessing})
	assert.ErrorIs(t, err, store.ErrInvalidTransition, "terminal analyses are never updated")
}

func TestAnalysis_UpdateStateNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	err := s.UpdateAnalysisState(context.Background(), "missing", models.Job{Status: models.StatusProcessing})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnalysis_SaveResults(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, s.CreateAnalysis(ctx, submission("job1", models.SourceUpload, time.Now())))

	results := []models.AnalysisResult{{Timestamp: 0}, {Timestamp: 3.5}}
	require.NoError(t, s.SaveResults(ctx, "job1", results))

	rec, err := s.GetAnalysis(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, rec.Results, 2)
	assert.Equal(t, 3.5, rec.Results[1].Timestamp)

	assert.ErrorIs(t, s.SaveResults(ctx, "missing", results), store.ErrNotFound)
}

func TestAnalysis_RecordSnapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, s.RecordSubmission(ctx, submission("job1", models.SourceYouTube, time.Now())))

	snap := models.NewSnapshot(models.Job{ID: "job1", Status: models.StatusComplete, Progress: 1, Message: "Done"},
		[]models.AnalysisResult{})
	require.NoError(t, s.RecordSnapshot(ctx, snap))

	rec, err := s.GetAnalysis(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, rec.Status)
	assert.NotNil(t, rec.Results, "empty results are stored as present")
	assert.Empty(t, rec.Results)
}

func TestListAnalyses_FiltersAndPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		source := models.SourceUpload
		if i%2 == 1 {
			source = models.SourceYouTube
		}
		require.NoError(t, s.CreateAnalysis(ctx, submission(id, source, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.UpdateAnalysisState(ctx, "e", models.Job{Status: models.StatusComplete, Progress: 1}))

	all, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, all, 5)
	assert.Equal(t, "e", all[0].JobID, "newest first")

	yt, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{Source: models.SourceYouTube})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, yt, 2)

	done, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{Status: models.StatusComplete})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "e", done[0].JobID)

	recent, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{Since: base.Add(150 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, recent, 2)

	page2, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page2, 2)
	assert.Equal(t, "c", page2[0].JobID)
}

func TestListAnalyses_Empty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	records, total, err := s.ListAnalyses(context.Background(), store.AnalysisFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
