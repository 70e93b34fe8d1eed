package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Reality-Reimagined/TruthScope/internal/session"
	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const analysisColumns = `job_id, title, source, video_url, status, progress, message, results,
	submitted_at, updated_at, completed_at`

// --- Analyses ---

func (s *PostgresStore) CreateAnalysis(ctx context.Context, sub models.Submission) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analyses (job_id, title, source, video_url, status, submitted_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		sub.JobID, sub.Video.Title, string(sub.Video.Source), sub.Video.URL,
		string(models.StatusUploading), sub.SubmittedAt.UTC())
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAnalysisState(ctx context.Context, jobID string, state models.Job) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM analyses WHERE job_id = $1`, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get analysis status: %w", err)
	}

	if !models.Status(current).CanTransition(state.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, state.Status)
	}

	now := time.Now().UTC()
	query := `UPDATE analyses SET status = $2, progress = $3, message = $4, updated_at = $5`
	args := []any{jobID, string(state.Status), state.Progress, state.Message, now}
	if state.Status.IsTerminal() {
		query += `, completed_at = $6`
		args = append(args, now)
	}
	query += ` WHERE job_id = $1`

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update analysis state: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveResults(ctx context.Context, jobID string, results []models.AnalysisResult) error {
	if results == nil {
		results = []models.AnalysisResult{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET results = $2, updated_at = NOW() WHERE job_id = $1`, jobID, raw)
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, jobID string) (*models.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE job_id = $1`, jobID)
	rec, err := scanAnalysis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*models.AnalysisRecord, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argIdx))
		args = append(args, string(filter.Source))
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("submitted_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM analyses WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analyses: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM analyses WHERE %s ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d`,
		analysisColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	records := []*models.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// --- Recording ---

// RecordSubmission stores a newly accepted job. Recording the same job twice
// is not an error.
func (s *PostgresStore) RecordSubmission(ctx context.Context, sub models.Submission) error {
	if err := s.CreateAnalysis(ctx, sub); err != nil && !errors.Is(err, ErrDuplicateKey) {
		return err
	}
	return nil
}

// RecordSnapshot stores the state of a job and, when present, its results.
func (s *PostgresStore) RecordSnapshot(ctx context.Context, snap models.Snapshot) error {
	if err := s.UpdateAnalysisState(ctx, snap.State.ID, snap.State); err != nil {
		return err
	}
	if results, ok := snap.Results(); ok {
		return s.SaveResults(ctx, snap.State.ID, results)
	}
	return nil
}

func scanAnalysis(row pgx.Row) (*models.AnalysisRecord, error) {
	var (
		r       models.AnalysisRecord
		source  string
		status  string
		results []byte
	)
	if err := row.Scan(&r.JobID, &r.Video.Title, &source, &r.Video.URL, &status, &r.Progress,
		&r.Message, &results, &r.SubmittedAt, &r.UpdatedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	r.Video.Source = models.Source(source)
	r.Status = models.Status(status)
	if results != nil {
		if err := json.Unmarshal(results, &r.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}
	return &r, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var (
	_ Store            = (*PostgresStore)(nil)
	_ session.Recorder = (*PostgresStore)(nil)
)
