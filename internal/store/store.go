package store

import (
	"context"
	"errors"
	"time"

	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid analysis status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateAnalysis(ctx context.Context, sub models.Submission) error
	UpdateAnalysisState(ctx context.Context, jobID string, state models.Job) error
	SaveResults(ctx context.Context, jobID string, results []models.AnalysisResult) error
	GetAnalysis(ctx context.Context, jobID string) (*models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*models.AnalysisRecord, int, error)
}

type AnalysisFilter struct {
	Status models.Status
	Source models.Source
	Since  time.Time
	Page   int
	Limit  int
}
