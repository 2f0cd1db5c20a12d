package repository

import (
	"context"

	"ideaflow/backend/pkg/models"
)

// IdeaStore persists ideas.
type IdeaStore interface {
	// GetIdea loads an idea by id. Returns ErrNotFound if absent.
	GetIdea(ctx context.Context, id string) (*models.Idea, error)
	// CreateIdea inserts a new idea.
	CreateIdea(ctx context.Context, idea *models.Idea) error
	// UpdateIdeaStatus applies one transition as a compare-and-set on
	// update.ExpectedStatus. Stage timestamps already set are kept. Returns
	// ErrNotFound if the idea is gone and ErrStaleStatus if its status moved.
	UpdateIdeaStatus(ctx context.Context, update *models.StatusUpdate) error
}

// EvaluationStore persists reviewer evaluations, unique per (idea, evaluator).
type EvaluationStore interface {
	GetEvaluation(ctx context.Context, ideaID, evaluatorID string) (*models.Evaluation, error)
	// CreateEvaluation returns ErrConflict if the pair already has a row.
	CreateEvaluation(ctx context.Context, evaluation *models.Evaluation) error
	UpdateEvaluation(ctx context.Context, evaluation *models.Evaluation) error
}

// IncubationStore persists pre-incubatee records, unique per idea.
type IncubationStore interface {
	GetPreIncubateeByIdea(ctx context.Context, ideaID string) (*models.PreIncubatee, error)
	// CreatePreIncubatee returns ErrConflict if the idea already has a record.
	CreatePreIncubatee(ctx context.Context, record *models.PreIncubatee) error
}

// UserFilter selects directory users. Empty fields match anything.
type UserFilter struct {
	Role        models.Role
	CollegeID   string
	IncubatorID string
}

// DirectoryStore reads and seeds colleges, incubators and users.
type DirectoryStore interface {
	GetCollege(ctx context.Context, id string) (*models.College, error)
	GetIncubator(ctx context.Context, id string) (*models.Incubator, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error)

	PutIncubator(ctx context.Context, incubator *models.Incubator) error
	PutCollege(ctx context.Context, college *models.College) error
	PutUser(ctx context.Context, user *models.User) error
}

// Repository is the full store surface used by the service layer.
type Repository interface {
	IdeaStore
	EvaluationStore
	IncubationStore
	DirectoryStore

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Repository = (*SQLiteStore)(nil)
	_ Repository = (*PostgresStore)(nil)
)
