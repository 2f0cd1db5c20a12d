package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/repository"
	"ideaflow/backend/internal/retry"
	"ideaflow/backend/internal/workflow"
	"ideaflow/backend/pkg/models"
)

// DefaultIncubationTargetDays is the default span between start and
// expected completion of an incubation record.
const DefaultIncubationTargetDays = 180

// IncubationSpawner creates the pre-incubatee record of an endorsed idea.
// It is idempotent: an existing record is returned unchanged.
type IncubationSpawner struct {
	store              repository.IncubationStore
	guard              *retry.Guard
	logger             *logging.Logger
	targetDays         int
	defaultIncubatorID string
	now                func() time.Time
	newID              func() string
}

// SpawnerOption customises an IncubationSpawner.
type SpawnerOption func(*IncubationSpawner)

// WithSpawnerGuard routes the create through a retry guard.
func WithSpawnerGuard(g *retry.Guard) SpawnerOption {
	return func(s *IncubationSpawner) { s.guard = g }
}

// WithTargetDays sets the expected completion offset.
func WithTargetDays(days int) SpawnerOption {
	return func(s *IncubationSpawner) {
		if days > 0 {
			s.targetDays = days
		}
	}
}

// WithFallbackIncubator is used when the idea has no incubator assigned.
func WithFallbackIncubator(id string) SpawnerOption {
	return func(s *IncubationSpawner) { s.defaultIncubatorID = id }
}

// WithSpawnerClock replaces time.Now.
func WithSpawnerClock(now func() time.Time) SpawnerOption {
	return func(s *IncubationSpawner) { s.now = now }
}

// WithSpawnerIDs replaces the id generator.
func WithSpawnerIDs(newID func() string) SpawnerOption {
	return func(s *IncubationSpawner) { s.newID = newID }
}

// NewIncubationSpawner creates a new IncubationSpawner.
func NewIncubationSpawner(store repository.IncubationStore, logger *logging.Logger, opts ...SpawnerOption) *IncubationSpawner {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &IncubationSpawner{
		store:      store,
		guard:      retry.New(retry.Policy{Attempts: 1}, nil),
		logger:     logger,
		targetDays: DefaultIncubationTargetDays,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIncubationRecord returns the idea's incubation record, creating it
// when the idea is incubation eligible. It returns nil, nil for ideas that
// are neither tracked nor eligible.
func (s *IncubationSpawner) EnsureIncubationRecord(ctx context.Context, idea *models.Idea) (*models.PreIncubatee, error) {
	existing, err := s.store.GetPreIncubateeByIdea(ctx, idea.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load incubation record: %w", err)
	}
	if !workflow.IsIncubationEligible(idea.Status) {
		return nil, nil
	}

	incubatorID := s.defaultIncubatorID
	if idea.IncubatorID != nil && *idea.IncubatorID != "" {
		incubatorID = *idea.IncubatorID
	}
	if incubatorID == "" {
		s.logger.Warn("creating incubation record without incubator", "idea_id", idea.ID)
	}

	now := s.now()
	record := &models.PreIncubatee{
		ID:                     s.newID(),
		IdeaID:                 idea.ID,
		StudentID:              idea.StudentID,
		CollegeID:              idea.CollegeID,
		IncubatorID:            incubatorID,
		CurrentPhase:           models.IncubationPhases[0],
		ProgressPercentage:     0,
		FundingRequired:        idea.FundingRequired,
		FundingReceived:        0,
		Status:                 models.IncubationActive,
		StartDate:              now,
		ExpectedCompletionDate: now.AddDate(0, 0, s.targetDays),
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	err = s.guard.Do(ctx, "create_pre_incubatee", func(ctx context.Context) error {
		return s.store.CreatePreIncubatee(ctx, record)
	})
	if err == nil {
		s.logger.Info("incubation record created", "idea_id", idea.ID, "record_id", record.ID, "incubator_id", incubatorID)
		return record, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("create incubation record: %w", err)
	}

	// a concurrent spawn won; the unique idea_id keeps it the only record
	existing, err = s.store.GetPreIncubateeByIdea(ctx, idea.ID)
	if err != nil {
		return nil, fmt.Errorf("reload incubation record: %w", err)
	}
	return existing, nil
}
