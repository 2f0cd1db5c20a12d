package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ideaflow/backend/internal/repository"
	"ideaflow/backend/internal/retry"
	"ideaflow/backend/internal/workflow"
	"ideaflow/backend/pkg/models"
)

// EvaluationRecorder keeps one evaluation per (idea, evaluator), reflecting
// that evaluator's latest decision.
type EvaluationRecorder struct {
	store repository.EvaluationStore
	guard *retry.Guard
	now   func() time.Time
	newID func() string
}

// RecorderOption customises an EvaluationRecorder.
type RecorderOption func(*EvaluationRecorder)

// WithRecorderGuard routes the upsert through a retry guard.
func WithRecorderGuard(g *retry.Guard) RecorderOption {
	return func(r *EvaluationRecorder) { r.guard = g }
}

// WithRecorderClock replaces time.Now.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *EvaluationRecorder) { r.now = now }
}

// WithRecorderIDs replaces the id generator.
func WithRecorderIDs(newID func() string) RecorderOption {
	return func(r *EvaluationRecorder) { r.newID = newID }
}

// NewEvaluationRecorder creates a new EvaluationRecorder.
func NewEvaluationRecorder(store repository.EvaluationStore, opts ...RecorderOption) *EvaluationRecorder {
	r := &EvaluationRecorder{
		store: store,
		guard: retry.New(retry.Policy{Attempts: 1}, nil),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordEvaluation creates or updates the evaluation of ideaID by
// evaluatorID. Rating and recommendation come from target; mentorID, when
// set, replaces the stored mentor.
func (r *EvaluationRecorder) RecordEvaluation(ctx context.Context, ideaID, evaluatorID string, target models.Status, comments string, mentorID *string) (*models.Evaluation, error) {
	rating, recommendation := workflow.Assessment(target)
	now := r.now()

	return retry.Value(ctx, r.guard, "record_evaluation", func(ctx context.Context) (*models.Evaluation, error) {
		existing, err := r.store.GetEvaluation(ctx, ideaID, evaluatorID)
		switch {
		case err == nil:
			return r.update(ctx, existing, rating, recommendation, comments, mentorID, now)
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("load evaluation: %w", err)
		}

		created := &models.Evaluation{
			ID:             r.newID(),
			IdeaID:         ideaID,
			EvaluatorID:    evaluatorID,
			Rating:         rating,
			Comments:       comments,
			Recommendation: recommendation,
			MentorID:       mentorID,
			EvaluatedAt:    now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err = r.store.CreateEvaluation(ctx, created)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create evaluation: %w", err)
		}

		// lost a create race with the same evaluator
		existing, err = r.store.GetEvaluation(ctx, ideaID, evaluatorID)
		if err != nil {
			return nil, fmt.Errorf("reload evaluation: %w", err)
		}
		return r.update(ctx, existing, rating, recommendation, comments, mentorID, now)
	})
}

func (r *EvaluationRecorder) update(ctx context.Context, e *models.Evaluation, rating int, recommendation models.Recommendation, comments string, mentorID *string, now time.Time) (*models.Evaluation, error) {
	e.Rating = rating
	e.Recommendation = recommendation
	e.Comments = comments
	if mentorID != nil {
		e.MentorID = mentorID
	}
	e.EvaluatedAt = now
	e.UpdatedAt = now
	if err := r.store.UpdateEvaluation(ctx, e); err != nil {
		return nil, fmt.Errorf("update evaluation: %w", err)
	}
	return e, nil
}
