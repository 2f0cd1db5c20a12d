package services

import (
	"context"
	"errors"

	"ideaflow/backend/pkg/models"
)

var (
	// ErrNotFound indicates the idea (or its derived record) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor may not act on the idea or request the target.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition indicates the target is not reachable from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidStatus indicates the requested status literal is unknown.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrStoreContention indicates the status write kept failing on store contention.
	ErrStoreContention = errors.New("store contention")
)

// TransitionRequest is one reviewer request to move an idea.
type TransitionRequest struct {
	IdeaID string
	Actor  models.Actor
	Target models.Status
	Reason string
}

// TransitionResult is the outcome of a successful transition.
type TransitionResult struct {
	Idea       *models.Idea
	Intents    []models.NotificationIntent
	Evaluation *models.Evaluation
	Incubation *models.PreIncubatee
}

// WorkflowService is the idea lifecycle surface used by the HTTP and MCP layers.
type WorkflowService interface {
	// Transition validates and applies a status change.
	Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	// GetIdea loads an idea visible to the actor.
	GetIdea(ctx context.Context, actor models.Actor, ideaID string) (*models.Idea, error)
	// AllowedTransitions lists the statuses the actor may currently request for an idea.
	AllowedTransitions(ctx context.Context, actor models.Actor, ideaID string) ([]models.Status, error)
	// GetIncubationRecord loads the incubation record of an idea visible to the actor.
	GetIncubationRecord(ctx context.Context, actor models.Actor, ideaID string) (*models.PreIncubatee, error)
	// GetEvaluation loads the evaluation an evaluator recorded for an idea.
	GetEvaluation(ctx context.Context, actor models.Actor, ideaID, evaluatorID string) (*models.Evaluation, error)
}

// Notifier delivers notification intents.
type Notifier interface {
	Dispatch(ctx context.Context, intents []models.NotificationIntent) []DispatchResult
}
