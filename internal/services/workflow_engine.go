package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/repository"
	"ideaflow/backend/internal/retry"
	"ideaflow/backend/internal/telemetry"
	"ideaflow/backend/internal/workflow"
	"ideaflow/backend/pkg/models"
)

// EngineDeps are the collaborators of a WorkflowEngine. The four stores are
// required; everything else has a default.
type EngineDeps struct {
	Ideas       repository.IdeaStore
	Evaluations repository.EvaluationStore
	Incubations repository.IncubationStore
	Directory   repository.DirectoryStore
	Recorder    *EvaluationRecorder
	Spawner     *IncubationSpawner
	Intents     *IntentBuilder
	Guard       *retry.Guard
	Logger      *logging.Logger
	Metrics     *telemetry.WorkflowMetrics
	Tracer      trace.Tracer
	Clock       func() time.Time

	// DefaultIncubatorID is assigned on endorsement when neither the idea
	// nor its college names an incubator.
	DefaultIncubatorID string
}

// WorkflowEngine validates and applies idea status transitions.
type WorkflowEngine struct {
	ideas              repository.IdeaStore
	evaluations        repository.EvaluationStore
	incubations        repository.IncubationStore
	directory          repository.DirectoryStore
	recorder           *EvaluationRecorder
	spawner            *IncubationSpawner
	intents            *IntentBuilder
	guard              *retry.Guard
	logger             *logging.Logger
	metrics            *telemetry.WorkflowMetrics
	tracer             trace.Tracer
	now                func() time.Time
	defaultIncubatorID string
}

// NewWorkflowEngine creates a new WorkflowEngine.
func NewWorkflowEngine(deps EngineDeps) *WorkflowEngine {
	e := &WorkflowEngine{
		ideas:              deps.Ideas,
		evaluations:        deps.Evaluations,
		incubations:        deps.Incubations,
		directory:          deps.Directory,
		recorder:           deps.Recorder,
		spawner:            deps.Spawner,
		intents:            deps.Intents,
		guard:              deps.Guard,
		logger:             deps.Logger,
		metrics:            deps.Metrics,
		tracer:             deps.Tracer,
		now:                deps.Clock,
		defaultIncubatorID: deps.DefaultIncubatorID,
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.metrics == nil {
		e.metrics = telemetry.NopWorkflowMetrics()
	}
	if e.tracer == nil {
		e.tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.guard == nil {
		e.guard = retry.New(retry.DefaultPolicy(), repository.IsTransient,
			retry.WithLogger(e.logger),
			retry.WithRetryHook(e.metrics.RecordRetry))
	}
	if e.recorder == nil {
		e.recorder = NewEvaluationRecorder(e.evaluations, WithRecorderGuard(e.guard), WithRecorderClock(e.now))
	}
	if e.spawner == nil {
		e.spawner = NewIncubationSpawner(e.incubations, e.logger,
			WithSpawnerGuard(e.guard), WithSpawnerClock(e.now), WithFallbackIncubator(deps.DefaultIncubatorID))
	}
	if e.intents == nil {
		e.intents = NewIntentBuilder(deps.Directory, e.logger)
	}
	return e
}

// NewWorkflowEngineForRepository wires every store from one Repository.
func NewWorkflowEngineForRepository(repo repository.Repository, deps EngineDeps) *WorkflowEngine {
	deps.Ideas = repo
	deps.Evaluations = repo
	deps.Incubations = repo
	deps.Directory = repo
	return NewWorkflowEngine(deps)
}

var _ WorkflowService = (*WorkflowEngine)(nil)

// Transition validates req against the idea's current status and the
// actor's scope, writes the status change and then records the derived
// evaluation and incubation record. Derived failures are logged only.
func (e *WorkflowEngine) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "workflow.Transition", trace.WithAttributes(
		attribute.String("idea.id", req.IdeaID),
		attribute.String("workflow.target", string(req.Target)),
		attribute.String("actor.role", string(req.Actor.Role)),
	))
	defer span.End()

	var from models.Status
	result, err := e.transition(ctx, req, &from)

	outcome := outcomeFor(err)
	e.metrics.RecordTransition(ctx, string(from), string(req.Target), outcome, time.Since(start))
	span.SetAttributes(
		attribute.String("workflow.from", string(from)),
		attribute.String("workflow.outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return result, nil
}

func (e *WorkflowEngine) transition(ctx context.Context, req TransitionRequest, from *models.Status) (*TransitionResult, error) {
	target, err := workflow.ParseTarget(string(req.Target))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}
	req.Target = target

	idea, err := e.loadIdea(ctx, req.IdeaID)
	if err != nil {
		return nil, err
	}
	*from = idea.Status

	if !covers(req.Actor, idea) {
		return nil, fmt.Errorf("%w: actor %s does not cover idea %s", ErrForbidden, req.Actor.ID, idea.ID)
	}
	scope := req.Actor.Scope()
	if err := workflow.Check(idea.Status, scope, req.Target); err != nil {
		if errors.Is(err, workflow.ErrScopeDenied) {
			return nil, fmt.Errorf("%w: %w", ErrForbidden, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}

	update := e.buildUpdate(ctx, idea, req)
	err = e.guard.Do(ctx, "update_idea_status", func(ctx context.Context) error {
		return e.ideas.UpdateIdeaStatus(ctx, update)
	})
	if err != nil {
		return nil, mapWriteError(idea.ID, err)
	}
	update.Apply(idea)

	e.logger.Info("idea transitioned",
		"idea_id", idea.ID,
		"from", update.PreviousStatus,
		"to", idea.Status,
		"actor_id", req.Actor.ID,
		"actor_role", req.Actor.Role)

	result := &TransitionResult{Idea: idea}

	if scope == models.ScopeCollege {
		eval, err := e.recorder.RecordEvaluation(ctx, idea.ID, req.Actor.ID, req.Target, req.Reason, idea.MentorID)
		if err != nil {
			e.derivedFailure(ctx, "evaluation", idea.ID, err)
		} else {
			result.Evaluation = eval
		}
	}

	if req.Target == models.StatusEndorsed {
		record, err := e.spawner.EnsureIncubationRecord(ctx, idea)
		if err != nil {
			e.derivedFailure(ctx, "incubation", idea.ID, err)
		} else {
			result.Incubation = record
		}
	}

	result.Intents = e.intents.Build(ctx, idea, update.PreviousStatus, req.Actor, req.Reason)
	return result, nil
}

// buildUpdate assembles the single combined mutation for one transition.
// Timestamps carry millisecond precision, the resolution both stores keep.
func (e *WorkflowEngine) buildUpdate(ctx context.Context, idea *models.Idea, req TransitionRequest) *models.StatusUpdate {
	now := e.now().Truncate(time.Millisecond)
	u := &models.StatusUpdate{
		IdeaID:         idea.ID,
		ExpectedStatus: idea.Status,
		Status:         req.Target,
		WorkflowStage:  workflow.StageFor(req.Target),
		PreviousStatus: idea.Status,
		ReviewedBy:     req.Actor.ID,
		ReviewedAt:     now,
	}

	switch workflow.ClockFor(req.Target) {
	case workflow.ClockSubmitted:
		if idea.SubmittedAt == nil {
			u.SubmittedAt = &now
		}
	case workflow.ClockReviewStarted:
		if idea.ReviewStartedAt == nil {
			u.ReviewStartedAt = &now
		}
	case workflow.ClockEndorsed:
		if idea.EndorsedAt == nil {
			u.EndorsedAt = &now
		}
	case workflow.ClockIncubationStarted:
		if idea.IncubationStartedAt == nil {
			u.IncubationStartedAt = &now
		}
	}

	if workflow.IsUpgrade(idea.Status, req.Target) {
		by := req.Actor.ID
		u.MarkUpgraded = true
		u.UpgradedAt = &now
		u.UpgradedBy = &by
	}

	if req.Target == models.StatusEndorsed && (idea.IncubatorID == nil || *idea.IncubatorID == "") {
		u.IncubatorID = e.resolveIncubator(ctx, idea)
	}
	return u
}

// resolveIncubator picks the owning college's default incubator, falling
// back to the configured default.
func (e *WorkflowEngine) resolveIncubator(ctx context.Context, idea *models.Idea) *string {
	college, err := e.directory.GetCollege(ctx, idea.CollegeID)
	switch {
	case err == nil && college.DefaultIncubatorID != nil && *college.DefaultIncubatorID != "":
		id := *college.DefaultIncubatorID
		return &id
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		e.logger.Warn("failed to load college for incubator assignment",
			"idea_id", idea.ID, "college_id", idea.CollegeID, "error", err)
	}
	if e.defaultIncubatorID != "" {
		id := e.defaultIncubatorID
		return &id
	}
	return nil
}

func (e *WorkflowEngine) derivedFailure(ctx context.Context, kind, ideaID string, err error) {
	e.metrics.RecordDerivedFailure(ctx, kind)
	e.logger.Error("derived write failed after status change",
		"kind", kind, "idea_id", ideaID, "error", err)
}

func (e *WorkflowEngine) loadIdea(ctx context.Context, id string) (*models.Idea, error) {
	idea, err := e.ideas.GetIdea(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: idea %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load idea: %w", err)
	}
	return idea, nil
}

// GetIdea loads an idea visible to the actor.
func (e *WorkflowEngine) GetIdea(ctx context.Context, actor models.Actor, ideaID string) (*models.Idea, error) {
	idea, err := e.loadIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, idea) {
		return nil, fmt.Errorf("%w: actor %s may not view idea %s", ErrForbidden, actor.ID, ideaID)
	}
	return idea, nil
}

// AllowedTransitions lists the statuses the actor may move a visible idea
// to. It is empty when the actor can see the idea but not act on it.
func (e *WorkflowEngine) AllowedTransitions(ctx context.Context, actor models.Actor, ideaID string) ([]models.Status, error) {
	idea, err := e.GetIdea(ctx, actor, ideaID)
	if err != nil {
		return nil, err
	}
	if !covers(actor, idea) {
		return []models.Status{}, nil
	}
	allowed := workflow.AllowedFor(idea.Status, actor.Scope())
	if allowed == nil {
		allowed = []models.Status{}
	}
	return allowed, nil
}

// GetIncubationRecord loads the incubation record of an idea visible to the actor.
func (e *WorkflowEngine) GetIncubationRecord(ctx context.Context, actor models.Actor, ideaID string) (*models.PreIncubatee, error) {
	if _, err := e.GetIdea(ctx, actor, ideaID); err != nil {
		return nil, err
	}
	record, err := e.incubations.GetPreIncubateeByIdea(ctx, ideaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no incubation record for idea %s", ErrNotFound, ideaID)
		}
		return nil, fmt.Errorf("load incubation record: %w", err)
	}
	return record, nil
}

// GetEvaluation loads the evaluation an evaluator recorded for an idea.
func (e *WorkflowEngine) GetEvaluation(ctx context.Context, actor models.Actor, ideaID, evaluatorID string) (*models.Evaluation, error) {
	if _, err := e.GetIdea(ctx, actor, ideaID); err != nil {
		return nil, err
	}
	eval, err := e.evaluations.GetEvaluation(ctx, ideaID, evaluatorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no evaluation by %s for idea %s", ErrNotFound, evaluatorID, ideaID)
		}
		return nil, fmt.Errorf("load evaluation: %w", err)
	}
	return eval, nil
}

// covers reports whether the actor may change the idea's status at all.
func covers(actor models.Actor, idea *models.Idea) bool {
	switch actor.Scope() {
	case models.ScopeAdmin:
		return true
	case models.ScopeCollege:
		return idea.CollegeID == actor.CollegeID
	case models.ScopeIncubator:
		return idea.Status == models.StatusEndorsed &&
			idea.IncubatorID != nil && *idea.IncubatorID == actor.IncubatorID
	case models.ScopeStudent:
		return idea.StudentID == actor.ID
	default:
		return false
	}
}

// canView is covers without the incubator status restriction.
func canView(actor models.Actor, idea *models.Idea) bool {
	if actor.Scope() == models.ScopeIncubator {
		return idea.IncubatorID != nil && *idea.IncubatorID == actor.IncubatorID
	}
	return covers(actor, idea)
}

func mapWriteError(ideaID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		return fmt.Errorf("%w: idea %s changed status concurrently", ErrInvalidTransition, ideaID)
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: idea %s", ErrNotFound, ideaID)
	case errors.Is(err, retry.ErrExhausted):
		return fmt.Errorf("%w: %w", ErrStoreContention, err)
	default:
		return fmt.Errorf("update idea status: %w", err)
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case errors.Is(err, ErrNotFound):
		return telemetry.OutcomeNotFound
	case errors.Is(err, ErrForbidden):
		return telemetry.OutcomeForbidden
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidStatus):
		return telemetry.OutcomeInvalidTransition
	default:
		return telemetry.OutcomeError
	}
}
