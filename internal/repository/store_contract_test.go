package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaflow/backend/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func seedDirectory(t *testing.T, ctx context.Context, store Repository) {
	t.Helper()
	require.NoError(t, store.PutIncubator(ctx, &models.Incubator{ID: "inc-1", Name: "North Hub"}))
	require.NoError(t, store.PutCollege(ctx, &models.College{ID: "col-1", Name: "Tech College", DefaultIncubatorID: ptr("inc-1")}))
	require.NoError(t, store.PutUser(ctx, &models.User{ID: "stu-1", Name: "Sam", Email: "sam@example.edu", Role: models.RoleStudent, CollegeID: ptr("col-1")}))
	require.NoError(t, store.PutUser(ctx, &models.User{ID: "adm-1", Name: "Ada", Email: "ada@example.edu", Role: models.RoleCollegeAdmin, CollegeID: ptr("col-1")}))
	require.NoError(t, store.PutUser(ctx, &models.User{ID: "adm-2", Name: "Bo", Email: "bo@example.edu", Role: models.RoleCollegeAdmin, CollegeID: ptr("col-1")}))
	require.NoError(t, store.PutUser(ctx, &models.User{ID: "mgr-1", Name: "Mo", Email: "mo@example.org", Role: models.RoleIncubatorManager, IncubatorID: ptr("inc-1")}))
}

func newIdea(status models.Status) *models.Idea {
	return &models.Idea{
		ID:              uuid.New().String(),
		Title:           "Solar kiosk",
		Description:     "Off-grid charging",
		Status:          status,
		WorkflowStage:   models.StageSubmission,
		StudentID:       "stu-1",
		CollegeID:       "col-1",
		FundingRequired: 2500,
	}
}

func transition(idea *models.Idea, to models.Status, stage models.WorkflowStage, at time.Time) *models.StatusUpdate {
	return &models.StatusUpdate{
		IdeaID:         idea.ID,
		ExpectedStatus: idea.Status,
		Status:         to,
		WorkflowStage:  stage,
		PreviousStatus: idea.Status,
		ReviewedBy:     "adm-1",
		ReviewedAt:     at,
	}
}

// runStoreContract exercises behaviour every Repository must share.
func runStoreContract(t *testing.T, store Repository) {
	ctx := context.Background()
	seedDirectory(t, ctx, store)

	t.Run("Create and Get idea", func(t *testing.T) {
		idea := newIdea(models.StatusSubmitted)
		require.NoError(t, store.CreateIdea(ctx, idea))

		got, err := store.GetIdea(ctx, idea.ID)
		require.NoError(t, err)
		assert.Equal(t, idea.Title, got.Title)
		assert.Equal(t, models.StatusSubmitted, got.Status)
		assert.Equal(t, "col-1", got.CollegeID)
		assert.Nil(t, got.IncubatorID)
		assert.Nil(t, got.PreviousStatus)
		assert.InDelta(t, 2500, got.FundingRequired, 0.001)
		assert.False(t, got.IsUpgraded)

		assert.ErrorIs(t, store.CreateIdea(ctx, idea), ErrConflict)
	})

	t.Run("Get missing idea", func(t *testing.T) {
		_, err := store.GetIdea(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Status update is compare-and-set", func(t *testing.T) {
		idea := newIdea(models.StatusSubmitted)
		require.NoError(t, store.CreateIdea(ctx, idea))

		at := time.Now().UTC().Truncate(time.Millisecond)
		u := transition(idea, models.StatusUnderReview, models.StageReview, at)
		u.ReviewStartedAt = &at
		require.NoError(t, store.UpdateIdeaStatus(ctx, u))

		got, err := store.GetIdea(ctx, idea.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusUnderReview, got.Status)
		assert.Equal(t, models.StageReview, got.WorkflowStage)
		require.NotNil(t, got.PreviousStatus)
		assert.Equal(t, models.StatusSubmitted, *got.PreviousStatus)
		require.NotNil(t, got.ReviewedBy)
		assert.Equal(t, "adm-1", *got.ReviewedBy)
		require.NotNil(t, got.ReviewStartedAt)
		assert.WithinDuration(t, at, *got.ReviewStartedAt, time.Millisecond)

		// same expected status again: the row has moved on
		err = store.UpdateIdeaStatus(ctx, u)
		assert.ErrorIs(t, err, ErrStaleStatus)

		u.IdeaID = "missing"
		assert.ErrorIs(t, store.UpdateIdeaStatus(ctx, u), ErrNotFound)
	})

	t.Run("Stage timestamps are first-write-wins", func(t *testing.T) {
		idea := newIdea(models.StatusNurture)
		first := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
		idea.ReviewStartedAt = &first
		require.NoError(t, store.CreateIdea(ctx, idea))

		later := time.Now().UTC().Truncate(time.Millisecond)
		u := transition(idea, models.StatusUnderReview, models.StageReview, later)
		u.ReviewStartedAt = &later
		require.NoError(t, store.UpdateIdeaStatus(ctx, u))

		got, err := store.GetIdea(ctx, idea.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ReviewStartedAt)
		assert.WithinDuration(t, first, *got.ReviewStartedAt, time.Millisecond)
		assert.WithinDuration(t, later, *got.ReviewedAt, time.Millisecond)
	})

	t.Run("Upgrade flag survives later updates", func(t *testing.T) {
		idea := newIdea(models.StatusNurture)
		require.NoError(t, store.CreateIdea(ctx, idea))

		at := time.Now().UTC().Truncate(time.Millisecond)
		u := transition(idea, models.StatusUnderReview, models.StageReview, at)
		u.MarkUpgraded = true
		u.UpgradedAt = &at
		u.UpgradedBy = ptr("adm-1")
		require.NoError(t, store.UpdateIdeaStatus(ctx, u))

		idea.Status = models.StatusUnderReview
		require.NoError(t, store.UpdateIdeaStatus(ctx, transition(idea, models.StatusNurture, models.StageDevelopment, at.Add(time.Second))))

		got, err := store.GetIdea(ctx, idea.ID)
		require.NoError(t, err)
		assert.True(t, got.IsUpgraded)
		require.NotNil(t, got.UpgradedBy)
		assert.Equal(t, "adm-1", *got.UpgradedBy)
		require.NotNil(t, got.UpgradedAt)
		assert.WithinDuration(t, at, *got.UpgradedAt, time.Millisecond)
	})

	t.Run("Incubator assignment keeps existing value when absent", func(t *testing.T) {
		idea := newIdea(models.StatusUnderReview)
		require.NoError(t, store.CreateIdea(ctx, idea))

		at := time.Now().UTC()
		u := transition(idea, models.StatusEndorsed, models.StageEndorsement, at)
		u.IncubatorID = ptr("inc-1")
		u.EndorsedAt = &at
		require.NoError(t, store.UpdateIdeaStatus(ctx, u))

		idea.Status = models.StatusEndorsed
		require.NoError(t, store.UpdateIdeaStatus(ctx, transition(idea, models.StatusForwardedToIncubation, models.StageEndorsement, at)))

		got, err := store.GetIdea(ctx, idea.ID)
		require.NoError(t, err)
		require.NotNil(t, got.IncubatorID)
		assert.Equal(t, "inc-1", *got.IncubatorID)
		assert.NotNil(t, got.EndorsedAt)
	})

	t.Run("Evaluations are unique per idea and evaluator", func(t *testing.T) {
		idea := newIdea(models.StatusUnderReview)
		require.NoError(t, store.CreateIdea(ctx, idea))

		now := time.Now().UTC().Truncate(time.Millisecond)
		eval := &models.Evaluation{
			ID: uuid.New().String(), IdeaID: idea.ID, EvaluatorID: "adm-1",
			Rating: 3, Comments: "needs work", Recommendation: models.RecommendationNurture,
			EvaluatedAt: now, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, store.CreateEvaluation(ctx, eval))

		dup := *eval
		dup.ID = uuid.New().String()
		assert.ErrorIs(t, store.CreateEvaluation(ctx, &dup), ErrConflict)

		eval.Rating = 5
		eval.Recommendation = models.RecommendationForward
		eval.Comments = "great"
		eval.MentorID = ptr("mentor-1")
		require.NoError(t, store.UpdateEvaluation(ctx, eval))

		got, err := store.GetEvaluation(ctx, idea.ID, "adm-1")
		require.NoError(t, err)
		assert.Equal(t, eval.ID, got.ID)
		assert.Equal(t, 5, got.Rating)
		assert.Equal(t, models.RecommendationForward, got.Recommendation)
		assert.Equal(t, "great", got.Comments)
		require.NotNil(t, got.MentorID)
		assert.Equal(t, "mentor-1", *got.MentorID)

		_, err = store.GetEvaluation(ctx, idea.ID, "adm-2")
		assert.ErrorIs(t, err, ErrNotFound)

		missing := *eval
		missing.ID = "missing"
		assert.ErrorIs(t, store.UpdateEvaluation(ctx, &missing), ErrNotFound)
	})

	t.Run("Pre-incubatee is unique per idea", func(t *testing.T) {
		idea := newIdea(models.StatusEndorsed)
		require.NoError(t, store.CreateIdea(ctx, idea))

		start := time.Now().UTC().Truncate(time.Millisecond)
		rec := &models.PreIncubatee{
			ID: uuid.New().String(), IdeaID: idea.ID, StudentID: "stu-1", CollegeID: "col-1", IncubatorID: "inc-1",
			CurrentPhase: models.PhaseResearch, FundingRequired: 2500, Status: models.IncubationActive,
			StartDate: start, ExpectedCompletionDate: start.AddDate(0, 0, 180), CreatedAt: start, UpdatedAt: start,
		}
		require.NoError(t, store.CreatePreIncubatee(ctx, rec))

		dup := *rec
		dup.ID = uuid.New().String()
		assert.ErrorIs(t, store.CreatePreIncubatee(ctx, &dup), ErrConflict)

		got, err := store.GetPreIncubateeByIdea(ctx, idea.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, models.PhaseResearch, got.CurrentPhase)
		assert.Equal(t, 0, got.ProgressPercentage)
		assert.Equal(t, models.IncubationActive, got.Status)
		assert.WithinDuration(t, start.AddDate(0, 0, 180), got.ExpectedCompletionDate, time.Millisecond)

		_, err = store.GetPreIncubateeByIdea(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Directory lookups", func(t *testing.T) {
		college, err := store.GetCollege(ctx, "col-1")
		require.NoError(t, err)
		require.NotNil(t, college.DefaultIncubatorID)
		assert.Equal(t, "inc-1", *college.DefaultIncubatorID)

		inc, err := store.GetIncubator(ctx, "inc-1")
		require.NoError(t, err)
		assert.Equal(t, "North Hub", inc.Name)

		user, err := store.GetUser(ctx, "stu-1")
		require.NoError(t, err)
		assert.Equal(t, "sam@example.edu", user.Email)
		assert.Equal(t, models.RoleStudent, user.Role)

		_, err = store.GetCollege(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetUser(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		admins, err := store.ListUsers(ctx, UserFilter{Role: models.RoleCollegeAdmin, CollegeID: "col-1"})
		require.NoError(t, err)
		require.Len(t, admins, 2)
		assert.Equal(t, "adm-1", admins[0].ID)
		assert.Equal(t, "adm-2", admins[1].ID)

		managers, err := store.ListUsers(ctx, UserFilter{Role: models.RoleIncubatorManager, IncubatorID: "inc-1"})
		require.NoError(t, err)
		require.Len(t, managers, 1)
		assert.Equal(t, "mgr-1", managers[0].ID)

		all, err := store.ListUsers(ctx, UserFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
