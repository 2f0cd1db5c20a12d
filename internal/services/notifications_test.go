package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ideaflow/backend/internal/repository"
	"ideaflow/backend/pkg/models"
)

// MockDirectory is a mock implementation of repository.DirectoryStore
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetCollege(ctx context.Context, id string) (*models.College, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.College), args.Error(1)
}

func (m *MockDirectory) GetIncubator(ctx context.Context, id string) (*models.Incubator, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Incubator), args.Error(1)
}

func (m *MockDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDirectory) ListUsers(ctx context.Context, filter repository.UserFilter) ([]models.User, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockDirectory) PutIncubator(ctx context.Context, inc *models.Incubator) error {
	return m.Called(ctx, inc).Error(0)
}

func (m *MockDirectory) PutCollege(ctx context.Context, c *models.College) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockDirectory) PutUser(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}

func TestBuildIntents_StatusChangedOnly(t *testing.T) {
	dir := new(MockDirectory)
	b := NewIntentBuilder(dir, nil)
	idea := &models.Idea{ID: "idea-1", Title: "Solar kiosk", Status: models.StatusUnderReview, StudentID: "stu-1"}

	intents := b.Build(context.Background(), idea, models.StatusSubmitted, collegeActor, "")

	require.Len(t, intents, 1)
	got := intents[0]
	assert.Equal(t, "stu-1", got.RecipientUserID)
	assert.Equal(t, models.NotificationStatusChanged, got.Kind)
	assert.Contains(t, got.Message, "from submitted to under review")
	assert.Equal(t, map[string]string{
		"idea_id":     "idea-1",
		"idea_title":  "Solar kiosk",
		"from_status": "submitted",
		"to_status":   "under_review",
		"actor_id":    "adm-1",
	}, got.Payload)
	dir.AssertNotCalled(t, "ListUsers", mock.Anything, mock.Anything)
}

func TestBuildIntents_EndorsedNotifiesIncubatorManagers(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("ListUsers", mock.Anything, repository.UserFilter{
		Role:        models.RoleIncubatorManager,
		IncubatorID: "inc-1",
	}).Return([]models.User{{ID: "mgr-1"}, {ID: "mgr-2"}}, nil)

	b := NewIntentBuilder(dir, nil)
	idea := &models.Idea{ID: "idea-1", Title: "Solar kiosk", Status: models.StatusEndorsed, StudentID: "stu-1", IncubatorID: ptr("inc-1")}

	intents := b.Build(context.Background(), idea, models.StatusUnderReview, collegeActor, "well argued")

	require.Len(t, intents, 3)
	assert.Contains(t, intents[0].Message, "Feedback: well argued")
	assert.Equal(t, "well argued", intents[0].Payload["reason"])
	for _, in := range intents[1:] {
		assert.Equal(t, models.NotificationEndorsed, in.Kind)
	}
	assert.Equal(t, "mgr-2", intents[2].RecipientUserID)
	dir.AssertExpectations(t)
}

func TestBuildIntents_IncubatedNotifiesCollegeAdmins(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("ListUsers", mock.Anything, repository.UserFilter{
		Role:      models.RoleCollegeAdmin,
		CollegeID: "col-1",
	}).Return([]models.User{{ID: "adm-1"}}, nil)

	b := NewIntentBuilder(dir, nil)
	idea := &models.Idea{ID: "idea-1", Status: models.StatusIncubated, StudentID: "stu-1", CollegeID: "col-1"}

	intents := b.Build(context.Background(), idea, models.StatusEndorsed, incubatorActor, "")

	require.Len(t, intents, 2)
	assert.Equal(t, models.NotificationIncubated, intents[1].Kind)
	assert.Equal(t, "adm-1", intents[1].RecipientUserID)
	dir.AssertExpectations(t)
}

func TestBuildIntents_DirectoryErrorKeepsStudentIntent(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("ListUsers", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	b := NewIntentBuilder(dir, nil)
	idea := &models.Idea{ID: "idea-1", Status: models.StatusIncubated, StudentID: "stu-1", CollegeID: "col-1"}

	intents := b.Build(context.Background(), idea, models.StatusEndorsed, incubatorActor, "")
	require.Len(t, intents, 1)
	assert.Equal(t, models.NotificationStatusChanged, intents[0].Kind)
}
