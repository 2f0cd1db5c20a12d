package services

import (
	"context"
	"fmt"

	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/repository"
	"ideaflow/backend/pkg/models"
)

// IntentBuilder decides who hears about a transition.
type IntentBuilder struct {
	directory repository.DirectoryStore
	logger    *logging.Logger
}

// NewIntentBuilder creates a new IntentBuilder.
func NewIntentBuilder(directory repository.DirectoryStore, logger *logging.Logger) *IntentBuilder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &IntentBuilder{directory: directory, logger: logger}
}

// Build returns the intents for idea having moved from -> idea.Status. The
// student is always told; incubator managers hear about endorsements and
// college admins about incubations. Directory failures drop recipients,
// never the transition.
func (b *IntentBuilder) Build(ctx context.Context, idea *models.Idea, from models.Status, actor models.Actor, reason string) []models.NotificationIntent {
	to := idea.Status
	payload := func() map[string]string {
		p := map[string]string{
			"idea_id":     idea.ID,
			"idea_title":  idea.Title,
			"from_status": string(from),
			"to_status":   string(to),
			"actor_id":    actor.ID,
		}
		if reason != "" {
			p["reason"] = reason
		}
		return p
	}

	message := fmt.Sprintf("Your idea %q moved from %s to %s.", idea.Title, from.Label(), to.Label())
	if reason != "" {
		message += " Feedback: " + reason
	}
	intents := []models.NotificationIntent{{
		RecipientUserID: idea.StudentID,
		Kind:            models.NotificationStatusChanged,
		Title:           "Idea status updated",
		Message:         message,
		Payload:         payload(),
	}}

	switch to {
	case models.StatusEndorsed:
		if idea.IncubatorID == nil || *idea.IncubatorID == "" {
			b.logger.Warn("endorsed idea has no incubator, skipping manager notifications", "idea_id", idea.ID)
			break
		}
		managers := b.recipients(ctx, repository.UserFilter{
			Role:        models.RoleIncubatorManager,
			IncubatorID: *idea.IncubatorID,
		})
		for _, u := range managers {
			intents = append(intents, models.NotificationIntent{
				RecipientUserID: u.ID,
				Kind:            models.NotificationEndorsed,
				Title:           "New endorsed idea",
				Message:         fmt.Sprintf("%q was endorsed by its college and is ready for incubation review.", idea.Title),
				Payload:         payload(),
			})
		}
	case models.StatusIncubated:
		admins := b.recipients(ctx, repository.UserFilter{
			Role:      models.RoleCollegeAdmin,
			CollegeID: idea.CollegeID,
		})
		for _, u := range admins {
			intents = append(intents, models.NotificationIntent{
				RecipientUserID: u.ID,
				Kind:            models.NotificationIncubated,
				Title:           "Idea accepted for incubation",
				Message:         fmt.Sprintf("%q was accepted into incubation.", idea.Title),
				Payload:         payload(),
			})
		}
	}
	return intents
}

func (b *IntentBuilder) recipients(ctx context.Context, filter repository.UserFilter) []models.User {
	users, err := b.directory.ListUsers(ctx, filter)
	if err != nil {
		b.logger.Error("failed to resolve notification recipients",
			"role", filter.Role, "college_id", filter.CollegeID, "incubator_id", filter.IncubatorID, "error", err)
		return nil
	}
	return users
}
