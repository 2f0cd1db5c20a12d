package workflow

import "ideaflow/backend/pkg/models"

// StageClock names the stage timestamp a status writes on first entry.
type StageClock int

const (
	ClockNone StageClock = iota
	ClockSubmitted
	ClockReviewStarted
	ClockEndorsed
	ClockIncubationStarted
)

// StageFor maps a status onto its reporting stage.
func StageFor(status models.Status) models.WorkflowStage {
	switch status {
	case models.StatusDraft, models.StatusSubmitted, models.StatusNewSubmission:
		return models.StageSubmission
	case models.StatusUnderReview, models.StatusRejected:
		return models.StageReview
	case models.StatusNurture, models.StatusNeedsDevelopment:
		return models.StageDevelopment
	case models.StatusEndorsed, models.StatusForwardedToIncubation:
		return models.StageEndorsement
	case models.StatusIncubated:
		return models.StageIncubation
	default:
		return models.StageSubmission
	}
}

// ClockFor returns the stage timestamp owned by status, if any.
func ClockFor(status models.Status) StageClock {
	switch status {
	case models.StatusSubmitted, models.StatusNewSubmission:
		return ClockSubmitted
	case models.StatusUnderReview:
		return ClockReviewStarted
	case models.StatusEndorsed:
		return ClockEndorsed
	case models.StatusIncubated:
		return ClockIncubationStarted
	default:
		return ClockNone
	}
}

// Assessment derives the evaluation rating and recommendation recorded when
// a reviewer moves an idea to status. Ratings are metadata of the decision,
// not a reviewer supplied score.
func Assessment(status models.Status) (int, models.Recommendation) {
	switch status {
	case models.StatusRejected:
		return models.MinRating, models.RecommendationReject
	case models.StatusEndorsed, models.StatusForwardedToIncubation, models.StatusIncubated:
		return models.MaxRating, models.RecommendationForward
	default:
		return models.MidRating, models.RecommendationNurture
	}
}
