package models

import "time"

// Recommendation is the reviewer outcome tag stored on an evaluation
type Recommendation string

const (
	RecommendationNurture Recommendation = "nurture"
	RecommendationForward Recommendation = "forward"
	RecommendationReject  Recommendation = "reject"
)

// Rating bounds for Evaluation.Rating
const (
	MinRating = 1
	MidRating = 3
	MaxRating = 5
)

// Evaluation is one reviewer's decision record for an idea. There is at most
// one row per (IdeaID, EvaluatorID).
type Evaluation struct {
	ID             string         `json:"id" db:"id"`
	IdeaID         string         `json:"idea_id" db:"idea_id"`
	EvaluatorID    string         `json:"evaluator_id" db:"evaluator_id"`
	Rating         int            `json:"rating" db:"rating"`
	Comments       string         `json:"comments,omitempty" db:"comments"`
	Recommendation Recommendation `json:"recommendation" db:"recommendation"`
	MentorID       *string        `json:"mentor_id,omitempty" db:"mentor_id"`
	EvaluatedAt    time.Time      `json:"evaluated_at" db:"evaluated_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}
