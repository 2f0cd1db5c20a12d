package models

import "time"

// IncubationPhase is the progress phase of a pre-incubatee
type IncubationPhase string

const (
	PhaseResearch         IncubationPhase = "research"
	PhaseDevelopment      IncubationPhase = "development"
	PhaseTesting          IncubationPhase = "testing"
	PhaseMarketValidation IncubationPhase = "market_validation"
	PhaseScaling          IncubationPhase = "scaling"
)

// IncubationPhases lists the phases in pipeline order
var IncubationPhases = []IncubationPhase{
	PhaseResearch,
	PhaseDevelopment,
	PhaseTesting,
	PhaseMarketValidation,
	PhaseScaling,
}

// IncubationStatus is the lifecycle state of a pre-incubatee
type IncubationStatus string

const (
	IncubationActive     IncubationStatus = "active"
	IncubationPaused     IncubationStatus = "paused"
	IncubationCompleted  IncubationStatus = "completed"
	IncubationTerminated IncubationStatus = "terminated"
)

// PreIncubatee is the downstream tracking record created once an idea is
// endorsed. IdeaID is unique across all records.
type PreIncubatee struct {
	ID                     string           `json:"id" db:"id"`
	IdeaID                 string           `json:"idea_id" db:"idea_id"`
	StudentID              string           `json:"student_id" db:"student_id"`
	CollegeID              string           `json:"college_id" db:"college_id"`
	IncubatorID            string           `json:"incubator_id" db:"incubator_id"`
	CurrentPhase           IncubationPhase  `json:"current_phase" db:"current_phase"`
	ProgressPercentage     int              `json:"progress_percentage" db:"progress_percentage"`
	FundingRequired        float64          `json:"funding_required" db:"funding_required"`
	FundingReceived        float64          `json:"funding_received" db:"funding_received"`
	Status                 IncubationStatus `json:"status" db:"status"`
	StartDate              time.Time        `json:"start_date" db:"start_date"`
	ExpectedCompletionDate time.Time        `json:"expected_completion_date" db:"expected_completion_date"`
	CreatedAt              time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at" db:"updated_at"`
}
