// Package models defines the domain models for the idea incubation pipeline
package models

import (
	"strings"
	"time"
)

// Status is the pipeline position of an idea
type Status string

const (
	StatusDraft                 Status = "draft"
	StatusSubmitted             Status = "submitted"
	StatusNewSubmission         Status = "new_submission"
	StatusUnderReview           Status = "under_review"
	StatusNurture               Status = "nurture"
	StatusNeedsDevelopment      Status = "needs_development"
	StatusEndorsed              Status = "endorsed"
	StatusForwardedToIncubation Status = "forwarded_to_incubation"
	StatusIncubated             Status = "incubated"
	StatusRejected              Status = "rejected"
)

// AllStatuses lists every status in pipeline order
var AllStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusNewSubmission,
	StatusUnderReview,
	StatusNurture,
	StatusNeedsDevelopment,
	StatusEndorsed,
	StatusForwardedToIncubation,
	StatusIncubated,
	StatusRejected,
}

// ParseStatus converts a wire literal into a Status. Matching is exact after
// trimming whitespace; the API contract uses lower snake case.
func ParseStatus(raw string) (Status, bool) {
	candidate := Status(strings.TrimSpace(raw))
	for _, s := range AllStatuses {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no transition can leave the status
func (s Status) IsTerminal() bool {
	return s == StatusRejected
}

// Label returns a human readable form used in notification text
func (s Status) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// WorkflowStage is the coarse reporting bucket derived from Status
type WorkflowStage string

const (
	StageSubmission  WorkflowStage = "submission"
	StageReview      WorkflowStage = "review"
	StageDevelopment WorkflowStage = "development"
	StageEndorsement WorkflowStage = "endorsement"
	StageIncubation  WorkflowStage = "incubation"
)

// Idea is the subject of the review workflow
type Idea struct {
	ID              string        `json:"id" db:"id"`
	Title           string        `json:"title" db:"title"`
	Description     string        `json:"description,omitempty" db:"description"`
	Status          Status        `json:"status" db:"status"`
	WorkflowStage   WorkflowStage `json:"workflow_stage" db:"workflow_stage"`
	PreviousStatus  *Status       `json:"previous_status,omitempty" db:"previous_status"`
	StudentID       string        `json:"student_id" db:"student_id"`
	CollegeID       string        `json:"college_id" db:"college_id"`
	IncubatorID     *string       `json:"incubator_id,omitempty" db:"incubator_id"`
	MentorID        *string       `json:"mentor_id,omitempty" db:"mentor_id"`
	FundingRequired float64       `json:"funding_required" db:"funding_required"`

	// Stage timestamps, each written the first time the stage is entered
	SubmittedAt         *time.Time `json:"submitted_at,omitempty" db:"submitted_at"`
	ReviewStartedAt     *time.Time `json:"review_started_at,omitempty" db:"review_started_at"`
	EndorsedAt          *time.Time `json:"endorsed_at,omitempty" db:"endorsed_at"`
	IncubationStartedAt *time.Time `json:"incubation_started_at,omitempty" db:"incubation_started_at"`

	// Reviewer attribution for the last status change
	ReviewedBy *string    `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`

	// Upgrade out of the nurture loop; never cleared once set
	IsUpgraded bool       `json:"is_upgraded" db:"is_upgraded"`
	UpgradedAt *time.Time `json:"upgraded_at,omitempty" db:"upgraded_at"`
	UpgradedBy *string    `json:"upgraded_by,omitempty" db:"upgraded_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StatusUpdate is the single combined mutation applied for one transition.
// ExpectedStatus guards the write: the store only applies it while the row
// still holds that status.
type StatusUpdate struct {
	IdeaID         string
	ExpectedStatus Status
	Status         Status
	WorkflowStage  WorkflowStage
	PreviousStatus Status
	ReviewedBy     string
	ReviewedAt     time.Time

	SubmittedAt         *time.Time
	ReviewStartedAt     *time.Time
	EndorsedAt          *time.Time
	IncubationStartedAt *time.Time

	// IncubatorID is only set when the transition assigns an incubator
	IncubatorID *string

	MarkUpgraded bool
	UpgradedAt   *time.Time
	UpgradedBy   *string
}

// Apply copies the update onto an in-memory idea
func (u *StatusUpdate) Apply(idea *Idea) {
	prev := u.PreviousStatus
	idea.PreviousStatus = &prev
	idea.Status = u.Status
	idea.WorkflowStage = u.WorkflowStage
	reviewer := u.ReviewedBy
	reviewedAt := u.ReviewedAt
	idea.ReviewedBy = &reviewer
	idea.ReviewedAt = &reviewedAt
	if u.SubmittedAt != nil {
		idea.SubmittedAt = u.SubmittedAt
	}
	if u.ReviewStartedAt != nil {
		idea.ReviewStartedAt = u.ReviewStartedAt
	}
	if u.EndorsedAt != nil {
		idea.EndorsedAt = u.EndorsedAt
	}
	if u.IncubationStartedAt != nil {
		idea.IncubationStartedAt = u.IncubationStartedAt
	}
	if u.IncubatorID != nil {
		idea.IncubatorID = u.IncubatorID
	}
	if u.MarkUpgraded {
		idea.IsUpgraded = true
		idea.UpgradedAt = u.UpgradedAt
		idea.UpgradedBy = u.UpgradedBy
	}
	idea.UpdatedAt = u.ReviewedAt
}

// IdeaSummary is the response shape of the status endpoint
type IdeaSummary struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Status         Status        `json:"status"`
	WorkflowStage  WorkflowStage `json:"workflow_stage"`
	PreviousStatus *Status       `json:"previous_status,omitempty"`
	CollegeID      string        `json:"college_id"`
	IncubatorID    *string       `json:"incubator_id,omitempty"`
	IsUpgraded     bool          `json:"is_upgraded"`
	ReviewedBy     *string       `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time    `json:"reviewed_at,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Summary projects the idea onto its API summary
func (i *Idea) Summary() IdeaSummary {
	return IdeaSummary{
		ID:             i.ID,
		Title:          i.Title,
		Status:         i.Status,
		WorkflowStage:  i.WorkflowStage,
		PreviousStatus: i.PreviousStatus,
		CollegeID:      i.CollegeID,
		IncubatorID:    i.IncubatorID,
		IsUpgraded:     i.IsUpgraded,
		ReviewedBy:     i.ReviewedBy,
		ReviewedAt:     i.ReviewedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}
