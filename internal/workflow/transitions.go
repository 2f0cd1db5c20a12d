// Package workflow holds the fixed idea lifecycle: the transition graph, the
// per-scope request rules and every mapping derived from a status.
package workflow

import (
	"errors"
	"fmt"
	"slices"

	"ideaflow/backend/pkg/models"
)

var (
	// ErrNotInGraph indicates the target is not reachable from the current status.
	ErrNotInGraph = errors.New("transition not in graph")
	// ErrScopeDenied indicates the actor's scope may not request the target status.
	ErrScopeDenied = errors.New("target status not permitted for scope")
	// ErrUnknownStatus indicates a status literal outside the enumeration.
	ErrUnknownStatus = errors.New("unknown status")
)

// graph is the directed status graph. Rejected has no outgoing edges.
var graph = map[models.Status][]models.Status{
	models.StatusDraft: {models.StatusSubmitted},
	models.StatusSubmitted: {
		models.StatusUnderReview, models.StatusNurture, models.StatusEndorsed, models.StatusRejected,
	},
	models.StatusNewSubmission: {
		models.StatusUnderReview, models.StatusNurture, models.StatusEndorsed, models.StatusRejected,
	},
	models.StatusUnderReview:      {models.StatusNurture, models.StatusEndorsed, models.StatusRejected},
	models.StatusNurture:          {models.StatusUnderReview, models.StatusEndorsed, models.StatusRejected},
	models.StatusNeedsDevelopment: {models.StatusUnderReview},
	models.StatusEndorsed: {
		models.StatusForwardedToIncubation, models.StatusIncubated, models.StatusRejected,
	},
	models.StatusForwardedToIncubation: {models.StatusIncubated, models.StatusRejected},
	models.StatusIncubated:             {models.StatusRejected},
	models.StatusRejected:              nil,
}

// scopeTargets lists the statuses each restricted scope may request. The
// admin scope is unrestricted and absent on purpose.
var scopeTargets = map[models.Scope][]models.Status{
	models.ScopeStudent: {models.StatusSubmitted},
	models.ScopeCollege: {
		models.StatusUnderReview, models.StatusEndorsed, models.StatusForwardedToIncubation, models.StatusRejected,
	},
	models.ScopeIncubator: {models.StatusIncubated, models.StatusRejected},
}

// ParseTarget parses a requested status literal.
func ParseTarget(raw string) (models.Status, error) {
	status, ok := models.ParseStatus(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return status, nil
}

// IsTransitionAllowed reports whether from -> to is an edge of the graph.
func IsTransitionAllowed(from, to models.Status) bool {
	return slices.Contains(graph[from], to)
}

// CanRequest reports whether an actor of the given scope may ask for target.
func CanRequest(scope models.Scope, target models.Status) bool {
	if scope == models.ScopeAdmin {
		return true
	}
	return slices.Contains(scopeTargets[scope], target)
}

// Check validates a requested transition for a scope. The graph is
// evaluated first, so once an idea is terminal every request is
// ErrNotInGraph regardless of scope.
func Check(from models.Status, scope models.Scope, to models.Status) error {
	if !IsTransitionAllowed(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrNotInGraph, from, to)
	}
	if !CanRequest(scope, to) {
		return fmt.Errorf("%w: %s may not request %s", ErrScopeDenied, scopeName(scope), to)
	}
	return nil
}

// AllowedFor returns the targets a scope may request from the given status.
func AllowedFor(from models.Status, scope models.Scope) []models.Status {
	if from.IsTerminal() {
		return nil
	}
	var out []models.Status
	for _, to := range graph[from] {
		if CanRequest(scope, to) {
			out = append(out, to)
		}
	}
	return out
}

// IsUpgrade reports whether the transition promotes an idea out of nurture.
func IsUpgrade(from, to models.Status) bool {
	return from == models.StatusNurture && to == models.StatusUnderReview
}

// IsIncubationEligible reports whether reaching the status spawns an
// incubation record.
func IsIncubationEligible(status models.Status) bool {
	return status == models.StatusEndorsed
}

func scopeName(scope models.Scope) string {
	if scope == models.ScopeNone {
		return "unscoped actor"
	}
	return string(scope) + " scope"
}
