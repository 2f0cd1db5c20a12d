package models

import "strings"

// Role is the organisational role of an authenticated user
type Role string

const (
	RoleStudent          Role = "student"
	RoleCollegeAdmin     Role = "college_admin"
	RoleIncubatorManager Role = "incubator_manager"
	RoleSuperAdmin       Role = "super_admin"
)

// Scope is the reach of an actor's authority over ideas
type Scope string

const (
	ScopeNone      Scope = ""
	ScopeStudent   Scope = "student"
	ScopeCollege   Scope = "college"
	ScopeIncubator Scope = "incubator"
	ScopeAdmin     Scope = "admin"
)

// ParseRole normalises a role literal from headers or token claims
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleStudent:
		return RoleStudent, true
	case RoleCollegeAdmin:
		return RoleCollegeAdmin, true
	case RoleIncubatorManager:
		return RoleIncubatorManager, true
	case RoleSuperAdmin:
		return RoleSuperAdmin, true
	default:
		return "", false
	}
}

// Actor is the caller of a workflow operation
type Actor struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	CollegeID   string `json:"college_id,omitempty"`
	IncubatorID string `json:"incubator_id,omitempty"`
}

// Scope derives the authority scope from the role. A college or incubator
// role without its organisation id has no scope.
func (a Actor) Scope() Scope {
	switch a.Role {
	case RoleStudent:
		return ScopeStudent
	case RoleCollegeAdmin:
		if a.CollegeID == "" {
			return ScopeNone
		}
		return ScopeCollege
	case RoleIncubatorManager:
		if a.IncubatorID == "" {
			return ScopeNone
		}
		return ScopeIncubator
	case RoleSuperAdmin:
		return ScopeAdmin
	default:
		return ScopeNone
	}
}

// User is a directory entry used to resolve notification recipients
type User struct {
	ID          string  `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Email       string  `json:"email" db:"email"`
	Role        Role    `json:"role" db:"role"`
	CollegeID   *string `json:"college_id,omitempty" db:"college_id"`
	IncubatorID *string `json:"incubator_id,omitempty" db:"incubator_id"`
}

// College owns submitted ideas
type College struct {
	ID                 string  `json:"id" db:"id"`
	Name               string  `json:"name" db:"name"`
	DefaultIncubatorID *string `json:"default_incubator_id,omitempty" db:"default_incubator_id"`
}

// Incubator receives endorsed ideas
type Incubator struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
