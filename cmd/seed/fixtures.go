package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/repository"
	"ideaflow/backend/internal/workflow"
	"ideaflow/backend/pkg/models"
)

//go:embed default.yaml
var defaultFixtures []byte

// Fixtures is the YAML document loaded by the seed command.
type Fixtures struct {
	Incubators []IncubatorFixture `yaml:"incubators"`
	Colleges   []CollegeFixture   `yaml:"colleges"`
	Users      []UserFixture      `yaml:"users"`
	Ideas      []IdeaFixture      `yaml:"ideas"`
}

type IncubatorFixture struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type CollegeFixture struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	DefaultIncubatorID string `yaml:"default_incubator_id"`
}

type UserFixture struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Email       string `yaml:"email"`
	Role        string `yaml:"role"`
	CollegeID   string `yaml:"college_id"`
	IncubatorID string `yaml:"incubator_id"`
}

type IdeaFixture struct {
	ID              string  `yaml:"id"`
	Title           string  `yaml:"title"`
	Description     string  `yaml:"description"`
	Status          string  `yaml:"status"`
	StudentID       string  `yaml:"student_id"`
	CollegeID       string  `yaml:"college_id"`
	IncubatorID     string  `yaml:"incubator_id"`
	FundingRequired float64 `yaml:"funding_required"`
}

// SeedSummary counts what a seed run wrote.
type SeedSummary struct {
	Incubators int
	Colleges   int
	Users      int
	Ideas      int
	Skipped    int
}

// ParseFixtures decodes and checks a fixture document.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	for _, u := range f.Users {
		if _, ok := models.ParseRole(u.Role); !ok {
			return nil, fmt.Errorf("user %s: unknown role %q", u.ID, u.Role)
		}
	}
	for _, idea := range f.Ideas {
		if _, err := workflow.ParseTarget(idea.Status); err != nil {
			return nil, fmt.Errorf("idea %s: %w", idea.ID, err)
		}
	}
	return &f, nil
}

// Seed writes the fixtures. Directory rows are upserted; ideas that already
// exist are left untouched so a re-run never rewinds workflow state.
func Seed(ctx context.Context, store repository.Repository, f *Fixtures, logger *logging.Logger) (SeedSummary, error) {
	var sum SeedSummary
	for _, inc := range f.Incubators {
		if err := store.PutIncubator(ctx, &models.Incubator{ID: inc.ID, Name: inc.Name}); err != nil {
			return sum, fmt.Errorf("incubator %s: %w", inc.ID, err)
		}
		sum.Incubators++
	}
	for _, c := range f.Colleges {
		college := &models.College{ID: c.ID, Name: c.Name, DefaultIncubatorID: optional(c.DefaultIncubatorID)}
		if err := store.PutCollege(ctx, college); err != nil {
			return sum, fmt.Errorf("college %s: %w", c.ID, err)
		}
		sum.Colleges++
	}
	for _, u := range f.Users {
		role, _ := models.ParseRole(u.Role)
		user := &models.User{
			ID: u.ID, Name: u.Name, Email: u.Email, Role: role,
			CollegeID: optional(u.CollegeID), IncubatorID: optional(u.IncubatorID),
		}
		if err := store.PutUser(ctx, user); err != nil {
			return sum, fmt.Errorf("user %s: %w", u.ID, err)
		}
		sum.Users++
	}
	for _, i := range f.Ideas {
		status, _ := models.ParseStatus(i.Status)
		idea := &models.Idea{
			ID: i.ID, Title: i.Title, Description: i.Description,
			Status: status, WorkflowStage: workflow.StageFor(status),
			StudentID: i.StudentID, CollegeID: i.CollegeID, IncubatorID: optional(i.IncubatorID),
			FundingRequired: i.FundingRequired,
		}
		err := store.CreateIdea(ctx, idea)
		if errors.Is(err, repository.ErrConflict) {
			logger.Info("skipping existing idea", "id", i.ID)
			sum.Skipped++
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("idea %s: %w", i.ID, err)
		}
		sum.Ideas++
	}
	return sum, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
