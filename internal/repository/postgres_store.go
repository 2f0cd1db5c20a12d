package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ideaflow/backend/internal/repository/migrations"
	"ideaflow/backend/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of Repository.
type PostgresStore struct {
	db      *pgxpool.Pool
	applied []string
}

// NewPostgresStore wraps an existing pool without touching the schema.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to connStr and applies pending migrations.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate applies pending migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	applied, err := applyMigrations(ctx, s, migrations.Postgres, "postgres")
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	s.applied = append(s.applied, applied...)
	return nil
}

// AppliedMigrations lists the migrations applied by this store instance.
func (s *PostgresStore) AppliedMigrations() []string {
	return s.applied
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) ensureMigrationTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL
)`)
	return err
}

func (s *PostgresStore) isApplied(ctx context.Context, name string) (bool, error) {
	var found int
	err := s.db.QueryRow(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = $1", name).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *PostgresStore) applyMigration(ctx context.Context, name, upSQL string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO "+migrationTable+" (name, applied_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING",
			name, time.Now().UTC())
		return err
	})
}

// GetIdea loads an idea by id.
func (s *PostgresStore) GetIdea(ctx context.Context, id string) (*models.Idea, error) {
	row := s.db.QueryRow(ctx, "SELECT "+ideaColumns+" FROM ideas WHERE id = $1", id)

	var (
		idea          models.Idea
		status, stage string
		previous      *string
	)
	err := row.Scan(
		&idea.ID, &idea.Title, &idea.Description, &status, &stage, &previous,
		&idea.StudentID, &idea.CollegeID, &idea.IncubatorID, &idea.MentorID, &idea.FundingRequired,
		&idea.SubmittedAt, &idea.ReviewStartedAt, &idea.EndorsedAt, &idea.IncubationStartedAt,
		&idea.ReviewedBy, &idea.ReviewedAt, &idea.IsUpgraded, &idea.UpgradedAt, &idea.UpgradedBy,
		&idea.CreatedAt, &idea.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get idea: %w", err)
	}
	idea.Status = models.Status(status)
	idea.WorkflowStage = models.WorkflowStage(stage)
	if previous != nil {
		p := models.Status(*previous)
		idea.PreviousStatus = &p
	}
	return &idea, nil
}

// CreateIdea inserts a new idea.
func (s *PostgresStore) CreateIdea(ctx context.Context, idea *models.Idea) error {
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = time.Now().UTC()
	}
	if idea.UpdatedAt.IsZero() {
		idea.UpdatedAt = idea.CreatedAt
	}
	var previous *string
	if idea.PreviousStatus != nil {
		p := string(*idea.PreviousStatus)
		previous = &p
	}
	_, err := s.db.Exec(ctx, "INSERT INTO ideas ("+ideaColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		idea.ID, idea.Title, idea.Description, string(idea.Status), string(idea.WorkflowStage), previous,
		idea.StudentID, idea.CollegeID, idea.IncubatorID, idea.MentorID, idea.FundingRequired,
		idea.SubmittedAt, idea.ReviewStartedAt, idea.EndorsedAt, idea.IncubationStartedAt,
		idea.ReviewedBy, idea.ReviewedAt, idea.IsUpgraded, idea.UpgradedAt, idea.UpgradedBy,
		idea.CreatedAt, idea.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("create idea %s: %w", idea.ID, ErrConflict)
		}
		return fmt.Errorf("create idea: %w", err)
	}
	return nil
}

// UpdateIdeaStatus applies a transition as a compare-and-set on the
// expected status. Stage timestamps are only written while still NULL.
func (s *PostgresStore) UpdateIdeaStatus(ctx context.Context, u *models.StatusUpdate) error {
	tag, err := s.db.Exec(ctx, `
UPDATE ideas SET
    status = $1,
    workflow_stage = $2,
    previous_status = $3,
    reviewed_by = $4,
    reviewed_at = $5,
    submitted_at = COALESCE(submitted_at, $6::timestamptz),
    review_started_at = COALESCE(review_started_at, $7::timestamptz),
    endorsed_at = COALESCE(endorsed_at, $8::timestamptz),
    incubation_started_at = COALESCE(incubation_started_at, $9::timestamptz),
    incubator_id = COALESCE($10::text, incubator_id),
    is_upgraded = is_upgraded OR $11::boolean,
    upgraded_at = CASE WHEN $11::boolean THEN $12::timestamptz ELSE upgraded_at END,
    upgraded_by = CASE WHEN $11::boolean THEN $13::text ELSE upgraded_by END,
    updated_at = $5
WHERE id = $14 AND status = $15`,
		string(u.Status), string(u.WorkflowStage), string(u.PreviousStatus), u.ReviewedBy, u.ReviewedAt,
		u.SubmittedAt, u.ReviewStartedAt, u.EndorsedAt, u.IncubationStartedAt,
		u.IncubatorID,
		u.MarkUpgraded, u.UpgradedAt, u.UpgradedBy,
		u.IdeaID, string(u.ExpectedStatus),
	)
	if err != nil {
		return fmt.Errorf("update idea status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRow(ctx, "SELECT 1 FROM ideas WHERE id = $1", u.IdeaID).Scan(&exists)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("update idea status: %w", err)
	default:
		return ErrStaleStatus
	}
}

// GetEvaluation loads the evaluation of an idea by one evaluator.
func (s *PostgresStore) GetEvaluation(ctx context.Context, ideaID, evaluatorID string) (*models.Evaluation, error) {
	var (
		e              models.Evaluation
		recommendation string
	)
	err := s.db.QueryRow(ctx,
		"SELECT "+evaluationColumns+" FROM evaluations WHERE idea_id = $1 AND evaluator_id = $2",
		ideaID, evaluatorID,
	).Scan(&e.ID, &e.IdeaID, &e.EvaluatorID, &e.Rating, &e.Comments, &recommendation, &e.MentorID,
		&e.EvaluatedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	e.Recommendation = models.Recommendation(recommendation)
	return &e, nil
}

// CreateEvaluation inserts an evaluation.
func (s *PostgresStore) CreateEvaluation(ctx context.Context, e *models.Evaluation) error {
	_, err := s.db.Exec(ctx, "INSERT INTO evaluations ("+evaluationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.IdeaID, e.EvaluatorID, e.Rating, e.Comments, string(e.Recommendation), e.MentorID,
		e.EvaluatedAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("create evaluation for idea %s: %w", e.IdeaID, ErrConflict)
		}
		return fmt.Errorf("create evaluation: %w", err)
	}
	return nil
}

// UpdateEvaluation overwrites the decision fields of an evaluation.
func (s *PostgresStore) UpdateEvaluation(ctx context.Context, e *models.Evaluation) error {
	tag, err := s.db.Exec(ctx, `
UPDATE evaluations
SET rating = $1, comments = $2, recommendation = $3, mentor_id = $4, evaluated_at = $5, updated_at = $6
WHERE id = $7`,
		e.Rating, e.Comments, string(e.Recommendation), e.MentorID, e.EvaluatedAt, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPreIncubateeByIdea loads the incubation record of an idea.
func (s *PostgresStore) GetPreIncubateeByIdea(ctx context.Context, ideaID string) (*models.PreIncubatee, error) {
	var (
		r             models.PreIncubatee
		phase, status string
	)
	err := s.db.QueryRow(ctx, "SELECT "+preIncubateeColumns+" FROM pre_incubatees WHERE idea_id = $1", ideaID).
		Scan(&r.ID, &r.IdeaID, &r.StudentID, &r.CollegeID, &r.IncubatorID, &phase,
			&r.ProgressPercentage, &r.FundingRequired, &r.FundingReceived, &status,
			&r.StartDate, &r.ExpectedCompletionDate, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pre-incubatee: %w", err)
	}
	r.CurrentPhase = models.IncubationPhase(phase)
	r.Status = models.IncubationStatus(status)
	return &r, nil
}

// CreatePreIncubatee inserts an incubation record.
func (s *PostgresStore) CreatePreIncubatee(ctx context.Context, r *models.PreIncubatee) error {
	_, err := s.db.Exec(ctx, "INSERT INTO pre_incubatees ("+preIncubateeColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.IdeaID, r.StudentID, r.CollegeID, r.IncubatorID, string(r.CurrentPhase),
		r.ProgressPercentage, r.FundingRequired, r.FundingReceived, string(r.Status),
		r.StartDate, r.ExpectedCompletionDate, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("create pre-incubatee for idea %s: %w", r.IdeaID, ErrConflict)
		}
		return fmt.Errorf("create pre-incubatee: %w", err)
	}
	return nil
}

// GetCollege loads a college.
func (s *PostgresStore) GetCollege(ctx context.Context, id string) (*models.College, error) {
	var c models.College
	err := s.db.QueryRow(ctx, "SELECT id, name, default_incubator_id FROM colleges WHERE id = $1", id).
		Scan(&c.ID, &c.Name, &c.DefaultIncubatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get college: %w", err)
	}
	return &c, nil
}

// GetIncubator loads an incubator.
func (s *PostgresStore) GetIncubator(ctx context.Context, id string) (*models.Incubator, error) {
	var inc models.Incubator
	err := s.db.QueryRow(ctx, "SELECT id, name FROM incubators WHERE id = $1", id).Scan(&inc.ID, &inc.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get incubator: %w", err)
	}
	return &inc, nil
}

// GetUser loads a user.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := s.db.QueryRow(ctx, "SELECT id, name, email, role, college_id, incubator_id FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.Name, &u.Email, &role, &u.CollegeID, &u.IncubatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

// ListUsers returns users matching the filter ordered by id.
func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Role != "" {
		add("role", string(filter.Role))
	}
	if filter.CollegeID != "" {
		add("college_id", filter.CollegeID)
	}
	if filter.IncubatorID != "" {
		add("incubator_id", filter.IncubatorID)
	}
	query := "SELECT id, name, email, role, college_id, incubator_id FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var (
			u    models.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CollegeID, &u.IncubatorID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = models.Role(role)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// PutIncubator inserts or replaces an incubator.
func (s *PostgresStore) PutIncubator(ctx context.Context, inc *models.Incubator) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO incubators (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, inc.ID, inc.Name)
	if err != nil {
		return fmt.Errorf("put incubator: %w", err)
	}
	return nil
}

// PutCollege inserts or replaces a college.
func (s *PostgresStore) PutCollege(ctx context.Context, c *models.College) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO colleges (id, name, default_incubator_id) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, default_incubator_id = EXCLUDED.default_incubator_id`,
		c.ID, c.Name, c.DefaultIncubatorID)
	if err != nil {
		return fmt.Errorf("put college: %w", err)
	}
	return nil
}

// PutUser inserts or replaces a user.
func (s *PostgresStore) PutUser(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO users (id, name, email, role, college_id, incubator_id) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    email = EXCLUDED.email,
    role = EXCLUDED.role,
    college_id = EXCLUDED.college_id,
    incubator_id = EXCLUDED.incubator_id`,
		u.ID, u.Name, u.Email, string(u.Role), u.CollegeID, u.IncubatorID)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}
