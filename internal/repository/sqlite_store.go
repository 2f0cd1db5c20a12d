package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ideaflow/backend/internal/repository/migrations"
	"ideaflow/backend/pkg/models"
)

const sqlitePragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"

// SQLiteStore is the embedded single-writer store.
type SQLiteStore struct {
	db      *sql.DB
	applied []string
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	inMemory := path == ":memory:"
	dsn := path
	if !inMemory {
		dsn = filepath.Clean(path)
	}
	db, err := sql.Open("sqlite", dsn+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if inMemory {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	applied, err := applyMigrations(ctx, store, migrations.SQLite, "sqlite")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	store.applied = applied
	return store, nil
}

func ensureForeignKeysEnabled(ctx context.Context, db *sql.DB) error {
	var enabled int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// AppliedMigrations lists the migrations applied when the store was opened.
func (s *SQLiteStore) AppliedMigrations() []string {
	return s.applied
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ensureMigrationTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`)
	return err
}

func (s *SQLiteStore) isApplied(ctx context.Context, name string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) applyMigration(ctx context.Context, name, upSQL string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upSQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
		name, toMillis(time.Now())); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Ideas

const ideaColumns = `id, title, description, status, workflow_stage, previous_status,
student_id, college_id, incubator_id, mentor_id, funding_required,
submitted_at, review_started_at, endorsed_at, incubation_started_at,
reviewed_by, reviewed_at, is_upgraded, upgraded_at, upgraded_by,
created_at, updated_at`

// GetIdea loads an idea by id.
func (s *SQLiteStore) GetIdea(ctx context.Context, id string) (*models.Idea, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+ideaColumns+" FROM ideas WHERE id = ?", id)
	idea, err := scanSQLiteIdea(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get idea: %w", err)
	}
	return idea, nil
}

// CreateIdea inserts a new idea.
func (s *SQLiteStore) CreateIdea(ctx context.Context, idea *models.Idea) error {
	now := time.Now().UTC()
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = now
	}
	if idea.UpdatedAt.IsZero() {
		idea.UpdatedAt = idea.CreatedAt
	}
	var previous *string
	if idea.PreviousStatus != nil {
		p := string(*idea.PreviousStatus)
		previous = &p
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO ideas ("+ideaColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idea.ID, idea.Title, idea.Description, string(idea.Status), string(idea.WorkflowStage), nullString(previous),
		idea.StudentID, idea.CollegeID, nullString(idea.IncubatorID), nullString(idea.MentorID), idea.FundingRequired,
		nullMillis(idea.SubmittedAt), nullMillis(idea.ReviewStartedAt), nullMillis(idea.EndorsedAt), nullMillis(idea.IncubationStartedAt),
		nullString(idea.ReviewedBy), nullMillis(idea.ReviewedAt), boolToInt(idea.IsUpgraded), nullMillis(idea.UpgradedAt), nullString(idea.UpgradedBy),
		toMillis(idea.CreatedAt), toMillis(idea.UpdatedAt),
	)
	if err != nil {
		if isSQLiteConstraintError(err) {
			return fmt.Errorf("create idea %s: %w", idea.ID, ErrConflict)
		}
		return fmt.Errorf("create idea: %w", err)
	}
	return nil
}

// UpdateIdeaStatus applies a transition as a compare-and-set on the
// expected status. Stage timestamps are only written while still NULL.
func (s *SQLiteStore) UpdateIdeaStatus(ctx context.Context, u *models.StatusUpdate) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE ideas SET
    status = ?,
    workflow_stage = ?,
    previous_status = ?,
    reviewed_by = ?,
    reviewed_at = ?,
    submitted_at = COALESCE(submitted_at, ?),
    review_started_at = COALESCE(review_started_at, ?),
    endorsed_at = COALESCE(endorsed_at, ?),
    incubation_started_at = COALESCE(incubation_started_at, ?),
    incubator_id = COALESCE(?, incubator_id),
    is_upgraded = CASE WHEN ? = 1 THEN 1 ELSE is_upgraded END,
    upgraded_at = CASE WHEN ? = 1 THEN ? ELSE upgraded_at END,
    upgraded_by = CASE WHEN ? = 1 THEN ? ELSE upgraded_by END,
    updated_at = ?
WHERE id = ? AND status = ?`,
		string(u.Status), string(u.WorkflowStage), string(u.PreviousStatus), u.ReviewedBy, toMillis(u.ReviewedAt),
		nullMillis(u.SubmittedAt), nullMillis(u.ReviewStartedAt), nullMillis(u.EndorsedAt), nullMillis(u.IncubationStartedAt),
		nullString(u.IncubatorID),
		boolToInt(u.MarkUpgraded),
		boolToInt(u.MarkUpgraded), nullMillis(u.UpgradedAt),
		boolToInt(u.MarkUpgraded), nullString(u.UpgradedBy),
		toMillis(u.ReviewedAt),
		u.IdeaID, string(u.ExpectedStatus),
	)
	if err != nil {
		return fmt.Errorf("update idea status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update idea status: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM ideas WHERE id = ?", u.IdeaID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("update idea status: %w", err)
	default:
		return ErrStaleStatus
	}
}

func scanSQLiteIdea(scan func(dest ...any) error) (*models.Idea, error) {
	var (
		idea                                                  models.Idea
		status, stage                                         string
		previous, incubator, mentor, reviewedBy, upgradedBy   sql.NullString
		submitted, reviewStarted, endorsed, incubationStarted sql.NullInt64
		reviewedAt, upgradedAt                                sql.NullInt64
		upgraded                                              int
		createdAt, updatedAt                                  int64
	)
	err := scan(
		&idea.ID, &idea.Title, &idea.Description, &status, &stage, &previous,
		&idea.StudentID, &idea.CollegeID, &incubator, &mentor, &idea.FundingRequired,
		&submitted, &reviewStarted, &endorsed, &incubationStarted,
		&reviewedBy, &reviewedAt, &upgraded, &upgradedAt, &upgradedBy,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	idea.Status = models.Status(status)
	idea.WorkflowStage = models.WorkflowStage(stage)
	if previous.Valid {
		p := models.Status(previous.String)
		idea.PreviousStatus = &p
	}
	idea.IncubatorID = fromNullString(incubator)
	idea.MentorID = fromNullString(mentor)
	idea.SubmittedAt = fromNullMillis(submitted)
	idea.ReviewStartedAt = fromNullMillis(reviewStarted)
	idea.EndorsedAt = fromNullMillis(endorsed)
	idea.IncubationStartedAt = fromNullMillis(incubationStarted)
	idea.ReviewedBy = fromNullString(reviewedBy)
	idea.ReviewedAt = fromNullMillis(reviewedAt)
	idea.IsUpgraded = upgraded != 0
	idea.UpgradedAt = fromNullMillis(upgradedAt)
	idea.UpgradedBy = fromNullString(upgradedBy)
	idea.CreatedAt = fromMillis(createdAt)
	idea.UpdatedAt = fromMillis(updatedAt)
	return &idea, nil
}

// Evaluations

const evaluationColumns = `id, idea_id, evaluator_id, rating, comments, recommendation, mentor_id,
evaluated_at, created_at, updated_at`

// GetEvaluation loads the evaluation of an idea by one evaluator.
func (s *SQLiteStore) GetEvaluation(ctx context.Context, ideaID, evaluatorID string) (*models.Evaluation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+evaluationColumns+" FROM evaluations WHERE idea_id = ? AND evaluator_id = ?",
		ideaID, evaluatorID)

	var (
		e                                 models.Evaluation
		recommendation                    string
		mentor                            sql.NullString
		evaluatedAt, createdAt, updatedAt int64
	)
	err := row.Scan(&e.ID, &e.IdeaID, &e.EvaluatorID, &e.Rating, &e.Comments, &recommendation, &mentor,
		&evaluatedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	e.Recommendation = models.Recommendation(recommendation)
	e.MentorID = fromNullString(mentor)
	e.EvaluatedAt = fromMillis(evaluatedAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

// CreateEvaluation inserts an evaluation.
func (s *SQLiteStore) CreateEvaluation(ctx context.Context, e *models.Evaluation) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO evaluations ("+evaluationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.IdeaID, e.EvaluatorID, e.Rating, e.Comments, string(e.Recommendation), nullString(e.MentorID),
		toMillis(e.EvaluatedAt), toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
	)
	if err != nil {
		if isSQLiteConstraintError(err) {
			return fmt.Errorf("create evaluation for idea %s: %w", e.IdeaID, ErrConflict)
		}
		return fmt.Errorf("create evaluation: %w", err)
	}
	return nil
}

// UpdateEvaluation overwrites the decision fields of an evaluation.
func (s *SQLiteStore) UpdateEvaluation(ctx context.Context, e *models.Evaluation) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE evaluations
SET rating = ?, comments = ?, recommendation = ?, mentor_id = ?, evaluated_at = ?, updated_at = ?
WHERE id = ?`,
		e.Rating, e.Comments, string(e.Recommendation), nullString(e.MentorID),
		toMillis(e.EvaluatedAt), toMillis(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Incubation records

const preIncubateeColumns = `id, idea_id, student_id, college_id, incubator_id, current_phase,
progress_percentage, funding_required, funding_received, status,
start_date, expected_completion_date, created_at, updated_at`

// GetPreIncubateeByIdea loads the incubation record of an idea.
func (s *SQLiteStore) GetPreIncubateeByIdea(ctx context.Context, ideaID string) (*models.PreIncubatee, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+preIncubateeColumns+" FROM pre_incubatees WHERE idea_id = ?", ideaID)

	var (
		r                                     models.PreIncubatee
		phase, status                         string
		start, expected, createdAt, updatedAt int64
	)
	err := row.Scan(&r.ID, &r.IdeaID, &r.StudentID, &r.CollegeID, &r.IncubatorID, &phase,
		&r.ProgressPercentage, &r.FundingRequired, &r.FundingReceived, &status,
		&start, &expected, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pre-incubatee: %w", err)
	}
	r.CurrentPhase = models.IncubationPhase(phase)
	r.Status = models.IncubationStatus(status)
	r.StartDate = fromMillis(start)
	r.ExpectedCompletionDate = fromMillis(expected)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

// CreatePreIncubatee inserts an incubation record.
func (s *SQLiteStore) CreatePreIncubatee(ctx context.Context, r *models.PreIncubatee) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO pre_incubatees ("+preIncubateeColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.IdeaID, r.StudentID, r.CollegeID, r.IncubatorID, string(r.CurrentPhase),
		r.ProgressPercentage, r.FundingRequired, r.FundingReceived, string(r.Status),
		toMillis(r.StartDate), toMillis(r.ExpectedCompletionDate), toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	)
	if err != nil {
		if isSQLiteConstraintError(err) {
			return fmt.Errorf("create pre-incubatee for idea %s: %w", r.IdeaID, ErrConflict)
		}
		return fmt.Errorf("create pre-incubatee: %w", err)
	}
	return nil
}

// Directory

// GetCollege loads a college.
func (s *SQLiteStore) GetCollege(ctx context.Context, id string) (*models.College, error) {
	var (
		c        models.College
		fallback sql.NullString
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, name, default_incubator_id FROM colleges WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &fallback)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get college: %w", err)
	}
	c.DefaultIncubatorID = fromNullString(fallback)
	return &c, nil
}

// GetIncubator loads an incubator.
func (s *SQLiteStore) GetIncubator(ctx context.Context, id string) (*models.Incubator, error) {
	var inc models.Incubator
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM incubators WHERE id = ?", id).Scan(&inc.ID, &inc.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get incubator: %w", err)
	}
	return &inc, nil
}

// GetUser loads a user.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, name, email, role, college_id, incubator_id FROM users WHERE id = ?", id)
	u, err := scanSQLiteUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers returns users matching the filter ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error) {
	var (
		where []string
		args  []any
	)
	if filter.Role != "" {
		where = append(where, "role = ?")
		args = append(args, string(filter.Role))
	}
	if filter.CollegeID != "" {
		where = append(where, "college_id = ?")
		args = append(args, filter.CollegeID)
	}
	if filter.IncubatorID != "" {
		where = append(where, "incubator_id = ?")
		args = append(args, filter.IncubatorID)
	}
	query := "SELECT id, name, email, role, college_id, incubator_id FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanSQLiteUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// PutIncubator inserts or replaces an incubator.
func (s *SQLiteStore) PutIncubator(ctx context.Context, inc *models.Incubator) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO incubators (id, name) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name`, inc.ID, inc.Name)
	if err != nil {
		return fmt.Errorf("put incubator: %w", err)
	}
	return nil
}

// PutCollege inserts or replaces a college.
func (s *SQLiteStore) PutCollege(ctx context.Context, c *models.College) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO colleges (id, name, default_incubator_id) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, default_incubator_id = excluded.default_incubator_id`,
		c.ID, c.Name, nullString(c.DefaultIncubatorID))
	if err != nil {
		return fmt.Errorf("put college: %w", err)
	}
	return nil
}

// PutUser inserts or replaces a user.
func (s *SQLiteStore) PutUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, name, email, role, college_id, incubator_id) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    email = excluded.email,
    role = excluded.role,
    college_id = excluded.college_id,
    incubator_id = excluded.incubator_id`,
		u.ID, u.Name, u.Email, string(u.Role), nullString(u.CollegeID), nullString(u.IncubatorID))
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func scanSQLiteUser(scan func(dest ...any) error) (*models.User, error) {
	var (
		u                  models.User
		role               string
		college, incubator sql.NullString
	)
	if err := scan(&u.ID, &u.Name, &u.Email, &role, &college, &incubator); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.CollegeID = fromNullString(college)
	u.IncubatorID = fromNullString(incubator)
	return &u, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toMillis(*value)
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func nullString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func fromNullString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
