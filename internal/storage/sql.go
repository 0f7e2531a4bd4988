package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"coursehub/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name     string
	driver   string
	numbered bool // $1 placeholders instead of ?
}

var (
	sqliteDialect   = dialect{name: models.StorageTypeSQLite, driver: "sqlite"}
	postgresDialect = dialect{name: models.StorageTypePostgres, driver: "pgx", numbered: true}
)

// schema is portable between SQLite and PostgreSQL. Timestamps are stored as
// fixed-width UTC text (see formatDBTime).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		created_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id            TEXT PRIMARY KEY,
		subject       TEXT NOT NULL,
		course_number TEXT NOT NULL,
		title         TEXT NOT NULL,
		term          TEXT NOT NULL,
		instructor_id TEXT NOT NULL REFERENCES users(id),
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_courses_instructor ON courses(instructor_id)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		course_id  TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		student_id TEXT NOT NULL REFERENCES users(id),
		PRIMARY KEY (course_id, student_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id         TEXT PRIMARY KEY,
		course_id  TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		title      TEXT NOT NULL,
		points     INTEGER NOT NULL,
		due        TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_course ON assignments(course_id)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id            TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
		student_id    TEXT NOT NULL REFERENCES users(id),
		submitted_at  TEXT NOT NULL,
		grade         DOUBLE PRECISION,
		content_type  TEXT NOT NULL,
		file_name     TEXT NOT NULL,
		stored_path   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_assignment ON submissions(assignment_id)`,
}

const (
	userColumns       = "id, name, email, password_hash, role, created_at"
	courseColumns     = "id, subject, course_number, title, term, instructor_id, created_at, updated_at"
	assignmentColumns = "id, course_id, title, points, due, created_at, updated_at"
	submissionColumns = "id, assignment_id, student_id, submitted_at, grade, content_type, file_name, stored_path"
)

// SQLStorage implements the Storage interface over database/sql. The same
// queries serve SQLite (modernc.org/sqlite) and PostgreSQL (pgx stdlib).
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// openSQLStorage opens the database, applies pool settings and creates the
// schema.
func openSQLStorage(d dialect, config Config) (*SQLStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for %s storage", d.name)
	}

	db, err := sql.Open(d.driver, config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}
	if d == sqliteDialect {
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStorage{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStorage) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// q adapts a '?' query to the dialect.
func (s *SQLStorage) q(query string) string {
	return rebind(query, s.dialect.numbered)
}

func (s *SQLStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// exists checks for a row by primary key. table is always a package constant.
func (s *SQLStorage) exists(ctx context.Context, db querier, table, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, s.q("SELECT 1 FROM "+table+" WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s %s: %w", table, id, err)
	}
	return true, nil
}

// isUniqueViolation recognizes duplicate-key errors from both drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser stores a new user
func (s *SQLStorage) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		s.q("INSERT INTO users ("+userColumns+") VALUES ("+placeholders(6)+")"),
		user.ID, user.Name, models.NormalizeEmail(user.Email), user.PasswordHash, string(user.Role), formatDBTime(user.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by its ID
func (s *SQLStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (s *SQLStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE email = ?"), models.NormalizeEmail(email))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListCourses returns a page of matching courses ordered by creation time
func (s *SQLStorage) ListCourses(ctx context.Context, filter models.CourseFilter) ([]*models.Course, int, error) {
	var conds []string
	var args []any
	if filter.Subject != "" {
		conds = append(conds, "subject = ?")
		args = append(args, filter.Subject)
	}
	if filter.Number != "" {
		conds = append(conds, "course_number = ?")
		args = append(args, filter.Number)
	}
	if filter.Term != "" {
		conds = append(conds, "term = ?")
		args = append(args, filter.Term)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM courses"+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count courses: %w", err)
	}

	query, args := withPaging("SELECT "+courseColumns+" FROM courses"+where+" ORDER BY created_at, id", args, filter.Offset, filter.Limit)
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	courses := []*models.Course{}
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list courses: %w", err)
	}
	return courses, total, nil
}

// GetCourse retrieves a course by its ID
func (s *SQLStorage) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+courseColumns+" FROM courses WHERE id = ?"), id)
	course, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return course, nil
}

// CreateCourse stores a new course
func (s *SQLStorage) CreateCourse(ctx context.Context, course *models.Course) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "users", course.InstructorID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("instructor %s: %w", course.InstructorID, ErrInvalidReference)
		}

		_, err = tx.ExecContext(ctx,
			s.q("INSERT INTO courses ("+courseColumns+") VALUES ("+placeholders(8)+")"),
			course.ID, course.Subject, course.Number, course.Title, course.Term, course.InstructorID,
			formatDBTime(course.CreatedAt), formatDBTime(course.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("course %s: %w", course.ID, ErrConflict)
			}
			return fmt.Errorf("failed to create course: %w", err)
		}
		return nil
	})
}

// UpdateCourse replaces an existing course
func (s *SQLStorage) UpdateCourse(ctx context.Context, course *models.Course) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "users", course.InstructorID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("instructor %s: %w", course.InstructorID, ErrInvalidReference)
		}

		res, err := tx.ExecContext(ctx,
			s.q("UPDATE courses SET subject = ?, course_number = ?, title = ?, term = ?, instructor_id = ?, updated_at = ? WHERE id = ?"),
			course.Subject, course.Number, course.Title, course.Term, course.InstructorID, formatDBTime(course.UpdatedAt), course.ID)
		if err != nil {
			return fmt.Errorf("failed to update course: %w", err)
		}
		return expectAffected(res, "course", course.ID)
	})
}

// DeleteCourse removes a course and everything that hangs off it
func (s *SQLStorage) DeleteCourse(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			"DELETE FROM submissions WHERE assignment_id IN (SELECT id FROM assignments WHERE course_id = ?)",
			"DELETE FROM assignments WHERE course_id = ?",
			"DELETE FROM enrollments WHERE course_id = ?",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, s.q(stmt), id); err != nil {
				return fmt.Errorf("failed to delete course dependents: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, s.q("DELETE FROM courses WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete course: %w", err)
		}
		return expectAffected(res, "course", id)
	})
}

// CoursesByInstructor returns IDs of courses taught by the instructor
func (s *SQLStorage) CoursesByInstructor(ctx context.Context, instructorID string) ([]string, error) {
	return s.ids(ctx, "SELECT id FROM courses WHERE instructor_id = ? ORDER BY id", instructorID)
}

// CoursesByStudent returns IDs of courses the student is enrolled in
func (s *SQLStorage) CoursesByStudent(ctx context.Context, studentID string) ([]string, error) {
	return s.ids(ctx, "SELECT course_id FROM enrollments WHERE student_id = ? ORDER BY course_id", studentID)
}

// EnrolledStudents returns the student IDs enrolled in a course
func (s *SQLStorage) EnrolledStudents(ctx context.Context, courseID string) ([]string, error) {
	ok, err := s.exists(ctx, s.db, "courses", courseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	return s.ids(ctx, "SELECT student_id FROM enrollments WHERE course_id = ? ORDER BY student_id", courseID)
}

// UpdateEnrollment adds and removes students from a course
func (s *SQLStorage) UpdateEnrollment(ctx context.Context, courseID string, add, remove []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "courses", courseID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("course %s: %w", courseID, ErrNotFound)
		}

		for _, studentID := range add {
			ok, err := s.exists(ctx, tx, "users", studentID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("student %s: %w", studentID, ErrInvalidReference)
			}
			if _, err := tx.ExecContext(ctx,
				s.q("INSERT INTO enrollments (course_id, student_id) VALUES (?, ?) ON CONFLICT DO NOTHING"),
				courseID, studentID); err != nil {
				return fmt.Errorf("failed to enroll student %s: %w", studentID, err)
			}
		}
		for _, studentID := range remove {
			if _, err := tx.ExecContext(ctx,
				s.q("DELETE FROM enrollments WHERE course_id = ? AND student_id = ?"),
				courseID, studentID); err != nil {
				return fmt.Errorf("failed to unenroll student %s: %w", studentID, err)
			}
		}
		return nil
	})
}

// IsEnrolled reports whether the student is enrolled in the course
func (s *SQLStorage) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT 1 FROM enrollments WHERE course_id = ? AND student_id = ?"), courseID, studentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return true, nil
}

// AssignmentsByCourse returns the IDs of a course's assignments
func (s *SQLStorage) AssignmentsByCourse(ctx context.Context, courseID string) ([]string, error) {
	ok, err := s.exists(ctx, s.db, "courses", courseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	return s.ids(ctx, "SELECT id FROM assignments WHERE course_id = ? ORDER BY id", courseID)
}

// GetAssignment retrieves an assignment by its ID
func (s *SQLStorage) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+assignmentColumns+" FROM assignments WHERE id = ?"), id)
	assignment, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return assignment, nil
}

// CreateAssignment stores a new assignment
func (s *SQLStorage) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "courses", assignment.CourseID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("course %s: %w", assignment.CourseID, ErrInvalidReference)
		}

		_, err = tx.ExecContext(ctx,
			s.q("INSERT INTO assignments ("+assignmentColumns+") VALUES ("+placeholders(7)+")"),
			assignment.ID, assignment.CourseID, assignment.Title, assignment.Points,
			formatDBTime(assignment.Due), formatDBTime(assignment.CreatedAt), formatDBTime(assignment.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("assignment %s: %w", assignment.ID, ErrConflict)
			}
			return fmt.Errorf("failed to create assignment: %w", err)
		}
		return nil
	})
}

// UpdateAssignment replaces an existing assignment
func (s *SQLStorage) UpdateAssignment(ctx context.Context, assignment *models.Assignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "courses", assignment.CourseID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("course %s: %w", assignment.CourseID, ErrInvalidReference)
		}

		res, err := tx.ExecContext(ctx,
			s.q("UPDATE assignments SET course_id = ?, title = ?, points = ?, due = ?, updated_at = ? WHERE id = ?"),
			assignment.CourseID, assignment.Title, assignment.Points,
			formatDBTime(assignment.Due), formatDBTime(assignment.UpdatedAt), assignment.ID)
		if err != nil {
			return fmt.Errorf("failed to update assignment: %w", err)
		}
		return expectAffected(res, "assignment", assignment.ID)
	})
}

// DeleteAssignment removes an assignment and its submissions
func (s *SQLStorage) DeleteAssignment(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM submissions WHERE assignment_id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete submissions: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM assignments WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete assignment: %w", err)
		}
		return expectAffected(res, "assignment", id)
	})
}

// CreateSubmission stores a new submission
func (s *SQLStorage) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "assignments", submission.AssignmentID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("assignment %s: %w", submission.AssignmentID, ErrInvalidReference)
		}
		ok, err = s.exists(ctx, tx, "users", submission.StudentID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("student %s: %w", submission.StudentID, ErrInvalidReference)
		}

		_, err = tx.ExecContext(ctx,
			s.q("INSERT INTO submissions ("+submissionColumns+") VALUES ("+placeholders(8)+")"),
			submission.ID, submission.AssignmentID, submission.StudentID, formatDBTime(submission.Timestamp),
			gradeToNull(submission.Grade), submission.ContentType, submission.FileName, submission.StoredPath)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("submission %s: %w", submission.ID, ErrConflict)
			}
			return fmt.Errorf("failed to create submission: %w", err)
		}
		return nil
	})
}

// GetSubmission retrieves a submission by its ID
func (s *SQLStorage) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+submissionColumns+" FROM submissions WHERE id = ?"), id)
	submission, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return submission, nil
}

// UpdateSubmission stores a new grade for an existing submission
func (s *SQLStorage) UpdateSubmission(ctx context.Context, submission *models.Submission) error {
	res, err := s.db.ExecContext(ctx, s.q("UPDATE submissions SET grade = ? WHERE id = ?"),
		gradeToNull(submission.Grade), submission.ID)
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	return expectAffected(res, "submission", submission.ID)
}

// ListSubmissions returns a page of matching submissions ordered by timestamp
func (s *SQLStorage) ListSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, int, error) {
	var conds []string
	var args []any
	if filter.AssignmentID != "" {
		conds = append(conds, "assignment_id = ?")
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM submissions"+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	query, args := withPaging("SELECT "+submissionColumns+" FROM submissions"+where+" ORDER BY submitted_at, id", args, filter.Offset, filter.Limit)
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	submissions := []*models.Submission{}
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, total, nil
}

// Ping verifies the database is reachable.
func (s *SQLStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", s.dialect.name, err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// withPaging appends LIMIT/OFFSET. Both dialects require LIMIT before OFFSET.
func withPaging(query string, args []any, offset, limit int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return query, args
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}
	if offset < 0 {
		offset = 0
	}
	return query + " LIMIT ? OFFSET ?", append(args, limit, offset)
}

func expectAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var role, created string
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &created); err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	createdAt, err := parseDBTime(created)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = createdAt
	return &user, nil
}

func scanCourse(row rowScanner) (*models.Course, error) {
	var course models.Course
	var created, updated string
	if err := row.Scan(&course.ID, &course.Subject, &course.Number, &course.Title, &course.Term,
		&course.InstructorID, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if course.CreatedAt, err = parseDBTime(created); err != nil {
		return nil, err
	}
	if course.UpdatedAt, err = parseDBTime(updated); err != nil {
		return nil, err
	}
	return &course, nil
}

func scanAssignment(row rowScanner) (*models.Assignment, error) {
	var assignment models.Assignment
	var due, created, updated string
	if err := row.Scan(&assignment.ID, &assignment.CourseID, &assignment.Title, &assignment.Points,
		&due, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if assignment.Due, err = parseDBTime(due); err != nil {
		return nil, err
	}
	if assignment.CreatedAt, err = parseDBTime(created); err != nil {
		return nil, err
	}
	if assignment.UpdatedAt, err = parseDBTime(updated); err != nil {
		return nil, err
	}
	return &assignment, nil
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var submission models.Submission
	var submitted string
	var grade sql.NullFloat64
	if err := row.Scan(&submission.ID, &submission.AssignmentID, &submission.StudentID, &submitted,
		&grade, &submission.ContentType, &submission.FileName, &submission.StoredPath); err != nil {
		return nil, err
	}
	ts, err := parseDBTime(submitted)
	if err != nil {
		return nil, err
	}
	submission.Timestamp = ts
	submission.Grade = gradeFromNull(grade)
	submission.File = models.SubmissionDownloadPath(submission.ID)
	return &submission, nil
}
