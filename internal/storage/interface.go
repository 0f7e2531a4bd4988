package storage

import (
	"context"
	"time"

	"coursehub/internal/models"
)

// Storage defines persistence for users, courses, enrollments, assignments
// and submissions. Every backend returns ErrNotFound, ErrConflict and
// ErrInvalidReference (wrapped) so callers can branch with errors.Is.
type Storage interface {
	// CreateUser stores a new user. A duplicate email yields ErrConflict.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, id string) (*models.User, error)

	// GetUserByEmail retrieves a user by normalized email
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// ListCourses returns one page of courses matching the filter and the
	// total number of matches. A zero Limit returns every match.
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]*models.Course, int, error)

	GetCourse(ctx context.Context, id string) (*models.Course, error)

	// CreateCourse stores a new course. The instructor must exist.
	CreateCourse(ctx context.Context, course *models.Course) error

	UpdateCourse(ctx context.Context, course *models.Course) error

	// DeleteCourse removes a course with its enrollments, assignments and
	// their submissions.
	DeleteCourse(ctx context.Context, id string) error

	// CoursesByInstructor returns the IDs of courses taught by a user
	CoursesByInstructor(ctx context.Context, instructorID string) ([]string, error)

	// CoursesByStudent returns the IDs of courses a user is enrolled in
	CoursesByStudent(ctx context.Context, studentID string) ([]string, error)

	// EnrolledStudents returns the IDs of students enrolled in a course
	EnrolledStudents(ctx context.Context, courseID string) ([]string, error)

	// UpdateEnrollment adds and removes students in one step. Adding an
	// enrolled student or removing an absent one is a no-op.
	UpdateEnrollment(ctx context.Context, courseID string, add, remove []string) error

	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)

	// AssignmentsByCourse returns the IDs of a course's assignments
	AssignmentsByCourse(ctx context.Context, courseID string) ([]string, error)

	GetAssignment(ctx context.Context, id string) (*models.Assignment, error)
	CreateAssignment(ctx context.Context, assignment *models.Assignment) error
	UpdateAssignment(ctx context.Context, assignment *models.Assignment) error

	// DeleteAssignment removes an assignment and its submissions
	DeleteAssignment(ctx context.Context, id string) error

	CreateSubmission(ctx context.Context, submission *models.Submission) error
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)

	// UpdateSubmission replaces the grade of an existing submission
	UpdateSubmission(ctx context.Context, submission *models.Submission) error

	// ListSubmissions returns one page of submissions ordered by timestamp
	// and the total number of matches.
	ListSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, int, error)

	// Ping verifies the storage backend is reachable and operational.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (json, memory, sqlite, postgres)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// Connection pool tuning for database backends. Zero keeps the
	// database/sql default.
	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time,omitempty" yaml:"conn_max_idle_time,omitempty"`
}

// page applies offset and limit to a slice that is already filtered and
// ordered. A zero limit keeps everything after offset.
func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
