package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"coursehub/internal/models"
)

// MemoryStorage implements the Storage interface using in-memory data structures.
// This provider is ideal for development and testing. Data is lost on restart
// unless a persist hook is installed, which is how JSONStorage builds on it.
type MemoryStorage struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	emails      map[string]string // normalized email -> user ID
	courses     map[string]*models.Course
	enrollments map[string]map[string]struct{} // course ID -> student IDs
	assignments map[string]*models.Assignment
	submissions map[string]*models.Submission

	// persist runs under the write lock after every successful mutation.
	persist func() error
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return newMemoryStorage(), nil
}

func newMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:       make(map[string]*models.User),
		emails:      make(map[string]string),
		courses:     make(map[string]*models.Course),
		enrollments: make(map[string]map[string]struct{}),
		assignments: make(map[string]*models.Assignment),
		submissions: make(map[string]*models.Submission),
	}
}

// commit must be called with the write lock held.
func (m *MemoryStorage) commit() error {
	if m.persist == nil {
		return nil
	}
	if err := m.persist(); err != nil {
		return fmt.Errorf("failed to persist data: %w", err)
	}
	return nil
}

// CreateUser stores a new user
func (m *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, ErrConflict)
	}
	email := models.NormalizeEmail(user.Email)
	if _, exists := m.emails[email]; exists {
		return fmt.Errorf("email %s: %w", email, ErrConflict)
	}

	// Store a copy to prevent external modification
	userCopy := *user
	m.users[user.ID] = &userCopy
	m.emails[email] = user.ID
	return m.commit()
}

// GetUser retrieves a user by its ID
func (m *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	userCopy := *user
	return &userCopy, nil
}

// GetUserByEmail retrieves a user by email
func (m *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.emails[models.NormalizeEmail(email)]
	if !exists {
		return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
	}
	userCopy := *m.users[id]
	return &userCopy, nil
}

// ListCourses returns a page of matching courses ordered by creation time
func (m *MemoryStorage) ListCourses(ctx context.Context, filter models.CourseFilter) ([]*models.Course, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*models.Course, 0, len(m.courses))
	for _, course := range m.courses {
		if filter.Matches(course) {
			courseCopy := *course
			matches = append(matches, &courseCopy)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	return page(matches, filter.Offset, filter.Limit), len(matches), nil
}

// GetCourse retrieves a course by its ID
func (m *MemoryStorage) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	course, exists := m.courses[id]
	if !exists {
		return nil, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	courseCopy := *course
	return &courseCopy, nil
}

// CreateCourse stores a new course
func (m *MemoryStorage) CreateCourse(ctx context.Context, course *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.courses[course.ID]; exists {
		return fmt.Errorf("course %s: %w", course.ID, ErrConflict)
	}
	if _, exists := m.users[course.InstructorID]; !exists {
		return fmt.Errorf("instructor %s: %w", course.InstructorID, ErrInvalidReference)
	}

	courseCopy := *course
	m.courses[course.ID] = &courseCopy
	return m.commit()
}

// UpdateCourse replaces an existing course
func (m *MemoryStorage) UpdateCourse(ctx context.Context, course *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.courses[course.ID]; !exists {
		return fmt.Errorf("course %s: %w", course.ID, ErrNotFound)
	}
	if _, exists := m.users[course.InstructorID]; !exists {
		return fmt.Errorf("instructor %s: %w", course.InstructorID, ErrInvalidReference)
	}

	courseCopy := *course
	m.courses[course.ID] = &courseCopy
	return m.commit()
}

// DeleteCourse removes a course and everything that hangs off it
func (m *MemoryStorage) DeleteCourse(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.courses[id]; !exists {
		return fmt.Errorf("course %s: %w", id, ErrNotFound)
	}

	for assignmentID, assignment := range m.assignments {
		if assignment.CourseID == id {
			m.deleteAssignmentLocked(assignmentID)
		}
	}
	delete(m.enrollments, id)
	delete(m.courses, id)
	return m.commit()
}

// CoursesByInstructor returns IDs of courses taught by the instructor
func (m *MemoryStorage) CoursesByInstructor(ctx context.Context, instructorID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := []string{}
	for id, course := range m.courses {
		if course.InstructorID == instructorID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// CoursesByStudent returns IDs of courses the student is enrolled in
func (m *MemoryStorage) CoursesByStudent(ctx context.Context, studentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := []string{}
	for courseID, students := range m.enrollments {
		if _, enrolled := students[studentID]; enrolled {
			ids = append(ids, courseID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// EnrolledStudents returns the student IDs enrolled in a course
func (m *MemoryStorage) EnrolledStudents(ctx context.Context, courseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.courses[courseID]; !exists {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}

	ids := make([]string, 0, len(m.enrollments[courseID]))
	for studentID := range m.enrollments[courseID] {
		ids = append(ids, studentID)
	}
	sort.Strings(ids)
	return ids, nil
}

// UpdateEnrollment adds and removes students from a course
func (m *MemoryStorage) UpdateEnrollment(ctx context.Context, courseID string, add, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.courses[courseID]; !exists {
		return fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	for _, studentID := range add {
		if _, exists := m.users[studentID]; !exists {
			return fmt.Errorf("student %s: %w", studentID, ErrInvalidReference)
		}
	}

	students, ok := m.enrollments[courseID]
	if !ok {
		students = make(map[string]struct{})
		m.enrollments[courseID] = students
	}
	for _, studentID := range add {
		students[studentID] = struct{}{}
	}
	for _, studentID := range remove {
		delete(students, studentID)
	}
	if len(students) == 0 {
		delete(m.enrollments, courseID)
	}
	return m.commit()
}

// IsEnrolled reports whether the student is enrolled in the course
func (m *MemoryStorage) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, enrolled := m.enrollments[courseID][studentID]
	return enrolled, nil
}

// AssignmentsByCourse returns the IDs of a course's assignments
func (m *MemoryStorage) AssignmentsByCourse(ctx context.Context, courseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.courses[courseID]; !exists {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}

	ids := []string{}
	for id, assignment := range m.assignments {
		if assignment.CourseID == courseID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetAssignment retrieves an assignment by its ID
func (m *MemoryStorage) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	assignment, exists := m.assignments[id]
	if !exists {
		return nil, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	assignmentCopy := *assignment
	return &assignmentCopy, nil
}

// CreateAssignment stores a new assignment
func (m *MemoryStorage) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.assignments[assignment.ID]; exists {
		return fmt.Errorf("assignment %s: %w", assignment.ID, ErrConflict)
	}
	if _, exists := m.courses[assignment.CourseID]; !exists {
		return fmt.Errorf("course %s: %w", assignment.CourseID, ErrInvalidReference)
	}

	assignmentCopy := *assignment
	m.assignments[assignment.ID] = &assignmentCopy
	return m.commit()
}

// UpdateAssignment replaces an existing assignment
func (m *MemoryStorage) UpdateAssignment(ctx context.Context, assignment *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.assignments[assignment.ID]; !exists {
		return fmt.Errorf("assignment %s: %w", assignment.ID, ErrNotFound)
	}
	if _, exists := m.courses[assignment.CourseID]; !exists {
		return fmt.Errorf("course %s: %w", assignment.CourseID, ErrInvalidReference)
	}

	assignmentCopy := *assignment
	m.assignments[assignment.ID] = &assignmentCopy
	return m.commit()
}

// DeleteAssignment removes an assignment and its submissions
func (m *MemoryStorage) DeleteAssignment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.assignments[id]; !exists {
		return fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	m.deleteAssignmentLocked(id)
	return m.commit()
}

func (m *MemoryStorage) deleteAssignmentLocked(id string) {
	for submissionID, submission := range m.submissions {
		if submission.AssignmentID == id {
			delete(m.submissions, submissionID)
		}
	}
	delete(m.assignments, id)
}

// CreateSubmission stores a new submission
func (m *MemoryStorage) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.submissions[submission.ID]; exists {
		return fmt.Errorf("submission %s: %w", submission.ID, ErrConflict)
	}
	if _, exists := m.assignments[submission.AssignmentID]; !exists {
		return fmt.Errorf("assignment %s: %w", submission.AssignmentID, ErrInvalidReference)
	}
	if _, exists := m.users[submission.StudentID]; !exists {
		return fmt.Errorf("student %s: %w", submission.StudentID, ErrInvalidReference)
	}

	m.submissions[submission.ID] = copySubmission(submission)
	return m.commit()
}

// GetSubmission retrieves a submission by its ID
func (m *MemoryStorage) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	submission, exists := m.submissions[id]
	if !exists {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return copySubmission(submission), nil
}

// UpdateSubmission stores a new grade for an existing submission
func (m *MemoryStorage) UpdateSubmission(ctx context.Context, submission *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.submissions[submission.ID]
	if !exists {
		return fmt.Errorf("submission %s: %w", submission.ID, ErrNotFound)
	}
	updated := copySubmission(existing)
	updated.Grade = copySubmission(submission).Grade
	m.submissions[submission.ID] = updated
	return m.commit()
}

// ListSubmissions returns a page of matching submissions ordered by timestamp
func (m *MemoryStorage) ListSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := []*models.Submission{}
	for _, submission := range m.submissions {
		if filter.Matches(submission) {
			matches = append(matches, copySubmission(submission))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Timestamp.Equal(matches[j].Timestamp) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Timestamp.Before(matches[j].Timestamp)
	})

	return page(matches, filter.Offset, filter.Limit), len(matches), nil
}

// copySubmission copies a submission including its grade pointer
func copySubmission(s *models.Submission) *models.Submission {
	c := *s
	if s.Grade != nil {
		grade := *s.Grade
		c.Grade = &grade
	}
	return &c
}

// Ping verifies the storage backend is reachable and operational.
func (m *MemoryStorage) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryStorage) Close() error {
	return nil
}
