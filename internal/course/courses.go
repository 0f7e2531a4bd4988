package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"coursehub/internal/auth"
	"coursehub/internal/models"
	"coursehub/internal/storage"
)

// ListCourses returns one page (1-based) of courses matching the filter.
func (s *Service) ListCourses(ctx context.Context, filter models.CourseFilter, pageNum int) (*models.ListCoursesResponse, error) {
	if pageNum < 1 {
		pageNum = 1
	}
	filter.Offset, filter.Limit = page(pageNum)

	courses, total, err := s.store.ListCourses(ctx, filter)
	if err != nil {
		return nil, fromStorage(err, "Course")
	}
	return &models.ListCoursesResponse{
		Courses:  courses,
		PageInfo: models.NewPageInfo(pageNum, models.DefaultPageSize, total),
	}, nil
}

// CreateCourse adds a course. Admin only.
func (s *Service) CreateCourse(ctx context.Context, p *auth.Principal, req *models.CreateCourseRequest) (*models.Course, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	if !p.IsAdmin() {
		return nil, errForbidden
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}
	if err := s.requireInstructor(ctx, req.InstructorID); err != nil {
		return nil, err
	}

	course := req.Course()
	course.ID = s.newID()
	course.CreatedAt = s.now().UTC()
	course.UpdatedAt = course.CreatedAt
	if err := s.store.CreateCourse(ctx, course); err != nil {
		return nil, fromStorage(err, "Course")
	}

	slog.Info("course created", "course_id", course.ID, "instructor_id", course.InstructorID)
	return course, nil
}

// GetCourse returns a course. Public.
func (s *Service) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, fromStorage(err, "Course")
	}
	return course, nil
}

// UpdateCourse applies a partial update. Admin or the course's instructor.
func (s *Service) UpdateCourse(ctx context.Context, p *auth.Principal, id string, req *models.UpdateCourseRequest) (*models.Course, error) {
	course, err := s.courseForStaff(ctx, p, id)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}
	if req.InstructorID != nil && *req.InstructorID != course.InstructorID {
		if !p.IsAdmin() {
			return nil, NewForbiddenError("Only an admin may reassign a course")
		}
		if err := s.requireInstructor(ctx, *req.InstructorID); err != nil {
			return nil, err
		}
	}

	req.Apply(course)
	course.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCourse(ctx, course); err != nil {
		return nil, fromStorage(err, "Course")
	}
	return course, nil
}

// DeleteCourse removes a course with its enrollments, assignments and
// submissions, then deletes the submitted files. Admin only.
func (s *Service) DeleteCourse(ctx context.Context, p *auth.Principal, id string) error {
	if p == nil {
		return errAuthRequired
	}
	if !p.IsAdmin() {
		return errForbidden
	}

	assignmentIDs, err := s.store.AssignmentsByCourse(ctx, id)
	if err != nil {
		return fromStorage(err, "Course")
	}
	var paths []string
	for _, assignmentID := range assignmentIDs {
		found, err := s.submissionPaths(ctx, assignmentID)
		if err != nil {
			return err
		}
		paths = append(paths, found...)
	}

	if err := s.store.DeleteCourse(ctx, id); err != nil {
		return fromStorage(err, "Course")
	}
	s.removeFiles(paths)

	slog.Info("course deleted", "course_id", id, "assignments", len(assignmentIDs), "files", len(paths))
	return nil
}

// CourseStudents returns the IDs of enrolled students. Admin or instructor.
func (s *Service) CourseStudents(ctx context.Context, p *auth.Principal, id string) ([]string, error) {
	if _, err := s.courseForStaff(ctx, p, id); err != nil {
		return nil, err
	}
	students, err := s.store.EnrolledStudents(ctx, id)
	if err != nil {
		return nil, fromStorage(err, "Course")
	}
	return students, nil
}

// UpdateEnrollment adds and removes students. Every added ID must belong to
// a student account. Admin or instructor.
func (s *Service) UpdateEnrollment(ctx context.Context, p *auth.Principal, id string, req *models.UpdateEnrollmentRequest) error {
	if _, err := s.courseForStaff(ctx, p, id); err != nil {
		return err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return NewValidationError(err)
	}

	invalid := map[string]string{}
	for _, studentID := range req.Add {
		user, err := s.store.GetUser(ctx, studentID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			invalid[studentID] = "user does not exist"
		case err != nil:
			return fromStorage(err, "User")
		case user.Role != models.RoleStudent:
			invalid[studentID] = "user is not a student"
		}
	}
	if len(invalid) > 0 {
		se := NewValidationError(fmt.Errorf("%d of the added IDs are not students", len(invalid)))
		se.Details = invalid
		return se
	}

	if err := s.store.UpdateEnrollment(ctx, id, req.Add, req.Remove); err != nil {
		return fromStorage(err, "Course")
	}
	slog.Info("enrollment updated", "course_id", id, "added", len(req.Add), "removed", len(req.Remove))
	return nil
}

// Roster returns the enrolled students' accounts ordered by ID. Admin or
// instructor.
func (s *Service) Roster(ctx context.Context, p *auth.Principal, id string) ([]*models.User, error) {
	studentIDs, err := s.CourseStudents(ctx, p, id)
	if err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(studentIDs))
	for _, studentID := range studentIDs {
		user, err := s.store.GetUser(ctx, studentID)
		if err != nil {
			return nil, fromStorage(err, "User")
		}
		users = append(users, user)
	}
	return users, nil
}

// CourseAssignments returns the IDs of a course's assignments. Public.
func (s *Service) CourseAssignments(ctx context.Context, id string) ([]string, error) {
	ids, err := s.store.AssignmentsByCourse(ctx, id)
	if err != nil {
		return nil, fromStorage(err, "Course")
	}
	return ids, nil
}

// courseForStaff loads a course and checks that p is an admin or its
// instructor.
func (s *Service) courseForStaff(ctx context.Context, p *auth.Principal, id string) (*models.Course, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	course, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, fromStorage(err, "Course")
	}
	if !p.IsAdmin() && !p.Is(course.InstructorID) {
		return nil, errForbidden
	}
	return course, nil
}

func (s *Service) requireInstructor(ctx context.Context, id string) error {
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return NewValidationError(fmt.Errorf("instructorId %s does not exist", id))
	}
	if err != nil {
		return fromStorage(err, "User")
	}
	if user.Role != models.RoleInstructor {
		return NewValidationError(fmt.Errorf("instructorId %s is not an instructor", id))
	}
	return nil
}
