package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"coursehub/internal/auth"
	"coursehub/internal/models"
	"coursehub/internal/storage"
)

// CreateAssignment adds an assignment to a course. Admin or the course's
// instructor.
func (s *Service) CreateAssignment(ctx context.Context, p *auth.Principal, req *models.CreateAssignmentRequest) (*models.Assignment, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	course, err := s.store.GetCourse(ctx, req.CourseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, NewValidationError(fmt.Errorf("courseId %s does not exist", req.CourseID))
	}
	if err != nil {
		return nil, fromStorage(err, "Course")
	}
	if !p.IsAdmin() && !p.Is(course.InstructorID) {
		return nil, errForbidden
	}

	assignment := req.Assignment()
	assignment.ID = s.newID()
	assignment.CreatedAt = s.now().UTC()
	assignment.UpdatedAt = assignment.CreatedAt
	if err := s.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, fromStorage(err, "Assignment")
	}

	slog.Info("assignment created", "assignment_id", assignment.ID, "course_id", assignment.CourseID)
	return assignment, nil
}

// GetAssignment returns an assignment. Public.
func (s *Service) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, fromStorage(err, "Assignment")
	}
	return assignment, nil
}

// UpdateAssignment applies a partial update. Admin or the course's
// instructor; moving an assignment also requires staff rights on the target
// course.
func (s *Service) UpdateAssignment(ctx context.Context, p *auth.Principal, id string, req *models.UpdateAssignmentRequest) (*models.Assignment, error) {
	assignment, err := s.assignmentForStaff(ctx, p, id)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}
	if req.CourseID != nil && *req.CourseID != assignment.CourseID {
		target, err := s.store.GetCourse(ctx, *req.CourseID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewValidationError(fmt.Errorf("courseId %s does not exist", *req.CourseID))
		}
		if err != nil {
			return nil, fromStorage(err, "Course")
		}
		if !p.IsAdmin() && !p.Is(target.InstructorID) {
			return nil, errForbidden
		}
	}

	req.Apply(assignment)
	assignment.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateAssignment(ctx, assignment); err != nil {
		return nil, fromStorage(err, "Assignment")
	}
	return assignment, nil
}

// DeleteAssignment removes an assignment, its submissions and their files.
// Admin or the course's instructor.
func (s *Service) DeleteAssignment(ctx context.Context, p *auth.Principal, id string) error {
	if _, err := s.assignmentForStaff(ctx, p, id); err != nil {
		return err
	}
	paths, err := s.submissionPaths(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAssignment(ctx, id); err != nil {
		return fromStorage(err, "Assignment")
	}
	s.removeFiles(paths)

	slog.Info("assignment deleted", "assignment_id", id, "files", len(paths))
	return nil
}

// ListSubmissions returns one page of an assignment's submissions,
// optionally for a single student. Admin or the course's instructor.
func (s *Service) ListSubmissions(ctx context.Context, p *auth.Principal, assignmentID, studentID string, pageNum int) (*models.ListSubmissionsResponse, error) {
	if _, err := s.assignmentForStaff(ctx, p, assignmentID); err != nil {
		return nil, err
	}
	if pageNum < 1 {
		pageNum = 1
	}
	filter := models.SubmissionFilter{AssignmentID: assignmentID, StudentID: studentID}
	filter.Offset, filter.Limit = page(pageNum)

	submissions, total, err := s.store.ListSubmissions(ctx, filter)
	if err != nil {
		return nil, fromStorage(err, "Submission")
	}
	return &models.ListSubmissionsResponse{
		Submissions: submissions,
		PageInfo:    models.NewPageInfo(pageNum, models.DefaultPageSize, total),
	}, nil
}

// CreateSubmission stores an uploaded file for an assignment. Only a student
// enrolled in the assignment's course may submit.
func (s *Service) CreateSubmission(ctx context.Context, p *auth.Principal, assignmentID string, upload Upload) (*models.Submission, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	if p.Role != models.RoleStudent {
		return nil, NewForbiddenError("Only students may submit assignments")
	}

	assignment, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, fromStorage(err, "Assignment")
	}
	enrolled, err := s.store.IsEnrolled(ctx, assignment.CourseID, p.UserID)
	if err != nil {
		return nil, fromStorage(err, "Course")
	}
	if !enrolled {
		return nil, NewForbiddenError("You are not enrolled in this course")
	}
	if upload.Body == nil {
		return nil, NewInvalidRequestError("file is required", nil)
	}

	id := s.newID()
	path, err := s.files.Save(id, upload.FileName, upload.Body)
	if err != nil {
		if errors.Is(err, storage.ErrFileTooLarge) {
			return nil, NewInvalidRequestError("File exceeds the maximum upload size", err)
		}
		return nil, NewInternalError("failed to store file", err)
	}

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	submission := &models.Submission{
		ID:           id,
		AssignmentID: assignmentID,
		StudentID:    p.UserID,
		Timestamp:    s.now().UTC(),
		File:         models.SubmissionDownloadPath(id),
		ContentType:  contentType,
		FileName:     upload.FileName,
		StoredPath:   path,
	}
	if err := s.store.CreateSubmission(ctx, submission); err != nil {
		s.removeFiles([]string{path})
		return nil, fromStorage(err, "Submission")
	}

	slog.Info("submission created", "submission_id", id, "assignment_id", assignmentID, "student_id", p.UserID)
	return submission, nil
}

// GradeSubmission records a grade. Admin or the instructor of the course the
// submission belongs to.
func (s *Service) GradeSubmission(ctx context.Context, p *auth.Principal, id string, req *models.GradeSubmissionRequest) (*models.Submission, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	submission, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, fromStorage(err, "Submission")
	}
	if _, err := s.assignmentForStaff(ctx, p, submission.AssignmentID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	submission.Grade = req.Grade
	if err := s.store.UpdateSubmission(ctx, submission); err != nil {
		return nil, fromStorage(err, "Submission")
	}
	return submission, nil
}

// OpenSubmissionFile returns a submission and its open file. Admin, the
// course's instructor or the submitting student. The caller closes the file.
func (s *Service) OpenSubmissionFile(ctx context.Context, p *auth.Principal, id string) (*models.Submission, *os.File, error) {
	if p == nil {
		return nil, nil, errAuthRequired
	}
	submission, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, nil, fromStorage(err, "Submission")
	}
	if !p.IsAdmin() && !p.Is(submission.StudentID) {
		if _, err := s.assignmentForStaff(ctx, p, submission.AssignmentID); err != nil {
			return nil, nil, err
		}
	}

	file, err := s.files.Open(submission.StoredPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, NewNotFoundError("Submission file not found")
		}
		return nil, nil, NewInternalError("failed to open file", err)
	}
	return submission, file, nil
}

// assignmentForStaff loads an assignment and checks that p is an admin or
// the instructor of its course.
func (s *Service) assignmentForStaff(ctx context.Context, p *auth.Principal, id string) (*models.Assignment, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	assignment, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, fromStorage(err, "Assignment")
	}
	if p.IsAdmin() {
		return assignment, nil
	}
	course, err := s.store.GetCourse(ctx, assignment.CourseID)
	if err != nil {
		return nil, fromStorage(err, "Course")
	}
	if !p.Is(course.InstructorID) {
		return nil, errForbidden
	}
	return assignment, nil
}

// submissionPaths lists the stored files of every submission to an assignment.
func (s *Service) submissionPaths(ctx context.Context, assignmentID string) ([]string, error) {
	submissions, _, err := s.store.ListSubmissions(ctx, models.SubmissionFilter{AssignmentID: assignmentID})
	if err != nil {
		return nil, fromStorage(err, "Submission")
	}
	paths := make([]string, 0, len(submissions))
	for _, sub := range submissions {
		if sub.StoredPath != "" {
			paths = append(paths, sub.StoredPath)
		}
	}
	return paths, nil
}

// removeFiles deletes stored files, logging failures. The records are
// already gone, so a leftover file is only wasted space.
func (s *Service) removeFiles(paths []string) {
	if s.files == nil {
		return
	}
	for _, path := range paths {
		if err := s.files.Remove(path); err != nil {
			slog.Warn("failed to remove submission file", "path", path, "error", err)
		}
	}
}
