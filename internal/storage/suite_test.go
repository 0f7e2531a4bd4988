package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"coursehub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func testUser(id, email string, role models.Role) *models.User {
	return &models.User{
		ID:           id,
		Name:         "User " + id,
		Email:        email,
		PasswordHash: "$2a$08$hash-" + id,
		Role:         role,
		CreatedAt:    baseTime,
	}
}

func testCourse(id, subject, number, term, instructorID string, offset time.Duration) *models.Course {
	return &models.Course{
		ID:           id,
		Subject:      subject,
		Number:       number,
		Title:        subject + " " + number,
		Term:         term,
		InstructorID: instructorID,
		CreatedAt:    baseTime.Add(offset),
		UpdatedAt:    baseTime.Add(offset),
	}
}

// runStorageSuite exercises the behavior every backend must share.
func runStorageSuite(t *testing.T, newStorage func(t *testing.T) Storage) {
	ctx := context.Background()

	seed := func(t *testing.T, s Storage) {
		t.Helper()
		require.NoError(t, s.CreateUser(ctx, testUser("admin", "admin@example.com", models.RoleAdmin)))
		require.NoError(t, s.CreateUser(ctx, testUser("prof", "prof@example.com", models.RoleInstructor)))
		require.NoError(t, s.CreateUser(ctx, testUser("stu1", "stu1@example.com", models.RoleStudent)))
		require.NoError(t, s.CreateUser(ctx, testUser("stu2", "stu2@example.com", models.RoleStudent)))
	}

	t.Run("Users", func(t *testing.T) {
		s := newStorage(t)
		seed(t, s)

		user, err := s.GetUser(ctx, "prof")
		require.NoError(t, err)
		assert.Equal(t, "prof@example.com", user.Email)
		assert.Equal(t, models.RoleInstructor, user.Role)
		assert.Equal(t, "$2a$08$hash-prof", user.PasswordHash)
		assert.True(t, baseTime.Equal(user.CreatedAt))

		byEmail, err := s.GetUserByEmail(ctx, " PROF@example.com ")
		require.NoError(t, err)
		assert.Equal(t, "prof", byEmail.ID)

		err = s.CreateUser(ctx, testUser("other", "Prof@Example.com", models.RoleStudent))
		assert.True(t, errors.Is(err, ErrConflict), "got %v", err)

		_, err = s.GetUser(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = s.GetUserByEmail(ctx, "nobody@example.com")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Courses", func(t *testing.T) {
		s := newStorage(t)
		seed(t, s)

		require.NoError(t, s.CreateCourse(ctx, testCourse("c1", "CS", "493", "sp22", "prof", 0)))
		require.NoError(t, s.CreateCourse(ctx, testCourse("c2", "CS", "492", "sp22", "prof", time.Minute)))
		require.NoError(t, s.CreateCourse(ctx, testCourse("c3", "MTH", "251", "fa22", "prof", 2*time.Minute)))

		err := s.CreateCourse(ctx, testCourse("c4", "CS", "290", "sp22", "ghost", 0))
		assert.True(t, errors.Is(err, ErrInvalidReference), "got %v", err)

		all, total, err := s.ListCourses(ctx, models.CourseFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"c1", "c2", "c3"}, []string{all[0].ID, all[1].ID, all[2].ID})

		cs, total, err := s.ListCourses(ctx, models.CourseFilter{Subject: "CS", Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, cs, 1)
		assert.Equal(t, "c2", cs[0].ID)

		empty, total, err := s.ListCourses(ctx, models.CourseFilter{Offset: 10, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Empty(t, empty)

		course, err := s.GetCourse(ctx, "c1")
		require.NoError(t, err)
		course.Title = "Cloud Application Development"
		course.UpdatedAt = baseTime.Add(time.Hour)
		require.NoError(t, s.UpdateCourse(ctx, course))

		updated, err := s.GetCourse(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Cloud Application Development", updated.Title)
		assert.True(t, baseTime.Add(time.Hour).Equal(updated.UpdatedAt))

		err = s.UpdateCourse(ctx, testCourse("nope", "CS", "1", "sp22", "prof", 0))
		assert.True(t, errors.Is(err, ErrNotFound))

		taught, err := s.CoursesByInstructor(ctx, "prof")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "c2", "c3"}, taught)

		none, err := s.CoursesByInstructor(ctx, "stu1")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Enrollment", func(t *testing.T) {
		s := newStorage(t)
		seed(t, s)
		require.NoError(t, s.CreateCourse(ctx, testCourse("c1", "CS", "493", "sp22", "prof", 0)))

		require.NoError(t, s.UpdateEnrollment(ctx, "c1", []string{"stu2", "stu1"}, nil))
		// Re-adding is a no-op.
		require.NoError(t, s.UpdateEnrollment(ctx, "c1", []string{"stu1"}, []string{"absent"}))

		students, err := s.EnrolledStudents(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"stu1", "stu2"}, students)

		enrolled, err := s.IsEnrolled(ctx, "c1", "stu1")
		require.NoError(t, err)
		assert.True(t, enrolled)

		courses, err := s.CoursesByStudent(ctx, "stu2")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, courses)

		require.NoError(t, s.UpdateEnrollment(ctx, "c1", nil, []string{"stu1"}))
		enrolled, err = s.IsEnrolled(ctx, "c1", "stu1")
		require.NoError(t, err)
		assert.False(t, enrolled)

		err = s.UpdateEnrollment(ctx, "c1", []string{"ghost"}, nil)
		assert.True(t, errors.Is(err, ErrInvalidReference))

		err = s.UpdateEnrollment(ctx, "missing", []string{"stu1"}, nil)
		assert.True(t, errors.Is(err, ErrNotFound))

		_, err = s.EnrolledStudents(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("AssignmentsAndSubmissions", func(t *testing.T) {
		s := newStorage(t)
		seed(t, s)
		require.NoError(t, s.CreateCourse(ctx, testCourse("c1", "CS", "493", "sp22", "prof", 0)))

		assignment := &models.Assignment{
			ID: "a1", CourseID: "c1", Title: "HW1", Points: 100,
			Due: baseTime.Add(7 * 24 * time.Hour), CreatedAt: baseTime, UpdatedAt: baseTime,
		}
		require.NoError(t, s.CreateAssignment(ctx, assignment))

		err := s.CreateAssignment(ctx, &models.Assignment{ID: "a2", CourseID: "ghost", Title: "x", Points: 1, Due: baseTime})
		assert.True(t, errors.Is(err, ErrInvalidReference))

		ids, err := s.AssignmentsByCourse(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a1"}, ids)

		got, err := s.GetAssignment(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, 100, got.Points)
		assert.True(t, assignment.Due.Equal(got.Due))

		got.Points = 50
		require.NoError(t, s.UpdateAssignment(ctx, got))
		got, err = s.GetAssignment(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, 50, got.Points)

		for i, id := range []string{"s2", "s1"} {
			require.NoError(t, s.CreateSubmission(ctx, &models.Submission{
				ID: id, AssignmentID: "a1", StudentID: "stu1",
				Timestamp:   baseTime.Add(time.Duration(i) * time.Minute),
				File:        models.SubmissionDownloadPath(id),
				ContentType: "application/pdf", FileName: id + ".pdf", StoredPath: "/uploads/" + id,
			}))
		}
		require.NoError(t, s.CreateSubmission(ctx, &models.Submission{
			ID: "s3", AssignmentID: "a1", StudentID: "stu2", Timestamp: baseTime.Add(time.Hour),
			File: models.SubmissionDownloadPath("s3"), ContentType: "text/plain", FileName: "s3.txt", StoredPath: "/uploads/s3",
		}))

		err = s.CreateSubmission(ctx, &models.Submission{ID: "s4", AssignmentID: "ghost", StudentID: "stu1", Timestamp: baseTime})
		assert.True(t, errors.Is(err, ErrInvalidReference))

		sub, err := s.GetSubmission(ctx, "s1")
		require.NoError(t, err)
		assert.Nil(t, sub.Grade)
		assert.Equal(t, "/uploads/s1", sub.StoredPath)
		assert.Equal(t, "application/pdf", sub.ContentType)
		assert.Equal(t, "s1.pdf", sub.FileName)
		assert.Equal(t, "/media/submissions/s1", sub.File)

		grade := 91.5
		require.NoError(t, s.UpdateSubmission(ctx, &models.Submission{ID: "s1", Grade: &grade}))
		sub, err = s.GetSubmission(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, sub.Grade)
		assert.Equal(t, 91.5, *sub.Grade)
		assert.Equal(t, "/uploads/s1", sub.StoredPath)

		err = s.UpdateSubmission(ctx, &models.Submission{ID: "missing", Grade: &grade})
		assert.True(t, errors.Is(err, ErrNotFound))

		page1, total, err := s.ListSubmissions(ctx, models.SubmissionFilter{AssignmentID: "a1", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, page1, 2)
		assert.Equal(t, "s2", page1[0].ID)
		assert.Equal(t, "s1", page1[1].ID)

		mine, total, err := s.ListSubmissions(ctx, models.SubmissionFilter{AssignmentID: "a1", StudentID: "stu2"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, mine, 1)
		assert.Equal(t, "s3", mine[0].ID)

		require.NoError(t, s.DeleteAssignment(ctx, "a1"))
		_, err = s.GetSubmission(ctx, "s1")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.True(t, errors.Is(s.DeleteAssignment(ctx, "a1"), ErrNotFound))
	})

	t.Run("DeleteCourseCascades", func(t *testing.T) {
		s := newStorage(t)
		seed(t, s)
		require.NoError(t, s.CreateCourse(ctx, testCourse("c1", "CS", "493", "sp22", "prof", 0)))
		require.NoError(t, s.CreateCourse(ctx, testCourse("c2", "CS", "492", "sp22", "prof", time.Minute)))
		require.NoError(t, s.UpdateEnrollment(ctx, "c1", []string{"stu1"}, nil))
		require.NoError(t, s.UpdateEnrollment(ctx, "c2", []string{"stu1"}, nil))
		require.NoError(t, s.CreateAssignment(ctx, &models.Assignment{ID: "a1", CourseID: "c1", Title: "HW1", Points: 10, Due: baseTime}))
		require.NoError(t, s.CreateAssignment(ctx, &models.Assignment{ID: "a2", CourseID: "c2", Title: "HW1", Points: 10, Due: baseTime}))
		require.NoError(t, s.CreateSubmission(ctx, &models.Submission{ID: "s1", AssignmentID: "a1", StudentID: "stu1", Timestamp: baseTime}))

		require.NoError(t, s.DeleteCourse(ctx, "c1"))

		_, err := s.GetCourse(ctx, "c1")
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = s.GetAssignment(ctx, "a1")
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = s.GetSubmission(ctx, "s1")
		assert.True(t, errors.Is(err, ErrNotFound))

		courses, err := s.CoursesByStudent(ctx, "stu1")
		require.NoError(t, err)
		assert.Equal(t, []string{"c2"}, courses)

		_, err = s.GetAssignment(ctx, "a2")
		assert.NoError(t, err)

		assert.True(t, errors.Is(s.DeleteCourse(ctx, "c1"), ErrNotFound))
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStorage(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
