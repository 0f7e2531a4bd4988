package course

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"coursehub/internal/auth"
	"coursehub/internal/models"
	"coursehub/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *Service
	store  *storage.MemoryStorage
	files  *storage.FileStore
	tokens *auth.TokenManager

	admin      *auth.Principal
	instructor *auth.Principal
	other      *auth.Principal
	student    *auth.Principal
	outsider   *auth.Principal
	courseID   string
}

var fixedNow = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewMemoryStorage(storage.Config{})
	require.NoError(t, err)
	files, err := storage.NewFileStore(t.TempDir(), 64)
	require.NoError(t, err)
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	n := 0
	svc := NewService(store, files, tokens,
		WithBcryptCost(4),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%03d", n) }),
	)

	f := &fixture{svc: svc, store: store, files: files, tokens: tokens}
	root := &auth.Principal{Role: models.RoleAdmin}

	mk := func(name string, role models.Role) *auth.Principal {
		u, err := svc.CreateUser(ctx, root, &models.CreateUserRequest{
			Name: name, Email: name + "@example.com", Password: "password-" + name, Role: string(role),
		})
		require.NoError(t, err)
		return &auth.Principal{UserID: u.ID, Role: u.Role}
	}
	f.admin = mk("admin", models.RoleAdmin)
	f.instructor = mk("prof", models.RoleInstructor)
	f.other = mk("other", models.RoleInstructor)
	f.student = mk("stu", models.RoleStudent)
	f.outsider = mk("outsider", models.RoleStudent)

	course, err := svc.CreateCourse(ctx, f.admin, &models.CreateCourseRequest{
		Subject: "cs", Number: "493", Title: "Cloud", Term: "sp22", InstructorID: f.instructor.UserID,
	})
	require.NoError(t, err)
	f.courseID = course.ID
	require.NoError(t, svc.UpdateEnrollment(ctx, f.instructor, f.courseID, &models.UpdateEnrollmentRequest{Add: []string{f.student.UserID}}))
	return f
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se *ServiceError
	require.True(t, errors.As(err, &se), "expected ServiceError, got %v", err)
	return se.StatusCode
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("anyone may register a student", func(t *testing.T) {
		u, err := f.svc.CreateUser(ctx, nil, &models.CreateUserRequest{Name: "New", Email: "NEW@example.com", Password: "long-enough"})
		require.NoError(t, err)
		assert.Equal(t, models.RoleStudent, u.Role)
		assert.Equal(t, "new@example.com", u.Email)
		assert.True(t, auth.CheckPassword(u.PasswordHash, "long-enough"))
		assert.Equal(t, fixedNow, u.CreatedAt)
	})

	t.Run("privileged roles need an admin", func(t *testing.T) {
		req := &models.CreateUserRequest{Name: "X", Email: "x@example.com", Password: "long-enough", Role: "instructor"}
		_, err := f.svc.CreateUser(ctx, nil, req)
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))

		_, err = f.svc.CreateUser(ctx, f.instructor, req)
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))

		_, err = f.svc.CreateUser(ctx, f.admin, req)
		assert.NoError(t, err)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, nil, &models.CreateUserRequest{Name: "S", Email: "Stu@Example.com", Password: "long-enough"})
		assert.Equal(t, http.StatusConflict, statusOf(t, err))
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, nil, &models.CreateUserRequest{Name: "S", Email: "bad", Password: "long-enough"})
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

		_, err = f.svc.CreateUser(ctx, f.admin, &models.CreateUserRequest{Name: "S", Email: "s@example.com", Password: "long-enough", Role: "dean"})
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	})
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, &models.LoginRequest{Email: " STU@example.com", Password: "password-stu"})
	require.NoError(t, err)
	claims, err := f.tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, f.student.UserID, claims.Subject)
	assert.Equal(t, models.RoleStudent, claims.Role)

	_, err = f.svc.Login(ctx, &models.LoginRequest{Email: "stu@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	_, err = f.svc.Login(ctx, &models.LoginRequest{Email: "ghost@example.com", Password: "password-stu"})
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	_, err = f.svc.Login(ctx, &models.LoginRequest{Email: "stu@example.com"})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestGetUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	self, err := f.svc.GetUser(ctx, f.student, f.student.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{f.courseID}, self.Courses)

	prof, err := f.svc.GetUser(ctx, f.admin, f.instructor.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{f.courseID}, prof.Courses)

	_, err = f.svc.GetUser(ctx, f.outsider, f.student.UserID)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	_, err = f.svc.GetUser(ctx, nil, f.student.UserID)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	_, err = f.svc.GetUser(ctx, f.admin, "missing")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.EnsureAdmin(ctx, "", "root@example.com", "bootstrap-pass")
	require.NoError(t, err)
	assert.True(t, created)

	user, err := f.store.GetUserByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.Equal(t, "Administrator", user.Name)

	created, err = f.svc.EnsureAdmin(ctx, "Root", "root@example.com", "bootstrap-pass")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCourses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("create requires admin and an instructor", func(t *testing.T) {
		req := func(instructor string) *models.CreateCourseRequest {
			return &models.CreateCourseRequest{Subject: "MTH", Number: "251", Title: "Calc", Term: "fa22", InstructorID: instructor}
		}
		_, err := f.svc.CreateCourse(ctx, nil, req(f.instructor.UserID))
		assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
		_, err = f.svc.CreateCourse(ctx, f.instructor, req(f.instructor.UserID))
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))
		_, err = f.svc.CreateCourse(ctx, f.admin, req(f.student.UserID))
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
		_, err = f.svc.CreateCourse(ctx, f.admin, req("ghost"))
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	})

	t.Run("list pages and filters", func(t *testing.T) {
		for i := 0; i < 11; i++ {
			_, err := f.svc.CreateCourse(ctx, f.admin, &models.CreateCourseRequest{
				Subject: "MTH", Number: fmt.Sprint(100 + i), Title: "Math", Term: "fa22", InstructorID: f.other.UserID,
			})
			require.NoError(t, err)
		}

		first, err := f.svc.ListCourses(ctx, models.CourseFilter{}, 1)
		require.NoError(t, err)
		assert.Len(t, first.Courses, models.DefaultPageSize)
		assert.Equal(t, 12, first.TotalCount)
		assert.Equal(t, 2, first.TotalPages)

		second, err := f.svc.ListCourses(ctx, models.CourseFilter{}, 2)
		require.NoError(t, err)
		assert.Len(t, second.Courses, 2)

		cs, err := f.svc.ListCourses(ctx, models.CourseFilter{Subject: "CS"}, 0)
		require.NoError(t, err)
		require.Len(t, cs.Courses, 1)
		assert.Equal(t, f.courseID, cs.Courses[0].ID)
		assert.Equal(t, 1, cs.Page)
	})

	t.Run("update by instructor", func(t *testing.T) {
		title := "Cloud Application Development"
		course, err := f.svc.UpdateCourse(ctx, f.instructor, f.courseID, &models.UpdateCourseRequest{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, title, course.Title)

		_, err = f.svc.UpdateCourse(ctx, f.other, f.courseID, &models.UpdateCourseRequest{Title: &title})
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))

		reassign := f.other.UserID
		_, err = f.svc.UpdateCourse(ctx, f.instructor, f.courseID, &models.UpdateCourseRequest{InstructorID: &reassign})
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))

		_, err = f.svc.UpdateCourse(ctx, f.instructor, f.courseID, &models.UpdateCourseRequest{})
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

		_, err = f.svc.UpdateCourse(ctx, f.admin, "missing", &models.UpdateCourseRequest{Title: &title})
		assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	})

	t.Run("enrollment", func(t *testing.T) {
		err := f.svc.UpdateEnrollment(ctx, f.instructor, f.courseID, &models.UpdateEnrollmentRequest{Add: []string{f.other.UserID, "ghost"}})
		require.Error(t, err)
		var se *ServiceError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
		assert.Equal(t, "user is not a student", se.Details[f.other.UserID])
		assert.Equal(t, "user does not exist", se.Details["ghost"])

		err = f.svc.UpdateEnrollment(ctx, f.student, f.courseID, &models.UpdateEnrollmentRequest{Add: []string{f.outsider.UserID}})
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))

		require.NoError(t, f.svc.UpdateEnrollment(ctx, f.admin, f.courseID, &models.UpdateEnrollmentRequest{Add: []string{f.outsider.UserID}}))
		students, err := f.svc.CourseStudents(ctx, f.instructor, f.courseID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{f.student.UserID, f.outsider.UserID}, students)

		roster, err := f.svc.Roster(ctx, f.instructor, f.courseID)
		require.NoError(t, err)
		require.Len(t, roster, 2)
		assert.Equal(t, students[0], roster[0].ID)

		require.NoError(t, f.svc.UpdateEnrollment(ctx, f.admin, f.courseID, &models.UpdateEnrollmentRequest{Remove: []string{f.outsider.UserID}}))
		students, err = f.svc.CourseStudents(ctx, f.admin, f.courseID)
		require.NoError(t, err)
		assert.Equal(t, []string{f.student.UserID}, students)

		_, err = f.svc.CourseStudents(ctx, f.student, f.courseID)
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))
	})
}

func TestAssignmentsAndSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := fixedNow.Add(7 * 24 * time.Hour)

	_, err := f.svc.CreateAssignment(ctx, f.other, &models.CreateAssignmentRequest{CourseID: f.courseID, Title: "HW1", Points: 100, Due: due})
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	_, err = f.svc.CreateAssignment(ctx, f.admin, &models.CreateAssignmentRequest{CourseID: "ghost", Title: "HW1", Points: 100, Due: due})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	assignment, err := f.svc.CreateAssignment(ctx, f.instructor, &models.CreateAssignmentRequest{CourseID: f.courseID, Title: "HW1", Points: 100, Due: due})
	require.NoError(t, err)

	ids, err := f.svc.CourseAssignments(ctx, f.courseID)
	require.NoError(t, err)
	assert.Equal(t, []string{assignment.ID}, ids)

	points := 50
	updated, err := f.svc.UpdateAssignment(ctx, f.instructor, assignment.ID, &models.UpdateAssignmentRequest{Points: &points})
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Points)

	t.Run("only enrolled students submit", func(t *testing.T) {
		upload := func() Upload {
			return Upload{FileName: "hw1.txt", ContentType: "text/plain", Body: strings.NewReader("answer")}
		}
		_, err := f.svc.CreateSubmission(ctx, f.outsider, assignment.ID, upload())
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))
		_, err = f.svc.CreateSubmission(ctx, f.instructor, assignment.ID, upload())
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))
		_, err = f.svc.CreateSubmission(ctx, nil, assignment.ID, upload())
		assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
		_, err = f.svc.CreateSubmission(ctx, f.student, "missing", upload())
		assert.Equal(t, http.StatusNotFound, statusOf(t, err))

		big := Upload{FileName: "big.txt", Body: strings.NewReader(strings.Repeat("x", 65))}
		_, err = f.svc.CreateSubmission(ctx, f.student, assignment.ID, big)
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	})

	sub, err := f.svc.CreateSubmission(ctx, f.student, assignment.ID, Upload{FileName: "hw1.txt", ContentType: "text/plain", Body: strings.NewReader("answer")})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionDownloadPath(sub.ID), sub.File)
	assert.Equal(t, f.student.UserID, sub.StudentID)
	assert.FileExists(t, sub.StoredPath)

	t.Run("download rights", func(t *testing.T) {
		for _, p := range []*auth.Principal{f.student, f.instructor, f.admin} {
			got, file, err := f.svc.OpenSubmissionFile(ctx, p, sub.ID)
			require.NoError(t, err)
			body, err := io.ReadAll(file)
			file.Close()
			require.NoError(t, err)
			assert.Equal(t, "answer", string(body))
			assert.Equal(t, "text/plain", got.ContentType)
		}
		_, _, err := f.svc.OpenSubmissionFile(ctx, f.outsider, sub.ID)
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))
		_, _, err = f.svc.OpenSubmissionFile(ctx, nil, sub.ID)
		assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
	})

	t.Run("grading and listing", func(t *testing.T) {
		grade := 93.0
		_, err := f.svc.GradeSubmission(ctx, f.student, sub.ID, &models.GradeSubmissionRequest{Grade: &grade})
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))

		graded, err := f.svc.GradeSubmission(ctx, f.instructor, sub.ID, &models.GradeSubmissionRequest{Grade: &grade})
		require.NoError(t, err)
		assert.Equal(t, 93.0, *graded.Grade)

		list, err := f.svc.ListSubmissions(ctx, f.instructor, assignment.ID, "", 1)
		require.NoError(t, err)
		require.Len(t, list.Submissions, 1)
		assert.Equal(t, 93.0, *list.Submissions[0].Grade)
		assert.Equal(t, 1, list.TotalCount)

		none, err := f.svc.ListSubmissions(ctx, f.admin, assignment.ID, f.outsider.UserID, 1)
		require.NoError(t, err)
		assert.Empty(t, none.Submissions)

		_, err = f.svc.ListSubmissions(ctx, f.student, assignment.ID, "", 1)
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))
	})

	t.Run("delete course removes files", func(t *testing.T) {
		err := f.svc.DeleteCourse(ctx, f.instructor, f.courseID)
		assert.Equal(t, http.StatusForbidden, statusOf(t, err))

		require.NoError(t, f.svc.DeleteCourse(ctx, f.admin, f.courseID))
		_, statErr := os.Stat(sub.StoredPath)
		assert.True(t, os.IsNotExist(statErr))

		_, err = f.svc.GetAssignment(ctx, assignment.ID)
		assert.Equal(t, http.StatusNotFound, statusOf(t, err))
		_, err = f.svc.GetCourse(ctx, f.courseID)
		assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	})
}

func TestDeleteAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assignment, err := f.svc.CreateAssignment(ctx, f.instructor, &models.CreateAssignmentRequest{CourseID: f.courseID, Title: "HW", Points: 10, Due: fixedNow})
	require.NoError(t, err)
	sub, err := f.svc.CreateSubmission(ctx, f.student, assignment.ID, Upload{FileName: "a.pdf", Body: strings.NewReader("pdf")})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", sub.ContentType)

	err = f.svc.DeleteAssignment(ctx, f.other, assignment.ID)
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	require.NoError(t, f.svc.DeleteAssignment(ctx, f.instructor, assignment.ID))
	_, statErr := os.Stat(sub.StoredPath)
	assert.True(t, os.IsNotExist(statErr))

	err = f.svc.DeleteAssignment(ctx, f.instructor, assignment.ID)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestServiceError(t *testing.T) {
	inner := errors.New("disk full")
	err := NewInternalError("failed to store file", inner)
	assert.Equal(t, "failed to store file: disk full", err.Error())
	assert.True(t, errors.Is(err, inner))
	assert.Equal(t, "Course not found", NewNotFoundError("Course not found").Error())

	se := fromStorage(fmt.Errorf("wrapped: %w", storage.ErrNotFound), "Course")
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "Course not found", se.Message)
	assert.Equal(t, http.StatusConflict, fromStorage(storage.ErrConflict, "User").StatusCode)
	assert.Equal(t, http.StatusBadRequest, fromStorage(storage.ErrInvalidReference, "Course").StatusCode)
	assert.Equal(t, http.StatusInternalServerError, fromStorage(inner, "Course").StatusCode)
}
