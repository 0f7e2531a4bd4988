package observability

import (
	"context"
	"errors"
	"time"

	"coursehub/internal/models"
	"coursehub/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
// ErrNotFound is an ordinary answer and is not counted as an error.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer(scopeStorage)
	meter := otel.Meter(scopeStorage)

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

// observe runs fn inside a span and records its latency and outcome.
func (s *InstrumentedStorage) observe(ctx context.Context, operation string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	opAttr := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), opAttr)

	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, storage.ErrNotFound):
		span.SetAttributes(attribute.Bool("storage.not_found", true))
	default:
		s.errors.Add(ctx, 1, opAttr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *InstrumentedStorage) CreateUser(ctx context.Context, user *models.User) error {
	return s.observe(ctx, "CreateUser", func(ctx context.Context) error {
		return s.inner.CreateUser(ctx, user)
	}, attribute.String("user_id", user.ID), attribute.String("role", string(user.Role)))
}

func (s *InstrumentedStorage) GetUser(ctx context.Context, id string) (user *models.User, err error) {
	err = s.observe(ctx, "GetUser", func(ctx context.Context) error {
		user, err = s.inner.GetUser(ctx, id)
		return err
	}, attribute.String("user_id", id))
	return user, err
}

// GetUserByEmail does not put the address on the span.
func (s *InstrumentedStorage) GetUserByEmail(ctx context.Context, email string) (user *models.User, err error) {
	err = s.observe(ctx, "GetUserByEmail", func(ctx context.Context) error {
		user, err = s.inner.GetUserByEmail(ctx, email)
		return err
	})
	return user, err
}

func (s *InstrumentedStorage) ListCourses(ctx context.Context, filter models.CourseFilter) (courses []*models.Course, total int, err error) {
	err = s.observe(ctx, "ListCourses", func(ctx context.Context) error {
		courses, total, err = s.inner.ListCourses(ctx, filter)
		return err
	},
		attribute.String("subject", filter.Subject),
		attribute.String("term", filter.Term),
		attribute.Int("offset", filter.Offset),
		attribute.Int("limit", filter.Limit),
	)
	return courses, total, err
}

func (s *InstrumentedStorage) GetCourse(ctx context.Context, id string) (c *models.Course, err error) {
	err = s.observe(ctx, "GetCourse", func(ctx context.Context) error {
		c, err = s.inner.GetCourse(ctx, id)
		return err
	}, attribute.String("course_id", id))
	return c, err
}

func (s *InstrumentedStorage) CreateCourse(ctx context.Context, c *models.Course) error {
	return s.observe(ctx, "CreateCourse", func(ctx context.Context) error {
		return s.inner.CreateCourse(ctx, c)
	}, attribute.String("course_id", c.ID))
}

func (s *InstrumentedStorage) UpdateCourse(ctx context.Context, c *models.Course) error {
	return s.observe(ctx, "UpdateCourse", func(ctx context.Context) error {
		return s.inner.UpdateCourse(ctx, c)
	}, attribute.String("course_id", c.ID))
}

func (s *InstrumentedStorage) DeleteCourse(ctx context.Context, id string) error {
	return s.observe(ctx, "DeleteCourse", func(ctx context.Context) error {
		return s.inner.DeleteCourse(ctx, id)
	}, attribute.String("course_id", id))
}

func (s *InstrumentedStorage) CoursesByInstructor(ctx context.Context, instructorID string) (ids []string, err error) {
	err = s.observe(ctx, "CoursesByInstructor", func(ctx context.Context) error {
		ids, err = s.inner.CoursesByInstructor(ctx, instructorID)
		return err
	}, attribute.String("user_id", instructorID))
	return ids, err
}

func (s *InstrumentedStorage) CoursesByStudent(ctx context.Context, studentID string) (ids []string, err error) {
	err = s.observe(ctx, "CoursesByStudent", func(ctx context.Context) error {
		ids, err = s.inner.CoursesByStudent(ctx, studentID)
		return err
	}, attribute.String("user_id", studentID))
	return ids, err
}

func (s *InstrumentedStorage) EnrolledStudents(ctx context.Context, courseID string) (ids []string, err error) {
	err = s.observe(ctx, "EnrolledStudents", func(ctx context.Context) error {
		ids, err = s.inner.EnrolledStudents(ctx, courseID)
		return err
	}, attribute.String("course_id", courseID))
	return ids, err
}

func (s *InstrumentedStorage) UpdateEnrollment(ctx context.Context, courseID string, add, remove []string) error {
	return s.observe(ctx, "UpdateEnrollment", func(ctx context.Context) error {
		return s.inner.UpdateEnrollment(ctx, courseID, add, remove)
	},
		attribute.String("course_id", courseID),
		attribute.Int("added", len(add)),
		attribute.Int("removed", len(remove)),
	)
}

func (s *InstrumentedStorage) IsEnrolled(ctx context.Context, courseID, studentID string) (enrolled bool, err error) {
	err = s.observe(ctx, "IsEnrolled", func(ctx context.Context) error {
		enrolled, err = s.inner.IsEnrolled(ctx, courseID, studentID)
		return err
	}, attribute.String("course_id", courseID), attribute.String("user_id", studentID))
	return enrolled, err
}

func (s *InstrumentedStorage) AssignmentsByCourse(ctx context.Context, courseID string) (ids []string, err error) {
	err = s.observe(ctx, "AssignmentsByCourse", func(ctx context.Context) error {
		ids, err = s.inner.AssignmentsByCourse(ctx, courseID)
		return err
	}, attribute.String("course_id", courseID))
	return ids, err
}

func (s *InstrumentedStorage) GetAssignment(ctx context.Context, id string) (a *models.Assignment, err error) {
	err = s.observe(ctx, "GetAssignment", func(ctx context.Context) error {
		a, err = s.inner.GetAssignment(ctx, id)
		return err
	}, attribute.String("assignment_id", id))
	return a, err
}

func (s *InstrumentedStorage) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	return s.observe(ctx, "CreateAssignment", func(ctx context.Context) error {
		return s.inner.CreateAssignment(ctx, a)
	}, attribute.String("assignment_id", a.ID), attribute.String("course_id", a.CourseID))
}

func (s *InstrumentedStorage) UpdateAssignment(ctx context.Context, a *models.Assignment) error {
	return s.observe(ctx, "UpdateAssignment", func(ctx context.Context) error {
		return s.inner.UpdateAssignment(ctx, a)
	}, attribute.String("assignment_id", a.ID), attribute.String("course_id", a.CourseID))
}

func (s *InstrumentedStorage) DeleteAssignment(ctx context.Context, id string) error {
	return s.observe(ctx, "DeleteAssignment", func(ctx context.Context) error {
		return s.inner.DeleteAssignment(ctx, id)
	}, attribute.String("assignment_id", id))
}

func (s *InstrumentedStorage) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	return s.observe(ctx, "CreateSubmission", func(ctx context.Context) error {
		return s.inner.CreateSubmission(ctx, sub)
	}, attribute.String("submission_id", sub.ID), attribute.String("assignment_id", sub.AssignmentID))
}

func (s *InstrumentedStorage) GetSubmission(ctx context.Context, id string) (sub *models.Submission, err error) {
	err = s.observe(ctx, "GetSubmission", func(ctx context.Context) error {
		sub, err = s.inner.GetSubmission(ctx, id)
		return err
	}, attribute.String("submission_id", id))
	return sub, err
}

func (s *InstrumentedStorage) UpdateSubmission(ctx context.Context, sub *models.Submission) error {
	return s.observe(ctx, "UpdateSubmission", func(ctx context.Context) error {
		return s.inner.UpdateSubmission(ctx, sub)
	}, attribute.String("submission_id", sub.ID))
}

func (s *InstrumentedStorage) ListSubmissions(ctx context.Context, filter models.SubmissionFilter) (subs []*models.Submission, total int, err error) {
	err = s.observe(ctx, "ListSubmissions", func(ctx context.Context) error {
		subs, total, err = s.inner.ListSubmissions(ctx, filter)
		return err
	},
		attribute.String("assignment_id", filter.AssignmentID),
		attribute.Int("offset", filter.Offset),
		attribute.Int("limit", filter.Limit),
	)
	return subs, total, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	return s.observe(ctx, "Ping", s.inner.Ping)
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
