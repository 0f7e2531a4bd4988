// Package models - API request types and input validation.
// Every request type offers Normalize (trim, lowercase where relevant) and
// Validate (required fields and ranges). Handlers call Normalize first.
package models

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"
)

// DefaultPageSize is the number of items returned per page by list endpoints.
const DefaultPageSize = 10

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateCourseRequest struct {
	Subject      string `json:"subject"`
	Number       string `json:"number"`
	Title        string `json:"title"`
	Term         string `json:"term"`
	InstructorID string `json:"instructorId"`
}

// UpdateCourseRequest is a partial update; nil fields are left unchanged.
type UpdateCourseRequest struct {
	Subject      *string `json:"subject,omitempty"`
	Number       *string `json:"number,omitempty"`
	Title        *string `json:"title,omitempty"`
	Term         *string `json:"term,omitempty"`
	InstructorID *string `json:"instructorId,omitempty"`
}

// UpdateEnrollmentRequest adds and removes students from a course roster.
type UpdateEnrollmentRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

type CreateAssignmentRequest struct {
	CourseID string    `json:"courseId"`
	Title    string    `json:"title"`
	Points   int       `json:"points"`
	Due      time.Time `json:"due"`
}

// UpdateAssignmentRequest is a partial update; nil fields are left unchanged.
type UpdateAssignmentRequest struct {
	CourseID *string    `json:"courseId,omitempty"`
	Title    *string    `json:"title,omitempty"`
	Points   *int       `json:"points,omitempty"`
	Due      *time.Time `json:"due,omitempty"`
}

type GradeSubmissionRequest struct {
	Grade *float64 `json:"grade"`
}

func (r *CreateUserRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

func (r *CreateUserRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(r.Password) > 72 {
		return errors.New("password must be at most 72 bytes")
	}
	if _, err := ParseRole(r.Role); err != nil {
		return err
	}
	return nil
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return errors.New("email and password are required")
	}
	return nil
}

func (r *CreateCourseRequest) Normalize() {
	r.Subject = strings.ToUpper(strings.TrimSpace(r.Subject))
	r.Number = strings.TrimSpace(r.Number)
	r.Title = strings.TrimSpace(r.Title)
	r.Term = strings.ToLower(strings.TrimSpace(r.Term))
	r.InstructorID = strings.TrimSpace(r.InstructorID)
}

func (r *CreateCourseRequest) Validate() error {
	return validateRequired(map[string]string{
		"subject":      r.Subject,
		"number":       r.Number,
		"title":        r.Title,
		"term":         r.Term,
		"instructorId": r.InstructorID,
	})
}

// Course builds a new course from the request.
func (r *CreateCourseRequest) Course() *Course {
	return &Course{
		Subject:      r.Subject,
		Number:       r.Number,
		Title:        r.Title,
		Term:         r.Term,
		InstructorID: r.InstructorID,
	}
}

func (r *UpdateCourseRequest) Normalize() {
	trimPtr(r.Subject, strings.ToUpper)
	trimPtr(r.Number, nil)
	trimPtr(r.Title, nil)
	trimPtr(r.Term, strings.ToLower)
	trimPtr(r.InstructorID, nil)
}

func (r *UpdateCourseRequest) Validate() error {
	if r.Subject == nil && r.Number == nil && r.Title == nil && r.Term == nil && r.InstructorID == nil {
		return errors.New("at least one field must be provided")
	}
	for name, v := range map[string]*string{
		"subject": r.Subject, "number": r.Number, "title": r.Title,
		"term": r.Term, "instructorId": r.InstructorID,
	} {
		if v != nil && *v == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}
	return nil
}

// Apply copies the set fields onto c.
func (r *UpdateCourseRequest) Apply(c *Course) {
	if r.Subject != nil {
		c.Subject = *r.Subject
	}
	if r.Number != nil {
		c.Number = *r.Number
	}
	if r.Title != nil {
		c.Title = *r.Title
	}
	if r.Term != nil {
		c.Term = *r.Term
	}
	if r.InstructorID != nil {
		c.InstructorID = *r.InstructorID
	}
}

func (r *UpdateEnrollmentRequest) Normalize() {
	r.Add = dedupe(r.Add)
	r.Remove = dedupe(r.Remove)
}

func (r *UpdateEnrollmentRequest) Validate() error {
	if len(r.Add) == 0 && len(r.Remove) == 0 {
		return errors.New("add or remove must list at least one student")
	}
	return nil
}

func (r *CreateAssignmentRequest) Normalize() {
	r.CourseID = strings.TrimSpace(r.CourseID)
	r.Title = strings.TrimSpace(r.Title)
}

func (r *CreateAssignmentRequest) Validate() error {
	if err := validateRequired(map[string]string{"courseId": r.CourseID, "title": r.Title}); err != nil {
		return err
	}
	if r.Points <= 0 {
		return errors.New("points must be positive")
	}
	if r.Due.IsZero() {
		return errors.New("due is required")
	}
	return nil
}

// Assignment builds a new assignment from the request.
func (r *CreateAssignmentRequest) Assignment() *Assignment {
	return &Assignment{
		CourseID: r.CourseID,
		Title:    r.Title,
		Points:   r.Points,
		Due:      r.Due.UTC(),
	}
}

func (r *UpdateAssignmentRequest) Normalize() {
	trimPtr(r.CourseID, nil)
	trimPtr(r.Title, nil)
}

func (r *UpdateAssignmentRequest) Validate() error {
	if r.CourseID == nil && r.Title == nil && r.Points == nil && r.Due == nil {
		return errors.New("at least one field must be provided")
	}
	if r.CourseID != nil && *r.CourseID == "" {
		return errors.New("courseId cannot be empty")
	}
	if r.Title != nil && *r.Title == "" {
		return errors.New("title cannot be empty")
	}
	if r.Points != nil && *r.Points <= 0 {
		return errors.New("points must be positive")
	}
	if r.Due != nil && r.Due.IsZero() {
		return errors.New("due cannot be empty")
	}
	return nil
}

// Apply copies the set fields onto a.
func (r *UpdateAssignmentRequest) Apply(a *Assignment) {
	if r.CourseID != nil {
		a.CourseID = *r.CourseID
	}
	if r.Title != nil {
		a.Title = *r.Title
	}
	if r.Points != nil {
		a.Points = *r.Points
	}
	if r.Due != nil {
		a.Due = r.Due.UTC()
	}
}

func (r *GradeSubmissionRequest) Validate() error {
	if r.Grade == nil {
		return errors.New("grade is required")
	}
	if *r.Grade < 0 {
		return errors.New("grade cannot be negative")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email: %s", email)
	}
	return nil
}

func validateRequired(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
}

func trimPtr(s *string, transform func(string) string) {
	if s == nil {
		return
	}
	*s = strings.TrimSpace(*s)
	if transform != nil {
		*s = transform(*s)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
