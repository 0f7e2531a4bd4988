// Package models - Courses, assignments and submissions.
package models

import (
	"time"
)

// Course is a single offering of a subject in a term, taught by one instructor.
type Course struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Number       string    `json:"number"`
	Title        string    `json:"title"`
	Term         string    `json:"term"`
	InstructorID string    `json:"instructorId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CourseFilter narrows ListCourses. Empty fields match everything.
type CourseFilter struct {
	Subject string
	Number  string
	Term    string
	Offset  int
	Limit   int
}

// Matches reports whether c passes the filter's field conditions.
func (f CourseFilter) Matches(c *Course) bool {
	if f.Subject != "" && c.Subject != f.Subject {
		return false
	}
	if f.Number != "" && c.Number != f.Number {
		return false
	}
	if f.Term != "" && c.Term != f.Term {
		return false
	}
	return true
}

// Assignment belongs to a course.
type Assignment struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	Title     string    `json:"title"`
	Points    int       `json:"points"`
	Due       time.Time `json:"due"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Submission is a student's uploaded file for an assignment. Grade stays nil
// until an instructor grades it.
type Submission struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignmentId"`
	StudentID    string    `json:"studentId"`
	Timestamp    time.Time `json:"timestamp"`
	Grade        *float64  `json:"grade,omitempty"`
	File         string    `json:"file"`
	ContentType  string    `json:"-"`
	FileName     string    `json:"-"`
	StoredPath   string    `json:"-"`
}

// SubmissionFilter narrows ListSubmissions.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
	Offset       int
	Limit        int
}

// Matches reports whether s passes the filter's field conditions.
func (f SubmissionFilter) Matches(s *Submission) bool {
	if f.AssignmentID != "" && s.AssignmentID != f.AssignmentID {
		return false
	}
	if f.StudentID != "" && s.StudentID != f.StudentID {
		return false
	}
	return true
}

// SubmissionDownloadPath is the media URL a submission's file is served from.
func SubmissionDownloadPath(id string) string {
	return "/media/submissions/" + id
}
