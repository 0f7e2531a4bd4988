package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponse(t *testing.T) {
	before := time.Now()
	resp := NewErrorResponse("Course not found", ErrorCodeNotFound)

	assert.Equal(t, "Course not found", resp.Error)
	assert.Equal(t, ErrorCodeNotFound, resp.Code)
	assert.False(t, resp.Timestamp.Before(before))

	data, err := json.Marshal(resp.WithDetails(map[string]string{"id": "x"}))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Course not found", decoded["error"])
	assert.Equal(t, "NOT_FOUND", decoded["code"])
	assert.Equal(t, map[string]interface{}{"id": "x"}, decoded["details"])
}

func TestNewPageInfo(t *testing.T) {
	assert.Equal(t, PageInfo{Page: 1, PageSize: 10, TotalCount: 0, TotalPages: 0}, NewPageInfo(1, 10, 0))
	assert.Equal(t, PageInfo{Page: 2, PageSize: 10, TotalCount: 21, TotalPages: 3}, NewPageInfo(2, 10, 21))
	assert.Equal(t, 0, NewPageInfo(1, 0, 5).TotalPages)
}

func TestHealthCheckResponse_AddComponent(t *testing.T) {
	h := NewHealthCheckResponse(StatusHealthy)
	h.AddComponent("storage", StatusHealthy, "")
	assert.Equal(t, StatusHealthy, h.Status)

	h.AddComponent("ratelimit", StatusDegraded, "redis unreachable")
	assert.Equal(t, StatusDegraded, h.Status)

	h.AddComponent("storage", StatusUnhealthy, "closed")
	assert.Equal(t, StatusUnhealthy, h.Status)

	h.AddComponent("other", StatusDegraded, "")
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Len(t, h.Components, 3)
}

func TestUserResponse_HidesPasswordHash(t *testing.T) {
	resp := UserResponse{
		User:    User{ID: "u1", Name: "Ada", Email: "ada@example.com", PasswordHash: "$2a$secret", Role: RoleInstructor},
		Courses: []string{"c1"},
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), `"courses":["c1"]`)
	assert.Contains(t, string(data), `"role":"instructor"`)
}

func TestSubmission_JSON(t *testing.T) {
	grade := 88.0
	s := Submission{ID: "s1", AssignmentID: "a1", StudentID: "u1", Grade: &grade, File: SubmissionDownloadPath("s1"), StoredPath: "/srv/x"}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"file":"/media/submissions/s1"`)
	assert.NotContains(t, string(data), "/srv/x")

	s.Grade = nil
	data, err = json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "grade")
}

func TestFilters_Match(t *testing.T) {
	c := &Course{Subject: "CS", Number: "493", Term: "sp22"}
	assert.True(t, CourseFilter{}.Matches(c))
	assert.True(t, CourseFilter{Subject: "CS", Term: "sp22"}.Matches(c))
	assert.False(t, CourseFilter{Number: "492"}.Matches(c))

	s := &Submission{AssignmentID: "a1", StudentID: "u1"}
	assert.True(t, SubmissionFilter{AssignmentID: "a1"}.Matches(s))
	assert.False(t, SubmissionFilter{StudentID: "u2"}.Matches(s))
}
