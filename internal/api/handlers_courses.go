package api

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"coursehub/internal/models"

	"github.com/gorilla/mux"
)

// ListCourses handles course listing
// GET /courses?page=&subject=&number=&term=
func (h *Handlers) ListCourses(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	query := r.URL.Query()
	filter := models.CourseFilter{
		Subject: strings.TrimSpace(query.Get("subject")),
		Number:  strings.TrimSpace(query.Get("number")),
		Term:    strings.TrimSpace(query.Get("term")),
	}

	resp, err := h.service.ListCourses(r.Context(), filter, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// CreateCourse handles course creation
// POST /courses
func (h *Handlers) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCourseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.CreateCourse(r.Context(), principal(r), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, models.CreatedResponse{ID: c.ID})
}

// GetCourse handles course retrieval
// GET /courses/{id}
func (h *Handlers) GetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCourse(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, c)
}

// UpdateCourse handles partial course updates
// PATCH /courses/{id}
func (h *Handlers) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateCourseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.UpdateCourse(r.Context(), principal(r), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, c)
}

// DeleteCourse handles course deletion
// DELETE /courses/{id}
func (h *Handlers) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCourse(r.Context(), principal(r), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCourseStudents lists enrolled student IDs
// GET /courses/{id}/students
func (h *Handlers) GetCourseStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.CourseStudents(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.CourseStudentsResponse{Students: students})
}

// UpdateCourseStudents adds and removes enrolled students
// POST /courses/{id}/students
func (h *Handlers) UpdateCourseStudents(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateEnrollmentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpdateEnrollment(r.Context(), principal(r), mux.Vars(r)["id"], &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCourseRoster streams the enrolled students as CSV
// GET /courses/{id}/roster
func (h *Handlers) GetCourseRoster(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	students, err := h.service.Roster(r.Context(), principal(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="roster-%s.csv"`, id))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "name", "email"})
	for _, s := range students {
		cw.Write([]string{s.ID, s.Name, s.Email})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("Failed to write roster", "course_id", id, "error", err)
	}
}

// GetCourseAssignments lists a course's assignment IDs
// GET /courses/{id}/assignments
func (h *Handlers) GetCourseAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.CourseAssignments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.CourseAssignmentsResponse{Assignments: assignments})
}
