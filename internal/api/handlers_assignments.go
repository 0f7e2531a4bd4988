package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"coursehub/internal/course"
	"coursehub/internal/models"

	"github.com/gorilla/mux"
)

// multipartMemory is the part of a multipart form kept in memory; larger
// files spill to temporary files.
const multipartMemory = 8 << 20

// CreateAssignment handles assignment creation
// POST /assignments
func (h *Handlers) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAssignmentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.CreateAssignment(r.Context(), principal(r), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, models.CreatedResponse{ID: a.ID})
}

// GetAssignment handles assignment retrieval
// GET /assignments/{id}
func (h *Handlers) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAssignment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, a)
}

// UpdateAssignment handles partial assignment updates
// PATCH /assignments/{id}
func (h *Handlers) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateAssignmentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.UpdateAssignment(r.Context(), principal(r), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, a)
}

// DeleteAssignment handles assignment deletion
// DELETE /assignments/{id}
func (h *Handlers) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAssignment(r.Context(), principal(r), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubmissions handles submission listing
// GET /assignments/{id}/submissions?page=&studentId=
func (h *Handlers) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}
	studentID := strings.TrimSpace(r.URL.Query().Get("studentId"))

	resp, err := h.service.ListSubmissions(r.Context(), principal(r), mux.Vars(r)["id"], studentID, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// CreateSubmission accepts a multipart upload with a "file" part
// POST /assignments/{id}/submissions
func (h *Handlers) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		// Leave room for the multipart framing around the file.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorResponse(w, http.StatusRequestEntityTooLarge, models.ErrorCodeInvalidRequest, "File exceeds the maximum upload size")
			return
		}
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Request must be multipart/form-data with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeValidation, "file is required")
		return
	}
	defer file.Close()

	upload := course.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
	submission, err := h.service.CreateSubmission(r.Context(), principal(r), mux.Vars(r)["id"], upload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, submission)
}

// GradeSubmission records a grade
// PATCH /submissions/{id}
func (h *Handlers) GradeSubmission(w http.ResponseWriter, r *http.Request) {
	var req models.GradeSubmissionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	submission, err := h.service.GradeSubmission(r.Context(), principal(r), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, submission)
}

// DownloadSubmission streams a submitted file
// GET /media/submissions/{id}
func (h *Handlers) DownloadSubmission(w http.ResponseWriter, r *http.Request) {
	submission, file, err := h.service.OpenSubmissionFile(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		h.writeServiceError(w, r, course.NewInternalError("failed to stat file", err))
		return
	}

	name := submission.FileName
	if name == "" {
		name = submission.ID + filepath.Ext(submission.StoredPath)
	}
	w.Header().Set("Content-Type", downloadContentType(submission.ContentType))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(name)}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, file); err != nil {
		slog.Warn("Failed to stream submission file", "submission_id", submission.ID, "error", err)
	}
}

// scriptableTypes are media types a browser would render or execute in the
// API's origin.
var scriptableTypes = map[string]bool{
	"text/html":              true,
	"application/xhtml+xml":  true,
	"image/svg+xml":          true,
	"text/xml":               true,
	"application/xml":        true,
	"text/javascript":        true,
	"application/javascript": true,
}

// downloadContentType returns the type a stored submission is served with.
// Missing, malformed or scriptable types become application/octet-stream.
func downloadContentType(claimed string) string {
	mediaType, params, err := mime.ParseMediaType(claimed)
	if err != nil || scriptableTypes[mediaType] {
		return "application/octet-stream"
	}
	return mime.FormatMediaType(mediaType, params)
}
