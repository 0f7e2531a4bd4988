package api

import (
	"net/http"

	"coursehub/internal/models"

	"github.com/gorilla/mux"
)

// CreateUser registers an account
// POST /users
// Creating admin or instructor accounts requires an admin token.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.CreateUser(r.Context(), principal(r), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, models.CreatedResponse{ID: user.ID})
}

// Login exchanges credentials for a token
// POST /users/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// GetUser returns a user and their courses
// GET /users/{id}
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetUser(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}
