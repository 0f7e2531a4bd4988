// Package course implements the course-management operations: accounts,
// courses and enrollment, assignments and submissions, with the access rules
// for each role.
package course

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"coursehub/internal/auth"
	"coursehub/internal/models"
	"coursehub/internal/storage"

	"github.com/google/uuid"
)

// Service handles course-management business logic on top of a storage
// backend and an upload directory.
type Service struct {
	store      storage.Storage
	files      *storage.FileStore
	tokens     *auth.TokenManager
	bcryptCost int
	now        func() time.Time
	newID      func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithBcryptCost sets the cost used when hashing new passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a new course service
func NewService(store storage.Storage, files *storage.FileStore, tokens *auth.TokenManager, opts ...Option) *Service {
	s := &Service{
		store:      store,
		files:      files,
		tokens:     tokens,
		bcryptCost: 10,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser registers an account. Only an admin may create admin or
// instructor accounts; anyone may register a student.
func (s *Service) CreateUser(ctx context.Context, p *auth.Principal, req *models.CreateUserRequest) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, NewValidationError(err)
	}
	if role.Privileged() && !p.IsAdmin() {
		return nil, NewForbiddenError("Only an admin may create admin or instructor accounts")
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, NewInternalError("failed to hash password", err)
	}

	user := &models.User{
		ID:           s.newID(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, NewConflictError("A user with this email already exists")
		}
		return nil, fromStorage(err, "User")
	}

	slog.Info("user created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fromStorage(err, "User")
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, NewUnauthorizedError("Invalid credentials")
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, NewInternalError("failed to issue token", err)
	}
	return &models.LoginResponse{Token: token, ExpiresAt: expiresAt}, nil
}

// GetUser returns a user with the courses they teach (instructors) or take
// (students). Only the user themself or an admin may look.
func (s *Service) GetUser(ctx context.Context, p *auth.Principal, id string) (*models.UserResponse, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	if !p.Is(id) && !p.IsAdmin() {
		return nil, errForbidden
	}

	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fromStorage(err, "User")
	}

	resp := &models.UserResponse{User: *user}
	switch user.Role {
	case models.RoleInstructor:
		resp.Courses, err = s.store.CoursesByInstructor(ctx, id)
	case models.RoleStudent:
		resp.Courses, err = s.store.CoursesByStudent(ctx, id)
	}
	if err != nil {
		return nil, fromStorage(err, "User")
	}
	return resp, nil
}

// EnsureAdmin creates an admin account with the given credentials unless a
// user with that email already exists. It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}

	if name == "" {
		name = "Administrator"
	}
	req := &models.CreateUserRequest{Name: name, Email: email, Password: password, Role: string(models.RoleAdmin)}
	bootstrap := &auth.Principal{Role: models.RoleAdmin}
	if _, err := s.CreateUser(ctx, bootstrap, req); err != nil {
		var se *ServiceError
		if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Upload is a submitted file as received by the HTTP layer.
type Upload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// page converts a 1-based page number into a storage offset and limit.
func page(n int) (offset, limit int) {
	if n < 1 {
		n = 1
	}
	return (n - 1) * models.DefaultPageSize, models.DefaultPageSize
}
