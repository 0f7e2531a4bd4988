package api

import (
	"net/http"

	"coursehub/internal/auth"
	"coursehub/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type routeOptions struct {
	// outer run before everything else, in order, including on requests
	// that match no route.
	outer []mux.MiddlewareFunc
}

// RouteOption configures optional route behavior.
type RouteOption func(*routeOptions)

// WithRateLimiter puts the rate limiter in front of every request. It is the
// first middleware on the router and also covers 404 and 405 responses.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(o *routeOptions) {
		o.outer = append(o.outer, middleware)
	}
}

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(o *routeOptions) {
		o.outer = append(o.outer, otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" && r.URL.Path != "/metrics"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, tokens *auth.TokenManager, config *models.Config, opts ...RouteOption) *mux.Router {
	o := &routeOptions{}
	for _, opt := range opts {
		opt(o)
	}

	chain := append([]mux.MiddlewareFunc{}, o.outer...)
	if config.Server.CORS.Enabled {
		chain = append(chain, corsMiddleware(config.Server.CORS))
	}
	chain = append(chain, loggingMiddleware, recoveryMiddleware)

	router := mux.NewRouter()
	router.Use(chain...)

	// gorilla/mux skips router middleware for unmatched requests.
	router.NotFoundHandler = wrap(http.HandlerFunc(notFoundHandler), chain)
	router.MethodNotAllowedHandler = wrap(http.HandlerFunc(methodNotAllowedHandler), chain)

	// Routes that must work with a stale token.
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/users/login", handlers.Login).Methods("POST")

	api := router.PathPrefix("/").Subrouter()
	api.Use(OptionalAuth(tokens))

	api.HandleFunc("/users", handlers.CreateUser).Methods("POST")
	api.HandleFunc("/users/{id}", handlers.GetUser).Methods("GET")

	api.HandleFunc("/courses", handlers.ListCourses).Methods("GET")
	api.HandleFunc("/courses", handlers.CreateCourse).Methods("POST")
	api.HandleFunc("/courses/{id}", handlers.GetCourse).Methods("GET")
	api.HandleFunc("/courses/{id}", handlers.UpdateCourse).Methods("PATCH")
	api.HandleFunc("/courses/{id}", handlers.DeleteCourse).Methods("DELETE")
	api.HandleFunc("/courses/{id}/students", handlers.GetCourseStudents).Methods("GET")
	api.HandleFunc("/courses/{id}/students", handlers.UpdateCourseStudents).Methods("POST")
	api.HandleFunc("/courses/{id}/roster", handlers.GetCourseRoster).Methods("GET")
	api.HandleFunc("/courses/{id}/assignments", handlers.GetCourseAssignments).Methods("GET")

	api.HandleFunc("/assignments", handlers.CreateAssignment).Methods("POST")
	api.HandleFunc("/assignments/{id}", handlers.GetAssignment).Methods("GET")
	api.HandleFunc("/assignments/{id}", handlers.UpdateAssignment).Methods("PATCH")
	api.HandleFunc("/assignments/{id}", handlers.DeleteAssignment).Methods("DELETE")
	api.HandleFunc("/assignments/{id}/submissions", handlers.ListSubmissions).Methods("GET")
	api.HandleFunc("/assignments/{id}/submissions", handlers.CreateSubmission).Methods("POST")

	api.HandleFunc("/submissions/{id}", handlers.GradeSubmission).Methods("PATCH")
	api.HandleFunc("/media/submissions/{id}", handlers.DownloadSubmission).Methods("GET")

	return router
}

func wrap(h http.Handler, chain []mux.MiddlewareFunc) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

// notFoundHandler answers requests for unknown resources
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, models.NewErrorResponse(
		"Requested resource "+r.URL.RequestURI()+" does not exist", models.ErrorCodeNotFound))
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, models.NewErrorResponse("Method not allowed", models.ErrorCodeMethodNotAllowed))
}
