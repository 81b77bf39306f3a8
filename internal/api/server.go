package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"handraise/internal/metrics"
	"handraise/internal/questions"
	"handraise/internal/roster"
	"handraise/internal/session"
	"handraise/internal/stats"
	"handraise/internal/websocket"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	GetClassConnections(classCode string) []*websocket.Connection
	GetStats() map[string]int
	ClassClosed(classCode string)
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	store     interfaces.DocumentStore
	sessions  *session.Manager
	ledger    *roster.Ledger
	questions *questions.Queue
	stats     *stats.Aggregator
	registry  Registry

	websocket http.Handler
	limiter   *RateLimiter
	validate  *validator.Validate
	started   time.Time
	router    chi.Router
}

// Option configures optional parts of a Server.
type Option func(*Server)

// WithWebSocket mounts the observer endpoint on /ws.
func WithWebSocket(handler http.Handler) Option {
	return func(s *Server) { s.websocket = handler }
}

// WithRateLimiter replaces the default limiter of write routes.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(s *Server) { s.limiter = limiter }
}

// WithAggregator replaces the statistics aggregator built from the store.
func WithAggregator(aggregator *stats.Aggregator) Option {
	return func(s *Server) { s.stats = aggregator }
}

// NewServer wires the managers into a chi router.
func NewServer(store interfaces.DocumentStore, sessions *session.Manager, ledger *roster.Ledger, queue *questions.Queue, registry Registry, opts ...Option) *Server {
	s := &Server{
		store:     store,
		sessions:  sessions,
		ledger:    ledger,
		questions: queue,
		registry:  registry,
		validate:  validator.New(),
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = stats.NewAggregator(store)
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(defaultRateLimit, defaultRateWindow)
	}

	s.setupRoutes()
	return s
}

// RateLimiter exposes the write-route limiter for periodic cleanup.
func (s *Server) RateLimiter() *RateLimiter {
	return s.limiter
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// The observer socket and /metrics stay outside the JSON group
func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", metrics.Handler())
	if s.websocket != nil {
		r.Handle("/ws", s.websocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.metricsMiddleware)
		r.Use(s.corsMiddleware)
		r.Use(s.jsonMiddleware)

		r.Get("/health", s.healthCheck)

		r.Route("/api/classes", func(r chi.Router) {
			r.With(s.rateLimit).Post("/", s.createClass)
			r.Get("/", s.listClasses)

			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", s.getClass)
				r.With(s.rateLimit).Post("/close", s.closeClass)
				r.With(s.rateLimit).Post("/reopen", s.reopenClass)
				r.Get("/statistics", s.classStatistics)

				r.With(s.rateLimit).Post("/students", s.joinClass)
				r.Get("/students", s.listStudents)
				r.With(s.rateLimit).Delete("/students/{id}", s.leaveClass)
				r.With(s.rateLimit).Put("/students/{id}/hand", s.setHand)
				r.With(s.rateLimit).Post("/students/{id}/lower", s.teacherLowerHand)
				r.With(s.rateLimit).Put("/students/{id}/status", s.setStudentStatus)
				r.Get("/students/{id}/history", s.handHistory)

				r.With(s.rateLimit).Post("/questions", s.submitQuestion)
				r.Get("/questions", s.listQuestions)
				r.With(s.rateLimit).Put("/questions/{id}/status", s.setQuestionStatus)
				r.With(s.rateLimit).Post("/questions/{id}/answer", s.answerQuestion)
				r.With(s.rateLimit).Delete("/questions/{id}", s.deleteQuestion)
			})
		})
	})

	s.router = r
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
		System: map[string]interface{}{
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": int(time.Since(s.started).Seconds()),
		},
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

// decodeRequest reads a JSON body into out and runs its validate tags.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		s.sendError(w, validationMessage(err), http.StatusBadRequest)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	return err.Error()
}

// sendStoreError maps manager errors onto HTTP status codes
// TECHNICAL DISCOVERY: Not-found is checked first because aggregation
// failures wrap the underlying cause
func (s *Server) sendStoreError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		s.sendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, types.ErrValidationFailed):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, types.ErrAlreadyExists), errors.Is(err, types.ErrClassClosed):
		s.sendError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, types.ErrStoreUnavailable):
		log.Printf("Failed to %s: %v", action, err)
		s.sendError(w, "Document store unavailable", http.StatusServiceUnavailable)
	default:
		log.Printf("Failed to %s: %v", action, err)
		s.sendError(w, "Failed to "+action, http.StatusInternalServerError)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// FUNCTIONAL DISCOVERY: Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
	})
}

// rateLimit applies the per-client limit to write routes, keyed by address
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientKey(r)) {
			s.sendError(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
