// Package mockapi implements the mock API the agent is validated against. It
// stands in for the real service so harness runs never depend on an external
// API, while still exercising the agent's constraint learning: conditional
// requirements, mutual exclusivity, format dependencies, business rules and
// rate limits.
package mockapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is the mock API server
type Server struct {
	addr    string
	log     *zap.Logger
	limiter *rateLimiter
	server  *http.Server
	now     func() time.Time
}

// NewServer creates a mock API server listening on addr
func NewServer(addr string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		addr:    addr,
		log:     log,
		limiter: newRateLimiter(),
		now:     time.Now,
	}

	r := mux.NewRouter()
	r.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	r.HandleFunc("/orders", s.handleCreateOrder).Methods(http.MethodPost)
	r.HandleFunc("/products", s.handleCreateProduct).Methods(http.MethodPost)
	r.HandleFunc("/profiles", s.handleCreateProfile).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Use(s.logRequests)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: c.Handler(r),
	}
	return s
}

// Handler exposes the configured HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe runs the server until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.log.Info("mock API listening", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("mock API shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", s.now().Sub(start)))
	})
}
