package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/ankicapture/backend/internal/blob"
	"github.com/ankicapture/backend/internal/config"
	"github.com/ankicapture/backend/internal/jobs"
	"github.com/ankicapture/backend/internal/phrase"
	"github.com/ankicapture/backend/internal/server/middleware"
	"github.com/ankicapture/backend/internal/server/ratelimit"
	"github.com/ankicapture/backend/internal/sign"
)

// Server is the HTTP API: phrase CRUD, the enrichment webhook, and the file
// gateway.
type Server struct {
	httpServer     *http.Server
	store          phrase.Store
	blobs          blob.ObjectStore
	signer         *sign.Signer
	dispatcher     *jobs.Dispatcher
	jwtService     *JWTService
	rateLimiter    *ratelimit.Limiter
	callbackSecret string
}

// Config holds the server's dependencies and settings.
type Config struct {
	Port           int
	Store          phrase.Store
	Blobs          blob.ObjectStore
	Signer         *sign.Signer
	Dispatcher     *jobs.Dispatcher
	JWT            *config.JWTConfig
	CallbackSecret string
}

// New creates a new server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Blobs == nil || cfg.Signer == nil || cfg.Dispatcher == nil {
		return nil, fmt.Errorf("server config is missing dependencies")
	}
	if cfg.JWT == nil {
		return nil, fmt.Errorf("JWT config is required")
	}
	if cfg.CallbackSecret == "" {
		return nil, fmt.Errorf("callback secret is required")
	}

	s := &Server{
		store:          cfg.Store,
		blobs:          cfg.Blobs,
		signer:         cfg.Signer,
		dispatcher:     cfg.Dispatcher,
		jwtService:     NewJWTService(cfg.JWT),
		rateLimiter:    ratelimit.NewLimiter(ratelimit.LoadConfig()),
		callbackSecret: cfg.CallbackSecret,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.routes()))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // audio uploads and streaming
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// routes builds the router. Owner-scoped routes sit behind the JWT middleware;
// the webhook authenticates with the shared callback secret; the file gateway
// does its own layered authorization.
func (s *Server) routes() http.Handler {
	authed := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())

	mux := http.NewServeMux()

	mux.Handle("POST /phrases", authed(http.HandlerFunc(s.handleCreatePhrase)))
	mux.Handle("POST /phrases/upload", authed(http.HandlerFunc(s.handleUploadPhrase)))
	mux.Handle("GET /phrases", authed(http.HandlerFunc(s.handleListPhrases)))
	mux.Handle("GET /phrases/{id}", authed(http.HandlerFunc(s.handleGetPhrase)))
	mux.Handle("PATCH /phrases/{id}", authed(http.HandlerFunc(s.handleUpdatePhrase)))
	mux.Handle("DELETE /phrases/{id}", authed(http.HandlerFunc(s.handleDeletePhrase)))
	mux.Handle("POST /phrases/{id}/approve", authed(http.HandlerFunc(s.handleApprovePhrase)))
	mux.Handle("POST /phrases/{id}/retry", authed(http.HandlerFunc(s.handleRetryPhrase)))
	mux.Handle("POST /phrases/{id}/regenerate-audio", authed(http.HandlerFunc(s.handleRegenerateAudio)))
	mux.Handle("POST /export", authed(http.HandlerFunc(s.handleExport)))

	mux.HandleFunc("POST /webhook/enrichment", s.handleWebhook)
	mux.HandleFunc("GET /files/{key...}", s.handleGetFile)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Start begins listening for requests and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting. The webhook path is exempt: throttling the
// enrichment service's callbacks would only delay results it will retry anyway.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/webhook/enrichment" {
			next.ServeHTTP(w, r)
			return
		}

		allowed, info := s.rateLimiter.Allow(s.extractClientID(r))
		s.setRateLimitHeaders(w, info)
		if !allowed {
			if info.RetryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
			}
			s.errorResponse(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier (IP) from the request.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}
