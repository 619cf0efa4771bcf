package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kioku/internal/auth"
	"github.com/ashita-ai/kioku/internal/ctxutil"
	"github.com/ashita-ai/kioku/internal/model"
	"github.com/ashita-ai/kioku/internal/ratelimit"
	"github.com/ashita-ai/kioku/internal/service/knowledge"
	"github.com/ashita-ai/kioku/internal/storage"
)

// Server is the Kioku HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB        *storage.DB
	JWTMgr    *auth.JWTManager
	Knowledge *knowledge.Service
	Logger    *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		Knowledge:           cfg.Knowledge,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	reqIDFunc := func(r *http.Request) string {
		return ctxutil.RequestIDFromContext(r.Context())
	}

	// Rate limit groups. Conflict checks each cost an oracle call, so they
	// get their own bucket.
	writeRL := ratelimit.Middleware(cfg.Limiter, "write", memberKeyFunc, reqIDFunc, cfg.Logger)
	checkRL := ratelimit.Middleware(cfg.Limiter, "check", memberKeyFunc, reqIDFunc, cfg.Logger)
	authRL := ratelimit.Middleware(cfg.Limiter, "auth", ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	readRole := requireRole(model.RoleViewer)
	writeRole := requireRole(model.RoleEditor)
	adminOnly := requireRole(model.RoleAdmin)

	mux := http.NewServeMux()

	// Auth (no token required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Facts.
	mux.Handle("POST /v1/facts", writeRL(writeRole(http.HandlerFunc(h.HandleCreateFact))))
	mux.Handle("GET /v1/facts", readRole(http.HandlerFunc(h.HandleListFacts)))
	mux.Handle("GET /v1/facts/{id}", readRole(http.HandlerFunc(h.HandleGetFact)))
	mux.Handle("DELETE /v1/facts/{id}", writeRL(writeRole(http.HandlerFunc(h.HandleDeleteFact))))
	mux.Handle("GET /v1/facts/{id}/events", readRole(h.HandleItemEvents(model.KindFact)))
	mux.Handle("POST /v1/facts/check-conflicts", checkRL(writeRole(h.HandleCheckConflicts(model.KindFact))))

	// Decisions.
	mux.Handle("POST /v1/decisions", writeRL(writeRole(http.HandlerFunc(h.HandleCreateDecision))))
	mux.Handle("GET /v1/decisions", readRole(http.HandlerFunc(h.HandleListDecisions)))
	mux.Handle("GET /v1/decisions/{id}", readRole(http.HandlerFunc(h.HandleGetDecision)))
	mux.Handle("DELETE /v1/decisions/{id}", writeRL(writeRole(http.HandlerFunc(h.HandleDeleteDecision))))
	mux.Handle("GET /v1/decisions/{id}/events", readRole(h.HandleItemEvents(model.KindDecision)))
	mux.Handle("POST /v1/decisions/check-conflicts", checkRL(writeRole(h.HandleCheckConflicts(model.KindDecision))))

	// Prompt templates (read: viewer+, write: admin).
	mux.Handle("GET /v1/prompt-templates", readRole(http.HandlerFunc(h.HandleListPromptTemplates)))
	mux.Handle("PUT /v1/prompt-templates/{key}", adminOnly(http.HandlerFunc(h.HandleUpsertPromptTemplate)))

	// Administration (admin-only, exempt from rate limits).
	mux.Handle("POST /v1/members", adminOnly(http.HandlerFunc(h.HandleCreateMember)))
	mux.Handle("GET /v1/members", adminOnly(http.HandlerFunc(h.HandleListMembers)))
	mux.Handle("POST /v1/projects", adminOnly(http.HandlerFunc(h.HandleCreateProject)))
	mux.Handle("GET /v1/projects", adminOnly(http.HandlerFunc(h.HandleListProjects)))

	// MCP StreamableHTTP transport (auth required, viewer+; tools check
	// their own write permissions).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", readRole(mcpHTTP))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// memberKeyFunc keys rate limits by project and member name.
// Returns empty string for admins, who are exempt.
func memberKeyFunc(r *http.Request) string {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		return ""
	}
	return claims.ProjectID.String() + ":" + claims.MemberName
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Handlers returns the underlying Handlers for access to SeedAdmin etc.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
