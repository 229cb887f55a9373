package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/caregrid/caregrid/pkg/audit"
	"github.com/caregrid/caregrid/pkg/httputil"
	"github.com/caregrid/caregrid/pkg/identity"
	"github.com/caregrid/caregrid/pkg/middleware"
	"github.com/caregrid/caregrid/pkg/observability"
	"github.com/caregrid/caregrid/pkg/rbac"
	"github.com/caregrid/caregrid/pkg/support"
	"github.com/caregrid/caregrid/pkg/tenancy"
)

// Server is the HTTP surface over the authorization engine
type Server struct {
	router *mux.Router

	roles     rbac.RoleStore
	ledger    *rbac.Ledger
	resolver  *rbac.Resolver
	grants    *support.Manager
	tenants   *tenancy.Manager
	auditLog  audit.Logger
	logger    *observability.Logger
	metrics   *observability.Metrics
	verifier  *identity.TokenVerifier
	health    *observability.HealthChecker
	db        *sql.DB
	tracingOn bool
}

// ServerConfig carries the server's collaborators
type ServerConfig struct {
	Roles    rbac.RoleStore
	Ledger   *rbac.Ledger
	Resolver *rbac.Resolver
	Grants   *support.Manager
	Tenants  *tenancy.Manager
	AuditLog audit.Logger
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Verifier *identity.TokenVerifier
	Health   *observability.HealthChecker
	DB       *sql.DB
	Tracing  bool
}

// NewServer creates the API server and wires its routes
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		router:    mux.NewRouter(),
		roles:     cfg.Roles,
		ledger:    cfg.Ledger,
		resolver:  cfg.Resolver,
		grants:    cfg.Grants,
		tenants:   cfg.Tenants,
		auditLog:  cfg.AuditLog,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		verifier:  cfg.Verifier,
		health:    cfg.Health,
		db:        cfg.DB,
		tracingOn: cfg.Tracing,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	auth := middleware.NewAuthMiddleware(s.verifier, false)
	perms := middleware.NewPermissionMiddleware(s.resolver, s.auditLog)
	tenantGate := middleware.NewTenantMiddleware(s.tenants, s.grants, s.auditLog)

	base := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
	)
	s.router.Use(base)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.Handler)

	// Role catalog
	api.Handle("/roles", perms.Require(rbac.PermissionManageRoles)(
		http.HandlerFunc(s.createRole))).Methods("POST")
	api.HandleFunc("/roles", s.listRoles).Methods("GET")
	api.HandleFunc("/roles/{name}", s.getRole).Methods("GET")
	api.Handle("/roles/{id:[0-9]+}", perms.Require(rbac.PermissionManageRoles)(
		http.HandlerFunc(s.deleteRole))).Methods("DELETE")

	// Assignment ledger
	api.Handle("/assignments", perms.Require(rbac.PermissionManageUsers)(
		http.HandlerFunc(s.createAssignment))).Methods("POST")
	api.Handle("/assignments", perms.Require(rbac.PermissionManageUsers)(
		http.HandlerFunc(s.revokeAssignment))).Methods("DELETE")
	api.HandleFunc("/users/{user_id:[0-9]+}/assignments", s.listAssignments).Methods("GET")
	api.HandleFunc("/users/{user_id:[0-9]+}/permissions", s.resolveUserPermissions).Methods("GET")

	// Support access grants
	api.Handle("/support-grants", perms.Require(rbac.PermissionSupportAccess)(
		http.HandlerFunc(s.createSupportGrant))).Methods("POST")
	api.Handle("/support-grants/{id:[0-9]+}", perms.Require(rbac.PermissionSupportAccess)(
		http.HandlerFunc(s.revokeSupportGrant))).Methods("DELETE")

	// Tenant-scoped surface; the session pin (when a database is wired)
	// and the gate run before any tenant handler.
	tenantRoutes := api.PathPrefix("/tenants/{tenant_id}").Subrouter()
	if s.db != nil {
		session := middleware.NewSessionMiddleware(s.db, s.logger)
		tenantRoutes.Use(session.Handler)
	}
	tenantRoutes.Use(tenantGate.Handler)
	tenantRoutes.HandleFunc("/context", s.getTenantContext).Methods("GET")

	// Operational endpoints bypass auth.
	if s.health != nil {
		s.router.HandleFunc("/healthz", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.health.Readiness).Methods("GET")
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Handler returns the root handler, wrapped in tracing when enabled
func (s *Server) Handler() http.Handler {
	if s.tracingOn {
		return otelhttp.NewHandler(s.router, "caregrid.api")
	}
	return s.router
}

// Router exposes the underlying router for tests
func (s *Server) Router() *mux.Router {
	return s.router
}
