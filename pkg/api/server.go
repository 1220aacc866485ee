// Package api exposes the HTTP surface: authentication endpoints for
// users and admins, and the admin management endpoints for accounts,
// roles, permissions, and activity logs.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
)

// Server represents the API server
type Server struct {
	cfg     *config.Config
	router  *mux.Router
	logger  *logrus.Logger
	obs     *observability.Logger
	metrics *observability.Metrics

	auth     *accounts.Authenticator
	store    *accounts.Store
	roles    *rbac.Store
	guard    *rbac.Guard
	auditor  *audit.DBLogger
	registry session.Registry
	gate     *middleware.Gate
}

// Deps bundles the server's collaborators
type Deps struct {
	Config        *config.Config
	Logger        *logrus.Logger
	Observability *observability.Logger
	Metrics       *observability.Metrics
	Authenticator *accounts.Authenticator
	Accounts      *accounts.Store
	Roles         *rbac.Store
	Guard         *rbac.Guard
	Auditor       *audit.DBLogger
	Registry      session.Registry
	Gate          *middleware.Gate
}

// NewServer creates the API server and registers all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		cfg:      deps.Config,
		router:   mux.NewRouter(),
		logger:   deps.Logger,
		obs:      deps.Observability,
		metrics:  deps.Metrics,
		auth:     deps.Authenticator,
		store:    deps.Accounts,
		roles:    deps.Roles,
		guard:    deps.Guard,
		auditor:  deps.Auditor,
		registry: deps.Registry,
		gate:     deps.Gate,
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	if s.metrics == nil {
		s.metrics = observability.NopMetrics()
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	// User auth surface
	user := s.router.PathPrefix("/api/v1/auth").Subrouter()
	user.HandleFunc("/register", s.register).Methods("POST")
	user.HandleFunc("/login", s.userLogin).Methods("POST")

	userGated := s.router.PathPrefix("/api/v1/auth").Subrouter()
	userGated.Use(s.gate.Authenticate(accounts.KindUser))
	userGated.HandleFunc("/logout", s.logoutHandler(accounts.KindUser, middleware.UserTokenCookie)).Methods("POST")
	userGated.HandleFunc("/me", s.me).Methods("GET")
	userGated.HandleFunc("/change-password", s.changePasswordHandler(accounts.KindUser, true)).Methods("POST")

	// Admin auth surface
	adminAuth := s.router.PathPrefix("/api/v1/admin/auth").Subrouter()
	adminAuth.HandleFunc("/login", s.adminLogin).Methods("POST")

	adminAuthGated := s.router.PathPrefix("/api/v1/admin/auth").Subrouter()
	adminAuthGated.Use(s.gate.Authenticate(accounts.KindAdmin))
	adminAuthGated.HandleFunc("/logout", s.logoutHandler(accounts.KindAdmin, middleware.AdminTokenCookie)).Methods("POST")
	adminAuthGated.HandleFunc("/me", s.me).Methods("GET")
	adminAuthGated.HandleFunc("/change-password", s.changePasswordHandler(accounts.KindAdmin, true)).Methods("POST")
	adminAuthGated.Handle("/register", s.gate.RequirePermission(rbac.PermAdminCreate)(http.HandlerFunc(s.createAdmin))).Methods("POST")

	// Admin management surface, all behind the admin gate
	admin := s.router.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(s.gate.Authenticate(accounts.KindAdmin))

	admin.Handle("/admins", s.gate.RequirePermission(rbac.PermAdminView)(http.HandlerFunc(s.listAdmins))).Methods("GET")
	admin.Handle("/admins", s.gate.RequirePermission(rbac.PermAdminCreate)(http.HandlerFunc(s.createAdmin))).Methods("POST")
	admin.Handle("/admins/{id}", s.gate.RequirePermission(rbac.PermAdminView)(http.HandlerFunc(s.getAdmin))).Methods("GET")
	admin.Handle("/admins/{id}", s.gate.RequirePermission(rbac.PermAdminUpdate)(http.HandlerFunc(s.updateAdmin))).Methods("PUT")
	admin.Handle("/admins/{id}/status", s.gate.RequirePermission(rbac.PermAdminUpdate)(http.HandlerFunc(s.setAdminStatus))).Methods("PATCH")
	admin.Handle("/admins/{id}", s.gate.RequirePermission(rbac.PermAdminDelete)(http.HandlerFunc(s.deleteAdmin))).Methods("DELETE")

	admin.Handle("/roles", s.gate.RequirePermission(rbac.PermRoleView)(http.HandlerFunc(s.listRoles))).Methods("GET")
	admin.Handle("/roles", s.gate.RequirePermission(rbac.PermRoleCreate)(http.HandlerFunc(s.createRole))).Methods("POST")
	admin.Handle("/roles/{id}", s.gate.RequirePermission(rbac.PermRoleView)(http.HandlerFunc(s.getRole))).Methods("GET")
	admin.Handle("/roles/{id}", s.gate.RequirePermission(rbac.PermRoleUpdate)(http.HandlerFunc(s.updateRole))).Methods("PUT")
	admin.Handle("/roles/{id}", s.gate.RequirePermission(rbac.PermRoleDelete)(http.HandlerFunc(s.deleteRole))).Methods("DELETE")

	admin.Handle("/permissions", s.gate.RequirePermission(rbac.PermPermView)(http.HandlerFunc(s.listPermissions))).Methods("GET")
	admin.Handle("/permissions", s.gate.RequirePermission(rbac.PermPermCreate)(http.HandlerFunc(s.createPermission))).Methods("POST")
	admin.Handle("/permissions/{id}", s.gate.RequirePermission(rbac.PermPermUpdate)(http.HandlerFunc(s.updatePermission))).Methods("PUT")
	admin.Handle("/permissions/{id}", s.gate.RequirePermission(rbac.PermPermDelete)(http.HandlerFunc(s.deletePermission))).Methods("DELETE")

	admin.Handle("/activity-logs", s.gate.RequirePermission(rbac.PermAuditView)(http.HandlerFunc(s.listActivityLogs))).Methods("GET")
}

// Router returns the handler with the ambient middleware applied
func (s *Server) Router() http.Handler {
	obs := s.obs
	if obs == nil {
		obs = observability.NewLogger(observability.InfoLevel, nil)
	}
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(obs),
		httputil.RecoveryMiddleware(obs),
		httputil.CORSMiddleware(s.cfg.Server.AllowedOrigins),
		httputil.MaxBytesMiddleware(1<<20),
	)
	return chain(s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
