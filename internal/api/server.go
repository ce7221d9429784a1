package api

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/wyhuang/scholarship-engine/internal/auth"
	"github.com/wyhuang/scholarship-engine/internal/db"
	"github.com/wyhuang/scholarship-engine/internal/engine"
	"github.com/wyhuang/scholarship-engine/internal/models"
)

type Server struct {
	Store        *db.Store
	AuthService  *auth.Service
	Orchestrator *engine.Orchestrator
	Echo         *echo.Echo
	DB           *pgxpool.Pool

	sanitizer *bluemonday.Policy
}

func NewServer(pool *pgxpool.Pool) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	store := db.NewStore(pool)
	orch := engine.NewOrchestrator(store)
	orch.Subscribe(func(ev models.TransitionEvent) {
		log.Printf("[transition] app=%s %s -> %s by %s (%s)", ev.ApplicationID, ev.From, ev.To, ev.ActorID, ev.ActorRole)
	})

	s := &Server{
		DB:           pool,
		Store:        store,
		AuthService:  auth.NewService(pool),
		Orchestrator: orch,
		Echo:         e,
		// Free text is stored and later rendered by the dashboards; strip
		// all markup on the way in.
		sanitizer: bluemonday.StrictPolicy(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")

	// Auth Routes
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Public catalog reads
	api.GET("/scholarships", s.handleListScholarships)
	api.GET("/scholarships/:code", s.handleGetScholarship)

	// Authenticated routes
	authed := api.Group("")
	authed.Use(auth.Middleware)
	authed.GET("/scholarships/:code/schema", s.handleGetSchema)
	authed.POST("/scholarships/:code/preview", s.handlePreviewEligibility)
	authed.POST("/applications", s.handleCreateApplication)
	authed.PATCH("/applications/:id", s.handleUpdateDraft)
	authed.GET("/applications/:id", s.handleGetApplication)
	authed.GET("/applications", s.handleListApplications)
	authed.POST("/applications/:id/intent", s.handleIntent)

	// Admin Routes (registry mutation, whitelist, stats)
	admin := api.Group("/admin")
	admin.Use(auth.Middleware)
	admin.Use(auth.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	admin.POST("/scholarships/:code/fields", s.handleCreateField)
	admin.PATCH("/fields/:id", s.handleUpdateField)
	admin.DELETE("/fields/:id", s.handleDeactivateField)
	admin.POST("/scholarships/:code/documents", s.handleCreateDocument)
	admin.PATCH("/documents/:id", s.handleUpdateDocument)
	admin.DELETE("/documents/:id", s.handleDeactivateDocument)
	admin.PATCH("/rules/:id/active", s.handleSetRuleActive)
	admin.POST("/scholarships/:code/whitelist", s.handleGrantWhitelist)
	admin.DELETE("/whitelist/:id", s.handleRevokeWhitelist)
	admin.GET("/scholarships/:code/whitelist", s.handleListWhitelist)
	admin.GET("/stats", s.handleGetStats)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.Store.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// writeEngineError maps the engine's structured errors onto HTTP responses
// without collapsing their detail: the dashboards render per-field and
// per-rule feedback from these bodies.
func writeEngineError(c echo.Context, err error) error {
	var validation *engine.ValidationError
	if errors.As(err, &validation) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "validation_error", "detail": validation,
		})
	}

	var incomplete *engine.IncompleteSubmissionError
	if errors.As(err, &incomplete) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":             "incomplete_submission",
			"missing_fields":    incomplete.MissingFields,
			"missing_documents": incomplete.MissingDocuments,
		})
	}

	var eligibility *engine.EligibilityError
	if errors.As(err, &eligibility) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error": "eligibility_failed", "failed": eligibility.Failed,
		})
	}

	var permission *engine.PermissionError
	if errors.As(err, &permission) {
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"error": "permission_denied", "detail": permission,
		})
	}

	var illegal *engine.IllegalTransitionError
	if errors.As(err, &illegal) {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": "illegal_transition", "detail": illegal,
		})
	}

	var locked *engine.SchemaLockedError
	if errors.As(err, &locked) {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": "schema_locked", "detail": locked,
		})
	}

	var concurrent *engine.ConcurrentModificationError
	if errors.As(err, &concurrent) {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": "concurrent_modification", "detail": concurrent,
		})
	}

	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}

	c.Logger().Errorf("internal error: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
}
