// Package server assembles the HTTP router shared by the standalone binary
// and the serverless entry point.
package server

import (
	"reflect"
	"strings"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/assignment"
	"github.com/arnavshah/workload-api-go/pkg/auth"
	"github.com/arnavshah/workload-api-go/pkg/config"
	"github.com/arnavshah/workload-api-go/pkg/handlers"
	"github.com/arnavshah/workload-api-go/pkg/importer"
	"github.com/arnavshah/workload-api-go/pkg/matching"
	"github.com/arnavshah/workload-api-go/pkg/stats"
	"github.com/arnavshah/workload-api-go/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Login attempts allowed per client address and window
const (
	LoginAttempts = 5
	LoginWindow   = time.Minute
)

// NewHandler wires the services behind every route. rdb may be nil.
func NewHandler(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *handlers.Handler {
	st := store.New(db)
	return &handlers.Handler{
		Store:          st,
		Assignments:    assignment.NewService(st, matching.Options{StrictGeography: cfg.StrictGeography}),
		Stats:          stats.NewService(st, stats.NewCache(rdb), cfg.StatsCacheTTL),
		Importer:       importer.New(st),
		Signer:         auth.NewSigner(cfg.JWTSecret, cfg.APIMasterSecret),
		MaxUploadBytes: cfg.MaxUploadMB << 20,
	}
}

// New builds the router. rdb may be nil, in which case caches and the login
// limiter stay in process.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	useJSONFieldNames()

	h := NewHandler(cfg, db, rdb)
	limiter := handlers.NewLimiter(rdb)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), h.RequestID(), h.SecurityHeaders())

	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	r.POST("/auth/login", handlers.RateLimit(limiter, "login", LoginAttempts, LoginWindow), h.Login)

	// Admin Endpoints
	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware(), h.RequireAdmin())
	{
		admin.GET("/projects", h.ListProjects)
		admin.POST("/projects", h.CreateProject)
		admin.GET("/projects/prioritized", h.PrioritizedProjects)
		admin.GET("/projects/at-risk", h.ProjectsAtRisk)
		admin.GET("/projects/:id", h.GetProject)
		admin.GET("/projects/:id/candidates", h.Candidates)
		admin.POST("/projects/:id/assign", h.AssignProject)
		admin.POST("/projects/:id/auto-assign", h.AutoAssignProject)
		admin.POST("/assignments/:id/cancel", h.CancelAssignment)

		admin.GET("/employees", h.ListEmployees)
		admin.POST("/employees", h.CreateEmployee)
		admin.PATCH("/employees/:id", h.UpdateEmployee)
		admin.PUT("/employees/:id/active", h.SetEmployeeActive)
		admin.PUT("/employees/:id/skills", h.UpsertSkill)
		admin.GET("/employees/:id/workload", h.EmployeeWorkload)
		admin.POST("/vacations", h.CreateVacation)
		admin.POST("/vacations/:id/approve", h.ApproveVacation)

		admin.POST("/imports/:entity", h.Import)
		admin.POST("/imports/:entity/validate", h.ValidateImport)

		admin.GET("/stats/dashboard", h.DashboardStats)
		admin.GET("/stats/teams", h.TeamWorkload)
		admin.GET("/stats/skills", h.SkillsSummary)
		admin.GET("/stats/reports", h.Reports)

		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:id", h.GetUsage)
	}

	// Employee Endpoints
	me := r.Group("/me")
	me.Use(h.AuthMiddleware())
	{
		me.GET("/assignments", h.MyAssignments)
		me.GET("/assignments/:id", h.MyAssignment)
		me.PATCH("/assignments/:id/status", h.UpdateStatus)
		me.PATCH("/assignments/:id/hours", h.UpdateHours)
		me.GET("/workload", h.MyWorkload)
		me.GET("/hold-reasons", h.HoldReasons)
		me.PATCH("/profile", h.UpdateProfile)
		me.POST("/password", h.ChangePassword)
	}

	// Integration Endpoints
	api := r.Group("/api")
	api.Use(h.IntegrationKeyMiddleware())
	{
		api.POST("/import/:entity", h.IntegrationImport)
		api.GET("/usage", h.GetMyUsage)
	}

	return r
}

// useJSONFieldNames makes binding errors name fields the way clients send them
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}
