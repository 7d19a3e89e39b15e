package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/twgov-oa/question-tracker/api/swagger"
	"github.com/twgov-oa/question-tracker/internal/handler"
	"github.com/twgov-oa/question-tracker/internal/middleware"
	"github.com/twgov-oa/question-tracker/internal/models"
	"github.com/twgov-oa/question-tracker/internal/repository"
	"github.com/twgov-oa/question-tracker/internal/service"
	"github.com/twgov-oa/question-tracker/internal/sso"
	"github.com/twgov-oa/question-tracker/pkg/cache"
	"github.com/twgov-oa/question-tracker/pkg/config"
	"github.com/twgov-oa/question-tracker/pkg/database"
	"github.com/twgov-oa/question-tracker/pkg/export"
	"github.com/twgov-oa/question-tracker/pkg/logger"
	corsmiddleware "github.com/twgov-oa/question-tracker/pkg/middleware/cors"
	reqidmiddleware "github.com/twgov-oa/question-tracker/pkg/middleware/requestid"
)

// @title Question Tracker API
// @version 1.0.0
// @description Council question tracking and reply service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	directoryCache, err := cache.New(cfg.Redis, cfg.Cache.DepartmentTTL)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, department directory cache disabled", "error", err)
		directoryCache = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	deptRepo := repository.NewDepartmentRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	reportRepo := repository.NewReportRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var provider sso.IdentityProvider
	if cfg.SSO.Enabled {
		provider = sso.NewClient(cfg.SSO.ServiceURL, cfg.SSO.RequestTimeout, logr)
	}

	authSvc := service.NewAuthService(userRepo, roleRepo, deptRepo, auditRepo, provider, metrics, validate, logr, service.AuthConfig{
		Secret:         cfg.JWT.Secret,
		Expiration:     cfg.JWT.Expiration,
		Issuer:         cfg.JWT.Issuer,
		SSODefaultRole: cfg.SSO.DefaultRoleName,
		SSOEmailDomain: cfg.SSO.EmailDomain,
	})
	deptSvc := service.NewDepartmentService(deptRepo, directoryCache, metrics, validate, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	roleSvc := service.NewRoleService(roleRepo, validate, logr)
	questionSvc := service.NewQuestionService(questionRepo, reportRepo, deptSvc, auditRepo, metrics, validate, logr)
	reportSvc := service.NewReportService(reportRepo, questionRepo, questionSvc, metrics, validate, logr)
	exportSvc := service.NewExportService(questionSvc, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	cookie := handler.CookieConfig{
		Name:   cfg.JWT.CookieName,
		MaxAge: int(cfg.JWT.Expiration.Seconds()),
		Secure: cfg.JWT.CookieSecure,
	}
	authHandler := handler.NewAuthHandler(authSvc, cookie)
	userHandler := handler.NewUserHandler(userSvc)
	roleHandler := handler.NewRoleHandler(roleSvc)
	deptHandler := handler.NewDepartmentHandler(deptSvc)
	questionHandler := handler.NewQuestionHandler(questionSvc, reportSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	auditHandler := handler.NewAuditHandler(auditRepo)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authGroup := api.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/sso", authHandler.SSOCallback)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.GET("/me", middleware.Authenticate(authSvc, cfg.JWT.CookieName), authHandler.Me)

	authed := api.Group("")
	authed.Use(middleware.Authenticate(authSvc, cfg.JWT.CookieName))

	questions := authed.Group("/questions")
	questions.GET("", middleware.RequirePermission(models.CapReadQuestion), questionHandler.List)
	questions.GET("/export", middleware.RequirePermission(models.CapExportQuestions), exportHandler.Questions)
	questions.GET("/:id", middleware.RequirePermission(models.CapReadQuestion), questionHandler.Get)
	questions.POST("", middleware.RequirePermission(models.CapCreateQuestion), questionHandler.Create)
	questions.PUT("/:id", middleware.RequirePermission(models.CapEditQuestion), questionHandler.Update)
	questions.POST("/:id/close", middleware.RequirePermission(models.CapCloseQuestion), questionHandler.Close)
	questions.PUT("/:id/summary", middleware.RequirePermission(models.CapEditQuestion), questionHandler.UpdateSummary)
	questions.POST("/:id/reports", middleware.RequirePermission(models.CapCreateReport), questionHandler.Reply)
	questions.GET("/:id/reports/export", middleware.RequirePermission(models.CapExportReports), exportHandler.Reports)

	authed.PUT("/reports/:id", middleware.RequirePermission(models.CapEditReport), questionHandler.UpdateReport)

	authed.GET("/audit-logs", middleware.RequirePermission(models.CapManageAll), auditHandler.List)

	users := authed.Group("/users")
	users.Use(middleware.RequirePermission(models.CapManageUsers))
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.POST("", middleware.Audit(auditRepo, models.AuditActionUserCreate, "users"), userHandler.Create)
	users.PUT("/:id", middleware.Audit(auditRepo, models.AuditActionUserUpdate, "users"), userHandler.Update)
	users.PUT("/:id/password", middleware.Audit(auditRepo, models.AuditActionUserUpdate, "users"), userHandler.ChangePassword)
	users.DELETE("/:id", middleware.Audit(auditRepo, models.AuditActionUserDelete, "users"), userHandler.Delete)

	roles := authed.Group("/roles")
	roles.Use(middleware.RequirePermission(models.CapManageRoles))
	roles.GET("", roleHandler.List)
	roles.GET("/capabilities", roleHandler.Capabilities)
	roles.GET("/:id", roleHandler.Get)
	roles.POST("", middleware.Audit(auditRepo, models.AuditActionRoleCreate, "roles"), roleHandler.Create)
	roles.PUT("/:id", middleware.Audit(auditRepo, models.AuditActionRoleUpdate, "roles"), roleHandler.Update)
	roles.DELETE("/:id", middleware.Audit(auditRepo, models.AuditActionRoleDelete, "roles"), roleHandler.Delete)

	departments := authed.Group("/departments")
	departments.GET("", deptHandler.List)
	departments.GET("/bureaus", deptHandler.Bureaus)
	departments.GET("/:id", deptHandler.Get)
	departments.GET("/:id/questions", middleware.RequireDepartmentAccess(models.CapReadQuestion, "id", deptSvc), questionHandler.ListByDepartment)
	departments.POST("", middleware.RequirePermission(models.CapManageDepartments), middleware.Audit(auditRepo, models.AuditActionDepartmentCreate, "departments"), deptHandler.Create)
	departments.PUT("/:id", middleware.RequirePermission(models.CapManageDepartments), middleware.Audit(auditRepo, models.AuditActionDepartmentUpdate, "departments"), deptHandler.Update)
	departments.DELETE("/:id", middleware.RequirePermission(models.CapManageDepartments), middleware.Audit(auditRepo, models.AuditActionDepartmentDelete, "departments"), deptHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
