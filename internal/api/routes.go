package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"govjobs/internal/api/middleware"
	"govjobs/internal/auth"
	"govjobs/internal/config"
	"govjobs/internal/portal"
)

// Deps 汇总注册路由所需的依赖。Scanner、Notifier、Queue 可为 nil。
type Deps struct {
	DB       *gorm.DB
	Auth     *auth.AuthService
	Redis    redis.UniversalClient
	Storage  objectStorage
	Scanner  virusScanner
	Notifier statusNotifier
	Queue    taskEnqueuer
	Logger   *slog.Logger
	Config   *config.Config
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	cfg := deps.Config

	authHandler := NewAuthHandler(
		deps.DB,
		deps.Auth,
		deps.Redis,
		deps.Logger,
		cfg.Auth.LoginRateLimitPerHour,
		cfg.Auth.LoginLockThreshold,
		cfg.Auth.LoginLockTTL,
		cfg.API.CookieDomain,
	)
	jobHandler := NewJobHandler(deps.DB, deps.Logger)
	documentHandler := NewDocumentHandler(deps.DB, deps.Storage, deps.Scanner, deps.Redis, deps.Logger)
	applicationHandler := NewApplicationHandler(deps.DB, deps.Logger)
	reviewHandler := NewReviewHandler(deps.DB, deps.Storage, deps.Notifier, deps.Queue, deps.Logger, cfg.Worker.SummaryMaxRetry)
	wsHandler := NewWsHandler(deps.Redis, deps.Auth, deps.Logger, cfg.API.Origins())

	authMiddleware := middleware.AuthMiddleware(deps.Auth)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
			authGroup.GET("/me", authMiddleware, authHandler.Me)
		}

		jobGroup := v1.Group("/jobs")
		{
			jobGroup.GET("", jobHandler.ListOpenJobs)
			jobGroup.GET("/:id", jobHandler.GetJob)
		}

		applicantGroup := v1.Group("/applicant")
		applicantGroup.Use(authMiddleware, passwordGate, middleware.RequireRole(string(portal.RoleApplicant)))
		{
			applicantGroup.GET("/documents", documentHandler.ListDocuments)
			applicantGroup.POST("/documents", documentHandler.UploadDocument)
			applicantGroup.GET("/documents/checklist", documentHandler.GetChecklist)
			applicantGroup.DELETE("/documents/:id", documentHandler.DeleteDocument)
			applicantGroup.GET("/documents/:id/link", documentHandler.GetDocumentLink)

			applicantGroup.GET("/applications", applicationHandler.ListOwnApplications)
			applicantGroup.POST("/applications", applicationHandler.SubmitApplication)
			applicantGroup.POST("/applications/check", applicationHandler.CheckApplication)
		}

		hrGroup := v1.Group("/hr")
		hrGroup.Use(authMiddleware, passwordGate, middleware.RequireRole(string(portal.RoleHR)))
		{
			hrGroup.GET("/jobs", jobHandler.ListOwnJobs)
			hrGroup.POST("/jobs", jobHandler.CreateJob)
			hrGroup.PUT("/jobs/:id", jobHandler.UpdateJob)
			hrGroup.DELETE("/jobs/:id", jobHandler.DeleteJob)

			hrGroup.GET("/applications", reviewHandler.ListApplications)
			hrGroup.GET("/applications/export", reviewHandler.ExportApplications)
			hrGroup.PATCH("/applications/:id/status", reviewHandler.UpdateStatus)
			hrGroup.GET("/applications/:id/documents/:docID/link", reviewHandler.GetDocumentLink)
			hrGroup.POST("/applications/:id/summary", reviewHandler.RequestSummary)
			hrGroup.GET("/applications/:id/summary-link", reviewHandler.GetSummaryLink)
		}
	}
}
