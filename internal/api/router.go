package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"govjobs/internal/api/middleware"
	"govjobs/internal/metrics"
)

// NewRouter 构建带公共中间件的 Gin 引擎，并暴露健康检查与指标端点。
// allowedOrigins 为空时不启用 CORS，由反向代理同源转发。
func NewRouter(logger *slog.Logger, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
	)

	if len(allowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = allowedOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Correlation-ID"}
		corsConfig.ExposeHeaders = []string{"X-Correlation-ID", "Content-Disposition"}
		corsConfig.MaxAge = 12 * time.Hour
		router.Use(cors.New(corsConfig))
	}

	// 上传上限 10 MB，多出的部分写入临时文件。
	router.MaxMultipartMemory = 12 << 20

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	return router
}
