package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/mouldtrack/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(handler *handlers.BatchHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	batches := r.Group("/batches")
	batches.GET("/groups", handler.Groups)
	batches.GET("/ungrouped", handler.Ungrouped)
	batches.GET("/summary", handler.Summary)
	batches.POST("/refresh", handler.Refresh)
	batches.GET("/:kind/:id", handler.Detail)
	batches.PATCH("/:kind/:id", handler.Save)
	batches.DELETE("/:kind/:id", handler.Remove)
	batches.GET("/:kind/:id/history", handler.UnitHistory)

	r.GET("/reports/shift.xlsx", handler.ShiftWorkbook)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= 500 {
			logger.Warn("request completed", fields...)
			return
		}
		logger.Info("request completed", fields...)
	}
}
