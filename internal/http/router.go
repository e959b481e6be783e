package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"playground-llm/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authH *AuthHandler,
	generateH *GenerateHandler,
	adminH *AdminHandler,
	jwtSvc *service.JWTService,
	dbPing func(ctx context.Context) error,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if dbPing != nil {
			if err := dbPing(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth")
	auth.POST("/access", authH.RedeemAccessCode)

	api := r.Group("/api", AuthMiddleware(jwtSvc, service.TokenTypeVisitor))
	api.POST("/generate", generateH.Generate)

	r.POST("/admin/login", authH.AdminLogin)
	admin := r.Group("/admin", AuthMiddleware(jwtSvc, service.TokenTypeAdmin))
	admin.POST("/codes", adminH.CreateCode)
	admin.GET("/codes", adminH.ListCodes)
	admin.PATCH("/codes/:id", adminH.UpdateCode)
	admin.DELETE("/codes/:id", adminH.DeleteCode)
	admin.GET("/usage", adminH.Usage)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
