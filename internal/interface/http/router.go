package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/xray-diagnosis/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, logger *slog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	httpLogger := logger.With("component", "http")
	router := gin.New()
	router.MaxMultipartMemory = cfg.Diagnosis.MaxImageBytes + formOverheadBytes
	router.Use(
		gin.Recovery(),
		requestLogger(httpLogger),
		corsMiddleware(cfg.HTTP.CORSOrigins),
		errorHandlingMiddleware(httpLogger),
		rateLimitMiddleware(cfg.HTTP.RateLimit, httpLogger),
	)

	router.GET("/healthz", handler.Health)

	requireAuth := authMiddleware(handler.authSvc)
	router.POST("/api/analyze-xray", optionalAuthMiddleware(handler.authSvc), handler.AnalyzeXRay)

	api := router.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", handler.Register)
		authGroup.POST("/login", handler.Login)
		authGroup.POST("/refresh", handler.Refresh)
		authGroup.GET("/google/login", handler.GoogleLogin)
		authGroup.GET("/google/callback", handler.GoogleCallback)
		authGroup.GET("/me", requireAuth, handler.Me)
		authGroup.POST("/logout", requireAuth, handler.Logout)

		diagnoses := api.Group("/diagnoses", requireAuth)
		diagnoses.POST("", handler.CreateDiagnosis)
		diagnoses.POST("/stream", handler.StreamDiagnosis)
		diagnoses.GET("", handler.ListDiagnoses)
		diagnoses.GET("/:id", handler.GetDiagnosis)
		diagnoses.GET("/:id/image", handler.GetDiagnosisImage)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, httpLogger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
