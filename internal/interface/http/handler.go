package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/xray-diagnosis/internal/domain/auth"
	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
	"github.com/yanqian/xray-diagnosis/internal/infra/config"
)

// Handler wires the HTTP transport to domain services.
type Handler struct {
	diagnosisSvc      diagnosis.Service
	authSvc           auth.Service
	maxImageBytes     int64
	postLoginRedirect string
	logger            *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(cfg *config.Config, diagnosisSvc diagnosis.Service, authSvc auth.Service, logger *slog.Logger) *Handler {
	return &Handler{
		diagnosisSvc:      diagnosisSvc,
		authSvc:           authSvc,
		maxImageBytes:     cfg.Diagnosis.MaxImageBytes,
		postLoginRedirect: cfg.Auth.Google.PostLoginRedirectURL,
		logger:            logger.With("component", "http.handler"),
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requireClaims(c *gin.Context) (auth.Claims, bool) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing token", nil))
	}
	return claims, ok
}
