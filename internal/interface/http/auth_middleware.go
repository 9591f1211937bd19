package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/xray-diagnosis/internal/domain/auth"
	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

// authMiddleware requires a valid access token.
func authMiddleware(svc auth.Service) gin.HandlerFunc {
	return bearerAuth(svc, true)
}

// optionalAuthMiddleware attaches claims when a token is present. A malformed
// or invalid token is still rejected.
func optionalAuthMiddleware(svc auth.Service) gin.HandlerFunc {
	return bearerAuth(svc, false)
}

func bearerAuth(svc auth.Service, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing authorization header", nil))
				return
			}
			c.Next()
			return
		}
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "invalid authorization header", nil))
			return
		}
		claims, err := svc.ValidateToken(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			if apperrors.IsCode(err, auth.CodeInvalidToken) {
				abortWithError(c, NewHTTPError(http.StatusUnauthorized, auth.CodeInvalidToken, apperrors.MessageOf(err), err))
				return
			}
			abortWithError(c, NewHTTPError(http.StatusInternalServerError, "auth_failed", "failed to validate token", err))
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}
