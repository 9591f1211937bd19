package http

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/xray-diagnosis/internal/domain/auth"
	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

// Register creates a password account.
func (h *Handler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid request body", err))
		return
	}
	view, err := h.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, authError(err))
		return
	}
	c.JSON(http.StatusCreated, view)
}

// Login exchanges email and password for a session.
func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid request body", err))
		return
	}
	session, err := h.authSvc.Login(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, authError(err))
		return
	}
	c.JSON(http.StatusOK, session)
}

// Refresh issues a new session from a refresh token.
func (h *Handler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid request body", err))
		return
	}
	session, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithError(c, authError(err))
		return
	}
	c.JSON(http.StatusOK, session)
}

// GoogleLogin redirects the browser to Google with a fresh state and PKCE challenge.
func (h *Handler) GoogleLogin(c *gin.Context) {
	state, verifier, challenge, err := auth.NewOAuthState()
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, auth.CodeAuthError, "failed to start google sign-in", err))
		return
	}
	target, err := h.authSvc.GoogleAuthURL(c.Request.Context(), state, challenge)
	if err != nil {
		abortWithError(c, authError(err))
		return
	}
	setOAuthStateCookie(c, oauthState{State: state, CodeVerifier: verifier})
	c.Redirect(http.StatusFound, target)
}

// GoogleCallback finishes Google sign-in. With a post-login URL configured the
// tokens travel in its fragment; otherwise the session is returned as JSON.
func (h *Handler) GoogleCallback(c *gin.Context) {
	stored, ok := readOAuthStateCookie(c)
	clearOAuthStateCookie(c)
	if !ok || !stored.matches(c.Query("state")) {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_state", "oauth state mismatch", nil))
		return
	}
	if reason := c.Query("error"); reason != "" {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "oauth_denied", "google sign-in was cancelled", nil))
		return
	}
	session, err := h.authSvc.GoogleCallback(c.Request.Context(), c.Query("code"), stored.CodeVerifier)
	if err != nil {
		abortWithError(c, authError(err))
		return
	}
	if h.postLoginRedirect == "" {
		c.JSON(http.StatusOK, session)
		return
	}
	target, err := url.Parse(h.postLoginRedirect)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, auth.CodeAuthError, "invalid post-login redirect", err))
		return
	}
	target.Fragment = url.Values{
		"token":        {session.Token},
		"refreshToken": {session.RefreshToken},
		"expiresAt":    {strconv.FormatInt(session.ExpiresAt.Unix(), 10)},
	}.Encode()
	c.Redirect(http.StatusFound, target.String())
}

// Me returns the signed-in account.
func (h *Handler) Me(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	view, err := h.authSvc.Profile(c.Request.Context(), claims.AccountID)
	if err != nil {
		abortWithError(c, authError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":        view,
		"tokenExpiresAt": claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout revokes any linked Google grant. Issued tokens simply expire.
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.authSvc.Logout(c.Request.Context(), claims.AccountID); err != nil {
		abortWithError(c, authError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func authError(err error) *HTTPError {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case auth.CodeInvalidInput:
		status = http.StatusBadRequest
	case auth.CodeInvalidCredentials, auth.CodeInvalidToken:
		status = http.StatusUnauthorized
	case auth.CodeEmailExists, auth.CodeLinkingDisabled:
		status = http.StatusConflict
	case auth.CodeAccountNotFound:
		status = http.StatusNotFound
	case auth.CodeNotConfigured:
		status = http.StatusServiceUnavailable
	case auth.CodeOAuthExchange:
		status = http.StatusBadGateway
	default:
		code = auth.CodeAuthError
	}
	message := apperrors.MessageOf(err)
	if status == http.StatusInternalServerError {
		message = "authentication failed"
	}
	return NewHTTPError(status, code, message, err)
}
