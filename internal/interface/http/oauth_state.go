package http

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	oauthStateCookieName = "xray_oauth_state"
	oauthStateCookiePath = "/api/v1/auth/google"
	oauthStateMaxAge     = 300
)

// oauthState survives the round trip to Google in a short-lived cookie.
type oauthState struct {
	State        string `json:"s"`
	CodeVerifier string `json:"v"`
}

func (o oauthState) matches(state string) bool {
	return state != "" && subtle.ConstantTimeCompare([]byte(o.State), []byte(state)) == 1
}

func setOAuthStateCookie(c *gin.Context, state oauthState) {
	data, _ := json.Marshal(state)
	writeOAuthCookie(c, base64.RawURLEncoding.EncodeToString(data), oauthStateMaxAge)
}

func clearOAuthStateCookie(c *gin.Context) {
	writeOAuthCookie(c, "", -1)
}

func writeOAuthCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookieName, value, maxAge, oauthStateCookiePath, "", c.Request.TLS != nil, true)
}

func readOAuthStateCookie(c *gin.Context) (oauthState, bool) {
	value, err := c.Cookie(oauthStateCookieName)
	if err != nil || value == "" {
		return oauthState{}, false
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return oauthState{}, false
	}
	var state oauthState
	if err := json.Unmarshal(data, &state); err != nil || state.State == "" || state.CodeVerifier == "" {
		return oauthState{}, false
	}
	return state, true
}
