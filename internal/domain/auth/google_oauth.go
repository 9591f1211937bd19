package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

const (
	googleProvider  = "google"
	googleIssuerURL = "https://accounts.google.com"
	googleRevokeURL = "https://oauth2.googleapis.com/revoke"
)

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
}

type googleVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (googleClaims, error)
}

// oidcVerifier discovers Google's keys once and reuses the verifier.
type oidcVerifier struct {
	clientID string
	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func newOIDCVerifier(clientID string) *oidcVerifier {
	return &oidcVerifier{clientID: clientID}
}

func (v *oidcVerifier) Verify(ctx context.Context, rawIDToken string) (googleClaims, error) {
	verifier, err := v.get(ctx)
	if err != nil {
		return googleClaims{}, apperrors.Wrap(CodeAuthError, "failed to initialize oidc provider", err)
	}
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return googleClaims{}, apperrors.Wrap(CodeInvalidToken, "failed to verify id token", err)
	}
	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return googleClaims{}, apperrors.Wrap(CodeInvalidToken, "failed to parse id token claims", err)
	}
	return claims, nil
}

func (v *oidcVerifier) get(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.verifier != nil {
		return v.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, googleIssuerURL)
	if err != nil {
		return nil, err
	}
	v.verifier = provider.Verifier(&oidc.Config{ClientID: v.clientID})
	return v.verifier, nil
}

func (s *service) GoogleAuthURL(_ context.Context, state, codeChallenge string) (string, error) {
	cfg, err := s.googleOAuthConfig()
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

func (s *service) GoogleCallback(ctx context.Context, code, codeVerifier string) (Session, error) {
	cfg, err := s.googleOAuthConfig()
	if err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(code) == "" || strings.TrimSpace(codeVerifier) == "" {
		return Session{}, apperrors.Wrap(CodeInvalidInput, "missing oauth code or verifier", nil)
	}
	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return Session{}, apperrors.Wrap(CodeOAuthExchange, "failed to exchange oauth code", err)
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return Session{}, apperrors.Wrap(CodeOAuthExchange, "missing id_token in oauth response", nil)
	}
	claims, err := s.google.Verify(ctx, rawIDToken)
	if err != nil {
		return Session{}, err
	}
	if claims.Subject == "" || claims.Email == "" {
		return Session{}, apperrors.Wrap(CodeInvalidToken, "id token lacks subject or email", nil)
	}
	if !claims.EmailVerified {
		return Session{}, apperrors.Wrap(CodeInvalidCredentials, "google account email not verified", nil)
	}
	email, err := normalizeEmail(claims.Email)
	if err != nil {
		return Session{}, apperrors.Wrap(CodeInvalidInput, "invalid email address", err)
	}

	identity, found, err := s.repo.GetIdentity(ctx, googleProvider, claims.Subject)
	if err != nil {
		return Session{}, apperrors.Wrap(CodeAuthError, "failed to fetch identity", err)
	}
	if found {
		account, err := s.loadAccount(ctx, identity.AccountID)
		if err != nil {
			return Session{}, err
		}
		if token.RefreshToken != "" {
			if err := s.linkGoogle(ctx, account.ID, claims, token.RefreshToken); err != nil {
				return Session{}, err
			}
		}
		return s.issueSession(account)
	}

	if _, exists, err := s.repo.GetByEmail(ctx, email); err != nil {
		return Session{}, apperrors.Wrap(CodeAuthError, "failed to check existing account", err)
	} else if exists {
		return Session{}, apperrors.Wrap(CodeLinkingDisabled, "an account with this email already exists; sign in with your password", nil)
	}

	passwordHash, err := unusablePasswordHash()
	if err != nil {
		return Session{}, apperrors.Wrap(CodeAuthError, "failed to generate password hash", err)
	}
	account, err := s.createAccount(ctx, email, googleDisplayName(claims), passwordHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.linkGoogle(ctx, account.ID, claims, token.RefreshToken); err != nil {
		return Session{}, err
	}
	s.logger.Info("account created from google sign-in", "account_id", account.ID)
	return s.issueSession(account)
}

func (s *service) Logout(ctx context.Context, accountID int64) error {
	identity, found, err := s.repo.GetIdentityByAccount(ctx, accountID, googleProvider)
	if err != nil {
		return apperrors.Wrap(CodeAuthError, "failed to fetch identity", err)
	}
	if !found || identity.RefreshToken == "" {
		return nil
	}
	refreshToken, err := decryptToken(s.cfg.Google.TokenEncryptionKey, identity.RefreshToken)
	if err != nil || refreshToken == "" {
		s.logger.Warn("google refresh token unreadable, skipping revoke", "account_id", accountID, "error", err)
		return nil
	}
	if err := s.revokeGoogleToken(ctx, refreshToken); err != nil {
		s.logger.Warn("failed to revoke google refresh token", "account_id", accountID, "error", err)
	}
	return nil
}

func (s *service) googleOAuthConfig() (*oauth2.Config, error) {
	g := s.cfg.Google
	if !g.Enabled() {
		return nil, apperrors.Wrap(CodeNotConfigured, "google sign-in is not configured", nil)
	}
	if strings.TrimSpace(g.TokenEncryptionKey) == "" {
		return nil, apperrors.Wrap(CodeNotConfigured, "google token encryption key is missing", nil)
	}
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  g.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		Endpoint:     s.googleEndpoint(),
	}, nil
}

func (s *service) googleEndpoint() oauth2.Endpoint {
	if s.endpoint != nil {
		return *s.endpoint
	}
	return google.Endpoint
}

func (s *service) linkGoogle(ctx context.Context, accountID int64, claims googleClaims, refreshToken string) error {
	encrypted, err := encryptToken(s.cfg.Google.TokenEncryptionKey, refreshToken)
	if err != nil {
		return apperrors.Wrap(CodeAuthError, "failed to encrypt refresh token", err)
	}
	_, err = s.repo.UpsertIdentity(ctx, Identity{
		AccountID:       accountID,
		Provider:        googleProvider,
		ProviderSubject: claims.Subject,
		ProviderEmail:   claims.Email,
		RefreshToken:    encrypted,
	})
	if err != nil {
		return apperrors.Wrap(CodeAuthError, "failed to persist identity", err)
	}
	return nil
}

func (s *service) revokeGoogleToken(ctx context.Context, refreshToken string) error {
	target := s.revokeURL
	if target == "" {
		target = googleRevokeURL
	}
	form := url.Values{"token": {refreshToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("google revoke returned status %d", resp.StatusCode)
	}
	return nil
}

func googleDisplayName(claims googleClaims) string {
	for _, candidate := range []string{claims.Name, claims.GivenName, strings.Split(claims.Email, "@")[0]} {
		if name, err := normalizeDisplayName(candidate); err == nil {
			return name
		}
	}
	return "Google user"
}

// unusablePasswordHash gives Google-created accounts a hash no password can match.
func unusablePasswordHash() (string, error) {
	raw, err := randomString(32)
	if err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func randomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeChallengeFromVerifier computes the S256 PKCE challenge.
func CodeChallengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewOAuthState returns a state, code verifier, and code challenge for PKCE.
func NewOAuthState() (state, codeVerifier, codeChallenge string, err error) {
	if state, err = randomString(32); err != nil {
		return "", "", "", err
	}
	if codeVerifier, err = randomString(32); err != nil {
		return "", "", "", err
	}
	return state, codeVerifier, CodeChallengeFromVerifier(codeVerifier), nil
}
