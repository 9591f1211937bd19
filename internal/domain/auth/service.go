package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

// Service exposes the sign-in workflows.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (AccountView, error)
	Login(ctx context.Context, req LoginRequest) (Session, error)
	GoogleAuthURL(ctx context.Context, state, codeChallenge string) (string, error)
	GoogleCallback(ctx context.Context, code, codeVerifier string) (Session, error)
	ValidateToken(ctx context.Context, token string) (Claims, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	Profile(ctx context.Context, accountID int64) (AccountView, error)
	Logout(ctx context.Context, accountID int64) error
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	minPasswordLen    = 8
	maxDisplayNameLen = 40
)

type service struct {
	cfg    Config
	repo   Repository
	google googleVerifier
	logger *slog.Logger
	now    func() time.Time

	// overridable for tests
	endpoint  *oauth2.Endpoint
	revokeURL string
}

// NewService constructs a Service instance.
func NewService(cfg Config, repo Repository, logger *slog.Logger) Service {
	return &service{
		cfg:    cfg,
		repo:   repo,
		google: newOIDCVerifier(cfg.Google.ClientID),
		logger: logger.With("component", "auth.service"),
		now:    time.Now,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (AccountView, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AccountView{}, apperrors.Wrap(CodeInvalidInput, "invalid email address", err)
	}
	name, err := normalizeDisplayName(req.DisplayName)
	if err != nil {
		return AccountView{}, apperrors.Wrap(CodeInvalidInput, err.Error(), nil)
	}
	if len(req.Password) < minPasswordLen {
		return AccountView{}, apperrors.Wrap(CodeInvalidInput, fmt.Sprintf("password must be at least %d characters", minPasswordLen), nil)
	}
	if _, exists, err := s.repo.GetByEmail(ctx, email); err != nil {
		return AccountView{}, apperrors.Wrap(CodeAuthError, "failed to check account", err)
	} else if exists {
		return AccountView{}, apperrors.Wrap(CodeEmailExists, "email already registered", nil)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return AccountView{}, apperrors.Wrap(CodeAuthError, "failed to hash password", err)
	}
	account, err := s.createAccount(ctx, email, name, string(hashed))
	if err != nil {
		return AccountView{}, err
	}
	s.logger.Info("account registered", "account_id", account.ID)
	return toView(account), nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return Session{}, apperrors.Wrap(CodeInvalidInput, "invalid email address", err)
	}
	if strings.TrimSpace(req.Password) == "" {
		return Session{}, apperrors.Wrap(CodeInvalidInput, "password cannot be empty", nil)
	}
	account, found, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return Session{}, apperrors.Wrap(CodeAuthError, "failed to fetch account", err)
	}
	if !found || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		return Session{}, apperrors.Wrap(CodeInvalidCredentials, "invalid email or password", nil)
	}
	return s.issueSession(account)
}

func (s *service) ValidateToken(_ context.Context, token string) (Claims, error) {
	return s.parseToken(token, tokenTypeAccess)
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.parseToken(refreshToken, tokenTypeRefresh)
	if err != nil {
		return Session{}, err
	}
	account, err := s.loadAccount(ctx, claims.AccountID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(account)
}

func (s *service) Profile(ctx context.Context, accountID int64) (AccountView, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return AccountView{}, err
	}
	return toView(account), nil
}

func (s *service) loadAccount(ctx context.Context, id int64) (Account, error) {
	account, found, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Account{}, apperrors.Wrap(CodeAuthError, "failed to load account", err)
	}
	if !found {
		return Account{}, apperrors.Wrap(CodeAccountNotFound, "account not found", nil)
	}
	return account, nil
}

func (s *service) createAccount(ctx context.Context, email, name, passwordHash string) (Account, error) {
	account, err := s.repo.Create(ctx, email, name, passwordHash)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return Account{}, apperrors.Wrap(CodeEmailExists, "email already registered", err)
		}
		return Account{}, apperrors.Wrap(CodeAuthError, "failed to create account", err)
	}
	return account, nil
}

func (s *service) issueSession(account Account) (Session, error) {
	now := s.now()
	access, err := s.signToken(account, tokenTypeAccess, now, s.cfg.TokenTTL)
	if err != nil {
		return Session{}, err
	}
	refresh, err := s.signToken(account, tokenTypeRefresh, now, s.cfg.RefreshTokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:        access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.cfg.TokenTTL).UTC(),
		Account:      toView(account),
	}, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	AccountID int64  `json:"accountId"`
	Email     string `json:"email"`
	TokenType string `json:"type"`
}

func (s *service) signToken(account Account, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	id, err := randomString(16)
	if err != nil {
		return "", apperrors.Wrap(CodeAuthError, "failed to generate token id", err)
	}
	claims := tokenClaims{
		AccountID: account.ID,
		Email:     account.Email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(account.ID, 10),
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", apperrors.Wrap(CodeAuthError, "failed to sign token", err)
	}
	return signed, nil
}

func (s *service) parseToken(raw, wantType string) (Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return Claims{}, apperrors.Wrap(CodeInvalidToken, "token missing", nil)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, apperrors.Wrap(CodeInvalidToken, "token validation failed", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Claims{}, apperrors.Wrap(CodeInvalidToken, "token invalid", nil)
	}
	if claims.TokenType != wantType {
		return Claims{}, apperrors.Wrap(CodeInvalidToken, "token type mismatch", nil)
	}
	return Claims{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		TokenType: claims.TokenType,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func toView(account Account) AccountView {
	return AccountView{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		CreatedAt:   account.CreatedAt,
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", errors.New("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", err
	}
	if addr.Address != email {
		return "", errors.New("email must be a bare address")
	}
	return email, nil
}

func normalizeDisplayName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", errors.New("display name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		return "", fmt.Errorf("display name cannot exceed %d characters", maxDisplayNameLen)
	}
	return name, nil
}
