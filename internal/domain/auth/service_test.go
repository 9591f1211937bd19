package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

func TestService_RegisterLoginAndRefresh(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	view, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "Doctor@Example.com",
		Password:    "pass12345",
		DisplayName: "  Dr.   Grey ",
	})
	require.NoError(t, err)
	require.Equal(t, "doctor@example.com", view.Email)
	require.Equal(t, "Dr. Grey", view.DisplayName)
	require.NotZero(t, view.ID)

	session, err := svc.Login(context.Background(), LoginRequest{
		Email:    "doctor@example.com",
		Password: "pass12345",
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.NotEmpty(t, session.RefreshToken)
	require.Equal(t, view.Email, session.Account.Email)

	claims, err := svc.ValidateToken(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, view.ID, claims.AccountID)
	require.Equal(t, tokenTypeAccess, claims.TokenType)

	refreshed, err := svc.Refresh(context.Background(), session.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, session.Token, refreshed.Token)
	require.Equal(t, "Dr. Grey", refreshed.Account.DisplayName)

	profile, err := svc.Profile(context.Background(), view.ID)
	require.NoError(t, err)
	require.Equal(t, view, profile)
}

func TestService_RegisterValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	cases := map[string]RegisterRequest{
		"bad email":      {Email: "not-an-email", Password: "pass12345", DisplayName: "A"},
		"named address":  {Email: "Grey <grey@example.com>", Password: "pass12345", DisplayName: "A"},
		"short password": {Email: "a@example.com", Password: "short", DisplayName: "A"},
		"no name":        {Email: "a@example.com", Password: "pass12345", DisplayName: "   "},
	}
	for name, req := range cases {
		_, err := svc.Register(context.Background(), req)
		require.True(t, apperrors.IsCode(err, CodeInvalidInput), name)
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "pass12345", DisplayName: "One"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterRequest{Email: "A@example.com", Password: "pass12346", DisplayName: "Two"})
	require.True(t, apperrors.IsCode(err, CodeEmailExists))
}

func TestService_LoginRejectsWrongPassword(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "pass12345", DisplayName: "One"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "wrong-pass"})
	require.True(t, apperrors.IsCode(err, CodeInvalidCredentials))

	_, err = svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "pass12345"})
	require.True(t, apperrors.IsCode(err, CodeInvalidCredentials))
}

func TestService_TokenTypesAreNotInterchangeable(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "pass12345", DisplayName: "One"})
	require.NoError(t, err)
	session, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "pass12345"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), session.RefreshToken)
	require.True(t, apperrors.IsCode(err, CodeInvalidToken))

	_, err = svc.Refresh(context.Background(), session.Token)
	require.True(t, apperrors.IsCode(err, CodeInvalidToken))
}

func TestService_ExpiredTokenRejected(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "pass12345", DisplayName: "One"})
	require.NoError(t, err)
	session, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "pass12345"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(context.Background(), session.Token)
	require.True(t, apperrors.IsCode(err, CodeInvalidToken))
}

func TestService_GoogleNotConfigured(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.GoogleAuthURL(context.Background(), "state", "challenge")
	require.True(t, apperrors.IsCode(err, CodeNotConfigured))
}

func TestService_GoogleAuthURLCarriesPKCE(t *testing.T) {
	svc := newGoogleTestService(t, newMemoryRepo(), &stubVerifier{}, "")

	state, verifier, challenge, err := NewOAuthState()
	require.NoError(t, err)
	require.Equal(t, CodeChallengeFromVerifier(verifier), challenge)

	raw, err := svc.GoogleAuthURL(context.Background(), state, challenge)
	require.NoError(t, err)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, state, q.Get("state"))
	require.Equal(t, challenge, q.Get("code_challenge"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "offline", q.Get("access_type"))
}

func TestService_GoogleCallbackCreatesAndReusesAccount(t *testing.T) {
	repo := newMemoryRepo()
	verifier := &stubVerifier{claims: googleClaims{
		Subject:       "google-sub-1",
		Email:         "Patient@Example.com",
		EmailVerified: true,
		Name:          "Pat Example",
	}}
	svc := newGoogleTestService(t, repo, verifier, "google-refresh")

	session, err := svc.GoogleCallback(context.Background(), "auth-code", "verifier")
	require.NoError(t, err)
	require.Equal(t, "patient@example.com", session.Account.Email)
	require.Equal(t, "Pat Example", session.Account.DisplayName)
	require.Equal(t, "raw-id-token", verifier.lastRaw)

	identity, found, err := repo.GetIdentity(context.Background(), googleProvider, "google-sub-1")
	require.NoError(t, err)
	require.True(t, found)
	require.NotEqual(t, "google-refresh", identity.RefreshToken)
	plain, err := decryptToken(svc.cfg.Google.TokenEncryptionKey, identity.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "google-refresh", plain)

	again, err := svc.GoogleCallback(context.Background(), "auth-code-2", "verifier")
	require.NoError(t, err)
	require.Equal(t, session.Account.ID, again.Account.ID)
	require.Len(t, repo.accounts, 1)
}

func TestService_GoogleCallbackRefusesSilentLinking(t *testing.T) {
	repo := newMemoryRepo()
	verifier := &stubVerifier{claims: googleClaims{Subject: "sub", Email: "a@example.com", EmailVerified: true, Name: "A"}}
	svc := newGoogleTestService(t, repo, verifier, "")
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "pass12345", DisplayName: "One"})
	require.NoError(t, err)

	_, err = svc.GoogleCallback(context.Background(), "code", "verifier")
	require.True(t, apperrors.IsCode(err, CodeLinkingDisabled))
}

func TestService_GoogleCallbackRequiresVerifiedEmail(t *testing.T) {
	verifier := &stubVerifier{claims: googleClaims{Subject: "sub", Email: "a@example.com", Name: "A"}}
	svc := newGoogleTestService(t, newMemoryRepo(), verifier, "")

	_, err := svc.GoogleCallback(context.Background(), "code", "verifier")
	require.True(t, apperrors.IsCode(err, CodeInvalidCredentials))

	_, err = svc.GoogleCallback(context.Background(), "", "verifier")
	require.True(t, apperrors.IsCode(err, CodeInvalidInput))
}

func TestService_LogoutRevokesGoogleToken(t *testing.T) {
	var (
		mu      sync.Mutex
		revoked string
	)
	revokeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		revoked = r.PostForm.Get("token")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer revokeServer.Close()

	repo := newMemoryRepo()
	verifier := &stubVerifier{claims: googleClaims{Subject: "sub", Email: "a@example.com", EmailVerified: true, Name: "A"}}
	svc := newGoogleTestService(t, repo, verifier, "google-refresh")
	svc.revokeURL = revokeServer.URL

	session, err := svc.GoogleCallback(context.Background(), "code", "verifier")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(context.Background(), session.Account.ID))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "google-refresh", revoked)
}

func TestService_LogoutWithoutIdentityIsNoop(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	require.NoError(t, svc.Logout(context.Background(), 42))
}

func TestTokenCryptoRoundTripAndTamper(t *testing.T) {
	sealed, err := encryptToken("passphrase", "secret-value")
	require.NoError(t, err)

	plain, err := decryptToken("passphrase", sealed)
	require.NoError(t, err)
	require.Equal(t, "secret-value", plain)

	_, err = decryptToken("other-passphrase", sealed)
	require.Error(t, err)

	_, err = decryptToken("passphrase", "garbage")
	require.Error(t, err)

	empty, err := encryptToken("passphrase", "")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestGoogleDisplayNameFallsBack(t *testing.T) {
	require.Equal(t, "Pat", googleDisplayName(googleClaims{GivenName: "Pat", Email: "x@example.com"}))
	require.Equal(t, "x", googleDisplayName(googleClaims{Email: "x@example.com"}))
}

func newTestService(repo Repository) *service {
	return NewService(Config{
		Secret:          "test-secret",
		TokenTTL:        time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}, repo, newTestLogger()).(*service)
}

// newGoogleTestService points the OAuth token endpoint at a local server that
// always answers with an id_token and the given refresh token.
func newGoogleTestService(t *testing.T, repo Repository, verifier googleVerifier, refreshToken string) *service {
	t.Helper()
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := `{"access_token":"access","token_type":"Bearer","expires_in":3600,"id_token":"raw-id-token"`
		if refreshToken != "" {
			body += `,"refresh_token":"` + refreshToken + `"`
		}
		_, _ = io.WriteString(w, body+"}")
	}))
	t.Cleanup(tokenServer.Close)

	svc := NewService(Config{
		Secret:          "test-secret",
		TokenTTL:        time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		Google: GoogleConfig{
			ClientID:           "client",
			ClientSecret:       "secret",
			RedirectURL:        "http://localhost/api/v1/auth/google/callback",
			TokenEncryptionKey: "encryption-key",
		},
	}, repo, newTestLogger()).(*service)
	svc.google = verifier
	svc.endpoint = &oauth2.Endpoint{
		AuthURL:   "https://accounts.example.com/auth",
		TokenURL:  tokenServer.URL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return svc
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubVerifier struct {
	mu      sync.Mutex
	claims  googleClaims
	err     error
	lastRaw string
}

func (s *stubVerifier) Verify(_ context.Context, raw string) (googleClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRaw = raw
	return s.claims, s.err
}

type memoryRepo struct {
	mu         sync.Mutex
	accounts   map[int64]Account
	identities map[string]Identity
	seq        int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[int64]Account), identities: make(map[string]Identity)}
}

func (m *memoryRepo) Create(_ context.Context, email, displayName, passwordHash string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Email == email {
			return Account{}, ErrEmailExists
		}
	}
	m.seq++
	account := Account{ID: m.seq, Email: email, DisplayName: displayName, PasswordHash: passwordHash, CreatedAt: time.Now()}
	m.accounts[account.ID] = account
	return account, nil
}

func (m *memoryRepo) GetByEmail(_ context.Context, email string) (Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Email == email {
			return account, true, nil
		}
	}
	return Account{}, false, nil
}

func (m *memoryRepo) GetByID(_ context.Context, id int64) (Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	return account, ok, nil
}

func (m *memoryRepo) GetIdentity(_ context.Context, provider, subject string) (Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[provider+"|"+subject]
	return identity, ok, nil
}

func (m *memoryRepo) GetIdentityByAccount(_ context.Context, accountID int64, provider string) (Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.identities {
		if identity.AccountID == accountID && identity.Provider == provider {
			return identity, true, nil
		}
	}
	return Identity{}, false, nil
}

func (m *memoryRepo) UpsertIdentity(_ context.Context, identity Identity) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity.AccountID == 0 {
		return Identity{}, errors.New("account id required")
	}
	key := identity.Provider + "|" + identity.ProviderSubject
	if existing, ok := m.identities[key]; ok && identity.RefreshToken == "" {
		identity.RefreshToken = existing.RefreshToken
	}
	m.identities[key] = identity
	return identity, nil
}
