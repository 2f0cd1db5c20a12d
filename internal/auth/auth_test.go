package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ideaflow/backend/internal/config"
	"ideaflow/backend/internal/repository"
	"ideaflow/backend/pkg/models"
)

const (
	testIssuer   = "https://test-issuer.com"
	testClientID = "test-client"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Warn(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct{}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

// MockDirectory satisfies repository.DirectoryStore
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// Stubs for other interface methods to satisfy repository.DirectoryStore
func (m *MockDirectory) GetCollege(ctx context.Context, id string) (*models.College, error) {
	return nil, repository.ErrNotFound
}
func (m *MockDirectory) GetIncubator(ctx context.Context, id string) (*models.Incubator, error) {
	return nil, repository.ErrNotFound
}
func (m *MockDirectory) ListUsers(ctx context.Context, filter repository.UserFilter) ([]models.User, error) {
	return nil, nil
}
func (m *MockDirectory) PutIncubator(ctx context.Context, inc *models.Incubator) error { return nil }
func (m *MockDirectory) PutCollege(ctx context.Context, c *models.College) error       { return nil }
func (m *MockDirectory) PutUser(ctx context.Context, u *models.User) error             { return nil }

func fakeToken(t *testing.T, extra map[string]any) string {
	t.Helper()
	claims := map[string]any{
		"iss": testIssuer,
		"aud": testClientID,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Add(-1 * time.Minute).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	headerBytes, err := json.Marshal(map[string]any{"alg": "RS256", "typ": "JWT", "kid": "test-key"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(headerBytes) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
}

func testVerifier() *oidc.IDTokenVerifier {
	return oidc.NewVerifier(testIssuer, &MockKeySet{}, &oidc.Config{
		ClientID:          testClientID,
		SkipClientIDCheck: true,
	})
}

// serve runs the middleware and returns the recorded response plus the
// actor seen by the next handler.
func serve(a *Auth, req *http.Request) (*httptest.ResponseRecorder, *models.Actor) {
	var seen *models.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := ActorFromContext(r.Context()); ok {
			seen = &actor
		}
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	a.RequireAuth(next).ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireAuth_BearerTokenWithRoleClaims(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("GetUser", mock.Anything, "adm-1").Return(nil, repository.ErrNotFound)

	a := &Auth{apiVerifier: testVerifier(), directory: dir}
	req := httptest.NewRequest(http.MethodPut, "/api/v1/ideas/idea-1/status", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken(t, map[string]any{
		"sub": "adm-1", "role": "college_admin", "college_id": "col-1",
	}))

	rec, actor := serve(a, req)

	if rec.Code != http.StatusOK {
		t.Logf("Response Body: %s", rec.Body.String())
	}
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, actor)
	assert.Equal(t, models.Actor{ID: "adm-1", Role: models.RoleCollegeAdmin, CollegeID: "col-1"}, *actor)
	dir.AssertExpectations(t)
}

func TestRequireAuth_BearerTokenCompletedFromDirectory(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("GetUser", mock.Anything, "mgr-1").Return(&models.User{
		ID: "mgr-1", Role: models.RoleIncubatorManager, IncubatorID: strPtr("inc-1"),
	}, nil)

	a := &Auth{apiVerifier: testVerifier(), directory: dir}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ideas/idea-1", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken(t, map[string]any{"sub": "mgr-1", "email": "mo@hub.org"}))

	rec, actor := serve(a, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.RoleIncubatorManager, actor.Role)
	assert.Equal(t, "inc-1", actor.IncubatorID)
	dir.AssertExpectations(t)
}

func TestRequireAuth_TokenFailures(t *testing.T) {
	t.Run("unknown user without role claim", func(t *testing.T) {
		dir := new(MockDirectory)
		dir.On("GetUser", mock.Anything, "ghost").Return(nil, repository.ErrNotFound)
		a := &Auth{apiVerifier: testVerifier(), directory: dir}
		req := httptest.NewRequest(http.MethodPut, "/api/v1/ideas/x/status", nil)
		req.Header.Set("Authorization", "Bearer "+fakeToken(t, map[string]any{"sub": "ghost"}))

		rec, actor := serve(a, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Nil(t, actor)
	})

	t.Run("unknown role claim", func(t *testing.T) {
		a := &Auth{apiVerifier: testVerifier()}
		req := httptest.NewRequest(http.MethodPut, "/api/v1/ideas/x/status", nil)
		req.Header.Set("Authorization", "Bearer "+fakeToken(t, map[string]any{"sub": "u", "role": "janitor"}))

		rec, _ := serve(a, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		a := &Auth{apiVerifier: testVerifier()}
		req := httptest.NewRequest(http.MethodPut, "/api/v1/ideas/x/status", nil)
		req.Header.Set("Authorization", "Bearer "+fakeToken(t, map[string]any{
			"sub": "u", "role": "super_admin", "exp": time.Now().Add(-time.Hour).Unix(),
		}))

		rec, _ := serve(a, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("directory failure", func(t *testing.T) {
		dir := new(MockDirectory)
		dir.On("GetUser", mock.Anything, "u").Return(nil, errors.New("db down"))
		a := &Auth{apiVerifier: testVerifier(), directory: dir, logger: &NoOpLogger{}}
		req := httptest.NewRequest(http.MethodPut, "/api/v1/ideas/x/status", nil)
		req.Header.Set("Authorization", "Bearer "+fakeToken(t, map[string]any{"sub": "u"}))

		rec, _ := serve(a, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("bearer without verifier", func(t *testing.T) {
		a := &Auth{trustHeaders: true}
		req := httptest.NewRequest(http.MethodPut, "/api/v1/ideas/x/status", nil)
		req.Header.Set("Authorization", "Bearer abc")

		rec, _ := serve(a, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAuth_TrustedHeaders(t *testing.T) {
	a := &Auth{trustHeaders: true}
	req := httptest.NewRequest(http.MethodPut, "/api/v1/ideas/idea-1/status", nil)
	req.Header.Set(HeaderActorID, "mgr-1")
	req.Header.Set(HeaderActorRole, "Incubator_Manager")
	req.Header.Set(HeaderIncubatorID, "inc-1")

	rec, actor := serve(a, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Actor{ID: "mgr-1", Role: models.RoleIncubatorManager, IncubatorID: "inc-1"}, *actor)

	req.Header.Set(HeaderActorRole, "wizard")
	rec, _ = serve(a, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAuth_HeadersIgnoredWhenUntrusted(t *testing.T) {
	a := &Auth{}
	req := httptest.NewRequest(http.MethodPut, "/api/v1/ideas/idea-1/status", nil)
	req.Header.Set(HeaderActorID, "root")
	req.Header.Set(HeaderActorRole, "super_admin")

	rec, actor := serve(a, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, actor)
}

func TestRequireAuth_BypassMode(t *testing.T) {
	cfg := &config.Config{
		Environment:   "DEV",
		DevModeBypass: true,
	}
	a, err := New(context.Background(), cfg, nil, &NoOpLogger{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/ideas/idea-1/status", nil)
	rec, actor := serve(a, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DevActor, *actor)

	// explicit headers still pick the actor in bypass mode
	req.Header.Set(HeaderActorID, "stu-1")
	req.Header.Set(HeaderActorRole, "student")
	_, actor = serve(a, req)
	assert.Equal(t, "stu-1", actor.ID)
}

func TestNew_RequiresProviderSettings(t *testing.T) {
	cfg := &config.Config{Environment: "production"}
	_, err := New(context.Background(), cfg, nil, &NoOpLogger{})
	assert.EqualError(t, err, "auth configuration is incomplete")

	cfg.Auth.TrustHeaders = true
	a, err := New(context.Background(), cfg, nil, &NoOpLogger{})
	require.NoError(t, err)
	assert.True(t, a.trustHeaders)
}

type warnRecorder struct {
	NoOpLogger
	warnings []string
}

func (l *warnRecorder) Warn(msg string, args ...any) { l.warnings = append(l.warnings, msg) }

func TestNew_WarnsOnTrustedHeadersInProduction(t *testing.T) {
	cfg := &config.Config{Environment: "Production"}
	cfg.Auth.TrustHeaders = true
	logger := &warnRecorder{}
	_, err := New(context.Background(), cfg, nil, logger)
	require.NoError(t, err)
	assert.Len(t, logger.warnings, 1)

	cfg.Environment = "staging"
	logger = &warnRecorder{}
	_, err = New(context.Background(), cfg, nil, logger)
	require.NoError(t, err)
	assert.Empty(t, logger.warnings)
}

func TestLoginAndLogoutWithoutProvider(t *testing.T) {
	a := &Auth{authBypass: true}

	rec := httptest.NewRecorder()
	a.LoginHandler(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = httptest.NewRecorder()
	a.LogoutHandler(rec, httptest.NewRequest(http.MethodGet, "/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "id_token=")
}

func strPtr(s string) *string { return &s }
