package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"

	"ideaflow/backend/internal/config"
	"ideaflow/backend/internal/repository"
	"ideaflow/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DevActor is the actor injected in bypass mode when no headers are sent.
var DevActor = models.Actor{ID: "dev@localhost", Role: models.RoleSuperAdmin}

// Auth contains configuration and helpers for performing OpenID Connect
// authentication with an Okta tenant and resolving the calling actor.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	directory    repository.DirectoryStore
	logger       Logger
	devMode      bool
	authBypass   bool
	trustHeaders bool
}

// New creates a new Auth object using values from the application
// configuration. Unless auth is bypassed it connects to the provider and
// prepares the ID and access token verifiers.
func New(ctx context.Context, cfg *config.Config, directory repository.DirectoryStore, logger Logger) (*Auth, error) {
	env := strings.ToUpper(cfg.Environment)
	isDev := env == "DEV" || env == "DEVELOPMENT"
	shouldBypass := isDev && cfg.DevModeBypass

	a := &Auth{
		directory:    directory,
		logger:       logger,
		devMode:      isDev,
		authBypass:   shouldBypass,
		trustHeaders: cfg.Auth.TrustHeaders,
	}
	if shouldBypass {
		return a, nil
	}
	if cfg.Auth.TrustHeaders && cfg.Auth.OktaDomain == "" {
		if cfg.IsProduction() {
			logger.Warn("actor headers are trusted without token verification in production")
		}
		return a, nil
	}

	if cfg.Auth.OktaDomain == "" || cfg.Auth.ClientID == "" ||
		cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
		return nil, errors.New("auth configuration is incomplete")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
	if err != nil {
		return nil, err
	}

	a.oauth2Config = &oauth2.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.Auth.RedirectURL,
		Scopes:       []string{ScopeOpenID, ScopeProfile, ScopeEmail},
	}
	a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})

	// Access tokens carry the API audience, not the client id.
	a.apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	return a, nil
}

// LoginHandler initiates the OAuth2 authorization code flow by redirecting the
// user to the Okta authorization endpoint. A random state value is stored in a
// cookie to mitigate CSRF attacks.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.oauth2Config == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := generateState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		HttpOnly: true,
		Path:     "/",
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler handles the redirect back from Okta. It verifies the state
// parameter, exchanges the code for tokens, validates the ID token, and sets a
// session cookie containing the raw ID token.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.oauth2Config == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	cookie, err := r.Cookie("oauthstate")
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in token response", http.StatusInternalServerError)
		return
	}

	if _, err := a.verifier.Verify(r.Context(), rawIDToken); err != nil {
		http.Error(w, "failed to verify id token", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "id_token",
		Value:    rawIDToken,
		HttpOnly: true,
		Path:     "/",
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RequireAuth is middleware that resolves the calling actor and stores it on
// the request context. Bearer tokens win over the session cookie; trusted
// headers are only read when no token is presented.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.Authenticate(r)
		if err != nil {
			var authErr *Error
			if errors.As(err, &authErr) {
				if authErr.Status == http.StatusUnauthorized && a.oauth2Config != nil && wantsHTML(r) {
					http.Redirect(w, r, "/login", http.StatusSeeOther)
					return
				}
				http.Error(w, authErr.Message, authErr.Status)
				return
			}
			if a.logger != nil {
				a.logger.Error("failed to resolve actor", "error", err)
			}
			http.Error(w, "failed to resolve actor", http.StatusInternalServerError)
			return
		}

		if a.logger != nil {
			a.logger.Debug("actor resolved", "actor_id", actor.ID, "role", actor.Role)
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// Error is an authentication failure with the HTTP status it maps to.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func unauthorized(format string, args ...any) error {
	return &Error{Status: http.StatusUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) error {
	return &Error{Status: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

// Authenticate resolves the actor behind r.
func (a *Auth) Authenticate(r *http.Request) (models.Actor, error) {
	ctx := r.Context()

	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		if a.apiVerifier == nil {
			return models.Actor{}, unauthorized("bearer tokens are not accepted")
		}
		token, err := a.apiVerifier.Verify(ctx, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			return models.Actor{}, unauthorized("invalid token: %v", err)
		}
		return a.actorFromToken(ctx, token)
	}

	if cookie, err := r.Cookie("id_token"); err == nil && a.verifier != nil {
		token, err := a.verifier.Verify(ctx, cookie.Value)
		if err != nil {
			return models.Actor{}, unauthorized("invalid token: %v", err)
		}
		return a.actorFromToken(ctx, token)
	}

	if a.trustHeaders || a.authBypass {
		if r.Header.Get(HeaderActorID) != "" {
			return actorFromHeaders(r.Header)
		}
		if a.authBypass {
			return DevActor, nil
		}
	}
	return models.Actor{}, unauthorized("authentication required")
}

// actorClaims are the token claims mapped onto an actor. Organisation claims
// are optional; the directory fills whatever the token leaves out.
type actorClaims struct {
	Subject     string `json:"sub"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	CollegeID   string `json:"college_id"`
	IncubatorID string `json:"incubator_id"`
}

func (a *Auth) actorFromToken(ctx context.Context, token *oidc.IDToken) (models.Actor, error) {
	var claims actorClaims
	if err := token.Claims(&claims); err != nil {
		return models.Actor{}, unauthorized("failed to parse token claims")
	}
	if claims.Subject == "" {
		return models.Actor{}, unauthorized("token has no subject")
	}

	actor := models.Actor{
		ID:          claims.Subject,
		CollegeID:   claims.CollegeID,
		IncubatorID: claims.IncubatorID,
	}
	if claims.Role != "" {
		role, ok := models.ParseRole(claims.Role)
		if !ok {
			return models.Actor{}, forbidden("unknown role %q", claims.Role)
		}
		actor.Role = role
	}

	if a.directory != nil {
		user, err := a.directory.GetUser(ctx, claims.Subject)
		switch {
		case err == nil:
			mergeDirectoryUser(&actor, user)
		case !errors.Is(err, repository.ErrNotFound):
			return models.Actor{}, fmt.Errorf("load user %s: %w", claims.Subject, err)
		}
	}

	if actor.Role == "" {
		return models.Actor{}, forbidden("no role known for %s", claims.Subject)
	}
	return actor, nil
}

func mergeDirectoryUser(actor *models.Actor, user *models.User) {
	if actor.Role == "" {
		actor.Role = user.Role
	}
	if actor.CollegeID == "" && user.CollegeID != nil {
		actor.CollegeID = *user.CollegeID
	}
	if actor.IncubatorID == "" && user.IncubatorID != nil {
		actor.IncubatorID = *user.IncubatorID
	}
}

func actorFromHeaders(h http.Header) (models.Actor, error) {
	rawRole := h.Get(HeaderActorRole)
	role, ok := models.ParseRole(rawRole)
	if !ok {
		return models.Actor{}, forbidden("unknown role %q", rawRole)
	}
	return models.Actor{
		ID:          strings.TrimSpace(h.Get(HeaderActorID)),
		Role:        role,
		CollegeID:   strings.TrimSpace(h.Get(HeaderCollegeID)),
		IncubatorID: strings.TrimSpace(h.Get(HeaderIncubatorID)),
	}, nil
}

// LogoutHandler clears the session cookie and redirects to the home page.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   "id_token",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
