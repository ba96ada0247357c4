package mcpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/fugue-ai/rhema/internal/config"
	"github.com/fugue-ai/rhema/internal/rerrors"
)

// Authenticator validates an MCP client's bearer credential (§4.G
// Security: "optional authentication (bearer API key or JWT)"). The
// security config only ever stores a bcrypt hash of the configured API
// key, never the raw key at rest.
type Authenticator struct {
	required   bool
	apiKeyHash []byte
	jwtSecret  []byte
}

// NewAuthenticator builds an Authenticator from the daemon's security
// config. When cfg.APIKey is set it is hashed once at startup; a JWT
// secret, if configured via the same field (a JWT HS256 secret is
// functionally a shared key, same as the API key slot), verifies bearer
// JWTs that aren't plain API keys.
func NewAuthenticator(cfg config.SecurityConfig) (*Authenticator, error) {
	a := &Authenticator{required: cfg.AuthRequired}
	if cfg.APIKey == "" {
		if cfg.AuthRequired {
			return nil, rerrors.New(rerrors.CodeSchemaViolation, "security.auth_required is true but security.api_key is empty")
		}
		return a, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.APIKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.CodeInternal, "failed to hash configured api key", err)
	}
	a.apiKeyHash = hash
	a.jwtSecret = []byte(cfg.APIKey)
	return a, nil
}

// Authenticate validates the bearer credential from an Authorization
// header value ("Bearer <token>"). It returns the resolved principal name
// for rate-limiting/logging purposes. When auth is not required, a missing
// header resolves to the anonymous principal.
func (a *Authenticator) Authenticate(authHeader string) (principal string, err error) {
	token := strings.TrimPrefix(authHeader, "Bearer ")
	token = strings.TrimSpace(token)

	if !a.required {
		if token == "" {
			return "anonymous", nil
		}
	} else if token == "" {
		return "", rerrors.New(rerrors.CodeAuthFailed, "missing bearer credential")
	}

	if token == "" {
		return "anonymous", nil
	}

	if looksLikeJWT(token) {
		return a.authenticateJWT(token)
	}
	return a.authenticateAPIKey(token)
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

func (a *Authenticator) authenticateAPIKey(candidate string) (string, error) {
	if a.apiKeyHash == nil {
		return "", rerrors.New(rerrors.CodeAuthFailed, "no api key configured")
	}
	if err := bcrypt.CompareHashAndPassword(a.apiKeyHash, []byte(candidate)); err != nil {
		return "", rerrors.Wrap(rerrors.CodeAuthFailed, "invalid bearer api key", err)
	}
	return "api-key", nil
}

func (a *Authenticator) authenticateJWT(raw string) (string, error) {
	if len(a.jwtSecret) == 0 {
		return "", rerrors.New(rerrors.CodeAuthFailed, "no jwt secret configured")
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, rerrors.New(rerrors.CodeAuthFailed, "unexpected jwt signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", rerrors.Wrap(rerrors.CodeAuthFailed, "invalid bearer jwt", err)
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "jwt", nil
}

// constantTimeEqual compares two strings without leaking timing
// information, used where a plain API key (not bcrypt-hashed) must be
// compared directly rather than through bcrypt, e.g. the /metrics guard
// below.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MetricsAuthMiddleware guards the Prometheus scrape endpoint with the
// same configured API key used for MCP bearer auth, compared directly
// (metrics scraping has no bcrypt budget to spend per request, unlike
// the rare per-connection MCP handshake). A no-op when no key is
// configured, matching the rest of §4.G's "auth is optional" stance.
func MetricsAuthMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if !constantTimeEqual(token, apiKey) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
