package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/cosmic-journey/pkg/logger"
)

const (
	// TokenCookie carries the session token set by the login flow.
	TokenCookie = "token"
	// GatewayUserHeader carries a user id asserted by a trusted gateway.
	GatewayUserHeader = "X-User-ID"
	// UserIDClaim holds the user id inside the token.
	UserIDClaim = "userId"
)

type userIDKey struct{}

// ContextWithUserID returns ctx carrying the authenticated user id.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated user id, "" when absent.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// Authenticator verifies already-issued sessions. It never issues tokens.
type Authenticator struct {
	secret        []byte
	trustGateway  bool
	loginRedirect string
	logger        logger.Logger
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithJWTSecret sets the HS256 verification secret.
func WithJWTSecret(secret string) AuthOption {
	return func(a *Authenticator) { a.secret = []byte(secret) }
}

// WithGatewayHeader trusts the X-User-ID header when enabled.
func WithGatewayHeader(trust bool) AuthOption {
	return func(a *Authenticator) { a.trustGateway = trust }
}

// WithLoginRedirect sets the URL returned to unauthenticated clients.
func WithLoginRedirect(url string) AuthOption {
	return func(a *Authenticator) { a.loginRedirect = url }
}

// WithAuthLogger sets the logger used for verification failures.
func WithAuthLogger(l logger.Logger) AuthOption {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(opts ...AuthOption) *Authenticator {
	a := &Authenticator{logger: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate returns the user id of the request's session.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if a.trustGateway {
		if id := strings.TrimSpace(r.Header.Get(GatewayUserHeader)); id != "" {
			return id, nil
		}
	}
	raw := bearerToken(r)
	if raw == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	if len(a.secret) == 0 {
		return "", fmt.Errorf("%w: token verification is not configured", ErrUnauthenticated)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	id, _ := claims[UserIDClaim].(string)
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: token has no %s claim", ErrUnauthenticated, UserIDClaim)
	}
	return id, nil
}

// Require rejects requests without a valid session with 401 and a login
// redirect; otherwise the user id is placed on the request context.
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r)
		if err != nil {
			a.logger.Debug(r.Context(), "session rejected", logger.String("path", r.URL.Path), logger.Error(err))
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Code:     "unauthorized",
				Message:  err.Error(),
				Redirect: a.loginRedirect,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), id)))
	}
}

func bearerToken(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
