package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/contextkeys"
	"github.com/1qh/nexvex/pkg/httputil"
)

// DefaultUserHeader carries the caller id set by a trusted proxy
const DefaultUserHeader = "X-User-ID"

// ErrInvalidCredentials is returned when credentials are present but not valid
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator identifies the caller of a request. It returns an empty
// user id and no error when the request carries no credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(r *http.Request) (string, error)

// Authenticate calls f(r)
func (f AuthenticatorFunc) Authenticate(r *http.Request) (string, error) {
	return f(r)
}

// HeaderAuthenticator trusts a user id header set by an authenticating proxy
type HeaderAuthenticator struct {
	Header string
}

// NewHeaderAuthenticator creates an authenticator reading header, or
// X-User-ID when header is empty
func NewHeaderAuthenticator(header string) *HeaderAuthenticator {
	if header == "" {
		header = DefaultUserHeader
	}
	return &HeaderAuthenticator{Header: header}
}

// Authenticate returns the trimmed header value
func (a *HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	return strings.TrimSpace(r.Header.Get(a.Header)), nil
}

// OIDCAuthenticator verifies bearer ID tokens issued by an OpenID Connect
// provider and identifies the caller by a claim, the subject by default
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
	claim    string
}

// OIDCOption configures an OIDCAuthenticator
type OIDCOption func(*OIDCAuthenticator)

// WithUserClaim identifies callers by claim instead of the token subject
func WithUserClaim(claim string) OIDCOption {
	return func(a *OIDCAuthenticator) {
		a.claim = claim
	}
}

// NewOIDCAuthenticator discovers the provider at issuerURL and verifies
// tokens issued for clientID
func NewOIDCAuthenticator(ctx context.Context, issuerURL, clientID string, opts ...OIDCOption) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return NewOIDCAuthenticatorWithVerifier(provider.Verifier(&oidc.Config{ClientID: clientID}), opts...), nil
}

// NewOIDCAuthenticatorWithVerifier wraps an existing verifier
func NewOIDCAuthenticatorWithVerifier(verifier *oidc.IDTokenVerifier, opts ...OIDCOption) *OIDCAuthenticator {
	a := &OIDCAuthenticator{verifier: verifier}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate verifies the bearer token of r
func (a *OIDCAuthenticator) Authenticate(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}

	// Format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidCredentials)
	}

	idToken, err := a.verifier.Verify(r.Context(), parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if a.claim == "" {
		return idToken.Subject, nil
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidCredentials, err)
	}
	userID, _ := claims[a.claim].(string)
	if userID == "" {
		return "", fmt.Errorf("%w: claim %s is missing", ErrInvalidCredentials, a.claim)
	}
	return userID, nil
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	authenticator Authenticator
	optional      bool // If true, allow requests without credentials
}

// NewAuthMiddleware creates a new authentication middleware. With optional
// set, anonymous requests reach the handler, which decides whether an
// identity is needed.
func NewAuthMiddleware(authenticator Authenticator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		optional:      optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.authenticator.Authenticate(r)
		if err != nil {
			httputil.WriteAppError(w, r, apperr.Wrap(apperr.CodeNotAuthenticated, err))
			return
		}
		if userID == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteAppError(w, r, apperr.New(apperr.CodeNotAuthenticated))
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithUserID(r.Context(), userID)))
	})
}
