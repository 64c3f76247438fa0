package session

import (
	"context"
	"errors"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// ClaimsInspector derives display facts from JWT access tokens without
// verifying signatures. The token is opaque to the client by contract; this
// reads the public claims for presentation only, it proves nothing.
type ClaimsInspector struct {
	now func() time.Time
}

var _ TokenInspector = (*ClaimsInspector)(nil)

// NewClaimsInspector returns the unverified-claims inspector.
func NewClaimsInspector() *ClaimsInspector {
	return &ClaimsInspector{now: time.Now}
}

// WithInspectorClock injects a custom clock (useful for tests).
func (i *ClaimsInspector) WithInspectorClock(clock func() time.Time) *ClaimsInspector {
	if clock != nil {
		i.now = clock
	}
	return i
}

// Inspect implements TokenInspector.
func (i *ClaimsInspector) Inspect(token string) (TokenFacts, error) {
	facts := TokenFacts{
		Present: token != "",
		Length:  len(token),
	}

	if token == "" {
		return facts, nil
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Opaque non-JWT tokens still yield presence and length.
		return facts, nil
	}

	if sub, err := claims.GetSubject(); err == nil {
		facts.Subject = sub
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		facts.ExpiresAt = &t
		facts.Expired = t.Before(i.now())
	}

	return facts, nil
}

// TokenValidator vets an access token and returns its claims. Validation is
// optional by design; the refresh cookie stays the gate's authority and a
// validator only adds an extra check for display routes.
type TokenValidator interface {
	Validate(tokenString string) (jwt.MapClaims, error)
}

// JWKSValidator verifies access tokens against the credential service's
// published JWK Set. Signing stays owned by the remote service; this only
// checks what the service already committed to.
type JWKSValidator struct {
	jwks   *keyfunc.JWKS
	logger Logger
}

var _ TokenValidator = (*JWKSValidator)(nil)

// NewJWKSValidator fetches the JWK Set at jwksURL with background refresh.
func NewJWKSValidator(ctx context.Context, jwksURL string, logger Logger) (*JWKSValidator, error) {
	if logger == nil {
		logger = defLogger{}
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:             ctx,
		RefreshInterval: time.Hour,
		RefreshErrorHandler: func(err error) {
			logger.Warn("jwks refresh error: %v", err)
		},
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not load JWK Set")
	}

	return &JWKSValidator{jwks: jwks, logger: logger}, nil
}

// Validate parses and verifies the token, returning its claims.
func (v *JWKSValidator) Validate(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, goerrors.New("access token is expired", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid access token").
			WithCode(goerrors.CodeUnauthorized)
	}

	if !token.Valid {
		return nil, goerrors.New("invalid access token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return claims, nil
}
