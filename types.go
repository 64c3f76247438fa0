package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialStore wraps durable client storage for the access token. The
// refresh token is owned by the credential service's httpOnly cookie and
// never passes through a store.
type CredentialStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// SessionManager exposes the controlled mutation surface of the in-memory
// session state. All transitions go through these methods, never through
// direct field writes.
type SessionManager interface {
	Initialize(ctx context.Context) (State, error)
	Login(ctx context.Context, user *User, accessToken string) error
	Logout(ctx context.Context) error
	UpdateUser(user *User)
	SetLoading(loading bool)
	SetError(message string)
	Snapshot() State
	Subscribe(fn Listener) func()
}

// Exchanger executes credential exchange operations against the remote
// credential service. Each call is one request/response cycle.
type Exchanger interface {
	Register(ctx context.Context, payload RegisterPayload) (*AuthPayload, error)
	Login(ctx context.Context, payload LoginPayload) (*AuthPayload, error)
	Refresh(ctx context.Context, refreshCookie string) (*RefreshPayload, error)
	ResetPassword(ctx context.Context, payload ResetPasswordPayload) (*MessagePayload, error)
	VerifyEmail(ctx context.Context, payload VerifyEmailPayload) (*MessagePayload, error)
	Health(ctx context.Context) (*HealthPayload, error)
}

// TokenInspector extracts display-safe facts from an access token without
// vouching for its validity. The client trusts server responses, not its
// own reading of the token.
type TokenInspector interface {
	Inspect(token string) (TokenFacts, error)
}

// Config holds session options
type Config interface {
	GetBaseURL() string
	GetRefreshCookieName() string
	GetStorageKey() string
	GetSignInRoute() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
	GetVerifyRedirectDelay() int
}

// SimpleConfig is a plain struct Config implementation.
type SimpleConfig struct {
	BaseURL              string `json:"base_url"`
	RefreshCookieName    string `json:"refresh_cookie_name"`
	StorageKey           string `json:"storage_key"`
	SignInRoute          string `json:"sign_in_route"`
	RejectedRouteKey     string `json:"rejected_route_key"`
	RejectedRouteDefault string `json:"rejected_route_default"`
	VerifyRedirectDelay  int    `json:"verify_redirect_delay"`
}

func (c SimpleConfig) GetBaseURL() string { return c.BaseURL }

func (c SimpleConfig) GetRefreshCookieName() string {
	if c.RefreshCookieName == "" {
		return DefaultRefreshCookieName
	}
	return c.RefreshCookieName
}

func (c SimpleConfig) GetStorageKey() string {
	if c.StorageKey == "" {
		return DefaultStorageKey
	}
	return c.StorageKey
}

func (c SimpleConfig) GetSignInRoute() string {
	if c.SignInRoute == "" {
		return "/"
	}
	return c.SignInRoute
}

func (c SimpleConfig) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return DefaultRejectedRouteKey
	}
	return c.RejectedRouteKey
}

func (c SimpleConfig) GetRejectedRouteDefault() string {
	if c.RejectedRouteDefault == "" {
		return "/"
	}
	return c.RejectedRouteDefault
}

func (c SimpleConfig) GetVerifyRedirectDelay() int {
	if c.VerifyRedirectDelay <= 0 {
		return DefaultVerifyRedirectDelay
	}
	return c.VerifyRedirectDelay
}

const (
	// DefaultRefreshCookieName is the httpOnly cookie set by the credential
	// service on register/login. Client code only ever tests its presence.
	DefaultRefreshCookieName = "refreshToken"
	// DefaultStorageKey is the credential store key for the access token.
	DefaultStorageKey = "accessToken"
	// DefaultRejectedRouteKey remembers where an unauthenticated visitor was headed.
	DefaultRejectedRouteKey = "rejected_route"
	// DefaultVerifyRedirectDelay is the seconds to wait before redirecting
	// after a successful email verification.
	DefaultVerifyRedirectDelay = 3
)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
