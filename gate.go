package session

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// TokenInfoKey is the request-local key under which the gate stores derived
// cookie facts. Handlers read facts, never the raw cookie value.
const TokenInfoKey = "session_token_info"

// Gate is the server session gate: a per-protected-route check that runs
// before any handler and either allows rendering or issues a redirect. A
// missing refresh cookie is a definitive "not authenticated" for that
// request; there are no retries.
type Gate struct {
	cfg          Config
	logger       Logger
	activitySink ActivitySink
	validator    TokenValidator
	ErrorHandler func(c router.Context, err error) error
}

// GateOption customizes Gate construction.
type GateOption func(*Gate)

// WithGateLogger overrides the logger.
func WithGateLogger(logger Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGateActivitySink sets the sink used to record rejected navigations.
func WithGateActivitySink(sink ActivitySink) GateOption {
	return func(g *Gate) {
		g.activitySink = normalizeActivitySink(sink)
	}
}

// WithGateTokenValidator installs an optional access token check on top of
// the cookie check. When a vetted request carries a bearer Authorization
// header the gate validates it and enriches the request-local facts; an
// invalid token rejects the navigation outright.
func WithGateTokenValidator(validator TokenValidator) GateOption {
	return func(g *Gate) {
		g.validator = validator
	}
}

// WithGateErrorHandler overrides what happens when the check fails. The
// default remembers the rejected URL and redirects to the sign-in route.
func WithGateErrorHandler(handler func(c router.Context, err error) error) GateOption {
	return func(g *Gate) {
		if handler != nil {
			g.ErrorHandler = handler
		}
	}
}

// NewGate builds a Gate from cfg.
func NewGate(cfg Config, opts ...GateOption) *Gate {
	g := &Gate{
		cfg:          cfg,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}

	g.ErrorHandler = g.defaultErrHandler

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// ProtectedRoute returns the middleware guarding a protected route. When
// the refresh cookie is present it surfaces TokenFacts in request locals
// and lets the handler run; the raw value never leaves the cookie jar.
func (g *Gate) ProtectedRoute() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			cookie := c.Cookies(g.cfg.GetRefreshCookieName())
			if cookie == "" {
				return g.ErrorHandler(c, ErrSessionAbsent)
			}

			facts := TokenFacts{
				Present: true,
				Length:  len(cookie),
			}

			if g.validator != nil {
				if token := bearerToken(c); token != "" {
					claims, err := g.validator.Validate(token)
					if err != nil {
						return g.ErrorHandler(c, err)
					}
					if sub, err := claims.GetSubject(); err == nil {
						facts.Subject = sub
					}
					if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
						expiresAt := exp.Time
						facts.ExpiresAt = &expiresAt
					}
				}
			}

			c.Locals(TokenInfoKey, facts)

			return next(c)
		}
	}
}

func bearerToken(c router.Context) string {
	const scheme = "Bearer"
	a := c.GetString(router.HeaderAuthorization, "")
	if len(a) > len(scheme)+1 && strings.EqualFold(a[:len(scheme)], scheme) {
		return strings.TrimSpace(a[len(scheme):])
	}
	return ""
}

// TokenInfoFromContext reads the facts the gate stored for this request.
func TokenInfoFromContext(c router.Context) (TokenFacts, bool) {
	raw := c.Locals(TokenInfoKey)
	if raw == nil {
		return TokenFacts{}, false
	}
	facts, ok := raw.(TokenFacts)
	return facts, ok
}

// SetRedirect remembers the rejected URL so login can send the visitor back.
func (g *Gate) SetRedirect(c router.Context) {
	rejectedRoute := g.cfg.GetRejectedRouteKey()

	g.logger.Info("Setting redirect cookie", "key", rejectedRoute, "path", c.OriginalURL())

	c.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect returns the remembered URL or def, clearing the cookie.
func (g *Gate) GetRedirect(c router.Context, def ...string) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	r := c.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(c, rejectedRoute)
	return r
}

// GetRedirectOrDefault falls back to the referer, then the configured default.
func (g *Gate) GetRedirectOrDefault(c router.Context) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	refererHeader := string(c.Referer())

	r := c.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(c, rejectedRoute)
	return r
}

func (g *Gate) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *Gate) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "An unexpected authentication error").
			WithCode(goerrors.CodeUnauthorized)
	}

	g.logger.Info(
		"Session gate rejecting navigation",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	g.recordRejection(c)
	g.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(g.cfg.GetSignInRoute(), statusCode)
}

func (g *Gate) recordRejection(c router.Context) {
	event := ActivityEvent{
		EventType: ActivityEventGateRejected,
		Metadata: map[string]any{
			"path": c.OriginalURL(),
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(g.activitySink).Record(c.Context(), event); err != nil {
		g.logger.Warn("gate activity sink error: %v", err)
	}
}
