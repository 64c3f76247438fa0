package session_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func gateConfig() session.SimpleConfig {
	return session.SimpleConfig{
		SignInRoute: "/sign-in",
	}
}

func TestGateMissingCookieRedirects(t *testing.T) {
	gate := session.NewGate(gateConfig())

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRefreshCookieName).Return("")
	ctx.On("OriginalURL").Return("/dashboard")
	ctx.On("Context").Return(context.Background())
	ctx.On("Method").Return("GET")
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == session.DefaultRejectedRouteKey &&
			c.Value == "/dashboard" &&
			c.HTTPOnly
	})).Return()
	ctx.On("Redirect", "/sign-in", []int{http.StatusFound}).Return(nil)

	handlerRan := false
	handler := gate.ProtectedRoute()(func(c router.Context) error {
		handlerRan = true
		return nil
	})

	require.NoError(t, handler(ctx))
	assert.False(t, handlerRan, "protected handler must not run without the refresh cookie")
	ctx.AssertExpectations(t)
}

func TestGateMissingCookiePostUsesSeeOther(t *testing.T) {
	gate := session.NewGate(gateConfig())

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRefreshCookieName).Return("")
	ctx.On("OriginalURL").Return("/dashboard")
	ctx.On("Context").Return(context.Background())
	ctx.On("Method").Return("POST")
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", "/sign-in", []int{http.StatusSeeOther}).Return(nil)

	handler := gate.ProtectedRoute()(func(c router.Context) error { return nil })
	require.NoError(t, handler(ctx))
	ctx.AssertExpectations(t)
}

func TestGateCookiePresentRunsHandler(t *testing.T) {
	gate := session.NewGate(gateConfig())

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRefreshCookieName).Return("opaque-refresh-value")
	ctx.On("Locals", session.TokenInfoKey, mock.MatchedBy(func(facts session.TokenFacts) bool {
		return facts.Present && facts.Length == len("opaque-refresh-value")
	})).Return(nil)

	handlerRan := false
	handler := gate.ProtectedRoute()(func(c router.Context) error {
		handlerRan = true
		return nil
	})

	require.NoError(t, handler(ctx))
	assert.True(t, handlerRan)
	ctx.AssertExpectations(t)
}

func TestGateCustomErrorHandler(t *testing.T) {
	var gotErr error
	gate := session.NewGate(gateConfig(), session.WithGateErrorHandler(func(c router.Context, err error) error {
		gotErr = err
		return c.SendString("blocked")
	}))

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRefreshCookieName).Return("")
	ctx.On("SendString", "blocked").Return(nil)

	handler := gate.ProtectedRoute()(func(c router.Context) error { return nil })
	require.NoError(t, handler(ctx))

	require.ErrorIs(t, gotErr, session.ErrSessionAbsent)
	ctx.AssertExpectations(t)
}

func TestGateRejectionRecordsActivity(t *testing.T) {
	var events []session.ActivityEvent
	sink := session.ActivitySinkFunc(func(_ context.Context, event session.ActivityEvent) error {
		events = append(events, event)
		return nil
	})

	gate := session.NewGate(gateConfig(), session.WithGateActivitySink(sink))

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRefreshCookieName).Return("")
	ctx.On("OriginalURL").Return("/reports/weekly")
	ctx.On("Context").Return(context.Background())
	ctx.On("Method").Return("GET")
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", "/sign-in", []int{http.StatusFound}).Return(nil)

	handler := gate.ProtectedRoute()(func(c router.Context) error { return nil })
	require.NoError(t, handler(ctx))

	require.Len(t, events, 1)
	assert.Equal(t, session.ActivityEventGateRejected, events[0].EventType)
	assert.Equal(t, "/reports/weekly", events[0].Metadata["path"])
}

func TestTokenInfoFromContext(t *testing.T) {
	ctx := &MockContext{}
	ctx.On("Locals", session.TokenInfoKey).Return(session.TokenFacts{Present: true, Length: 12})

	facts, ok := session.TokenInfoFromContext(ctx)
	require.True(t, ok)
	assert.True(t, facts.Present)
	assert.Equal(t, 12, facts.Length)

	empty := &MockContext{}
	empty.On("Locals", session.TokenInfoKey).Return(nil)
	_, ok = session.TokenInfoFromContext(empty)
	assert.False(t, ok)
}

func TestGateGetRedirect(t *testing.T) {
	gate := session.NewGate(gateConfig())

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRejectedRouteKey).Return("/reports/weekly")
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == session.DefaultRejectedRouteKey &&
			c.Value == "" &&
			c.Expires.Before(time.Now())
	})).Return()

	assert.Equal(t, "/reports/weekly", gate.GetRedirect(ctx, "/"))
	ctx.AssertExpectations(t)
}

type validatorStub struct {
	calls  int
	claims jwt.MapClaims
	err    error
}

func (v *validatorStub) Validate(tokenString string) (jwt.MapClaims, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func TestGateValidatorEnrichesTokenFacts(t *testing.T) {
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	stub := &validatorStub{claims: jwt.MapClaims{
		"sub": "user-42",
		"exp": float64(expires.Unix()),
	}}
	gate := session.NewGate(gateConfig(), session.WithGateTokenValidator(stub))

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRefreshCookieName).Return("opaque-refresh-value")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer vetted-access-token")
	ctx.On("Locals", session.TokenInfoKey, mock.MatchedBy(func(facts session.TokenFacts) bool {
		return facts.Present &&
			facts.Subject == "user-42" &&
			facts.ExpiresAt != nil &&
			facts.ExpiresAt.Equal(expires)
	})).Return(nil)

	handlerRan := false
	handler := gate.ProtectedRoute()(func(c router.Context) error {
		handlerRan = true
		return nil
	})

	require.NoError(t, handler(ctx))
	assert.True(t, handlerRan)
	assert.Equal(t, 1, stub.calls)
	ctx.AssertExpectations(t)
}

func TestGateValidatorRejectsBadToken(t *testing.T) {
	stub := &validatorStub{err: errors.New("token signature is invalid")}

	var gotErr error
	gate := session.NewGate(gateConfig(),
		session.WithGateTokenValidator(stub),
		session.WithGateErrorHandler(func(c router.Context, err error) error {
			gotErr = err
			return c.SendString("blocked")
		}))

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRefreshCookieName).Return("opaque-refresh-value")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer forged-access-token")
	ctx.On("SendString", "blocked").Return(nil)

	handlerRan := false
	handler := gate.ProtectedRoute()(func(c router.Context) error {
		handlerRan = true
		return nil
	})

	require.NoError(t, handler(ctx))
	assert.False(t, handlerRan, "handler must not run behind a rejected access token")
	require.ErrorIs(t, gotErr, stub.err)
	assert.Equal(t, 1, stub.calls)
	ctx.AssertNotCalled(t, "Locals", session.TokenInfoKey, mock.Anything)
}

func TestGateValidatorSkippedWithoutBearerHeader(t *testing.T) {
	stub := &validatorStub{claims: jwt.MapClaims{"sub": "never-read"}}
	gate := session.NewGate(gateConfig(), session.WithGateTokenValidator(stub))

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRefreshCookieName).Return("opaque-refresh-value")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("")
	ctx.On("Locals", session.TokenInfoKey, mock.MatchedBy(func(facts session.TokenFacts) bool {
		return facts.Present && facts.Subject == ""
	})).Return(nil)

	handlerRan := false
	handler := gate.ProtectedRoute()(func(c router.Context) error {
		handlerRan = true
		return nil
	})

	require.NoError(t, handler(ctx))
	assert.True(t, handlerRan, "the refresh cookie alone still admits the request")
	assert.Equal(t, 0, stub.calls)
	ctx.AssertExpectations(t)
}

func TestGateGetRedirectFallsBack(t *testing.T) {
	gate := session.NewGate(gateConfig())

	ctx := &MockContext{}
	ctx.On("Cookies", session.DefaultRejectedRouteKey).Return("")

	assert.Equal(t, "/home", gate.GetRedirect(ctx, "/home"))
	assert.Equal(t, "/", gate.GetRedirect(ctx), "configured default wins when no override given")
}
