package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	routeRegister      = "/v1/auth/register"
	routeLogin         = "/v1/auth/login"
	routeRefresh       = "/v1/auth/refresh"
	routeResetPassword = "/v1/auth/reset-password"
	routeVerifyEmail   = "/v1/auth/verify-email"
	routeHealth        = "/health"
)

// RegisterPayload is the register form payload.
type RegisterPayload struct {
	Email           string `form:"email" json:"email"`
	DisplayName     string `form:"display_name" json:"displayName"`
	Phone           string `form:"phone_number" json:"phone,omitempty"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
		validation.Field(&r.Password, validation.Required, validation.By(PasswordPolicy)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// LoginPayload is the login form payload.
type LoginPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// ResetPasswordPayload carries the emailed token plus the replacement
// password. The new password satisfies the registration policy.
type ResetPasswordPayload struct {
	Token           string `form:"token" json:"token"`
	NewPassword     string `form:"new_password" json:"newPassword"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.By(PasswordPolicy)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

// VerifyEmailPayload carries the token from the verification link.
type VerifyEmailPayload struct {
	Token string `form:"token" json:"token"`
}

// Validate will run validation rules
func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

// AuthPayload is the success outcome of register/login. The refresh token
// travels only in the httpOnly cookie the server sets alongside this body;
// it is decoded and dropped, never surfaced.
type AuthPayload struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
}

// RefreshPayload is the success outcome of the implicit refresh exchange.
type RefreshPayload struct {
	AccessToken string `json:"accessToken"`
}

// MessagePayload is the confirmation body of reset-password/verify-email.
type MessagePayload struct {
	Message string `json:"message"`
}

// HealthPayload is the health probe body.
type HealthPayload struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// authWire matches the full server response. RefreshToken is deliberately
// not copied into AuthPayload.
type authWire struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}

// errorWire is the structured failure body the credential service returns.
type errorWire struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Exchange executes credential exchange operations over HTTP. Validation
// runs before any request leaves the process; a validation failure never
// reaches the network.
type Exchange struct {
	Debug        bool
	baseURL      string
	client       *http.Client
	logger       Logger
	activitySink ActivitySink
}

var _ Exchanger = (*Exchange)(nil)

// ExchangeOption customizes Exchange construction.
type ExchangeOption func(*Exchange)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) ExchangeOption {
	return func(e *Exchange) {
		if client != nil {
			e.client = client
		}
	}
}

// WithExchangeLogger overrides the logger.
func WithExchangeLogger(logger Logger) ExchangeOption {
	return func(e *Exchange) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExchangeActivitySink sets the sink used to record exchange failures.
func WithExchangeActivitySink(sink ActivitySink) ExchangeOption {
	return func(e *Exchange) {
		e.activitySink = normalizeActivitySink(sink)
	}
}

// WithExchangeDebug toggles request/response dumps.
func WithExchangeDebug(debug bool) ExchangeOption {
	return func(e *Exchange) {
		e.Debug = debug
	}
}

// NewExchange returns an Exchange targeting cfg.GetBaseURL().
func NewExchange(cfg Config, opts ...ExchangeOption) *Exchange {
	e := &Exchange{
		baseURL:      strings.TrimRight(cfg.GetBaseURL(), "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	return e
}

// Register creates an account. Success returns the access token and user;
// the caller is not fully authenticated until email verification where the
// server requires it (user.Status stays pending).
func (e *Exchange) Register(ctx context.Context, payload RegisterPayload) (*AuthPayload, error) {
	if err := payload.Validate(); err != nil {
		return nil, NewValidationError(FormatValidationErrorToMap(err))
	}

	wire := &authWire{}
	if err := e.post(ctx, routeRegister, payload, wire, ""); err != nil {
		return nil, err
	}

	return e.authPayload(wire)
}

// Login exchanges credentials for a session. Every server rejection maps to
// the same generic message so responses cannot be used to enumerate accounts.
func (e *Exchange) Login(ctx context.Context, payload LoginPayload) (*AuthPayload, error) {
	if err := payload.Validate(); err != nil {
		return nil, NewValidationError(FormatValidationErrorToMap(err))
	}

	wire := &authWire{}
	if err := e.post(ctx, routeLogin, payload, wire, ""); err != nil {
		if KindOf(err) == KindAuth {
			return nil, ErrAuthRejected
		}
		return nil, err
	}

	return e.authPayload(wire)
}

// Refresh asks the server to mint a new access token from the refresh
// cookie. Only server-side callers hold the cookie; a rejection means the
// session is gone and the consuming page must log out.
func (e *Exchange) Refresh(ctx context.Context, refreshCookie string) (*RefreshPayload, error) {
	if refreshCookie == "" {
		return nil, ErrSessionAbsent
	}

	out := &RefreshPayload{}
	if err := e.post(ctx, routeRefresh, struct{}{}, out, refreshCookie); err != nil {
		return nil, err
	}
	return out, nil
}

// ResetPassword finalizes a reset using the emailed token.
func (e *Exchange) ResetPassword(ctx context.Context, payload ResetPasswordPayload) (*MessagePayload, error) {
	if err := payload.Validate(); err != nil {
		return nil, NewValidationError(FormatValidationErrorToMap(err))
	}

	out := &MessagePayload{}
	if err := e.post(ctx, routeResetPassword, payload, out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyEmail confirms the account behind the emailed token.
func (e *Exchange) VerifyEmail(ctx context.Context, payload VerifyEmailPayload) (*MessagePayload, error) {
	if err := payload.Validate(); err != nil {
		return nil, NewValidationError(FormatValidationErrorToMap(err))
	}

	out := &MessagePayload{}
	if err := e.post(ctx, routeVerifyEmail, payload, out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// Health probes the credential service.
func (e *Exchange) Health(ctx context.Context) (*HealthPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+routeHealth, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not build health request")
	}

	out := &HealthPayload{}
	if err := e.do(req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Exchange) authPayload(wire *authWire) (*AuthPayload, error) {
	if wire.AccessToken == "" || wire.User == nil {
		return nil, goerrors.New("credential service returned an incomplete session", goerrors.CategoryInternal)
	}

	wire.User.EnsureStatus()

	return &AuthPayload{
		AccessToken: wire.AccessToken,
		User:        wire.User,
	}, nil
}

func (e *Exchange) post(ctx context.Context, route string, payload, out any, refreshCookie string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not encode request payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not build request")
	}
	req.Header.Set("Content-Type", "application/json")

	if refreshCookie != "" {
		req.AddCookie(&http.Cookie{Name: DefaultRefreshCookieName, Value: refreshCookie})
	}

	if e.Debug {
		fmt.Println("======= EXCHANGE " + route + " ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=====================================")
	}

	return e.do(req, out)
}

func (e *Exchange) do(req *http.Request, out any) error {
	res, err := e.client.Do(req)
	if err != nil {
		e.logger.Error("exchange transport failure", "route", req.URL.Path, "error", err)
		e.recordFailure(req.Context(), req.URL.Path, err)
		return NewNetworkError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		e.logger.Error("exchange response read failure", "route", req.URL.Path, "error", err)
		return NewNetworkError(err)
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			e.logger.Error("exchange response decode failure", "route", req.URL.Path, "error", err)
			return NewNetworkError(err)
		}
		return nil
	}

	return e.mapFailure(req, res.StatusCode, raw)
}

// mapFailure converts a non-2xx response into the closed error taxonomy:
// structured 4xx bodies become validation or auth errors, everything else
// the generic network error.
func (e *Exchange) mapFailure(req *http.Request, status int, raw []byte) error {
	wire := &errorWire{}
	structured := len(raw) > 0 && json.Unmarshal(raw, wire) == nil && (wire.Message != "" || len(wire.Errors) > 0)

	e.recordFailure(req.Context(), req.URL.Path, fmt.Errorf("status %d", status))

	if !structured {
		e.logger.Error("exchange failure without structured body", "route", req.URL.Path, "status", status)
		return NewNetworkError(fmt.Errorf("unexpected status %d", status))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthRejected
	case len(wire.Errors) > 0:
		return NewValidationError(wire.Errors)
	case status >= 400 && status < 500:
		return goerrors.New(wire.Message, goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	default:
		e.logger.Error("exchange server failure", "route", req.URL.Path, "status", status, "message", wire.Message)
		return NewNetworkError(fmt.Errorf("server failure %d", status))
	}
}

func (e *Exchange) recordFailure(ctx context.Context, route string, err error) {
	event := ActivityEvent{
		EventType: ActivityEventExchangeFailure,
		Metadata: map[string]any{
			"route": route,
			"error": err.Error(),
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(e.activitySink).Record(ctx, event); err != nil {
		e.logger.Warn("exchange activity sink error: %v", err)
	}
}
