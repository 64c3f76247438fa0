package session

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// Version is stamped into health responses.
var Version = "0.1.0"

// RegisterSessionRoutes wires the account controller into the given router.
func RegisterSessionRoutes[T any](app router.Router[T], opts ...AccountControllerOption) {

	controller := NewAccountController(opts...)

	app.
		Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")

	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetShow).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetExecute).
		SetName("pwd-reset.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.VerifyEmail), controller.VerifyEmailExecute).
		SetName("verify-email.get")

	app.Get(controller.Routes.Health, controller.HealthShow).
		SetName("health.get")

	app.Get(
		controller.Routes.Dashboard,
		controller.Gate.ProtectedRoute()(controller.DashboardShow),
	).SetName("dashboard.get")
}

type AccountControllerRoutes struct {
	Login         string
	Logout        string
	Register      string
	PasswordReset string
	VerifyEmail   string
	Dashboard     string
	Health        string
}

type AccountControllerViews struct {
	Login         string
	Register      string
	PasswordReset string
	VerifyEmail   string
	Dashboard     string
}

type AccountController struct {
	Debug        bool
	Logger       Logger
	Manager      SessionManager
	Exchange     Exchanger
	Gate         *Gate
	Config       Config
	Routes       *AccountControllerRoutes
	Views        *AccountControllerViews
	ErrorHandler router.ErrorHandler
}

type AccountControllerOption func(*AccountController) *AccountController

// WithControllerManager sets the session manager.
func WithControllerManager(m SessionManager) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Manager = m
		return c
	}
}

// WithControllerExchange sets the exchange client.
func WithControllerExchange(e Exchanger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Exchange = e
		return c
	}
}

// WithControllerGate sets the server session gate.
func WithControllerGate(g *Gate) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Gate = g
		return c
	}
}

// WithControllerConfig sets the config.
func WithControllerConfig(cfg Config) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Config = cfg
		return c
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(l Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

// WithControllerDebug toggles payload dumps.
func WithControllerDebug(debug bool) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Debug = debug
		return c
	}
}

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AccountControllerRoutes{
			Login:         "/login",
			Logout:        "/logout",
			Register:      "/register",
			PasswordReset: "/password-reset",
			VerifyEmail:   "/verify-email",
			Dashboard:     "/dashboard",
			Health:        "/health",
		},
		Views: &AccountControllerViews{
			Login:         "login",
			Register:      "register",
			PasswordReset: "password_reset",
			VerifyEmail:   "verify_email",
			Dashboard:     "dashboard",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Config == nil {
		c.Config = SimpleConfig{}
	}

	if c.Manager == nil {
		panic("Missing SessionManager in account controller...")
	}

	if c.Exchange == nil {
		panic("Missing Exchanger in account controller...")
	}

	if c.Gate == nil {
		c.Gate = NewGate(c.Config)
	}

	return c
}

func (a *AccountController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

func (a *AccountController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)
	errors := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= SESSION LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	res, err := withLoading(a, func() (*AuthPayload, error) {
		return a.Exchange.Login(ctx.Context(), *payload)
	})
	if err != nil {
		// One generic message regardless of whether the account exists.
		errors["authentication"] = UserMessage(err)
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errors,
			"record": payload,
		})
	}

	if err := a.Manager.Login(ctx.Context(), res.User, res.AccessToken); err != nil {
		a.Logger.Warn("login durable write failed: ", "error", err)
	}

	redirect := a.Gate.GetRedirect(ctx, "/")
	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AccountController) LogOut(ctx router.Context) error {
	if err := a.Manager.Logout(ctx.Context()); err != nil {
		a.Logger.Error("logout error: ", "error", err)
	}
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AccountController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterPayload{},
	})
}

func (a *AccountController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		errors := map[string]string{}
		errors["form"] = "Failed to parse form"
		a.Logger.Error("register parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errors,
			"record": payload,
		})
	}

	res, err := withLoading(a, func() (*AuthPayload, error) {
		return a.Exchange.Register(ctx.Context(), *payload)
	})
	if err != nil {
		a.Logger.Error("register user error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Error registering account",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FieldErrors(err),
			"errors":     []string{UserMessage(err)},
		})
	}

	if err := a.Manager.Login(ctx.Context(), res.User, res.AccessToken); err != nil {
		a.Logger.Warn("register durable write failed: ", "error", err)
	}

	// The token is stored either way; unverified accounts land on the
	// verification notice instead of the dashboard.
	if res.User != nil && !res.User.EmailVerified {
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "Account created, check your email to verify it",
		}).Render(a.Views.VerifyEmail, router.ViewContext{
			"status": VerifyStatusPending,
			"email":  res.User.Email,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Successful user registration",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountController) PasswordResetShow(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"record": ResetPasswordPayload{
			Token: ctx.Query("token", ""),
		},
	})
}

func (a *AccountController) PasswordResetExecute(ctx router.Context) error {
	errors := map[string]string{}
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		errors["form"] = "Failed to parse form"
		a.Logger.Error("password reset parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errors,
			"record": payload,
		})
	}

	res, err := withLoading(a, func() (*MessagePayload, error) {
		return a.Exchange.ResetPassword(ctx.Context(), *payload)
	})
	if err != nil {
		a.Logger.Error("password reset error: ", "error", err)
		// The form keeps the entered token so the visitor can retry.
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Error resetting password",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     ResetPasswordPayload{Token: payload.Token},
			"validation": FieldErrors(err),
			"errors":     []string{UserMessage(err)},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": res.Message,
	}).Redirect(a.Config.GetSignInRoute(), fiber.StatusSeeOther)
}

func (a *AccountController) VerifyEmailExecute(ctx router.Context) error {
	token := ctx.Param("token", "")

	res, err := withLoading(a, func() (*MessagePayload, error) {
		return a.Exchange.VerifyEmail(ctx.Context(), VerifyEmailPayload{Token: token})
	})
	if err != nil {
		a.Logger.Error("verify email error: ", "error", err)
		// Error status, no redirect scheduled.
		return ctx.Render(a.Views.VerifyEmail, router.ViewContext{
			"status":  VerifyStatusError,
			"message": UserMessage(err),
		})
	}

	if state := a.Manager.Snapshot(); state.User != nil {
		verified := *state.User
		verified.EmailVerified = true
		if verified.Status == UserStatusPending {
			verified.Status = UserStatusActive
		}
		a.Manager.UpdateUser(&verified)
	}

	return ctx.Render(a.Views.VerifyEmail, router.ViewContext{
		"status":         VerifyStatusSuccess,
		"message":        res.Message,
		"redirect":       "/",
		"redirect_delay": a.Config.GetVerifyRedirectDelay(),
	})
}

func (a *AccountController) DashboardShow(ctx router.Context) error {
	state := a.Manager.Snapshot()

	role := RoleGuest
	if state.User != nil {
		role, _ = ParseRole(state.User.Role)
	}

	facts, _ := TokenInfoFromContext(ctx)

	return ctx.Render(a.Views.Dashboard, router.ViewContext{
		"session":      state,
		"capabilities": CapabilitiesFor(role),
		"token_info":   facts,
	})
}

func (a *AccountController) HealthShow(ctx router.Context) error {
	return ctx.JSON(fiber.StatusOK, HealthPayload{
		Status:    "ok",
		Version:   Version,
		Timestamp: time.Now().UTC(),
	})
}

// withLoading brackets an exchange with the loading flag. The deferred exit
// path guarantees loading never sticks true, whatever the outcome; an error
// outcome is recorded on the session before being returned.
func withLoading[T any](a *AccountController, run func() (T, error)) (out T, err error) {
	a.Manager.SetLoading(true)
	defer func() {
		if err != nil {
			a.Manager.SetError(UserMessage(err))
		} else {
			a.Manager.SetLoading(false)
		}
	}()

	out, err = run()
	return out, err
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
