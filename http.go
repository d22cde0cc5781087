package identity

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// HTTPControllerRoutes holds the route paths for the JSON API.
type HTTPControllerRoutes struct {
	Signup         string
	ConfirmSignup  string
	ResendCode     string
	Login          string
	ForgotPassword string
	ResetPassword  string
	ChangePassword string
	Refresh        string
}

// HTTPController exposes the lifecycle operations as a JSON API. It binds and
// forwards; all policy lives in the Accounts service.
type HTTPController struct {
	Accounts *Accounts
	Logger   Logger
	Routes   *HTTPControllerRoutes
}

// NewHTTPController builds a controller with default routes.
func NewHTTPController(accounts *Accounts) *HTTPController {
	return &HTTPController{
		Accounts: accounts,
		Logger:   defLogger{},
		Routes: &HTTPControllerRoutes{
			Signup:         "/auth/signup",
			ConfirmSignup:  "/auth/signup/confirm",
			ResendCode:     "/auth/signup/resend",
			Login:          "/auth/login",
			ForgotPassword: "/auth/password/forgot",
			ResetPassword:  "/auth/password/reset",
			ChangePassword: "/auth/password/change",
			Refresh:        "/auth/refresh",
		},
	}
}

// RegisterRoutes mounts the lifecycle endpoints on the app.
func RegisterRoutes(app *fiber.App, controller *HTTPController) {
	app.Post(controller.Routes.Signup, controller.SignupPost)
	app.Post(controller.Routes.ConfirmSignup, controller.ConfirmSignupPost)
	app.Post(controller.Routes.ResendCode, controller.ResendCodePost)
	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost)
	app.Post(controller.Routes.ResetPassword, controller.ResetPasswordPost)
	app.Post(controller.Routes.ChangePassword, controller.ChangePasswordPost)
	app.Post(controller.Routes.Refresh, controller.RefreshPost)
}

func (h *HTTPController) SignupPost(c *fiber.Ctx) error {
	payload := new(SignupInput)
	if err := c.BodyParser(payload); err != nil {
		return h.renderError(c, badPayload(err))
	}

	projection, err := h.Accounts.Signup(c.UserContext(), *payload)
	if err != nil {
		return h.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(projection)
}

func (h *HTTPController) ConfirmSignupPost(c *fiber.Ctx) error {
	payload := new(ConfirmSignupInput)
	if err := c.BodyParser(payload); err != nil {
		return h.renderError(c, badPayload(err))
	}

	if err := h.Accounts.ConfirmSignup(c.UserContext(), *payload); err != nil {
		return h.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPController) ResendCodePost(c *fiber.Ctx) error {
	payload := new(EmailOnlyInput)
	if err := c.BodyParser(payload); err != nil {
		return h.renderError(c, badPayload(err))
	}

	if err := h.Accounts.ResendConfirmationCode(c.UserContext(), *payload); err != nil {
		return h.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginInput)
	if err := c.BodyParser(payload); err != nil {
		return h.renderError(c, badPayload(err))
	}

	pair, err := h.Accounts.Login(c.UserContext(), *payload)
	if err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(pair)
}

func (h *HTTPController) ForgotPasswordPost(c *fiber.Ctx) error {
	payload := new(EmailOnlyInput)
	if err := c.BodyParser(payload); err != nil {
		return h.renderError(c, badPayload(err))
	}

	if err := h.Accounts.ForgotPassword(c.UserContext(), *payload); err != nil {
		return h.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPController) ResetPasswordPost(c *fiber.Ctx) error {
	payload := new(ResetPasswordInput)
	if err := c.BodyParser(payload); err != nil {
		return h.renderError(c, badPayload(err))
	}

	if err := h.Accounts.ResetPassword(c.UserContext(), *payload); err != nil {
		return h.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPController) ChangePasswordPost(c *fiber.Ctx) error {
	payload := new(ChangePasswordInput)
	if err := c.BodyParser(payload); err != nil {
		return h.renderError(c, badPayload(err))
	}

	payload.AccessToken = bearerToken(c)

	if err := h.Accounts.ChangePassword(c.UserContext(), *payload); err != nil {
		return h.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPController) RefreshPost(c *fiber.Ctx) error {
	payload := new(RefreshInput)
	if err := c.BodyParser(payload); err != nil {
		return h.renderError(c, badPayload(err))
	}

	pair, err := h.Accounts.RefreshToken(c.UserContext(), *payload)
	if err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(pair)
}

func (h *HTTPController) renderError(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		h.Logger.Error("unhandled error", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{"message": "internal error"},
		})
	}

	status := statusForCategory(richErr.Category)
	if status >= fiber.StatusInternalServerError {
		h.Logger.Error("request failed", "error", err)
	}

	body := fiber.Map{"message": richErr.Message}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return c.Status(status).JSON(fiber.Map{"error": body})
}

func statusForCategory(category errors.Category) int {
	switch category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return fiber.StatusBadRequest
	case errors.CategoryAuth:
		return fiber.StatusUnauthorized
	case errors.CategoryNotFound:
		return fiber.StatusNotFound
	case errors.CategoryConflict:
		return fiber.StatusConflict
	case errors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func badPayload(err error) error {
	return errors.Wrap(err, errors.CategoryBadInput, "failed to parse request body")
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
