package identity

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/auth"
	"github.com/clinic/booking/pkg/pagination"
)

type Handler struct {
	svc          *Service
	secureCookie bool
}

// NewHandler builds the identity handler. secureCookie marks the session
// cookie Secure and should be set outside development.
func NewHandler(svc *Service, secureCookie bool) *Handler {
	return &Handler{svc: svc, secureCookie: secureCookie}
}

// RegisterRoutes mounts the routes. sessions holds the unauthenticated
// /api/auth routes; api must already authenticate.
func (h *Handler) RegisterRoutes(public, sessions, api *echo.Group) {
	public.GET("/doctors", h.ListPublicDoctors)

	sessions.POST("/register", h.Register)
	sessions.POST("/login", h.Login)

	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)

	api.GET("/doctors", h.ListDoctors, auth.RequireRole(auth.RoleReceptionist))
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "user registered successfully",
		"user":    u,
	})
}

func (h *Handler) Login(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return apperr.Validation("email and password are required")
	}
	session, err := h.svc.Login(c.Request().Context(), body.Email, body.Password)
	if err != nil {
		return err
	}
	auth.SetTokenCookie(c, session.Token, session.ExpiresAt, h.secureCookie)
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) Logout(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return apperr.Unauthorized("authentication required")
	}
	expiresAt, _ := c.Get(auth.TokenExpiresAtKey).(time.Time)
	h.svc.Logout(c.Request().Context(), p, expiresAt)
	auth.ClearTokenCookie(c, h.secureCookie)
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) Me(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return apperr.Unauthorized("authentication required")
	}
	u, err := h.svc.Me(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListPublicDoctors(c echo.Context) error {
	items, err := h.svc.ListPublicDoctors(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return apperr.Unauthorized("authentication required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), p, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}
