package handler // handler package contains registration handlers

import (
	"net/http" // HTTP status codes
	"strings"  // trimming and case helpers

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/memberhub/internal/model"   // domain types
	"github.com/iliyamo/memberhub/internal/service" // business rules
)

// RegistrationHandler exposes event registrations.
type RegistrationHandler struct {
	Registrations *service.RegistrationService
}

func NewRegistrationHandler(s *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{Registrations: s}
}

type registrationResp struct {
	Registration model.Registration `json:"registration"`
	Badge        *model.Badge       `json:"badge,omitempty"`
}

// Register handles POST /v1/events/:id/registrations for the caller.
func (h *RegistrationHandler) Register(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var body struct {
		Roles        []string `json:"roles"`
		ReferralCode string   `json:"referral_code"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	reg, badge, err := h.Registrations.Register(ctx, uid, eventID, service.RegisterInput{
		Roles:        body.Roles,
		ReferralCode: body.ReferralCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, registrationResp{Registration: reg, Badge: badge})
}

// ListMine handles GET /v1/registrations.
func (h *RegistrationHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	regs, err := h.Registrations.ListMine(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, regs)
}

// Get handles GET /v1/registrations/:id.
func (h *RegistrationHandler) Get(c echo.Context) error {
	uid, role, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	reg, err := h.Registrations.Get(ctx, uid, role, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, reg)
}

// Update handles PATCH /v1/registrations/:id.  Admins edit status,
// payment_status and roles; registrants may only cancel.
func (h *RegistrationHandler) Update(c echo.Context) error {
	uid, role, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var body struct {
		Status        *string  `json:"status"`
		PaymentStatus *string  `json:"payment_status"`
		Roles         []string `json:"roles"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	up := service.RegistrationUpdate{Roles: body.Roles}
	if body.Status != nil {
		s := strings.ToUpper(strings.TrimSpace(*body.Status))
		up.Status = &s
	}
	if body.PaymentStatus != nil {
		s := strings.ToUpper(strings.TrimSpace(*body.PaymentStatus))
		up.PaymentStatus = &s
	}
	return h.update(c, uid, role, id, up)
}

// Cancel handles POST /v1/registrations/:id/cancel.
func (h *RegistrationHandler) Cancel(c echo.Context) error {
	uid, role, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	status := model.RegCancelled
	return h.update(c, uid, role, id, service.RegistrationUpdate{Status: &status})
}

func (h *RegistrationHandler) update(c echo.Context, uid uint64, role string, id uint64, up service.RegistrationUpdate) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	reg, badge, err := h.Registrations.Update(ctx, uid, role, id, up)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, registrationResp{Registration: reg, Badge: badge})
}

// ListForEvent handles GET /v1/events/:id/registrations?status (STAFF/ADMIN).
func (h *RegistrationHandler) ListForEvent(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	ctx, cancel := requestContext(c)
	defer cancel()
	regs, err := h.Registrations.ListForEvent(ctx, eventID, status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, regs)
}
