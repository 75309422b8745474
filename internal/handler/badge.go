package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/memberhub/internal/service"
)

// BadgeHandler exposes badge issuance, rendering and verification.
type BadgeHandler struct {
	Badges *service.BadgeService
}

func NewBadgeHandler(s *service.BadgeService) *BadgeHandler {
	return &BadgeHandler{Badges: s}
}

// IssueForRegistration handles POST /v1/registrations/:id/badge.  It
// answers 201 with a new badge or 200 with the existing active one.
func (h *BadgeHandler) IssueForRegistration(c echo.Context) error {
	uid, role, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	regID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	b, created, err := h.Badges.IssueForRegistration(ctx, uid, role, regID)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, b)
}

// Issue handles POST /v1/badges (ADMIN): a badge for any person, either
// for one event or person-wide when event_id is omitted.
func (h *BadgeHandler) Issue(c echo.Context) error {
	var body struct {
		UserID       uint64  `json:"user_id"`
		EventID      *uint64 `json:"event_id"`
		DisplayName  string  `json:"display_name"`
		Title        string  `json:"title"`
		Organization string  `json:"organization"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.UserID == 0 {
		return badRequest(c, "user_id is required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	b, err := h.Badges.Issue(ctx, service.IssueRequest{
		UserID:       body.UserID,
		EventID:      body.EventID,
		DisplayName:  body.DisplayName,
		Title:        body.Title,
		Organization: body.Organization,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// ListMine handles GET /v1/badges.
func (h *BadgeHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	badges, err := h.Badges.ListByUser(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, badges)
}

// Get handles GET /v1/badges/:code.
func (h *BadgeHandler) Get(c echo.Context) error {
	uid, role, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	b, err := h.Badges.Get(ctx, uid, role, c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// QRCode handles GET /v1/badges/:code/qr.png?size=N and renders the
// signed payload.
func (h *BadgeHandler) QRCode(c echo.Context) error {
	uid, role, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	size, _ := strconv.Atoi(c.QueryParam("size"))
	ctx, cancel := requestContext(c)
	defer cancel()
	b, err := h.Badges.Get(ctx, uid, role, c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	png, err := h.Badges.QRCode(b, size)
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=300")
	return c.Blob(http.StatusOK, "image/png", png)
}

// Deactivate handles POST /v1/badges/:code/deactivate (STAFF/ADMIN).
func (h *BadgeHandler) Deactivate(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	b, err := h.Badges.Deactivate(ctx, c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Verify handles POST /v1/badges/verify {payload}.  The answer is 200
// with valid=false for a bad or deactivated badge.
func (h *BadgeHandler) Verify(c echo.Context) error {
	var body struct {
		Payload string `json:"payload"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	payload := strings.TrimSpace(body.Payload)
	if payload == "" {
		return badRequest(c, "payload is required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := h.Badges.Verify(ctx, payload)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
