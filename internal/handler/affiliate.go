package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/memberhub/internal/service"
)

// AffiliateHandler exposes the referral program.
type AffiliateHandler struct {
	Affiliates *service.AffiliateService
}

func NewAffiliateHandler(s *service.AffiliateService) *AffiliateHandler {
	return &AffiliateHandler{Affiliates: s}
}

// Enroll handles POST /v1/affiliates.  Enrolling twice returns the
// existing affiliate with 200.
func (h *AffiliateHandler) Enroll(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	stats, created, err := h.Affiliates.Enroll(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, stats)
}

// Me handles GET /v1/affiliates/me: code, referral count and commission.
func (h *AffiliateHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	stats, err := h.Affiliates.Me(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
