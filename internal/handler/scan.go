package handler // handler package contains checkpoint scan handlers

import (
	"context"  // request-scoped deadlines for DB calls
	"errors"   // errors.Is on sentinel values
	"net/http" // HTTP status codes
	"strings"  // trimming and case helpers

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/memberhub/internal/model"      // domain types
	"github.com/iliyamo/memberhub/internal/repository" // DB repositories
	"github.com/iliyamo/memberhub/internal/service"    // business rules
)

// ScanHandler serves the checkpoint endpoints: scans and scanner work
// sessions.  All routes are STAFF/ADMIN.
type ScanHandler struct {
	Checkin  *service.CheckinService // records and classifies scans
	Events   *repository.EventRepo
	Scans    *repository.ScanRepo
	Sessions *repository.ScanSessionRepo // scanner work periods
}

func NewScanHandler(checkin *service.CheckinService, events *repository.EventRepo, scans *repository.ScanRepo, sessions *repository.ScanSessionRepo) *ScanHandler {
	return &ScanHandler{Checkin: checkin, Events: events, Scans: scans, Sessions: sessions}
}

type scanReq struct {
	EventID       uint64  `json:"event_id"`
	BadgeCode     string  `json:"badge_code"`
	QR            string  `json:"qr"`
	ScanType      string  `json:"scan_type"`
	RoomID        *uint64 `json:"room_id"`
	SessionID     *uint64 `json:"session_id"`
	ScanSessionID *uint64 `json:"scan_session_id"`
	Location      string  `json:"location"`
}

// Record handles POST /v1/scans.
func (h *ScanHandler) Record(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body scanReq
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.EventID == 0 {
		return badRequest(c, "event_id is required")
	}
	scanType := strings.ToUpper(strings.TrimSpace(body.ScanType))
	if scanType == "" {
		scanType = model.ScanCheckIn
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := h.Checkin.Record(ctx, service.ScanRequest{
		ScannerID:     uid,
		EventID:       body.EventID,
		BadgeCode:     strings.TrimSpace(body.BadgeCode),
		QR:            strings.TrimSpace(body.QR),
		Type:          scanType,
		RoomID:        body.RoomID,
		SessionID:     body.SessionID,
		ScanSessionID: body.ScanSessionID,
		Location:      strings.TrimSpace(body.Location),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ListForEvent handles GET /v1/events/:id/scans?type&limit, newest first.
func (h *ScanHandler) ListForEvent(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	scanType := strings.ToUpper(strings.TrimSpace(c.QueryParam("type")))
	if scanType != "" && !model.ValidScanType(scanType) {
		return badRequest(c, "type must be CHECK_IN, CHECK_OUT or VERIFY")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		return writeError(c, err)
	}
	scans, err := h.Scans.ListForEvent(ctx, eventID, scanType, queryLimit(c, 100, 1000))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, scans)
}

// StartSession handles POST /v1/scan-sessions {event_id, location}.
func (h *ScanHandler) StartSession(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		EventID  uint64 `json:"event_id"`
		Location string `json:"location"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.EventID == 0 {
		return badRequest(c, "event_id is required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	ev, err := h.Events.GetByID(ctx, body.EventID)
	if err != nil {
		return writeError(c, err)
	}
	if ev.Status == model.EventCancelled {
		return writeError(c, service.ErrEventClosed)
	}
	s := model.ScanSession{ScannerID: uid, EventID: ev.ID, Location: strings.TrimSpace(body.Location)}
	if err := h.Sessions.Create(ctx, &s); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// EndSession handles POST /v1/scan-sessions/:id/end.  Ending twice is a
// conflict.
func (h *ScanHandler) EndSession(c echo.Context) error {
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
	if _, err := h.ownedSession(ctx, id, uid, role); err != nil {
		return writeError(c, err)
	}
	ended, err := h.Sessions.End(ctx, id)
	if errors.Is(err, repository.ErrConflict) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "scan session already ended"})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ended)
}

// GetSession handles GET /v1/scan-sessions/:id.
func (h *ScanHandler) GetSession(c echo.Context) error {
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
	s, err := h.ownedSession(ctx, id, uid, role)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// ListMySessions handles GET /v1/scan-sessions.
func (h *ScanHandler) ListMySessions(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	sessions, err := h.Sessions.ListByScanner(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// ownedSession loads a session for its scanner or an admin.
func (h *ScanHandler) ownedSession(ctx context.Context, id, uid uint64, role string) (model.ScanSession, error) {
	s, err := h.Sessions.GetByID(ctx, id)
	if err != nil {
		return model.ScanSession{}, err
	}
	if s.ScannerID != uid && role != model.RoleAdmin {
		return model.ScanSession{}, service.ErrNotOwner
	}
	return s, nil
}
