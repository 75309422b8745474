package handler // handler package contains event catalog handlers

import (
	"errors"   // errors.Is on sentinel values
	"net/http" // HTTP status codes
	"strings"  // trimming and case helpers

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/memberhub/internal/model"      // domain types
	"github.com/iliyamo/memberhub/internal/repository" // DB repositories
)

// EventHandler serves the event catalog: events, their rooms and their
// sessions.
type EventHandler struct {
	Events *repository.EventRepo
}

func NewEventHandler(events *repository.EventRepo) *EventHandler {
	return &EventHandler{Events: events}
}

type eventReq struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	Venue            *string `json:"venue"`
	StartsAt         *string `json:"starts_at"`
	EndsAt           *string `json:"ends_at"`
	Capacity         *uint32 `json:"capacity"`
	ClearCapacity    bool    `json:"clear_capacity"`
	PriceCents       *uint32 `json:"price_cents"`
	RequiresApproval *bool   `json:"requires_approval"`
	Status           *string `json:"status"`
}

// apply copies the set fields of req onto e and validates the result.
func (req eventReq) apply(e *model.Event) string {
	if req.Title != nil {
		e.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		e.Description = strings.TrimSpace(*req.Description)
	}
	if req.Venue != nil {
		e.Venue = strings.TrimSpace(*req.Venue)
	}
	if req.StartsAt != nil {
		t, err := parseTime(*req.StartsAt)
		if err != nil || t.IsZero() {
			return "invalid starts_at format"
		}
		e.StartsAt = t
	}
	if req.EndsAt != nil {
		t, err := parseTime(*req.EndsAt)
		if err != nil || t.IsZero() {
			return "invalid ends_at format"
		}
		e.EndsAt = t
	}
	if req.Capacity != nil {
		e.Capacity = req.Capacity
	}
	if req.ClearCapacity {
		e.Capacity = nil
	}
	if req.PriceCents != nil {
		e.PriceCents = *req.PriceCents
	}
	if req.RequiresApproval != nil {
		e.RequiresApproval = *req.RequiresApproval
	}
	if req.Status != nil {
		e.Status = strings.ToUpper(strings.TrimSpace(*req.Status))
	}

	switch {
	case e.Title == "":
		return "title is required"
	case e.StartsAt.IsZero() || e.EndsAt.IsZero():
		return "starts_at and ends_at are required"
	case !e.EndsAt.After(e.StartsAt):
		return "ends_at must be after starts_at"
	}
	switch e.Status {
	case "", model.EventScheduled, model.EventCancelled, model.EventFinished:
	default:
		return "status must be SCHEDULED, CANCELLED or FINISHED"
	}
	return ""
}

// CreateEvent handles POST /v1/events (ADMIN).
func (h *EventHandler) CreateEvent(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ev := model.Event{OrganizerID: uid}
	if msg := req.apply(&ev); msg != "" {
		return badRequest(c, msg)
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Events.Create(ctx, &ev); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// UpdateEvent handles PATCH /v1/events/:id (ADMIN).  Omitted fields are
// left unchanged; clear_capacity removes the capacity ceiling.
func (h *EventHandler) UpdateEvent(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if msg := req.apply(&ev); msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Events.Update(ctx, &ev); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// ListEvents handles GET /v1/events?from&to&status&limit.
func (h *EventHandler) ListEvents(c echo.Context) error {
	from, err := parseTime(c.QueryParam("from"))
	if err != nil {
		return badRequest(c, "invalid from format")
	}
	to, err := parseTime(c.QueryParam("to"))
	if err != nil {
		return badRequest(c, "invalid to format")
	}
	status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))

	ctx, cancel := requestContext(c)
	defer cancel()
	events, err := h.Events.List(ctx, repository.EventFilter{
		From:   from,
		To:     to,
		Status: status,
		Limit:  queryLimit(c, 100, 500),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// GetEvent handles GET /v1/events/:id.
func (h *EventHandler) GetEvent(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// CreateRoom handles POST /v1/events/:id/rooms (ADMIN).
func (h *EventHandler) CreateRoom(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var body struct {
		Name     string  `json:"name"`
		Capacity *uint32 `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	room := model.Room{EventID: eventID, Name: strings.TrimSpace(body.Name), Capacity: body.Capacity}
	if room.Name == "" {
		return badRequest(c, "name is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		return writeError(c, err)
	}
	if err := h.Events.CreateRoom(ctx, &room); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "room name already used in this event"})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, room)
}

// ListRooms handles GET /v1/events/:id/rooms.
func (h *EventHandler) ListRooms(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		return writeError(c, err)
	}
	rooms, err := h.Events.ListRooms(ctx, eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rooms)
}

// CreateSession handles POST /v1/events/:id/sessions (ADMIN).  The room,
// when given, must belong to the event.
func (h *EventHandler) CreateSession(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var body struct {
		Title    string  `json:"title"`
		RoomID   *uint64 `json:"room_id"`
		StartsAt string  `json:"starts_at"`
		EndsAt   string  `json:"ends_at"`
		Capacity *uint32 `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ses := model.Session{EventID: eventID, RoomID: body.RoomID, Title: strings.TrimSpace(body.Title), Capacity: body.Capacity}
	if ses.Title == "" {
		return badRequest(c, "title is required")
	}
	var err error
	if ses.StartsAt, err = parseTime(body.StartsAt); err != nil || ses.StartsAt.IsZero() {
		return badRequest(c, "invalid starts_at format")
	}
	if ses.EndsAt, err = parseTime(body.EndsAt); err != nil || ses.EndsAt.IsZero() {
		return badRequest(c, "invalid ends_at format")
	}
	if !ses.EndsAt.After(ses.StartsAt) {
		return badRequest(c, "ends_at must be after starts_at")
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		return writeError(c, err)
	}
	if ses.RoomID != nil {
		room, err := h.Events.GetRoom(ctx, *ses.RoomID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && room.EventID != eventID) {
			return badRequest(c, "room is not part of this event")
		}
		if err != nil {
			return writeError(c, err)
		}
	}
	if err := h.Events.CreateSession(ctx, &ses); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, ses)
}

// ListSessions handles GET /v1/events/:id/sessions.
func (h *EventHandler) ListSessions(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		return writeError(c, err)
	}
	sessions, err := h.Events.ListSessions(ctx, eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}
