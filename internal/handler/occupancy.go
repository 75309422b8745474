package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/memberhub/internal/repository"
	"github.com/iliyamo/memberhub/internal/service"
)

// defaultBucket is the sampling step of occupancy history.
const defaultBucket = 15 * time.Minute

// OccupancyHandler serves current and historical occupancy.
type OccupancyHandler struct {
	Occupancy *service.OccupancyService
	Events    *repository.EventRepo // event lookups for 404s
}

func NewOccupancyHandler(s *service.OccupancyService, events *repository.EventRepo) *OccupancyHandler {
	return &OccupancyHandler{Occupancy: s, Events: events}
}

// Current handles GET /v1/events/:id/occupancy.
func (h *OccupancyHandler) Current(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	occ, err := h.Occupancy.Current(ctx, eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, occ)
}

// History handles GET /v1/events/:id/occupancy/history?from&to&bucket&room_id.
// from defaults to the event start, to to the earlier of now and the
// event end.
func (h *OccupancyHandler) History(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	from, err := parseTime(c.QueryParam("from"))
	if err != nil {
		return badRequest(c, "invalid from format")
	}
	to, err := parseTime(c.QueryParam("to"))
	if err != nil {
		return badRequest(c, "invalid to format")
	}
	bucket := defaultBucket
	if raw := c.QueryParam("bucket"); raw != "" {
		if bucket, err = time.ParseDuration(raw); err != nil || bucket < time.Minute {
			return badRequest(c, "bucket must be a duration of at least 1m")
		}
	}
	var roomID *uint64
	if raw := c.QueryParam("room_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return badRequest(c, "invalid room_id")
		}
		roomID = &id
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	if from.IsZero() || to.IsZero() {
		ev, err := h.Events.GetByID(ctx, eventID)
		if err != nil {
			return writeError(c, err)
		}
		if from.IsZero() {
			from = ev.StartsAt
		}
		if to.IsZero() {
			to = ev.EndsAt
			if now := time.Now().UTC(); now.After(from) && now.Before(to) {
				to = now
			}
		}
	}
	points, err := h.Occupancy.History(ctx, eventID, roomID, from, to, bucket)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id": eventID,
		"room_id":  roomID,
		"bucket":   bucket.String(),
		"points":   points,
	})
}

// Snapshots handles GET /v1/events/:id/occupancy/snapshots?from&to&limit.
func (h *OccupancyHandler) Snapshots(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	from, err := parseTime(c.QueryParam("from"))
	if err != nil {
		return badRequest(c, "invalid from format")
	}
	to, err := parseTime(c.QueryParam("to"))
	if err != nil {
		return badRequest(c, "invalid to format")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	snaps, err := h.Occupancy.ListSnapshots(ctx, eventID, from, to, queryLimit(c, 500, 5000))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, snaps)
}
