package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/memberhub/internal/metrics"
	"github.com/iliyamo/memberhub/internal/model"
	"github.com/iliyamo/memberhub/internal/repository"
)

// MaxHistoryPoints bounds the length of an occupancy time series.
const MaxHistoryPoints = 1000

// RoomOccupancy is the number of persons present in one room.
type RoomOccupancy struct {
	RoomID    uint64  `json:"room_id"`
	Name      string  `json:"name"`
	Occupancy uint32  `json:"occupancy"`
	Capacity  *uint32 `json:"capacity"`
}

// SessionOccupancy is the number of persons who checked in for a session
// and have not checked out since.
type SessionOccupancy struct {
	SessionID uint64  `json:"session_id"`
	Title     string  `json:"title"`
	Occupancy uint32  `json:"occupancy"`
	Capacity  *uint32 `json:"capacity"`
}

// Occupancy is the current head count of an event.
type Occupancy struct {
	EventID    uint64             `json:"event_id"`
	Total      uint32             `json:"total"`
	Capacity   *uint32            `json:"capacity"`
	Rooms      []RoomOccupancy    `json:"rooms"`
	Sessions   []SessionOccupancy `json:"sessions"`
	ComputedAt time.Time          `json:"computed_at"`
}

// Point is one sample of an occupancy time series.
type Point struct {
	At        time.Time `json:"at"`
	Occupancy uint32    `json:"occupancy"`
}

// OccupancyService computes current and historical occupancy from the
// scan log.  Cache may be nil.
type OccupancyService struct {
	Events    *repository.EventRepo
	Scans     *repository.ScanRepo
	Snapshots *repository.SnapshotRepo
	Cache     *redis.Client
	CacheTTL  time.Duration
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

func (s *OccupancyService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *OccupancyService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func occupancyKey(eventID uint64) string { return fmt.Sprintf("occupancy:%d", eventID) }

// Current returns the event's occupancy, served from the cache when a
// fresh entry exists.
func (s *OccupancyService) Current(ctx context.Context, eventID uint64) (Occupancy, error) {
	if s.Cache != nil && s.CacheTTL > 0 {
		if buf, err := s.Cache.Get(ctx, occupancyKey(eventID)).Bytes(); err == nil {
			var occ Occupancy
			if json.Unmarshal(buf, &occ) == nil {
				return occ, nil
			}
		}
	}
	occ, err := s.Compute(ctx, eventID)
	if err != nil {
		return occ, err
	}
	if s.Cache != nil && s.CacheTTL > 0 {
		if buf, err := json.Marshal(occ); err == nil {
			if err := s.Cache.Set(ctx, occupancyKey(eventID), buf, s.CacheTTL).Err(); err != nil {
				s.logger().Debug("occupancy cache set failed", "error", err)
			}
		}
	}
	return occ, nil
}

// Invalidate drops the cached occupancy of an event.
func (s *OccupancyService) Invalidate(ctx context.Context, eventID uint64) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Del(ctx, occupancyKey(eventID)).Err(); err != nil {
		s.logger().Debug("occupancy cache invalidate failed", "event_id", eventID, "error", err)
	}
}

// Compute reads the occupancy straight from the scan log.
func (s *OccupancyService) Compute(ctx context.Context, eventID uint64) (Occupancy, error) {
	ev, err := s.Events.GetByID(ctx, eventID)
	if err != nil {
		return Occupancy{}, err
	}
	rooms, err := s.Events.ListRooms(ctx, eventID)
	if err != nil {
		return Occupancy{}, err
	}
	sessions, err := s.Events.ListSessions(ctx, eventID)
	if err != nil {
		return Occupancy{}, err
	}
	presence, err := s.Scans.OccupancyCounts(ctx, eventID)
	if err != nil {
		return Occupancy{}, err
	}
	occ := foldOccupancy(presence, rooms, sessions)
	occ.EventID = ev.ID
	occ.Capacity = ev.Capacity
	occ.ComputedAt = s.now()
	return occ, nil
}

// foldOccupancy sums the presence rows into totals per event, room and
// session.  Every known room and session appears, with zero when empty.
func foldOccupancy(presence []repository.Presence, rooms []model.Room, sessions []model.Session) Occupancy {
	occ := Occupancy{Rooms: []RoomOccupancy{}, Sessions: []SessionOccupancy{}}
	roomIdx := make(map[uint64]int, len(rooms))
	for _, r := range rooms {
		roomIdx[r.ID] = len(occ.Rooms)
		occ.Rooms = append(occ.Rooms, RoomOccupancy{RoomID: r.ID, Name: r.Name, Capacity: r.Capacity})
	}
	sessIdx := make(map[uint64]int, len(sessions))
	for _, ss := range sessions {
		sessIdx[ss.ID] = len(occ.Sessions)
		occ.Sessions = append(occ.Sessions, SessionOccupancy{SessionID: ss.ID, Title: ss.Title, Capacity: ss.Capacity})
	}
	for _, p := range presence {
		occ.Total += p.Count
		if p.RoomID != nil {
			i, ok := roomIdx[*p.RoomID]
			if !ok {
				i = len(occ.Rooms)
				roomIdx[*p.RoomID] = i
				occ.Rooms = append(occ.Rooms, RoomOccupancy{RoomID: *p.RoomID})
			}
			occ.Rooms[i].Occupancy += p.Count
		}
		if p.SessionID != nil {
			i, ok := sessIdx[*p.SessionID]
			if !ok {
				i = len(occ.Sessions)
				sessIdx[*p.SessionID] = i
				occ.Sessions = append(occ.Sessions, SessionOccupancy{SessionID: *p.SessionID})
			}
			occ.Sessions[i].Occupancy += p.Count
		}
	}
	return occ
}

// History replays the event's check-ins and check-outs and samples the
// head count every bucket from from to to inclusive.  A non-nil roomID
// restricts the count to persons whose last check-in was in that room.
func (s *OccupancyService) History(ctx context.Context, eventID uint64, roomID *uint64, from, to time.Time, bucket time.Duration) ([]Point, error) {
	if _, err := s.Events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	if bucket <= 0 || !to.After(from) {
		return nil, fmt.Errorf("%w: need from < to and a positive bucket", ErrInvalidInput)
	}
	if int64(to.Sub(from)/bucket)+1 > MaxHistoryPoints {
		return nil, fmt.Errorf("%w: more than %d points requested", ErrInvalidInput, MaxHistoryPoints)
	}
	scans, err := s.Scans.PresenceScansUntil(ctx, eventID, to)
	if err != nil {
		return nil, err
	}
	return BuildSeries(scans, roomID, from.UTC(), to.UTC(), bucket), nil
}

// BuildSeries replays scans, which must be ordered by scan time, and
// samples the number of persons present at from, from+bucket, ... up to
// to.  Only non-duplicate check-ins and check-outs are expected.
func BuildSeries(scans []model.Scan, roomID *uint64, from, to time.Time, bucket time.Duration) []Point {
	present := map[uint64]*uint64{} // user -> room of the check-in
	count := func() uint32 {
		var n uint32
		for _, r := range present {
			if roomID == nil || (r != nil && *r == *roomID) {
				n++
			}
		}
		return n
	}
	points := []Point{}
	i := 0
	for at := from; !at.After(to); at = at.Add(bucket) {
		for i < len(scans) && !scans[i].ScannedAt.After(at) {
			sc := scans[i]
			switch {
			case sc.IsDuplicate:
			case sc.Type == model.ScanCheckIn:
				present[sc.UserID] = sc.RoomID
			case sc.Type == model.ScanCheckOut:
				delete(present, sc.UserID)
			}
			i++
		}
		points = append(points, Point{At: at, Occupancy: count()})
	}
	return points
}

// SnapshotAll stores a sample for every event in progress: one row for
// the event total and one per room.  A failing event is logged and
// skipped.  It returns the number of events sampled and the joined errors.
func (s *OccupancyService) SnapshotAll(ctx context.Context) (int, error) {
	now := s.now()
	events, err := s.Events.ListInProgress(ctx, now)
	if err != nil {
		return 0, err
	}
	var (
		sampled int
		errs    []error
	)
	for _, ev := range events {
		if err := s.snapshot(ctx, ev.ID, now); err != nil {
			s.logger().Error("occupancy snapshot failed", "event_id", ev.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		sampled++
	}
	return sampled, errors.Join(errs...)
}

func (s *OccupancyService) snapshot(ctx context.Context, eventID uint64, now time.Time) error {
	occ, err := s.Compute(ctx, eventID)
	if err != nil {
		return fmt.Errorf("occupancy of event %d: %w", eventID, err)
	}
	snaps := []model.OccupancySnapshot{{EventID: eventID, Occupancy: occ.Total, TakenAt: now}}
	for _, r := range occ.Rooms {
		snaps = append(snaps, model.OccupancySnapshot{EventID: eventID, RoomID: &r.RoomID, Occupancy: r.Occupancy, TakenAt: now})
	}
	if err := s.Snapshots.Insert(ctx, snaps); err != nil {
		return fmt.Errorf("store snapshot of event %d: %w", eventID, err)
	}
	s.Metrics.SetOccupancy(eventID, occ.Total)
	return nil
}

// ListSnapshots returns stored samples of an event.
func (s *OccupancyService) ListSnapshots(ctx context.Context, eventID uint64, from, to time.Time, limit int) ([]model.OccupancySnapshot, error) {
	if _, err := s.Events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.Snapshots.List(ctx, eventID, from, to, limit)
}
