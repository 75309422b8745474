package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/memberhub/internal/metrics"
	"github.com/iliyamo/memberhub/internal/model"
	"github.com/iliyamo/memberhub/internal/queue"
	"github.com/iliyamo/memberhub/internal/repository"
	"github.com/iliyamo/memberhub/internal/utils"
)

// DefaultDuplicateWindow is used when CheckinService.DuplicateWindow is
// zero.
const DefaultDuplicateWindow = 30 * time.Minute

// ScanRequest is one badge read at a checkpoint.  Exactly one of
// BadgeCode and QR identifies the badge; QR is the signed payload.
type ScanRequest struct {
	ScannerID     uint64
	EventID       uint64
	BadgeCode     string
	QR            string
	Type          string
	RoomID        *uint64
	SessionID     *uint64
	ScanSessionID *uint64
	Location      string
}

// ScanResult is the stored scan with the badge it was made with.
type ScanResult struct {
	Scan  model.Scan  `json:"scan"`
	Badge model.Badge `json:"badge"`
}

// CheckinService records scans.  Scans of one person at one event are
// serialized through Locker so that duplicate detection, durations and
// capacity checks see a consistent scan log.
type CheckinService struct {
	Events          *repository.EventRepo
	Registrations   *repository.RegistrationRepo
	Badges          *repository.BadgeRepo
	Scans           *repository.ScanRepo
	ScanSessions    *repository.ScanSessionRepo
	Occupancy       *OccupancyService
	Locker          Locker
	Publisher       Publisher
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	BadgeSecret     string
	DuplicateWindow time.Duration
	Now             func() time.Time
}

func (s *CheckinService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *CheckinService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *CheckinService) window() time.Duration {
	if s.DuplicateWindow > 0 {
		return s.DuplicateWindow
	}
	return DefaultDuplicateWindow
}

// Record validates req, classifies the scan and stores it.
func (s *CheckinService) Record(ctx context.Context, req ScanRequest) (ScanResult, error) {
	if !model.ValidScanType(req.Type) {
		return ScanResult{}, fmt.Errorf("%w: scan_type must be CHECK_IN, CHECK_OUT or VERIFY", ErrInvalidInput)
	}
	badge, err := s.resolveBadge(ctx, req)
	if err != nil {
		return ScanResult{}, err
	}
	ev, err := s.Events.GetByID(ctx, req.EventID)
	if err != nil {
		return ScanResult{}, err
	}
	if ev.Status == model.EventCancelled {
		return ScanResult{}, ErrEventClosed
	}
	if badge.EventID != nil && *badge.EventID != ev.ID {
		return ScanResult{}, ErrEventMismatch
	}
	reg, err := s.Registrations.GetByUserEvent(ctx, badge.UserID, ev.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return ScanResult{}, ErrNotRegistered
	}
	if err != nil {
		return ScanResult{}, err
	}
	if !(reg.Status == model.RegApproved || (reg.Status == model.RegPending && req.Type == model.ScanVerify)) {
		return ScanResult{}, ErrNotApproved
	}

	roomID, sessionID, err := s.resolvePlace(ctx, ev.ID, req.RoomID, req.SessionID)
	if err != nil {
		return ScanResult{}, err
	}
	if req.ScanSessionID != nil {
		ss, err := s.ScanSessions.GetByID(ctx, *req.ScanSessionID)
		if err != nil {
			return ScanResult{}, err
		}
		switch {
		case ss.ScannerID != req.ScannerID:
			return ScanResult{}, ErrNotOwner
		case ss.EventID != ev.ID:
			return ScanResult{}, fmt.Errorf("%w: scan session belongs to another event", ErrInvalidInput)
		case !ss.Open():
			return ScanResult{}, ErrScanSessionClosed
		}
	}

	unlock, err := s.Locker.Lock(ctx, fmt.Sprintf("scan:%d:%d", ev.ID, badge.UserID))
	if err != nil {
		return ScanResult{}, fmt.Errorf("acquire scan lock: %w", err)
	}
	defer unlock()

	now := s.now()
	scan := model.Scan{
		ScannerID:     req.ScannerID,
		UserID:        badge.UserID,
		EventID:       ev.ID,
		BadgeID:       badge.ID,
		Type:          req.Type,
		RoomID:        roomID,
		SessionID:     sessionID,
		ScanSessionID: req.ScanSessionID,
		Location:      req.Location,
		ScannedAt:     now,
	}
	var last *model.Scan // newest non-duplicate check-in or check-out
	if req.Type != model.ScanVerify {
		l, err := s.Scans.LastPresence(ctx, badge.UserID, ev.ID)
		switch {
		case err == nil:
			last = &l
		case !errors.Is(err, repository.ErrNotFound):
			return ScanResult{}, err
		}
	}
	dup, err := s.isDuplicate(ctx, scan, last)
	if err != nil {
		return ScanResult{}, err
	}
	scan.IsDuplicate = dup

	if !scan.IsDuplicate {
		switch req.Type {
		case model.ScanCheckOut:
			scan.DurationSeconds = stayDuration(last, now)
		case model.ScanCheckIn:
			if err := s.checkCapacity(ctx, ev, scan.RoomID, scan.SessionID, last); err != nil {
				return ScanResult{}, err
			}
		}
	}

	if err := s.Scans.Record(ctx, &scan); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ScanResult{}, ErrScanSessionClosed
		}
		return ScanResult{}, err
	}
	unlock()

	if s.Occupancy != nil {
		s.Occupancy.Invalidate(ctx, ev.ID)
	}
	s.Metrics.ScanRecorded(scan.Type, scan.IsDuplicate)
	s.logger().Info("scan recorded", "scan_id", scan.ID, "event_id", ev.ID, "user_id", scan.UserID,
		"type", scan.Type, "duplicate", scan.IsDuplicate)
	publishQuietly(ctx, s.Publisher, s.logger(), queue.ScanRecordedQueue, queue.ScanRecordedEvent{
		ScanID:          scan.ID,
		EventID:         scan.EventID,
		UserID:          scan.UserID,
		BadgeID:         scan.BadgeID,
		ScannerID:       scan.ScannerID,
		ScanType:        scan.Type,
		RoomID:          scan.RoomID,
		SessionID:       scan.SessionID,
		IsDuplicate:     scan.IsDuplicate,
		DurationSeconds: scan.DurationSeconds,
		ScannedAt:       scan.ScannedAt.Format(time.RFC3339),
	})
	return ScanResult{Scan: scan, Badge: badge}, nil
}

// isDuplicate reports whether scan repeats a scan of the same type made
// within the window.  A check-in or check-out only repeats when it would
// not change presence: the last presence scan has the same type and, for a
// check-in, the same room and session.  Re-entry and room changes are
// never duplicates.
func (s *CheckinService) isDuplicate(ctx context.Context, scan model.Scan, last *model.Scan) (bool, error) {
	if scan.Type != model.ScanVerify {
		if last == nil || last.Type != scan.Type {
			return false, nil
		}
		if scan.Type == model.ScanCheckIn && (!sameID(last.RoomID, scan.RoomID) || !sameID(last.SessionID, scan.SessionID)) {
			return false, nil
		}
	}
	prev, err := s.Scans.LastOfType(ctx, scan.UserID, scan.EventID, scan.Type)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return scan.ScannedAt.Sub(prev.ScannedAt) < s.window(), nil
}

func sameID(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *CheckinService) resolveBadge(ctx context.Context, req ScanRequest) (model.Badge, error) {
	var (
		badge model.Badge
		err   error
	)
	switch {
	case req.QR != "":
		claims, verr := utils.VerifyBadge(s.BadgeSecret, req.QR)
		if verr != nil {
			return model.Badge{}, ErrBadgeInvalid
		}
		badge, err = s.Badges.GetByID(ctx, claims.BadgeID)
		if err == nil && badge.UserID != claims.UserID {
			return model.Badge{}, ErrBadgeInvalid
		}
	case req.BadgeCode != "":
		badge, err = s.Badges.GetByCode(ctx, req.BadgeCode)
	default:
		return model.Badge{}, fmt.Errorf("%w: badge_code or qr is required", ErrInvalidInput)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return model.Badge{}, ErrBadgeNotFound
	}
	if err != nil {
		return model.Badge{}, err
	}
	if !badge.IsActive {
		return model.Badge{}, ErrBadgeInactive
	}
	return badge, nil
}

// resolvePlace checks that the room and session belong to the event.  A
// session held in a room supplies the room when none was given.
func (s *CheckinService) resolvePlace(ctx context.Context, eventID uint64, roomID, sessionID *uint64) (*uint64, *uint64, error) {
	if sessionID != nil {
		ses, err := s.Events.GetSession(ctx, *sessionID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && ses.EventID != eventID) {
			return nil, nil, fmt.Errorf("%w: session %d is not part of event %d", ErrInvalidInput, *sessionID, eventID)
		}
		if err != nil {
			return nil, nil, err
		}
		if roomID == nil {
			roomID = ses.RoomID
		}
	}
	if roomID != nil {
		room, err := s.Events.GetRoom(ctx, *roomID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && room.EventID != eventID) {
			return nil, nil, fmt.Errorf("%w: room %d is not part of event %d", ErrInvalidInput, *roomID, eventID)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return roomID, sessionID, nil
}

// stayDuration returns the seconds since the check-in that last put the
// person inside, or nil when they are not inside.
func stayDuration(last *model.Scan, now time.Time) *uint32 {
	if last == nil || last.Type != model.ScanCheckIn {
		return nil
	}
	d := now.Sub(last.ScannedAt)
	if d < 0 {
		d = 0
	}
	secs := uint32(d / time.Second)
	return &secs
}

// checkCapacity refuses a check-in when the room, the session or the event
// is full.  The person being scanned is not counted against themselves.
func (s *CheckinService) checkCapacity(ctx context.Context, ev model.Event, roomID, sessionID *uint64, last *model.Scan) error {
	var room *model.Room
	if roomID != nil {
		r, err := s.Events.GetRoom(ctx, *roomID)
		if err != nil {
			return err
		}
		room = &r
	}
	var ses *model.Session
	if sessionID != nil {
		x, err := s.Events.GetSession(ctx, *sessionID)
		if err != nil {
			return err
		}
		ses = &x
	}
	if ev.Capacity == nil && (room == nil || room.Capacity == nil) && (ses == nil || ses.Capacity == nil) {
		return nil
	}

	presence, err := s.Scans.OccupancyCounts(ctx, ev.ID)
	if err != nil {
		return err
	}
	var total, inRoom, inSession uint32
	for _, p := range presence {
		total += p.Count
		if roomID != nil && p.RoomID != nil && *p.RoomID == *roomID {
			inRoom += p.Count
		}
		if sessionID != nil && p.SessionID != nil && *p.SessionID == *sessionID {
			inSession += p.Count
		}
	}
	if last != nil && last.Type == model.ScanCheckIn {
		total--
		if roomID != nil && last.RoomID != nil && *last.RoomID == *roomID {
			inRoom--
		}
		if sessionID != nil && last.SessionID != nil && *last.SessionID == *sessionID {
			inSession--
		}
	}

	switch {
	case room != nil && room.Capacity != nil && inRoom >= *room.Capacity:
		return fmt.Errorf("%w: room %q", ErrCapacityReached, room.Name)
	case ses != nil && ses.Capacity != nil && inSession >= *ses.Capacity:
		return fmt.Errorf("%w: session %q", ErrCapacityReached, ses.Title)
	case ev.Capacity != nil && total >= *ev.Capacity:
		return fmt.Errorf("%w: event", ErrCapacityReached)
	}
	return nil
}
