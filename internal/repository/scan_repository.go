package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/memberhub/internal/model"
)

// ScanRepo persists scan records.  Scans are append-only: nothing in this
// file updates or deletes a row of the scans table.
type ScanRepo struct {
	db *sql.DB
}

func NewScanRepo(db *sql.DB) *ScanRepo { return &ScanRepo{db: db} }

const scanColumns = `id, scanner_id, user_id, event_id, badge_id, scan_type, room_id, session_id,
	scan_session_id, location, scanned_at, is_duplicate, duration_seconds`

// Presence is the count of persons currently inside, keyed by the room and
// session of the check-in that put them there.
type Presence struct {
	RoomID    *uint64
	SessionID *uint64
	Count     uint32
}

// LastOfType returns the person's newest scan of scanType at the event,
// duplicates included.
func (r *ScanRepo) LastOfType(ctx context.Context, userID, eventID uint64, scanType string) (model.Scan, error) {
	return scanScan(r.db.QueryRowContext(ctx,
		"SELECT "+scanColumns+" FROM scans WHERE user_id = ? AND event_id = ? AND scan_type = ? ORDER BY id DESC LIMIT 1",
		userID, eventID, scanType))
}

// LastPresence returns the person's newest non-duplicate check-in or
// check-out at the event.
func (r *ScanRepo) LastPresence(ctx context.Context, userID, eventID uint64) (model.Scan, error) {
	return scanScan(r.db.QueryRowContext(ctx,
		"SELECT "+scanColumns+` FROM scans WHERE user_id = ? AND event_id = ? AND is_duplicate = ?
			AND scan_type IN (?,?) ORDER BY id DESC LIMIT 1`,
		userID, eventID, false, model.ScanCheckIn, model.ScanCheckOut))
}

// Record inserts s and, when it references a scan session, bumps that
// session's totals in the same transaction.  A session that is already
// closed yields ErrConflict and nothing is written.
func (r *ScanRepo) Record(ctx context.Context, s *model.Scan) error {
	s.ScannedAt = s.ScannedAt.UTC()
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if s.ScanSessionID != nil {
			if err := bumpSessionTotals(ctx, tx, *s.ScanSessionID, s.Type, s.IsDuplicate); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO scans (scanner_id, user_id, event_id, badge_id, scan_type, room_id, session_id,
				scan_session_id, location, scanned_at, is_duplicate, duration_seconds)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			s.ScannerID, s.UserID, s.EventID, s.BadgeID, s.Type, s.RoomID, s.SessionID,
			s.ScanSessionID, s.Location, s.ScannedAt, s.IsDuplicate, s.DurationSeconds)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		s.ID = uint64(id)
		return nil
	})
}

func bumpSessionTotals(ctx context.Context, tx *sql.Tx, sessionID uint64, scanType string, duplicate bool) error {
	var column string
	switch scanType {
	case model.ScanCheckIn:
		column = "check_ins"
	case model.ScanCheckOut:
		column = "check_outs"
	case model.ScanVerify:
		column = "verifications"
	default:
		return fmt.Errorf("unknown scan type %q", scanType)
	}
	dup := 0
	if duplicate {
		dup = 1
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE scan_sessions SET total_scans = total_scans + 1, "+column+" = "+column+" + 1, duplicates = duplicates + ? WHERE id = ? AND ended_at IS NULL",
		dup, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// OccupancyCounts returns the persons present at the event grouped by the
// room and session of their latest non-duplicate check-in.  A person is
// present when their latest non-duplicate check-in or check-out is a
// check-in.
func (r *ScanRepo) OccupancyCounts(ctx context.Context, eventID uint64) ([]Presence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.room_id, s.session_id, COUNT(*)
		FROM scans s
		JOIN (
			SELECT user_id, MAX(id) AS last_id FROM scans
			WHERE event_id = ? AND is_duplicate = ? AND scan_type IN (?,?)
			GROUP BY user_id
		) l ON l.last_id = s.id
		WHERE s.scan_type = ?
		GROUP BY s.room_id, s.session_id`,
		eventID, false, model.ScanCheckIn, model.ScanCheckOut, model.ScanCheckIn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Presence{}
	for rows.Next() {
		var p Presence
		if err := rows.Scan(&p.RoomID, &p.SessionID, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListForEvent returns the event's scans, newest first.  scanType and
// limit are optional.
func (r *ScanRepo) ListForEvent(ctx context.Context, eventID uint64, scanType string, limit int) ([]model.Scan, error) {
	q := "SELECT " + scanColumns + " FROM scans WHERE event_id = ?"
	args := []any{eventID}
	if scanType != "" {
		q += " AND scan_type = ?"
		args = append(args, scanType)
	}
	q += " ORDER BY id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return r.list(ctx, q, args...)
}

// PresenceScansUntil returns the event's non-duplicate check-ins and
// check-outs up to and including until, in the order they were recorded.
func (r *ScanRepo) PresenceScansUntil(ctx context.Context, eventID uint64, until time.Time) ([]model.Scan, error) {
	return r.list(ctx,
		"SELECT "+scanColumns+` FROM scans WHERE event_id = ? AND is_duplicate = ? AND scan_type IN (?,?)
			AND scanned_at <= ? ORDER BY scanned_at, id`,
		eventID, false, model.ScanCheckIn, model.ScanCheckOut, until.UTC())
}

func (r *ScanRepo) list(ctx context.Context, q string, args ...any) ([]model.Scan, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Scan{}
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanScan(rs rowScanner) (model.Scan, error) {
	var s model.Scan
	err := rs.Scan(&s.ID, &s.ScannerID, &s.UserID, &s.EventID, &s.BadgeID, &s.Type, &s.RoomID, &s.SessionID,
		&s.ScanSessionID, &s.Location, &s.ScannedAt, &s.IsDuplicate, &s.DurationSeconds)
	return s, notFound(err)
}
