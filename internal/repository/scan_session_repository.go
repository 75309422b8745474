package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/memberhub/internal/model"
)

// ScanSessionRepo persists scanner work sessions.  Totals are maintained
// by ScanRepo.Record.
type ScanSessionRepo struct {
	db *sql.DB
}

func NewScanSessionRepo(db *sql.DB) *ScanSessionRepo { return &ScanSessionRepo{db: db} }

const scanSessionColumns = `id, scanner_id, event_id, location, started_at, ended_at,
	total_scans, check_ins, check_outs, verifications, duplicates`

// Create opens a session starting now.
func (r *ScanSessionRepo) Create(ctx context.Context, s *model.ScanSession) error {
	s.StartedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO scan_sessions (scanner_id, event_id, location, started_at) VALUES (?,?,?,?)",
		s.ScannerID, s.EventID, s.Location, s.StartedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetByID returns the session or ErrNotFound.
func (r *ScanSessionRepo) GetByID(ctx context.Context, id uint64) (model.ScanSession, error) {
	return scanScanSession(r.db.QueryRowContext(ctx,
		"SELECT "+scanSessionColumns+" FROM scan_sessions WHERE id = ?", id))
}

// End closes the session.  Ending a closed session returns ErrConflict.
func (r *ScanSessionRepo) End(ctx context.Context, id uint64) (model.ScanSession, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE scan_sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL", time.Now().UTC(), id)
	if err != nil {
		return model.ScanSession{}, err
	}
	n, _ := res.RowsAffected()
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return s, err
	}
	if n == 0 {
		return s, ErrConflict
	}
	return s, nil
}

// ListByScanner returns a scanner's sessions, newest first.
func (r *ScanSessionRepo) ListByScanner(ctx context.Context, scannerID uint64) ([]model.ScanSession, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+scanSessionColumns+" FROM scan_sessions WHERE scanner_id = ? ORDER BY id DESC", scannerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ScanSession{}
	for rows.Next() {
		s, err := scanScanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanScanSession(rs rowScanner) (model.ScanSession, error) {
	var s model.ScanSession
	err := rs.Scan(&s.ID, &s.ScannerID, &s.EventID, &s.Location, &s.StartedAt, &s.EndedAt,
		&s.TotalScans, &s.CheckIns, &s.CheckOuts, &s.Verifications, &s.Duplicates)
	return s, notFound(err)
}
