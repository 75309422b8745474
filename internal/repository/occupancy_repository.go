package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/memberhub/internal/model"
)

// SnapshotRepo stores periodic occupancy samples.
type SnapshotRepo struct {
	db *sql.DB
}

func NewSnapshotRepo(db *sql.DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

// Insert writes all samples of one tick in a single transaction.
func (r *SnapshotRepo) Insert(ctx context.Context, snaps []model.OccupancySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		for i := range snaps {
			snaps[i].TakenAt = snaps[i].TakenAt.UTC()
			res, err := tx.ExecContext(ctx,
				"INSERT INTO occupancy_snapshots (event_id, room_id, occupancy, taken_at) VALUES (?,?,?,?)",
				snaps[i].EventID, snaps[i].RoomID, snaps[i].Occupancy, snaps[i].TakenAt)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			snaps[i].ID = uint64(id)
		}
		return nil
	})
}

// List returns an event's samples taken in [from, to], oldest first.  Zero
// bounds are open.
func (r *SnapshotRepo) List(ctx context.Context, eventID uint64, from, to time.Time, limit int) ([]model.OccupancySnapshot, error) {
	q := "SELECT id, event_id, room_id, occupancy, taken_at FROM occupancy_snapshots WHERE event_id = ?"
	args := []any{eventID}
	if !from.IsZero() {
		q += " AND taken_at >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		q += " AND taken_at <= ?"
		args = append(args, to.UTC())
	}
	q += " ORDER BY taken_at, id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.OccupancySnapshot{}
	for rows.Next() {
		var s model.OccupancySnapshot
		if err := rows.Scan(&s.ID, &s.EventID, &s.RoomID, &s.Occupancy, &s.TakenAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
