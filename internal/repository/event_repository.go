package repository // repository defines data access for events, rooms and sessions

import (
	"context"      // request-scoped deadlines for DB calls
	"database/sql" // SQL database interactions
	"strings"      // trimming and case helpers
	"time"         // timestamps and timeouts

	"github.com/iliyamo/memberhub/internal/model" // domain types
)

// EventRepo provides persistence for events and their rooms and sessions.
// All timestamps are stored in UTC.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, organizer_id, title, description, venue, starts_at, ends_at,
	capacity, price_cents, requires_approval, status, created_at, updated_at`

// EventFilter narrows List.  Zero values are ignored.
type EventFilter struct {
	From   time.Time
	To     time.Time
	Status string
	Limit  int
}

// Create inserts e and fills in its ID and timestamps.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	now := time.Now().UTC()
	if e.Status == "" {
		e.Status = model.EventScheduled
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (organizer_id, title, description, venue, starts_at, ends_at,
			capacity, price_cents, requires_approval, status, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.OrganizerID, e.Title, e.Description, e.Venue, e.StartsAt.UTC(), e.EndsAt.UTC(),
		e.Capacity, e.PriceCents, e.RequiresApproval, e.Status, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

// Update overwrites the mutable columns of e.
func (r *EventRepo) Update(ctx context.Context, e *model.Event) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET title=?, description=?, venue=?, starts_at=?, ends_at=?, capacity=?,
			price_cents=?, requires_approval=?, status=?, updated_at=? WHERE id=?`,
		e.Title, e.Description, e.Venue, e.StartsAt.UTC(), e.EndsAt.UTC(), e.Capacity,
		e.PriceCents, e.RequiresApproval, e.Status, now, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 { // clientFoundRows makes unchanged rows count on MySQL
		return ErrNotFound
	}
	e.UpdatedAt = now
	return nil
}

// GetByID returns the event or ErrNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	e, err := scanEvent(row)
	return e, notFound(err)
}

// List returns events ordered by start time.
func (r *EventRepo) List(ctx context.Context, f EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "ends_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "starts_at <= ?")
		args = append(args, f.To.UTC())
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	q := "SELECT " + eventColumns + " FROM events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY starts_at, id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryEvents(ctx, q, args...)
}

// ListInProgress returns scheduled events whose schedule covers at.
func (r *EventRepo) ListInProgress(ctx context.Context, at time.Time) ([]model.Event, error) {
	return r.queryEvents(ctx,
		"SELECT "+eventColumns+" FROM events WHERE status = ? AND starts_at <= ? AND ends_at > ? ORDER BY id",
		model.EventScheduled, at.UTC(), at.UTC())
}

func (r *EventRepo) queryEvents(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (model.Event, error) {
	var e model.Event
	err := s.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.Venue, &e.StartsAt, &e.EndsAt,
		&e.Capacity, &e.PriceCents, &e.RequiresApproval, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// ---- Rooms ----

// CreateRoom inserts a room.  Room names are unique per event; a clash
// returns ErrDuplicate.
func (r *EventRepo) CreateRoom(ctx context.Context, room *model.Room) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO rooms (event_id, name, capacity, created_at) VALUES (?,?,?,?)",
		room.EventID, room.Name, room.Capacity, now)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	room.ID = uint64(id)
	room.CreatedAt = now
	return nil
}

// GetRoom returns the room or ErrNotFound.
func (r *EventRepo) GetRoom(ctx context.Context, id uint64) (model.Room, error) {
	var room model.Room
	err := r.db.QueryRowContext(ctx,
		"SELECT id, event_id, name, capacity, created_at FROM rooms WHERE id = ?", id,
	).Scan(&room.ID, &room.EventID, &room.Name, &room.Capacity, &room.CreatedAt)
	return room, notFound(err)
}

// ListRooms returns the rooms of an event ordered by name.
func (r *EventRepo) ListRooms(ctx context.Context, eventID uint64) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, event_id, name, capacity, created_at FROM rooms WHERE event_id = ? ORDER BY name, id", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rooms := []model.Room{}
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.EventID, &room.Name, &room.Capacity, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// ---- Sessions ----

// CreateSession inserts a time slot.
func (r *EventRepo) CreateSession(ctx context.Context, s *model.Session) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO event_sessions (event_id, room_id, title, starts_at, ends_at, capacity, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		s.EventID, s.RoomID, s.Title, s.StartsAt.UTC(), s.EndsAt.UTC(), s.Capacity, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.CreatedAt = now
	return nil
}

const sessionColumns = "id, event_id, room_id, title, starts_at, ends_at, capacity, created_at"

// GetSession returns the session or ErrNotFound.
func (r *EventRepo) GetSession(ctx context.Context, id uint64) (model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM event_sessions WHERE id = ?", id,
	).Scan(&s.ID, &s.EventID, &s.RoomID, &s.Title, &s.StartsAt, &s.EndsAt, &s.Capacity, &s.CreatedAt)
	return s, notFound(err)
}

// ListSessions returns the sessions of an event in schedule order.
func (r *EventRepo) ListSessions(ctx context.Context, eventID uint64) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM event_sessions WHERE event_id = ? ORDER BY starts_at, id", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := []model.Session{}
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.EventID, &s.RoomID, &s.Title, &s.StartsAt, &s.EndsAt, &s.Capacity, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
