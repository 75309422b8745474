package model

import "time"

// Event statuses.
const (
	EventScheduled = "SCHEDULED"
	EventCancelled = "CANCELLED"
	EventFinished  = "FINISHED"
)

// Event is an association event that members register for and attend.
// Capacity is nil when the event is unbounded.
type Event struct {
	ID               uint64    `json:"id"`
	OrganizerID      uint64    `json:"organizer_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Venue            string    `json:"venue"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	Capacity         *uint32   `json:"capacity"`
	PriceCents       uint32    `json:"price_cents"`
	RequiresApproval bool      `json:"requires_approval"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// InProgress reports whether t falls inside the event's schedule.
func (e Event) InProgress(t time.Time) bool {
	return e.Status == EventScheduled && !t.Before(e.StartsAt) && t.Before(e.EndsAt)
}

// Room is a physical space of an event venue with an optional capacity
// ceiling enforced on check-in.
type Room struct {
	ID        uint64    `json:"id"`
	EventID   uint64    `json:"event_id"`
	Name      string    `json:"name"`
	Capacity  *uint32   `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a time slot of an event (talk, workshop), optionally held in
// a room and optionally capacity-bounded.
type Session struct {
	ID        uint64    `json:"id"`
	EventID   uint64    `json:"event_id"`
	RoomID    *uint64   `json:"room_id"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Capacity  *uint32   `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
}
