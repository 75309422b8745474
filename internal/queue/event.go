// Package queue defines the messages exchanged over RabbitMQ and the
// consumer that turns them into member notifications.
package queue

// Queue names.  Both queues are durable and use the default exchange with
// the queue name as routing key.
const (
	BadgeIssuedQueue  = "badge.issued"
	ScanRecordedQueue = "scan.recorded"
)

// BadgeIssuedEvent is published after a badge is created.  It carries what
// a notifier needs to tell the holder their badge is ready without
// querying the database.
type BadgeIssuedEvent struct {
	BadgeID        uint64  `json:"badge_id"`
	Code           string  `json:"code"`
	UserID         uint64  `json:"user_id"`
	Email          string  `json:"email"`
	DisplayName    string  `json:"display_name"`
	EventID        *uint64 `json:"event_id,omitempty"`
	EventTitle     string  `json:"event_title,omitempty"`
	RegistrationID *uint64 `json:"registration_id,omitempty"`
	IssuedAt       string  `json:"issued_at"`
}

// ScanRecordedEvent is published after every stored scan, duplicates
// included.
type ScanRecordedEvent struct {
	ScanID          uint64  `json:"scan_id"`
	EventID         uint64  `json:"event_id"`
	UserID          uint64  `json:"user_id"`
	BadgeID         uint64  `json:"badge_id"`
	ScannerID       uint64  `json:"scanner_id"`
	ScanType        string  `json:"scan_type"`
	RoomID          *uint64 `json:"room_id,omitempty"`
	SessionID       *uint64 `json:"session_id,omitempty"`
	IsDuplicate     bool    `json:"is_duplicate"`
	DurationSeconds *uint32 `json:"duration_seconds,omitempty"`
	ScannedAt       string  `json:"scanned_at"`
}
