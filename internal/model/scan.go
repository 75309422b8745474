package model

import "time"

// Scan types.
const (
	ScanCheckIn  = "CHECK_IN"
	ScanCheckOut = "CHECK_OUT"
	ScanVerify   = "VERIFY"
)

// ValidScanType reports whether t is a known scan type.
func ValidScanType(t string) bool {
	switch t {
	case ScanCheckIn, ScanCheckOut, ScanVerify:
		return true
	}
	return false
}

// Scan is one read of a badge at a checkpoint.  Scans are append-only.
// DurationSeconds is set on check-outs that close a check-in.
type Scan struct {
	ID              uint64    `json:"id"`
	ScannerID       uint64    `json:"scanner_id"`
	UserID          uint64    `json:"user_id"`
	EventID         uint64    `json:"event_id"`
	BadgeID         uint64    `json:"badge_id"`
	Type            string    `json:"scan_type"`
	RoomID          *uint64   `json:"room_id"`
	SessionID       *uint64   `json:"session_id"`
	ScanSessionID   *uint64   `json:"scan_session_id"`
	Location        string    `json:"location"`
	ScannedAt       time.Time `json:"scanned_at"`
	IsDuplicate     bool      `json:"is_duplicate"`
	DurationSeconds *uint32   `json:"duration_seconds"`
}

// ScanSession is a scanner's logical work period at a checkpoint.
type ScanSession struct {
	ID            uint64     `json:"id"`
	ScannerID     uint64     `json:"scanner_id"`
	EventID       uint64     `json:"event_id"`
	Location      string     `json:"location"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	TotalScans    uint32     `json:"total_scans"`
	CheckIns      uint32     `json:"check_ins"`
	CheckOuts     uint32     `json:"check_outs"`
	Verifications uint32     `json:"verifications"`
	Duplicates    uint32     `json:"duplicates"`
}

// Open reports whether the session still accepts scans.
func (s ScanSession) Open() bool { return s.EndedAt == nil }

// OccupancySnapshot is a stored occupancy sample.  RoomID is nil for the
// event-wide total.
type OccupancySnapshot struct {
	ID        uint64    `json:"id"`
	EventID   uint64    `json:"event_id"`
	RoomID    *uint64   `json:"room_id"`
	Occupancy uint32    `json:"occupancy"`
	TakenAt   time.Time `json:"taken_at"`
}
