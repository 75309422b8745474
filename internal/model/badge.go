package model

import "time"

// Badge is the printable/scannable artifact identifying a participant.
// Code is the external identifier printed in the QR code; Payload is the
// signed token a checkpoint can verify offline.  EventID is nil for
// person-wide badges that are valid at every event the person registered
// for.
type Badge struct {
	ID             uint64     `json:"id"`
	Code           string     `json:"code"`
	UserID         uint64     `json:"user_id"`
	EventID        *uint64    `json:"event_id"`
	RegistrationID *uint64    `json:"registration_id"`
	DisplayName    string     `json:"display_name"`
	Title          string     `json:"title"`
	Organization   string     `json:"organization"`
	Payload        string     `json:"payload"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	DeactivatedAt  *time.Time `json:"deactivated_at"`
}
