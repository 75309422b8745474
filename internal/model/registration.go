package model

import "time"

// Registration statuses.  Registrations are never deleted; cancelling one
// moves it to RegCancelled.
const (
	RegPending   = "PENDING"
	RegApproved  = "APPROVED"
	RegRejected  = "REJECTED"
	RegCancelled = "CANCELLED"
)

// Payment statuses.
const (
	PaymentUnpaid = "UNPAID"
	PaymentPaid   = "PAID"
	PaymentWaived = "WAIVED"
)

// Registration records a person's intent to attend an event.  There is at
// most one registration per (user, event).
type Registration struct {
	ID            uint64    `json:"id"`
	UserID        uint64    `json:"user_id"`
	EventID       uint64    `json:"event_id"`
	Roles         []string  `json:"roles"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	ReferralCode  *string   `json:"referral_code,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Holds reports whether the registration occupies a place in the event's
// capacity.
func (r Registration) Holds() bool {
	return r.Status == RegPending || r.Status == RegApproved
}

// ValidRegistrationStatus reports whether s is a known status.
func ValidRegistrationStatus(s string) bool {
	switch s {
	case RegPending, RegApproved, RegRejected, RegCancelled:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentUnpaid, PaymentPaid, PaymentWaived:
		return true
	}
	return false
}
