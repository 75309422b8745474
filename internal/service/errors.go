package service

import "errors"

// Errors returned by the services.  Handlers map them to status codes.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEventClosed       = errors.New("event is not open")
	ErrCapacityReached   = errors.New("capacity reached")
	ErrNotRegistered     = errors.New("person is not registered for this event")
	ErrNotApproved       = errors.New("registration is not approved")
	ErrBadgeNotFound     = errors.New("badge not found")
	ErrBadgeInactive     = errors.New("badge is inactive")
	ErrBadgeInvalid      = errors.New("badge payload is invalid")
	ErrEventMismatch     = errors.New("badge is not valid for this event")
	ErrScanSessionClosed = errors.New("scan session is closed")
	ErrNotOwner          = errors.New("not the owner of this resource")
	ErrUnknownReferral   = errors.New("unknown referral code")
)
