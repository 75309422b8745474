package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/memberhub/internal/metrics"
	"github.com/iliyamo/memberhub/internal/model"
	"github.com/iliyamo/memberhub/internal/repository"
)

// Participation roles a registration may carry.
var registrationRoles = map[string]bool{
	"attendee":  true,
	"speaker":   true,
	"volunteer": true,
	"sponsor":   true,
	"press":     true,
}

// RegisterInput is a member's request to attend an event.
type RegisterInput struct {
	Roles        []string
	ReferralCode string
}

// RegistrationUpdate carries the fields to change; nil leaves a field as is.
type RegistrationUpdate struct {
	Status        *string
	PaymentStatus *string
	Roles         []string
}

// RegistrationService applies the registration rules: one per person per
// event, approval and payment defaults, capacity and referral credit.
type RegistrationService struct {
	Events        *repository.EventRepo
	Registrations *repository.RegistrationRepo
	Affiliates    *repository.AffiliateRepo
	Badges        *BadgeService
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	AutoIssue     bool
	Now           func() time.Time
}

func (s *RegistrationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *RegistrationService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func normalizeRoles(in []string) ([]string, error) {
	if len(in) == 0 {
		return []string{"attendee"}, nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.ToLower(strings.TrimSpace(r))
		if !registrationRoles[r] {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, r)
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out, nil
}

// Register creates the caller's registration.  When the registration is
// approved straight away and auto-issue is on, a badge is issued too; a
// failure there is logged and does not undo the registration.
func (s *RegistrationService) Register(ctx context.Context, userID, eventID uint64, in RegisterInput) (model.Registration, *model.Badge, error) {
	ev, err := s.Events.GetByID(ctx, eventID)
	if err != nil {
		return model.Registration{}, nil, err
	}
	if ev.Status != model.EventScheduled || !s.now().Before(ev.EndsAt) {
		return model.Registration{}, nil, ErrEventClosed
	}
	roles, err := normalizeRoles(in.Roles)
	if err != nil {
		return model.Registration{}, nil, err
	}

	reg := model.Registration{
		UserID:        userID,
		EventID:       ev.ID,
		Roles:         roles,
		Status:        model.RegApproved,
		PaymentStatus: model.PaymentWaived,
	}
	if ev.RequiresApproval {
		reg.Status = model.RegPending
	}
	if ev.PriceCents > 0 {
		reg.PaymentStatus = model.PaymentUnpaid
	}

	var ref *repository.Referral
	if code := strings.TrimSpace(in.ReferralCode); code != "" {
		aff, err := s.Affiliates.GetByCode(ctx, strings.ToUpper(code))
		if errors.Is(err, repository.ErrNotFound) {
			return model.Registration{}, nil, ErrUnknownReferral
		}
		if err != nil {
			return model.Registration{}, nil, err
		}
		// Self referrals earn nothing.
		if aff.UserID != userID {
			reg.ReferralCode = &aff.Code
			ref = &repository.Referral{AffiliateID: aff.ID, CommissionCents: aff.Commission(ev.PriceCents)}
		}
	}

	if err := s.Registrations.Create(ctx, &reg, ev.Capacity, ref); err != nil {
		if errors.Is(err, repository.ErrFull) {
			return model.Registration{}, nil, ErrCapacityReached
		}
		return model.Registration{}, nil, err
	}
	s.Metrics.RegistrationCreated(reg.Status)
	s.logger().Info("registration created", "registration_id", reg.ID, "user_id", userID, "event_id", ev.ID, "status", reg.Status)

	return reg, s.autoIssue(ctx, reg), nil
}

func (s *RegistrationService) autoIssue(ctx context.Context, reg model.Registration) *model.Badge {
	if !s.AutoIssue || s.Badges == nil || reg.Status != model.RegApproved {
		return nil
	}
	b, _, err := s.Badges.issueForRegistration(ctx, reg)
	if err != nil {
		s.logger().Error("auto badge issue failed", "registration_id", reg.ID, "error", err)
		return nil
	}
	return &b
}

// Get returns a registration visible to the actor: their own, or any for
// staff and admins.
func (s *RegistrationService) Get(ctx context.Context, actorID uint64, actorRole string, id uint64) (model.Registration, error) {
	reg, err := s.Registrations.GetByID(ctx, id)
	if err != nil {
		return reg, err
	}
	if actorRole == model.RoleMember && reg.UserID != actorID {
		return model.Registration{}, ErrNotOwner
	}
	return reg, nil
}

// ListMine returns the caller's registrations.
func (s *RegistrationService) ListMine(ctx context.Context, userID uint64) ([]model.Registration, error) {
	return s.Registrations.ListByUser(ctx, userID)
}

// ListForEvent returns an event's registrations.
func (s *RegistrationService) ListForEvent(ctx context.Context, eventID uint64, status string) ([]model.Registration, error) {
	if _, err := s.Events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	if status != "" && !model.ValidRegistrationStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.Registrations.ListByEvent(ctx, eventID, status)
}

// Update changes a registration.  Admins may change every field; the
// registrant may only cancel.  Re-activating a registration is refused for
// a closed event and checks the event capacity again.  Cancelling or rejecting deactivates the badge of
// the registration; approving issues one when auto-issue is on.
func (s *RegistrationService) Update(ctx context.Context, actorID uint64, actorRole string, id uint64, up RegistrationUpdate) (model.Registration, *model.Badge, error) {
	reg, err := s.Registrations.GetByID(ctx, id)
	if err != nil {
		return reg, nil, err
	}
	if actorRole != model.RoleAdmin {
		cancelOnly := up.Status != nil && *up.Status == model.RegCancelled && up.PaymentStatus == nil && up.Roles == nil
		if reg.UserID != actorID || !cancelOnly {
			return model.Registration{}, nil, ErrNotOwner
		}
	}

	before := reg
	if up.Status != nil {
		if !model.ValidRegistrationStatus(*up.Status) {
			return model.Registration{}, nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *up.Status)
		}
		reg.Status = *up.Status
	}
	if up.PaymentStatus != nil {
		if !model.ValidPaymentStatus(*up.PaymentStatus) {
			return model.Registration{}, nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidInput, *up.PaymentStatus)
		}
		reg.PaymentStatus = *up.PaymentStatus
	}
	if up.Roles != nil {
		roles, err := normalizeRoles(up.Roles)
		if err != nil {
			return model.Registration{}, nil, err
		}
		reg.Roles = roles
	}

	var capacity *uint32 // checked only when a place is taken again
	if reg.Holds() && !before.Holds() {
		ev, err := s.Events.GetByID(ctx, reg.EventID)
		if err != nil {
			return model.Registration{}, nil, err
		}
		if ev.Status != model.EventScheduled || !s.now().Before(ev.EndsAt) {
			return model.Registration{}, nil, ErrEventClosed
		}
		capacity = ev.Capacity
	}

	if err := s.Registrations.Update(ctx, &reg, capacity); err != nil {
		if errors.Is(err, repository.ErrFull) {
			return model.Registration{}, nil, ErrCapacityReached
		}
		return model.Registration{}, nil, err
	}
	s.logger().Info("registration updated", "registration_id", reg.ID, "status", reg.Status,
		"payment_status", reg.PaymentStatus, "by", actorID)

	if !reg.Holds() && before.Holds() && s.Badges != nil {
		if err := s.Badges.deactivateForRegistration(ctx, reg.ID); err != nil {
			s.logger().Error("badge deactivation failed", "registration_id", reg.ID, "error", err)
		}
	}
	var badge *model.Badge
	if reg.Status == model.RegApproved && before.Status != model.RegApproved {
		badge = s.autoIssue(ctx, reg)
	}
	return reg, badge, nil
}
