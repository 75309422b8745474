package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/iliyamo/memberhub/internal/metrics"
	"github.com/iliyamo/memberhub/internal/model"
	"github.com/iliyamo/memberhub/internal/queue"
	"github.com/iliyamo/memberhub/internal/repository"
	"github.com/iliyamo/memberhub/internal/utils"
)

// IssueRequest describes a badge to create.  DisplayName defaults to the
// holder's name.
type IssueRequest struct {
	UserID         uint64
	EventID        *uint64
	RegistrationID *uint64
	DisplayName    string
	Title          string
	Organization   string
}

// VerifyResult is the outcome of checking a badge payload.
type VerifyResult struct {
	Valid  bool               `json:"valid"`
	Reason string             `json:"reason,omitempty"`
	Claims *utils.BadgeClaims `json:"claims,omitempty"`
	Badge  *model.Badge       `json:"badge,omitempty"`
}

// BadgeService issues, verifies and deactivates badges.
type BadgeService struct {
	Users         *repository.UserRepo
	Events        *repository.EventRepo
	Registrations *repository.RegistrationRepo
	Badges        *repository.BadgeRepo
	Publisher     Publisher
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Secret        string
}

func (s *BadgeService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// IssueForRegistration returns the active badge of an approved
// registration, creating it when there is none.  created reports whether a
// new badge was made.  Only the registrant or an admin may ask.
func (s *BadgeService) IssueForRegistration(ctx context.Context, actorID uint64, actorRole string, registrationID uint64) (badge model.Badge, created bool, err error) {
	reg, err := s.Registrations.GetByID(ctx, registrationID)
	if err != nil {
		return model.Badge{}, false, err
	}
	if reg.UserID != actorID && actorRole != model.RoleAdmin {
		return model.Badge{}, false, ErrNotOwner
	}
	return s.issueForRegistration(ctx, reg)
}

func (s *BadgeService) issueForRegistration(ctx context.Context, reg model.Registration) (model.Badge, bool, error) {
	if reg.Status != model.RegApproved {
		return model.Badge{}, false, ErrNotApproved
	}
	existing, err := s.Badges.ActiveForRegistration(ctx, reg.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Badge{}, false, err
	}
	b, err := s.Issue(ctx, IssueRequest{UserID: reg.UserID, EventID: &reg.EventID, RegistrationID: &reg.ID})
	if errors.Is(err, repository.ErrDuplicate) {
		// a concurrent call issued it first
		existing, err := s.Badges.ActiveForRegistration(ctx, reg.ID)
		return existing, false, err
	}
	return b, err == nil, err
}

// Issue creates a badge, signs its payload and announces it on the
// badge.issued queue.
func (s *BadgeService) Issue(ctx context.Context, req IssueRequest) (model.Badge, error) {
	user, err := s.Users.GetByID(ctx, req.UserID)
	if err != nil {
		return model.Badge{}, err
	}
	var eventTitle string
	if req.EventID != nil {
		ev, err := s.Events.GetByID(ctx, *req.EventID)
		if err != nil {
			return model.Badge{}, err
		}
		eventTitle = ev.Title
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = user.Name
	}
	if name == "" {
		name = user.Email
	}

	b := model.Badge{
		Code:           uuid.NewString(),
		UserID:         user.ID,
		EventID:        req.EventID,
		RegistrationID: req.RegistrationID,
		DisplayName:    name,
		Title:          strings.TrimSpace(req.Title),
		Organization:   strings.TrimSpace(req.Organization),
	}
	err = s.Badges.Create(ctx, &b, func(in model.Badge) (string, error) {
		return utils.SignBadge(s.Secret, utils.BadgeClaims{
			BadgeID:  in.ID,
			UserID:   in.UserID,
			EventID:  in.EventID,
			Name:     in.DisplayName,
			IssuedAt: in.CreatedAt.Unix(),
		})
	})
	if err != nil {
		return model.Badge{}, fmt.Errorf("create badge: %w", err)
	}

	s.Metrics.BadgeIssued()
	s.logger().Info("badge issued", "badge_id", b.ID, "user_id", b.UserID, "code", b.Code)
	publishQuietly(ctx, s.Publisher, s.logger(), queue.BadgeIssuedQueue, queue.BadgeIssuedEvent{
		BadgeID:        b.ID,
		Code:           b.Code,
		UserID:         user.ID,
		Email:          user.Email,
		DisplayName:    b.DisplayName,
		EventID:        b.EventID,
		EventTitle:     eventTitle,
		RegistrationID: b.RegistrationID,
		IssuedAt:       b.CreatedAt.Format(time.RFC3339),
	})
	return b, nil
}

// Get returns a badge by its external code.  Members only see their own.
func (s *BadgeService) Get(ctx context.Context, actorID uint64, actorRole, code string) (model.Badge, error) {
	b, err := s.Badges.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Badge{}, ErrBadgeNotFound
	}
	if err != nil {
		return model.Badge{}, err
	}
	if actorRole == model.RoleMember && b.UserID != actorID {
		return model.Badge{}, ErrNotOwner
	}
	return b, nil
}

// ListByUser returns the badges of a person.
func (s *BadgeService) ListByUser(ctx context.Context, userID uint64) ([]model.Badge, error) {
	return s.Badges.ListByUser(ctx, userID)
}

// QRCode renders the badge payload as a PNG of size pixels.
func (s *BadgeService) QRCode(b model.Badge, size int) ([]byte, error) {
	if size < 64 || size > 1024 {
		size = 256
	}
	return qrcode.Encode(b.Payload, qrcode.Medium, size)
}

// Deactivate turns the badge off.  The row stays for the scan history.
func (s *BadgeService) Deactivate(ctx context.Context, code string) (model.Badge, error) {
	b, err := s.Badges.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Badge{}, ErrBadgeNotFound
	}
	if err != nil {
		return model.Badge{}, err
	}
	at, err := s.Badges.Deactivate(ctx, b.ID)
	if errors.Is(err, repository.ErrConflict) {
		return b, ErrBadgeInactive
	}
	if err != nil {
		return model.Badge{}, err
	}
	b.IsActive = false
	b.DeactivatedAt = &at
	s.logger().Info("badge deactivated", "badge_id", b.ID, "code", b.Code)
	return b, nil
}

// deactivateForRegistration turns off the active badge of a registration,
// if any.
func (s *BadgeService) deactivateForRegistration(ctx context.Context, registrationID uint64) error {
	b, err := s.Badges.ActiveForRegistration(ctx, registrationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.Badges.Deactivate(ctx, b.ID)
	if errors.Is(err, repository.ErrConflict) {
		return nil
	}
	return err
}

// Verify checks a payload's signature and that the badge it names is
// still active.  An invalid payload is a result, not an error.
func (s *BadgeService) Verify(ctx context.Context, payload string) (VerifyResult, error) {
	claims, err := utils.VerifyBadge(s.Secret, payload)
	if err != nil {
		return VerifyResult{Reason: "bad signature"}, nil
	}
	b, err := s.Badges.GetByID(ctx, claims.BadgeID)
	if errors.Is(err, repository.ErrNotFound) {
		return VerifyResult{Reason: "unknown badge", Claims: &claims}, nil
	}
	if err != nil {
		return VerifyResult{}, err
	}
	if b.UserID != claims.UserID {
		return VerifyResult{Reason: "holder mismatch", Claims: &claims}, nil
	}
	if !b.IsActive {
		return VerifyResult{Reason: "badge deactivated", Claims: &claims, Badge: &b}, nil
	}
	return VerifyResult{Valid: true, Claims: &claims, Badge: &b}, nil
}
