package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/memberhub/internal/model"
	"github.com/iliyamo/memberhub/internal/repository"
)

// DefaultCommissionBps is the commission granted to new affiliates: 10%.
const DefaultCommissionBps = 1000

// AffiliateService enrols affiliates and reports their earnings.
type AffiliateService struct {
	Affiliates    *repository.AffiliateRepo
	CommissionBps uint32
}

// Enroll makes userID an affiliate.  Enrolling twice returns the existing
// record with created false.
func (s *AffiliateService) Enroll(ctx context.Context, userID uint64) (model.AffiliateStats, bool, error) {
	if a, err := s.Affiliates.GetByUser(ctx, userID); err == nil {
		st, err := s.Affiliates.Stats(ctx, a)
		return st, false, err
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.AffiliateStats{}, false, err
	}

	bps := s.CommissionBps
	if bps == 0 {
		bps = DefaultCommissionBps
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		a := model.Affiliate{UserID: userID, Code: newReferralCode(), CommissionBps: bps}
		err := s.Affiliates.Create(ctx, &a)
		if err == nil {
			return model.AffiliateStats{Affiliate: a}, true, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return model.AffiliateStats{}, false, err
		}
		// Either the code clashed or a concurrent enrol won.
		if a, gerr := s.Affiliates.GetByUser(ctx, userID); gerr == nil {
			st, err := s.Affiliates.Stats(ctx, a)
			return st, false, err
		}
		lastErr = err
	}
	return model.AffiliateStats{}, false, lastErr
}

// Me returns the caller's affiliate record with totals.
func (s *AffiliateService) Me(ctx context.Context, userID uint64) (model.AffiliateStats, error) {
	a, err := s.Affiliates.GetByUser(ctx, userID)
	if err != nil {
		return model.AffiliateStats{}, err
	}
	return s.Affiliates.Stats(ctx, a)
}

func newReferralCode() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}
