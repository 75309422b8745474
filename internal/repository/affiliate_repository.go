package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/memberhub/internal/model"
)

// AffiliateRepo persists affiliates.  Referral rows are written by
// RegistrationRepo.Create together with the registration they credit.
type AffiliateRepo struct {
	db *sql.DB
}

func NewAffiliateRepo(db *sql.DB) *AffiliateRepo { return &AffiliateRepo{db: db} }

// Create inserts a. A second affiliate for the same user, or a code clash,
// returns ErrDuplicate.
func (r *AffiliateRepo) Create(ctx context.Context, a *model.Affiliate) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO affiliates (user_id, code, commission_bps, created_at) VALUES (?,?,?,?)",
		a.UserID, a.Code, a.CommissionBps, now)
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
	a.ID = uint64(id)
	a.CreatedAt = now
	return nil
}

// GetByUser returns the user's affiliate record.
func (r *AffiliateRepo) GetByUser(ctx context.Context, userID uint64) (model.Affiliate, error) {
	return r.one(ctx, "SELECT id, user_id, code, commission_bps, created_at FROM affiliates WHERE user_id = ?", userID)
}

// GetByCode returns the affiliate owning a referral code.
func (r *AffiliateRepo) GetByCode(ctx context.Context, code string) (model.Affiliate, error) {
	return r.one(ctx, "SELECT id, user_id, code, commission_bps, created_at FROM affiliates WHERE code = ?", code)
}

// Stats returns the affiliate with its referral count and commission total.
func (r *AffiliateRepo) Stats(ctx context.Context, a model.Affiliate) (model.AffiliateStats, error) {
	st := model.AffiliateStats{Affiliate: a}
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(commission_cents), 0) FROM affiliate_referrals WHERE affiliate_id = ?",
		a.ID).Scan(&st.Referrals, &st.CommissionCents)
	return st, err
}

func (r *AffiliateRepo) one(ctx context.Context, q string, arg any) (model.Affiliate, error) {
	var a model.Affiliate
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&a.ID, &a.UserID, &a.Code, &a.CommissionBps, &a.CreatedAt)
	return a, notFound(err)
}
