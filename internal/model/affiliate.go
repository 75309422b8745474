package model

import "time"

// Affiliate is a user credited with commissions on registrations made
// with their referral code.  CommissionBps is in basis points.
type Affiliate struct {
	ID            uint64    `json:"id"`
	UserID        uint64    `json:"user_id"`
	Code          string    `json:"code"`
	CommissionBps uint32    `json:"commission_bps"`
	CreatedAt     time.Time `json:"created_at"`
}

// Commission returns the commission in cents on priceCents.
func (a Affiliate) Commission(priceCents uint32) uint32 {
	return uint32(uint64(priceCents) * uint64(a.CommissionBps) / 10000)
}

// AffiliateStats summarises an affiliate's referrals.
type AffiliateStats struct {
	Affiliate
	Referrals       uint32 `json:"referrals"`
	CommissionCents uint64 `json:"commission_cents"`
}
