package repository // repository for registration persistence

import (
	"context"      // request-scoped deadlines for DB calls
	"database/sql" // SQL database interactions
	"errors"       // errors.Is on sentinel values
	"strings"      // trimming and case helpers
	"time"         // timestamps and timeouts

	"github.com/iliyamo/memberhub/internal/model" // domain types
)

// ErrAlreadyRegistered is returned when the person already holds a
// registration for the event, whatever its status.
var ErrAlreadyRegistered = errors.New("already registered")

// RegistrationRepo persists registrations.  Rows are never deleted.
type RegistrationRepo struct {
	db *sql.DB
}

func NewRegistrationRepo(db *sql.DB) *RegistrationRepo { return &RegistrationRepo{db: db} }

// Referral credits an affiliate for the registration being created.
type Referral struct {
	AffiliateID     uint64
	CommissionCents uint32
}

const registrationColumns = "id, user_id, event_id, roles, status, payment_status, referral_code, created_at, updated_at"

// Create inserts reg inside a transaction.  When capacity is non-nil the
// registrations holding a place (PENDING or APPROVED) are counted first
// and ErrFull is returned once the ceiling is reached.  When ref is
// non-nil the affiliate referral row is written in the same transaction.
func (r *RegistrationRepo) Create(ctx context.Context, reg *model.Registration, capacity *uint32, ref *Referral) error {
	now := time.Now().UTC()
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := checkHolding(ctx, tx, reg.EventID, capacity); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO registrations (user_id, event_id, roles, status, payment_status, referral_code, created_at, updated_at)
			 VALUES (?,?,?,?,?,?,?,?)`,
			reg.UserID, reg.EventID, joinRoles(reg.Roles), reg.Status, reg.PaymentStatus, reg.ReferralCode, now, now)
		if err != nil {
			if isDuplicateKey(err) {
				return ErrAlreadyRegistered // unique (user_id, event_id)
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		reg.ID = uint64(id)
		reg.CreatedAt, reg.UpdatedAt = now, now
		if ref != nil {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO affiliate_referrals (affiliate_id, registration_id, commission_cents, created_at) VALUES (?,?,?,?)",
				ref.AffiliateID, reg.ID, ref.CommissionCents, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// countHolding returns the number of registrations of the event that hold
// a place.
func countHolding(ctx context.Context, tx *sql.Tx, eventID uint64) (uint32, error) {
	var n uint32
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM registrations WHERE event_id = ? AND status IN (?,?)",
		eventID, model.RegPending, model.RegApproved).Scan(&n)
	return n, err
}

// checkHolding returns ErrFull when capacity is set and already reached.
func checkHolding(ctx context.Context, tx *sql.Tx, eventID uint64, capacity *uint32) error {
	if capacity == nil {
		return nil
	}
	held, err := countHolding(ctx, tx, eventID)
	if err != nil {
		return err
	}
	if held >= *capacity {
		return ErrFull
	}
	return nil
}

// GetByID returns the registration or ErrNotFound.
func (r *RegistrationRepo) GetByID(ctx context.Context, id uint64) (model.Registration, error) {
	return scanRegistration(r.db.QueryRowContext(ctx,
		"SELECT "+registrationColumns+" FROM registrations WHERE id = ?", id))
}

// GetByUserEvent returns the person's registration for the event.
func (r *RegistrationRepo) GetByUserEvent(ctx context.Context, userID, eventID uint64) (model.Registration, error) {
	return scanRegistration(r.db.QueryRowContext(ctx,
		"SELECT "+registrationColumns+" FROM registrations WHERE user_id = ? AND event_id = ?", userID, eventID))
}

// ListByUser returns a person's registrations, newest first.
func (r *RegistrationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Registration, error) {
	return r.list(ctx, "SELECT "+registrationColumns+" FROM registrations WHERE user_id = ? ORDER BY id DESC", userID)
}

// ListByEvent returns an event's registrations, optionally filtered by status.
func (r *RegistrationRepo) ListByEvent(ctx context.Context, eventID uint64, status string) ([]model.Registration, error) {
	if status != "" {
		return r.list(ctx, "SELECT "+registrationColumns+" FROM registrations WHERE event_id = ? AND status = ? ORDER BY id",
			eventID, status)
	}
	return r.list(ctx, "SELECT "+registrationColumns+" FROM registrations WHERE event_id = ? ORDER BY id", eventID)
}

// Update writes roles, status and payment status back.  When capacity is
// non-nil the place count is checked in the same transaction, for a
// registration that starts holding a place again.
func (r *RegistrationRepo) Update(ctx context.Context, reg *model.Registration, capacity *uint32) error {
	now := time.Now().UTC()
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := checkHolding(ctx, tx, reg.EventID, capacity); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE registrations SET roles = ?, status = ?, payment_status = ?, updated_at = ? WHERE id = ?",
			joinRoles(reg.Roles), reg.Status, reg.PaymentStatus, now, reg.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		reg.UpdatedAt = now
		return nil
	})
}

func (r *RegistrationRepo) list(ctx context.Context, q string, args ...any) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func scanRegistration(s rowScanner) (model.Registration, error) {
	var (
		reg   model.Registration
		roles string
	)
	err := s.Scan(&reg.ID, &reg.UserID, &reg.EventID, &roles, &reg.Status, &reg.PaymentStatus,
		&reg.ReferralCode, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return reg, notFound(err)
	}
	reg.Roles = splitRoles(roles)
	return reg, nil
}

// Roles are stored comma separated.
func joinRoles(roles []string) string {
	if len(roles) == 0 {
		return "attendee"
	}
	return strings.Join(roles, ",")
}

func splitRoles(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
