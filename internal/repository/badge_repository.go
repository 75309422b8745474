package repository // repository for badge persistence

import (
	"context"      // request-scoped deadlines for DB calls
	"database/sql" // SQL database interactions
	"time"         // timestamps and timeouts

	"github.com/iliyamo/memberhub/internal/model" // domain types
)

// BadgeRepo persists badges.  Badges are deactivated, never deleted.
type BadgeRepo struct {
	db *sql.DB
}

func NewBadgeRepo(db *sql.DB) *BadgeRepo { return &BadgeRepo{db: db} }

const badgeColumns = `id, code, user_id, event_id, registration_id, display_name, title, organization,
	payload, is_active, created_at, deactivated_at`

// Create inserts b.  The ID must be known before the payload is signed, so
// the row is written with an empty payload and finished by sign inside the
// same transaction.  A second active badge for the same registration
// returns ErrDuplicate.
func (r *BadgeRepo) Create(ctx context.Context, b *model.Badge, sign func(model.Badge) (string, error)) error {
	now := time.Now().UTC()
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO badges (code, user_id, event_id, registration_id, display_name, title, organization,
				payload, is_active, created_at, active_registration_id) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			b.Code, b.UserID, b.EventID, b.RegistrationID, b.DisplayName, b.Title, b.Organization,
			"", true, now, b.RegistrationID) // unique while active: one live badge per registration
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
		b.ID = uint64(id)
		b.IsActive = true
		b.CreatedAt = now
		payload, err := sign(*b)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE badges SET payload = ? WHERE id = ?", payload, b.ID); err != nil {
			return err
		}
		b.Payload = payload
		return nil
	})
}

// GetByCode returns the badge with the external code.
func (r *BadgeRepo) GetByCode(ctx context.Context, code string) (model.Badge, error) {
	return scanBadge(r.db.QueryRowContext(ctx, "SELECT "+badgeColumns+" FROM badges WHERE code = ?", code))
}

// GetByID returns the badge or ErrNotFound.
func (r *BadgeRepo) GetByID(ctx context.Context, id uint64) (model.Badge, error) {
	return scanBadge(r.db.QueryRowContext(ctx, "SELECT "+badgeColumns+" FROM badges WHERE id = ?", id))
}

// ActiveForRegistration returns the newest active badge issued for the
// registration, or ErrNotFound.
func (r *BadgeRepo) ActiveForRegistration(ctx context.Context, registrationID uint64) (model.Badge, error) {
	return scanBadge(r.db.QueryRowContext(ctx,
		"SELECT "+badgeColumns+" FROM badges WHERE registration_id = ? AND is_active = ? ORDER BY id DESC LIMIT 1",
		registrationID, true))
}

// ListByUser returns a person's badges, newest first.
func (r *BadgeRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Badge, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+badgeColumns+" FROM badges WHERE user_id = ? ORDER BY id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Badge{}
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Deactivate marks the badge inactive.  Deactivating an inactive badge
// returns ErrConflict.
func (r *BadgeRepo) Deactivate(ctx context.Context, id uint64) (time.Time, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"UPDATE badges SET is_active = ?, deactivated_at = ?, active_registration_id = NULL WHERE id = ? AND is_active = ?",
		false, now, id, true)
	if err != nil {
		return time.Time{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return time.Time{}, err
		}
		return time.Time{}, ErrConflict
	}
	return now, nil
}

func scanBadge(s rowScanner) (model.Badge, error) {
	var b model.Badge
	err := s.Scan(&b.ID, &b.Code, &b.UserID, &b.EventID, &b.RegistrationID, &b.DisplayName, &b.Title,
		&b.Organization, &b.Payload, &b.IsActive, &b.CreatedAt, &b.DeactivatedAt)
	return b, notFound(err)
}
