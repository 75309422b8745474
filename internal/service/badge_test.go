package service

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/memberhub/internal/model"
)

func TestIssueForRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, model.RoleAdmin)
	ev := env.event(t, admin, withApproval())
	member := env.user(t, model.RoleMember)
	reg, _, err := env.regs.Register(ctx, member, ev.ID, RegisterInput{})
	require.NoError(t, err)

	_, _, err = env.badges.IssueForRegistration(ctx, member, model.RoleMember, reg.ID)
	assert.ErrorIs(t, err, ErrNotApproved)

	env.regs.AutoIssue = false
	_, _, err = env.regs.Update(ctx, admin, model.RoleAdmin, reg.ID, RegistrationUpdate{Status: strp(model.RegApproved)})
	require.NoError(t, err)

	_, _, err = env.badges.IssueForRegistration(ctx, env.user(t, model.RoleMember), model.RoleMember, reg.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	b, created, err := env.badges.IssueForRegistration(ctx, member, model.RoleMember, reg.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, b.Payload)
	assert.Len(t, b.Code, 36)

	again, created, err := env.badges.IssueForRegistration(ctx, admin, model.RoleAdmin, reg.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, b.ID, again.ID)
}

func TestIssueForRegistrationConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, model.RoleAdmin)
	ev := env.event(t, admin)
	member := env.user(t, model.RoleMember)
	env.regs.AutoIssue = false
	reg, _, err := env.regs.Register(ctx, member, ev.ID, RegisterInput{})
	require.NoError(t, err)
	require.Equal(t, model.RegApproved, reg.Status)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[uint64]bool{}
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, isNew, err := env.badges.IssueForRegistration(ctx, member, model.RoleMember, reg.ID)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			ids[b.ID] = true
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
	var active int
	require.NoError(t, env.db.QueryRow(
		"SELECT COUNT(*) FROM badges WHERE registration_id = ? AND is_active = 1", reg.ID).Scan(&active))
	assert.Equal(t, 1, active)

	// a deactivated badge frees the slot for a replacement
	for id := range ids {
		b, err := env.badges.Badges.GetByID(ctx, id)
		require.NoError(t, err)
		_, err = env.badges.Deactivate(ctx, b.Code)
		require.NoError(t, err)
	}
	b, isNew, err := env.badges.IssueForRegistration(ctx, member, model.RoleMember, reg.ID)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.False(t, ids[b.ID])
}

func TestVerifyBadge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, model.RoleAdmin)
	member := env.user(t, model.RoleMember)

	b, err := env.badges.Issue(ctx, IssueRequest{UserID: member, DisplayName: "  Grace  ", Organization: "Navy"})
	require.NoError(t, err)
	assert.Equal(t, "Grace", b.DisplayName)
	assert.Nil(t, b.EventID)

	res, err := env.badges.Verify(ctx, b.Payload)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.NotNil(t, res.Claims)
	assert.Equal(t, "Grace", res.Claims.Name)
	assert.Equal(t, b.ID, res.Claims.BadgeID)

	res, err = env.badges.Verify(ctx, "garbage")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "bad signature", res.Reason)

	_, err = env.badges.Deactivate(ctx, b.Code)
	require.NoError(t, err)
	_, err = env.badges.Deactivate(ctx, b.Code)
	assert.ErrorIs(t, err, ErrBadgeInactive)
	_, err = env.badges.Deactivate(ctx, "missing")
	assert.ErrorIs(t, err, ErrBadgeNotFound)

	res, err = env.badges.Verify(ctx, b.Payload)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "badge deactivated", res.Reason)

	_, err = env.badges.Get(ctx, admin, model.RoleMember, b.Code)
	assert.ErrorIs(t, err, ErrNotOwner)
	got, err := env.badges.Get(ctx, admin, model.RoleAdmin, b.Code)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	list, err := env.badges.ListByUser(ctx, member)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBadgeQRCode(t *testing.T) {
	env := newTestEnv(t)
	member := env.user(t, model.RoleMember)
	b, err := env.badges.Issue(context.Background(), IssueRequest{UserID: member})
	require.NoError(t, err)

	png, err := env.badges.QRCode(b, 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
