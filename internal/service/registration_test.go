package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/memberhub/internal/model"
	"github.com/iliyamo/memberhub/internal/queue"
	"github.com/iliyamo/memberhub/internal/repository"
)

func strp(s string) *string { return &s }

func TestRegisterDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleAdmin)

	free := env.event(t, org)
	paid := env.event(t, org, withPrice(2500), withApproval())
	member := env.user(t, model.RoleMember)

	reg, badge, err := env.regs.Register(ctx, member, free.ID, RegisterInput{Roles: []string{"Speaker", "speaker", "attendee"}})
	require.NoError(t, err)
	assert.Equal(t, model.RegApproved, reg.Status)
	assert.Equal(t, model.PaymentWaived, reg.PaymentStatus)
	assert.Equal(t, []string{"speaker", "attendee"}, reg.Roles)
	require.NotNil(t, badge, "approved registrations get a badge")
	assert.Equal(t, reg.ID, *badge.RegistrationID)
	assert.Equal(t, 1, env.pub.count(queue.BadgeIssuedQueue))

	reg, badge, err = env.regs.Register(ctx, member, paid.ID, RegisterInput{})
	require.NoError(t, err)
	assert.Equal(t, model.RegPending, reg.Status)
	assert.Equal(t, model.PaymentUnpaid, reg.PaymentStatus)
	assert.Equal(t, []string{"attendee"}, reg.Roles)
	assert.Nil(t, badge)

	_, _, err = env.regs.Register(ctx, member, free.ID, RegisterInput{})
	assert.ErrorIs(t, err, repository.ErrAlreadyRegistered)

	_, _, err = env.regs.Register(ctx, member, paid.ID+100, RegisterInput{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, _, err = env.regs.Register(ctx, env.user(t, model.RoleMember), free.ID, RegisterInput{Roles: []string{"juggler"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterRefusesClosedEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleAdmin)
	ev := env.event(t, org)
	ev.Status = model.EventCancelled
	require.NoError(t, env.events.Update(ctx, &ev))

	_, _, err := env.regs.Register(ctx, env.user(t, model.RoleMember), ev.ID, RegisterInput{})
	assert.ErrorIs(t, err, ErrEventClosed)
}

func TestRegisterWithReferral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.user(t, model.RoleAdmin)
	ev := env.event(t, org, withPrice(4000))
	promoter := env.user(t, model.RoleMember)

	st, created, err := env.affil.Enroll(ctx, promoter)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, st.Code, 10)

	again, created, err := env.affil.Enroll(ctx, promoter)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, st.Code, again.Code)

	member := env.user(t, model.RoleMember)
	reg, _, err := env.regs.Register(ctx, member, ev.ID, RegisterInput{ReferralCode: st.Code})
	require.NoError(t, err)
	require.NotNil(t, reg.ReferralCode)
	assert.Equal(t, st.Code, *reg.ReferralCode)

	// Self referral is accepted but earns nothing.
	reg, _, err = env.regs.Register(ctx, promoter, ev.ID, RegisterInput{ReferralCode: st.Code})
	require.NoError(t, err)
	assert.Nil(t, reg.ReferralCode)

	_, _, err = env.regs.Register(ctx, env.user(t, model.RoleMember), ev.ID, RegisterInput{ReferralCode: "NOPE"})
	assert.ErrorIs(t, err, ErrUnknownReferral)

	me, err := env.affil.Me(ctx, promoter)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), me.Referrals)
	assert.Equal(t, uint64(400), me.CommissionCents, "10% of 40.00")

	_, err = env.affil.Me(ctx, member)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, model.RoleAdmin)
	ev := env.event(t, admin, withApproval(), withCapacity(1))
	member := env.user(t, model.RoleMember)
	other := env.user(t, model.RoleMember)

	reg, _, err := env.regs.Register(ctx, member, ev.ID, RegisterInput{})
	require.NoError(t, err)

	// Members can neither approve nor touch someone else's registration.
	_, _, err = env.regs.Update(ctx, member, model.RoleMember, reg.ID, RegistrationUpdate{Status: strp(model.RegApproved)})
	assert.ErrorIs(t, err, ErrNotOwner)
	_, _, err = env.regs.Update(ctx, other, model.RoleMember, reg.ID, RegistrationUpdate{Status: strp(model.RegCancelled)})
	assert.ErrorIs(t, err, ErrNotOwner)

	reg, badge, err := env.regs.Update(ctx, admin, model.RoleAdmin, reg.ID, RegistrationUpdate{
		Status: strp(model.RegApproved), PaymentStatus: strp(model.PaymentPaid),
	})
	require.NoError(t, err)
	assert.Equal(t, model.RegApproved, reg.Status)
	assert.Equal(t, model.PaymentPaid, reg.PaymentStatus)
	require.NotNil(t, badge)

	_, _, err = env.regs.Update(ctx, admin, model.RoleAdmin, reg.ID, RegistrationUpdate{Status: strp("MAYBE")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	reg, _, err = env.regs.Update(ctx, member, model.RoleMember, reg.ID, RegistrationUpdate{Status: strp(model.RegCancelled)})
	require.NoError(t, err)
	assert.Equal(t, model.RegCancelled, reg.Status)

	b, err := env.badges.Get(ctx, member, model.RoleMember, badge.Code)
	require.NoError(t, err)
	assert.False(t, b.IsActive, "cancelling deactivates the badge")

	// The freed place goes to someone else, and the cancelled one cannot come back.
	_, _, err = env.regs.Register(ctx, other, ev.ID, RegisterInput{})
	require.NoError(t, err)
	_, _, err = env.regs.Update(ctx, admin, model.RoleAdmin, reg.ID, RegistrationUpdate{Status: strp(model.RegApproved)})
	assert.ErrorIs(t, err, ErrCapacityReached)

	mine, err := env.regs.ListMine(ctx, member)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := env.regs.ListForEvent(ctx, ev.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	_, err = env.regs.ListForEvent(ctx, ev.ID, "BOGUS")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.regs.Get(ctx, other, model.RoleMember, reg.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = env.regs.Get(ctx, admin, model.RoleStaff, reg.ID)
	assert.NoError(t, err)
}

func TestReactivationRefusedOnClosedEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, model.RoleAdmin)
	ev := env.event(t, admin)
	member := env.user(t, model.RoleMember)

	reg, _, err := env.regs.Register(ctx, member, ev.ID, RegisterInput{})
	require.NoError(t, err)
	_, _, err = env.regs.Update(ctx, member, model.RoleMember, reg.ID, RegistrationUpdate{Status: strp(model.RegCancelled)})
	require.NoError(t, err)

	ev.Status = model.EventCancelled
	require.NoError(t, env.events.Update(ctx, &ev))

	_, _, err = env.regs.Update(ctx, admin, model.RoleAdmin, reg.ID, RegistrationUpdate{Status: strp(model.RegApproved)})
	assert.ErrorIs(t, err, ErrEventClosed)

	// Edits that keep the registration inactive still go through.
	got, _, err := env.regs.Update(ctx, admin, model.RoleAdmin, reg.ID, RegistrationUpdate{PaymentStatus: strp(model.PaymentWaived)})
	require.NoError(t, err)
	assert.Equal(t, model.RegCancelled, got.Status)
}
