package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/memberhub/internal/metrics"
	"github.com/iliyamo/memberhub/internal/model"
)

func u64(v uint64) *uint64 { return &v }

func TestBuildSeries(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	hall := u64(1)
	scans := []model.Scan{
		{UserID: 1, Type: model.ScanCheckIn, RoomID: hall, ScannedAt: t0.Add(5 * time.Minute)},
		{UserID: 2, Type: model.ScanCheckIn, ScannedAt: t0.Add(10 * time.Minute)},
		{UserID: 3, Type: model.ScanCheckIn, RoomID: hall, ScannedAt: t0.Add(15 * time.Minute)},
		{UserID: 1, Type: model.ScanCheckOut, RoomID: hall, ScannedAt: t0.Add(40 * time.Minute)},
		{UserID: 3, Type: model.ScanCheckIn, ScannedAt: t0.Add(50 * time.Minute)},
		{UserID: 2, Type: model.ScanCheckOut, ScannedAt: t0.Add(55 * time.Minute), IsDuplicate: true},
	}

	points := BuildSeries(scans, nil, t0, t0.Add(time.Hour), 15*time.Minute)
	require.Len(t, points, 5)
	got := make([]uint32, len(points))
	for i, p := range points {
		got[i] = p.Occupancy
	}
	assert.Equal(t, []uint32{0, 3, 3, 2, 2}, got)
	assert.Equal(t, t0.Add(30*time.Minute), points[2].At)

	inHall := BuildSeries(scans, hall, t0, t0.Add(time.Hour), 15*time.Minute)
	got = got[:0]
	for _, p := range inHall {
		got = append(got, p.Occupancy)
	}
	assert.Equal(t, []uint32{0, 2, 2, 1, 0}, got, "user 3 moved out of the hall at 50m")
}

func TestOccupancyCurrentAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	staff := env.user(t, model.RoleStaff)
	ev := env.event(t, staff, withCapacity(50))
	hall := env.room(t, ev.ID, "Hall", u32(10))
	env.room(t, ev.ID, "Lobby", nil)
	_, a := env.attendee(t, ev)
	_, b := env.attendee(t, ev)

	start := env.clock.Now()
	_, err := env.checkin.Record(ctx, ScanRequest{ScannerID: staff, EventID: ev.ID, BadgeCode: a.Code, Type: model.ScanCheckIn, RoomID: &hall.ID})
	require.NoError(t, err)
	env.clock.Advance(10 * time.Minute)
	_, err = env.checkin.Record(ctx, ScanRequest{ScannerID: staff, EventID: ev.ID, BadgeCode: b.Code, Type: model.ScanCheckIn})
	require.NoError(t, err)

	occ, err := env.occupancy.Current(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), occ.Total)
	require.NotNil(t, occ.Capacity)
	assert.Equal(t, uint32(50), *occ.Capacity)
	require.Len(t, occ.Rooms, 2)
	assert.Equal(t, "Hall", occ.Rooms[0].Name)
	assert.Equal(t, uint32(1), occ.Rooms[0].Occupancy)
	assert.Equal(t, uint32(0), occ.Rooms[1].Occupancy)

	points, err := env.occupancy.History(ctx, ev.ID, nil, start.Add(-time.Minute), start.Add(14*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	got := []uint32{}
	for _, p := range points {
		got = append(got, p.Occupancy)
	}
	assert.Equal(t, []uint32{0, 1, 1, 2}, got)

	_, err = env.occupancy.History(ctx, ev.ID, nil, start, start.Add(24*time.Hour), time.Minute)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.occupancy.History(ctx, ev.ID, nil, start, start, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSnapshotAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.occupancy.Metrics = metrics.New(prometheus.NewRegistry())
	staff := env.user(t, model.RoleStaff)
	ev := env.event(t, staff)
	hall := env.room(t, ev.ID, "Hall", nil)
	_, a := env.attendee(t, ev)

	// An event that has not started is not sampled.
	future := model.Event{OrganizerID: staff, Title: "Later", Description: "x",
		StartsAt: env.clock.Now().Add(24 * time.Hour), EndsAt: env.clock.Now().Add(26 * time.Hour)}
	require.NoError(t, env.events.Create(ctx, &future))

	_, err := env.checkin.Record(ctx, ScanRequest{ScannerID: staff, EventID: ev.ID, BadgeCode: a.Code, Type: model.ScanCheckIn, RoomID: &hall.ID})
	require.NoError(t, err)

	n, err := env.occupancy.SnapshotAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snaps, err := env.occupancy.ListSnapshots(ctx, ev.ID, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Nil(t, snaps[0].RoomID)
	assert.Equal(t, uint32(1), snaps[0].Occupancy)
	require.NotNil(t, snaps[1].RoomID)
	assert.Equal(t, hall.ID, *snaps[1].RoomID)
}

func TestSnapshotAllSkipsFailingEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	staff := env.user(t, model.RoleStaff)
	broken := env.event(t, staff)
	ok := env.event(t, staff)

	_, err := env.db.Exec(fmt.Sprintf(`CREATE TRIGGER reject_snapshot BEFORE INSERT ON occupancy_snapshots
		WHEN NEW.event_id = %d BEGIN SELECT RAISE(ABORT, 'disk full'); END`, broken.ID))
	require.NoError(t, err)

	n, err := env.occupancy.SnapshotAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("event %d", broken.ID))
	assert.Equal(t, 1, n)

	snaps, err := env.occupancy.ListSnapshots(ctx, ok.ID, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}
