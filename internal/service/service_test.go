package service

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/memberhub/internal/database"
	"github.com/iliyamo/memberhub/internal/model"
	"github.com/iliyamo/memberhub/internal/repository"
)

const testBadgeSecret = "badge-secret"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type published struct {
	queue string
	msg   any
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, queue string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{queue, msg})
	return p.err
}

func (p *recordingPublisher) count(queue string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if m.queue == queue {
			n++
		}
	}
	return n
}

// testEnv wires every service on a fresh SQLite database.
type testEnv struct {
	db        *sql.DB
	clock     *fakeClock
	pub       *recordingPublisher
	users     *repository.UserRepo
	events    *repository.EventRepo
	regsRepo  *repository.RegistrationRepo
	badges    *BadgeService
	regs      *RegistrationService
	checkin   *CheckinService
	occupancy *OccupancyService
	sessions  *repository.ScanSessionRepo
	affil     *AffiliateService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, "sqlite"))

	env := &testEnv{
		db:       db,
		clock:    &fakeClock{t: time.Now().UTC()},
		pub:      &recordingPublisher{},
		users:    repository.NewUserRepo(db),
		events:   repository.NewEventRepo(db),
		regsRepo: repository.NewRegistrationRepo(db),
		sessions: repository.NewScanSessionRepo(db),
	}
	badgeRepo := repository.NewBadgeRepo(db)
	scans := repository.NewScanRepo(db)
	affiliates := repository.NewAffiliateRepo(db)

	env.badges = &BadgeService{
		Users: env.users, Events: env.events, Registrations: env.regsRepo, Badges: badgeRepo,
		Publisher: env.pub, Secret: testBadgeSecret,
	}
	env.regs = &RegistrationService{
		Events: env.events, Registrations: env.regsRepo, Affiliates: affiliates, Badges: env.badges,
		AutoIssue: true, Now: env.clock.Now,
	}
	env.occupancy = &OccupancyService{
		Events: env.events, Scans: scans, Snapshots: repository.NewSnapshotRepo(db), Now: env.clock.Now,
	}
	env.checkin = &CheckinService{
		Events: env.events, Registrations: env.regsRepo, Badges: badgeRepo, Scans: scans,
		ScanSessions: env.sessions, Occupancy: env.occupancy, Locker: NewLocalLocker(), Publisher: env.pub,
		BadgeSecret: testBadgeSecret, DuplicateWindow: 30 * time.Minute, Now: env.clock.Now,
	}
	env.affil = &AffiliateService{Affiliates: affiliates}
	return env
}

var userSeq int

func (e *testEnv) user(t *testing.T, role string) uint64 {
	t.Helper()
	userSeq++
	id, err := e.users.Create(context.Background(), fmt.Sprintf("user%d@example.org", userSeq), "password1",
		fmt.Sprintf("User %d", userSeq), role, 4)
	require.NoError(t, err)
	return id
}

type eventOpt func(*model.Event)

func withCapacity(n uint32) eventOpt { return func(e *model.Event) { e.Capacity = &n } }
func withApproval() eventOpt         { return func(e *model.Event) { e.RequiresApproval = true } }
func withPrice(c uint32) eventOpt    { return func(e *model.Event) { e.PriceCents = c } }

func (e *testEnv) event(t *testing.T, organizer uint64, opts ...eventOpt) model.Event {
	t.Helper()
	now := e.clock.Now()
	ev := model.Event{
		OrganizerID: organizer, Title: "Community day", Description: "Talks",
		StartsAt: now.Add(-time.Hour), EndsAt: now.Add(8 * time.Hour),
	}
	for _, o := range opts {
		o(&ev)
	}
	require.NoError(t, e.events.Create(context.Background(), &ev))
	return ev
}

// attendee registers a new member for ev and returns them with their badge.
func (e *testEnv) attendee(t *testing.T, ev model.Event) (uint64, model.Badge) {
	t.Helper()
	uid := e.user(t, model.RoleMember)
	_, badge, err := e.regs.Register(context.Background(), uid, ev.ID, RegisterInput{})
	require.NoError(t, err)
	require.NotNil(t, badge)
	return uid, *badge
}

func (e *testEnv) room(t *testing.T, eventID uint64, name string, capacity *uint32) model.Room {
	t.Helper()
	r := model.Room{EventID: eventID, Name: name, Capacity: capacity}
	require.NoError(t, e.events.CreateRoom(context.Background(), &r))
	return r
}

func u32(v uint32) *uint32 { return &v }
