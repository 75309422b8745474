package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/memberhub/internal/config"
	"github.com/iliyamo/memberhub/internal/content"
	"github.com/iliyamo/memberhub/internal/database"
	"github.com/iliyamo/memberhub/internal/handler"
	"github.com/iliyamo/memberhub/internal/metrics"
	"github.com/iliyamo/memberhub/internal/repository"
	"github.com/iliyamo/memberhub/internal/router"
	"github.com/iliyamo/memberhub/internal/service"
)

const (
	scanLockTTL  = 10 * time.Second
	scanLockWait = 5 * time.Second
	contentTTL   = 24 * time.Hour
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	redis     *redis.Client
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	publisher *service.AMQPPublisher

	users      *repository.UserRepo
	tokens     *repository.TokenRepo
	events     *repository.EventRepo
	regs       *repository.RegistrationRepo
	badgeRepo  *repository.BadgeRepo
	scans      *repository.ScanRepo
	sessions   *repository.ScanSessionRepo
	affiliates *repository.AffiliateRepo

	badges       *service.BadgeService
	registration *service.RegistrationService
	occupancy    *service.OccupancyService
	checkin      *service.CheckinService
	affiliate    *service.AffiliateService
	content      content.Generator
}

// newApp opens the database, applies the schema and wires every service.
// Redis is optional; without it locks are process local and nothing is
// cached.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		redis:      config.NewRedisClient(logger),
		registry:   prometheus.NewRegistry(),
		users:      repository.NewUserRepo(db),
		tokens:     repository.NewTokenRepo(db),
		events:     repository.NewEventRepo(db),
		regs:       repository.NewRegistrationRepo(db),
		badgeRepo:  repository.NewBadgeRepo(db),
		scans:      repository.NewScanRepo(db),
		sessions:   repository.NewScanSessionRepo(db),
		affiliates: repository.NewAffiliateRepo(db),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)
	a.publisher = service.NewAMQPPublisher(cfg.RabbitMQURL, logger)

	var locker service.Locker = service.NewLocalLocker()
	if a.redis != nil {
		locker = service.NewRedisLocker(a.redis, "lock", scanLockTTL, scanLockWait)
	}

	a.badges = &service.BadgeService{
		Users:         a.users,
		Events:        a.events,
		Registrations: a.regs,
		Badges:        a.badgeRepo,
		Publisher:     a.publisher,
		Metrics:       a.metrics,
		Logger:        logger.With("component", "badges"),
		Secret:        cfg.BadgeSecret,
	}
	a.registration = &service.RegistrationService{
		Events:        a.events,
		Registrations: a.regs,
		Affiliates:    a.affiliates,
		Badges:        a.badges,
		Metrics:       a.metrics,
		Logger:        logger.With("component", "registrations"),
		AutoIssue:     cfg.BadgeAutoIssue,
	}
	a.occupancy = &service.OccupancyService{
		Events:    a.events,
		Scans:     a.scans,
		Snapshots: repository.NewSnapshotRepo(db),
		Cache:     a.redis,
		CacheTTL:  cfg.OccupancyCacheTTL,
		Metrics:   a.metrics,
		Logger:    logger.With("component", "occupancy"),
	}
	a.checkin = &service.CheckinService{
		Events:          a.events,
		Registrations:   a.regs,
		Badges:          a.badgeRepo,
		Scans:           a.scans,
		ScanSessions:    a.sessions,
		Occupancy:       a.occupancy,
		Locker:          locker,
		Publisher:       a.publisher,
		Metrics:         a.metrics,
		Logger:          logger.With("component", "checkin"),
		BadgeSecret:     cfg.BadgeSecret,
		DuplicateWindow: cfg.DuplicateScanWindow,
	}
	a.affiliate = &service.AffiliateService{Affiliates: a.affiliates}

	var gen content.Generator = content.Mock{}
	if cfg.ContentAPIURL != "" {
		gen = content.NewHTTP(cfg.ContentAPIURL, cfg.ContentAPIKey, cfg.ContentModel, cfg.ContentTimeout, logger)
	}
	a.content = &content.Cached{Next: gen, Redis: a.redis, TTL: contentTTL, Logger: logger}
	return a, nil
}

// handlers builds the HTTP handlers on top of the services.
func (a *app) handlers() router.Handlers {
	return router.Handlers{
		Auth:          handler.NewAuthHandler(a.cfg, a.users, a.tokens),
		Events:        handler.NewEventHandler(a.events),
		Registrations: handler.NewRegistrationHandler(a.registration),
		Badges:        handler.NewBadgeHandler(a.badges),
		Scans:         handler.NewScanHandler(a.checkin, a.events, a.scans, a.sessions),
		Occupancy:     handler.NewOccupancyHandler(a.occupancy, a.events),
		Affiliates:    handler.NewAffiliateHandler(a.affiliate),
		Content:       handler.NewContentHandler(a.content),
	}
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("close publisher", "error", err)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}
