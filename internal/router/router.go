package router // package router registers the HTTP routes of the API

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/memberhub/internal/config"
	"github.com/iliyamo/memberhub/internal/handler"
	"github.com/iliyamo/memberhub/internal/metrics"
	"github.com/iliyamo/memberhub/internal/middleware"
	"github.com/iliyamo/memberhub/internal/model"
)

// Options carries what the global middleware needs.  Redis, Metrics and
// Gatherer may be nil.
type Options struct {
	Logger    *slog.Logger
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

// Handlers groups every handler mounted under /v1.
type Handlers struct {
	Auth          *handler.AuthHandler
	Events        *handler.EventHandler
	Registrations *handler.RegistrationHandler
	Badges        *handler.BadgeHandler
	Scans         *handler.ScanHandler
	Occupancy     *handler.OccupancyHandler
	Affiliates    *handler.AffiliateHandler
	Content       *handler.ContentHandler
}

// New builds the echo instance with the global middleware chain and every
// route registered.
func New(h Handlers, jwtSecret string, o Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(o.Logger))
	e.Use(o.Metrics.Middleware())
	e.Use(middleware.NewTokenBucket(o.RateLimit, jwtSecret, o.Redis, o.Logger))

	RegisterRoutes(e, o.Gatherer)
	RegisterAuth(e, h.Auth, jwtSecret)
	RegisterCatalog(e, h.Events, middleware.NewRedisCache(o.Cache, o.Redis))
	RegisterMember(e, h, jwtSecret)
	RegisterStaff(e, h, jwtSecret)
	RegisterAdmin(e, h, jwtSecret)
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, g prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	if g != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// protected profile route.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)              // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess) // keeps the refresh token
	// logout takes a refresh token or a bearer, so it sits outside JWTAuth
	g.POST("/logout", a.Logout)
	e.POST("/v1/logout", a.Logout)

	e.GET("/v1/me", a.Me, anyRole(jwtSecret)...)
}

// RegisterCatalog registers the public, cached browse endpoints.
func RegisterCatalog(e *echo.Echo, ev *handler.EventHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", cache)
	g.GET("/events", ev.ListEvents)
	g.GET("/events/:id", ev.GetEvent)
	g.GET("/events/:id/rooms", ev.ListRooms)
	g.GET("/events/:id/sessions", ev.ListSessions)
}

// RegisterMember registers endpoints open to every authenticated user.
func RegisterMember(e *echo.Echo, h Handlers, jwtSecret string) {
	mw := anyRole(jwtSecret)
	g := e.Group("/v1")

	g.POST("/events/:id/registrations", h.Registrations.Register, mw...)
	g.GET("/registrations", h.Registrations.ListMine, mw...)
	g.GET("/registrations/:id", h.Registrations.Get, mw...)
	g.PATCH("/registrations/:id", h.Registrations.Update, mw...)
	g.POST("/registrations/:id/cancel", h.Registrations.Cancel, mw...)
	g.POST("/registrations/:id/badge", h.Badges.IssueForRegistration, mw...)

	g.GET("/badges", h.Badges.ListMine, mw...)
	g.GET("/badges/:code", h.Badges.Get, mw...)
	g.GET("/badges/:code/qr.png", h.Badges.QRCode, mw...)

	g.POST("/affiliates", h.Affiliates.Enroll, mw...)
	g.GET("/affiliates/me", h.Affiliates.Me, mw...)
}

// RegisterStaff registers the checkpoint, occupancy and content endpoints.
func RegisterStaff(e *echo.Echo, h Handlers, jwtSecret string) {
	mw := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleStaff, model.RoleAdmin)}
	g := e.Group("/v1")

	g.GET("/events/:id/registrations", h.Registrations.ListForEvent, mw...)

	g.POST("/badges/verify", h.Badges.Verify, mw...)
	g.POST("/badges/:code/deactivate", h.Badges.Deactivate, mw...)

	g.POST("/scans", h.Scans.Record, mw...)
	g.GET("/events/:id/scans", h.Scans.ListForEvent, mw...)
	g.POST("/scan-sessions", h.Scans.StartSession, mw...)
	g.GET("/scan-sessions", h.Scans.ListMySessions, mw...)
	g.GET("/scan-sessions/:id", h.Scans.GetSession, mw...)
	g.POST("/scan-sessions/:id/end", h.Scans.EndSession, mw...)

	g.GET("/events/:id/occupancy", h.Occupancy.Current, mw...)
	g.GET("/events/:id/occupancy/history", h.Occupancy.History, mw...)
	g.GET("/events/:id/occupancy/snapshots", h.Occupancy.Snapshots, mw...)

	g.POST("/content/generate", h.Content.Generate, mw...)
}

// RegisterAdmin registers catalog management and user administration.
func RegisterAdmin(e *echo.Echo, h Handlers, jwtSecret string) {
	mw := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin)}
	g := e.Group("/v1")

	g.POST("/events", h.Events.CreateEvent, mw...)
	g.PATCH("/events/:id", h.Events.UpdateEvent, mw...)
	g.POST("/events/:id/rooms", h.Events.CreateRoom, mw...)
	g.POST("/events/:id/sessions", h.Events.CreateSession, mw...)

	g.POST("/badges", h.Badges.Issue, mw...)
	g.PATCH("/users/:id/role", h.Auth.UpdateRole, mw...)
}

func anyRole(jwtSecret string) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleMember, model.RoleStaff, model.RoleAdmin),
	}
}
