package router // package router defines how HTTP routes are registered for the API

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
)

// Deps carries everything the routes need.  Redis is optional; without it
// the response cache and the rate limiter are pass-throughs.
type Deps struct {
	Log            *zap.Logger
	DB             handler.Pinger
	Redis          *redis.Client
	JWTSecret      string
	RequestTimeout time.Duration
	RateLimit      config.RateLimitConfig
	Cache          config.CacheConfig
	Bookings       *handler.BookingHandler
	Events         *handler.EventHandler
}

// New builds the Echo instance with global middleware and every route
// registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.Recover())
	e.Use(middleware.Deadline(d.RequestTimeout))

	RegisterRoutes(e, d.DB)
	RegisterPublic(e, d)
	RegisterBookings(e, d)
	RegisterAdmin(e, d)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterPublic registers the unauthenticated catalog endpoints.  GET
// responses go through the Redis cache when it is enabled.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1/events", middleware.NewRedisCache(d.Cache, d.Redis, d.Log))
	g.GET("", d.Events.List)
	g.GET("/search", d.Events.Search)
	g.GET("/:id", d.Events.Get)
	g.GET("/:id/availability", d.Events.Availability)
}
