package routes

import (
	"io"
	"net/http"

	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"

	"farm_mapper/internal/controllers"
	"farm_mapper/internal/mapping"
	"farm_mapper/internal/metrics"
	"farm_mapper/internal/middleware"
	"farm_mapper/internal/store"
)

// Deps is everything the handlers need.
type Deps struct {
	Store          store.FarmRecordStore
	Sessions       *mapping.Registry
	Hub            *controllers.FarmHub
	JWTSecret      []byte
	AllowedOrigins []string
	// Limiter throttles writes per owner; nil disables it.
	Limiter *middleware.OwnerLimiter
	// AccessLog receives one line per request; nil disables it.
	AccessLog io.Writer
	// MaxBodyBytes caps request bodies; zero disables the cap.
	MaxBodyBytes int64
}

// SetupRouter builds the engine. The caller owns the listener.
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if d.AccessLog != nil {
		r.Use(ginlog.SetLogger(
			ginlog.WithWriter(d.AccessLog),
			ginlog.WithUTC(true),
			ginlog.WithSkipPath([]string{"/healthz", "/metrics"}),
		))
	}
	r.Use(metrics.Middleware())
	r.Use(middleware.EnableCORS(d.AllowedOrigins))
	r.Use(middleware.LimitBody(d.MaxBodyBytes))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	FarmRoutes(r, d)
	MappingRoutes(r, d)
	WebSocketRoutes(r, d)

	return r
}

// protected is the middleware chain for owner-scoped endpoints.
func protected(d Deps) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{middleware.RequireAuth(d.JWTSecret)}
	if d.Limiter != nil {
		chain = append(chain, middleware.RateLimit(d.Limiter))
	}
	return chain
}
