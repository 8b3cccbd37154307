// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/tdnguyen/movie-ticket-booking/internal/config"
	"github.com/tdnguyen/movie-ticket-booking/internal/handler"
	"github.com/tdnguyen/movie-ticket-booking/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance: the health check and the public seat-map
// browse endpoint.
func RegisterRoutes(e *echo.Echo, st *handler.ShowTimeHandler) {
	e.GET("/healthz", handler.Health)
	e.GET("/v1/show-times/:id/tickets", st.ListTickets)
}

// RegisterReservations registers the authenticated reservation routes
// under /v1.  Every route requires a valid access token; reservation
// creation additionally passes through the Redis token bucket so a
// single client cannot hammer the booking flow.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))

	auth.POST("/reservations", r.Create, middleware.NewTokenBucket(rlCfg, rdb))
	auth.GET("/reservations/:id", r.Get)
	auth.GET("/my-reservations", r.ListMine)
}
