package router // package router wires handlers and middleware onto the Echo instance

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/gym-class-booking/internal/handler"
	"github.com/iliyamo/gym-class-booking/internal/middleware"
	"github.com/iliyamo/gym-class-booking/internal/model"
)

// Deps is everything the routes need. RateLimit and Cache may be
// pass-through middleware when Redis is unavailable.
type Deps struct {
	JWTSecret string
	Auth      *handler.AuthHandler
	Classes   *handler.ClassHandler
	Bookings  *handler.BookingHandler
	Members   *handler.MemberHandler
	Payments  *handler.PaymentHandler
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// New returns an Echo instance with the shared middleware and every route
// registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= 500 {
				level = slog.LevelError
			}
			slog.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	}))
	RegisterRoutes(e, d)
	return e
}

// RegisterRoutes maps every endpoint. Authorization beyond the role gates
// below (ownership, self access) is enforced by the services.
func RegisterRoutes(e *echo.Echo, d Deps) {
	rl := orPass(d.RateLimit)
	cache := orPass(d.Cache)

	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	pub := e.Group("/v1/auth")
	pub.POST("/register", d.Auth.Register)
	pub.POST("/login", d.Auth.Login)

	v1 := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	admin := middleware.RequireRole(model.RoleAdmin)
	v1.GET("/me", d.Auth.Me)

	v1.GET("/classes", d.Classes.List)
	v1.GET("/classes/schedule", d.Classes.Schedule, cache)
	v1.GET("/classes/:id", d.Classes.Get)
	v1.POST("/classes", d.Classes.Create, admin)
	v1.PUT("/classes/:id", d.Classes.Update, admin)
	v1.DELETE("/classes/:id", d.Classes.Delete, admin)

	booker := middleware.RequireRole(model.RoleMember, model.RoleAdmin)
	v1.POST("/bookings", d.Bookings.Create, booker, rl)
	v1.GET("/bookings", d.Bookings.List)
	v1.GET("/bookings/upcoming", d.Bookings.Upcoming, middleware.RequireRole(model.RoleMember))
	v1.GET("/bookings/:id", d.Bookings.Get)
	v1.DELETE("/bookings/:id", d.Bookings.Cancel, booker, rl)

	v1.GET("/members", d.Members.List, admin)
	v1.GET("/members/:id", d.Members.Get)
	v1.GET("/members/:id/eligibility", d.Members.Eligibility)
	v1.PATCH("/members/:id", d.Members.Update, admin)
	v1.DELETE("/members/:id", d.Members.Delete, admin)

	v1.POST("/payments", d.Payments.Record, admin)
	v1.GET("/payments", d.Payments.List, admin)
	v1.GET("/payments/expiring", d.Payments.Expiring, admin)
	v1.GET("/payments/member/:memberId", d.Payments.ForMember)
	v1.GET("/payments/:id", d.Payments.Get)
}

func orPass(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	if m == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return m
}
