package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/booking"
	"appointo/internal/export"
	"appointo/internal/model"
	"appointo/internal/slots"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Store is the read and opinion/notification surface the API needs.
type Store interface {
	export.Catalog
	ListServices(ctx context.Context) ([]model.Service, error)
	ListOffers(ctx context.Context, serviceID int64) ([]model.Offer, error)
	ListEmployees(ctx context.Context, serviceID int64) ([]model.Employee, error)
	ListOpeningHours(ctx context.Context, serviceID int64) ([]model.OpeningHours, error)

	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	ListUserBookings(ctx context.Context, userID int64) ([]model.Booking, error)
	ListBookingsRange(ctx context.Context, from, to time.Time) ([]model.Booking, error)

	CreateOpinion(ctx context.Context, o *model.Opinion) error
	GetOpinion(ctx context.Context, id int64) (*model.Opinion, error)
	ListOpinions(ctx context.Context, serviceID int64) ([]model.Opinion, error)
	DeleteOpinion(ctx context.Context, id int64) error

	ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
}

// SlotFinder answers slot queries.
type SlotFinder interface {
	Find(ctx context.Context, req slots.Request) (*slots.Result, error)
}

// BookingService performs guarded booking writes.
type BookingService interface {
	Create(ctx context.Context, req booking.CreateRequest) (*model.Booking, error)
	Reschedule(ctx context.Context, req booking.RescheduleRequest) (*model.Booking, error)
	Cancel(ctx context.Context, id int64) (*model.Booking, error)
}

// Options configures the HTTP server.
type Options struct {
	Address string
	APIKey  string
	Debug   bool
}

// Server is the JSON HTTP API.
type Server struct {
	opts     Options
	store    Store
	finder   SlotFinder
	bookings BookingService
	csrf     *CSRF
	logger   zerolog.Logger
	router   *gin.Engine
	srv      *http.Server
}

// NewServer wires routes for the given dependencies.
func NewServer(opts Options, store Store, finder SlotFinder, bookings BookingService, csrf *CSRF, logger zerolog.Logger) *Server {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		opts:     opts,
		store:    store,
		finder:   finder,
		bookings: bookings,
		csrf:     csrf,
		logger:   logger.With().Str("component", "http").Logger(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))
	s.routes(r)
	s.router = r
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	{
		api.GET("/slots", s.getSlots)

		api.POST("/bookings", s.createBooking)
		api.GET("/bookings/:id", s.getBooking)
		api.PUT("/bookings/:id", s.rescheduleBooking)
		api.DELETE("/bookings/:id", s.deleteBooking)
		api.GET("/users/:id/bookings", s.listUserBookings)

		api.GET("/services", s.listServices)
		api.GET("/services/:id", s.getService)
		api.GET("/services/:id/opinions", s.listOpinions)

		api.POST("/opinions", s.createOpinion)
		api.GET("/opinions/:id/csrf", s.opinionToken)
		api.DELETE("/opinions/:id", s.deleteOpinion)

		api.GET("/users/:id/notifications", s.listNotifications)
		api.POST("/notifications/:id/read", s.markNotificationRead)
	}

	admin := r.Group("/api/admin")
	admin.Use(apiKeyAuth(s.opts.APIKey))
	{
		admin.GET("/bookings/export", s.exportBookings)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("address", s.opts.Address).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// fail writes err as {"error": message}. Internal errors are logged and reported generically.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}
