// Package booking implements room reservations on top of the booking and
// hotel repositories.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/stayhub/stayhub/engine/domain"
	"github.com/stayhub/stayhub/pkg/metrics"
	"github.com/stayhub/stayhub/pkg/store"
)

// Store persists bookings.
type Store interface {
	Get(ctx context.Context, id string) (domain.Booking, error)
	List(ctx context.Context, opts store.ListOpts) ([]domain.Booking, error)
	Create(ctx context.Context, b domain.Booking) (domain.Booking, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]domain.UserBooking, error)
}

// HotelGetter looks up the hotel being booked.
type HotelGetter interface {
	Get(ctx context.Context, id string) (domain.Hotel, error)
}

// Service manages bookings.
type Service struct {
	bookings Store
	hotels   HotelGetter
	log      *slog.Logger

	created   *metrics.Counter
	cancelled *metrics.Counter
}

// New creates a Service. A nil logger or registry gets a default.
func New(bookings Store, hotels HotelGetter, logger *slog.Logger, reg *metrics.Registry) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Service{
		bookings:  bookings,
		hotels:    hotels,
		log:       logger,
		created:   reg.Counter("stayhub_bookings_created_total", "Bookings created."),
		cancelled: reg.Counter("stayhub_bookings_cancelled_total", "Bookings cancelled by their owner."),
	}
}

// Create books a room for userID. The hotel must exist. When b carries no
// amount it is priced at the hotel's nightly rate.
func (s *Service) Create(ctx context.Context, userID string, b domain.Booking) (domain.Booking, error) {
	if userID == "" {
		return domain.Booking{}, fmt.Errorf("booking: create: %w", domain.ErrUnauthorized)
	}
	b.UserID = userID
	if err := domain.ValidateBooking(b); err != nil {
		return domain.Booking{}, err
	}

	h, err := s.hotels.Get(ctx, b.HotelID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking: hotel %s: %w", b.HotelID, err)
	}
	if b.Amount == nil {
		amount := math.Round(h.Price*float64(b.Nights())*100) / 100
		b.Amount = &amount
	}

	out, err := s.bookings.Create(ctx, b)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking: create: %w", err)
	}
	s.created.Inc()
	s.log.Info("booking created", "booking_id", out.ID, "hotel_id", out.HotelID, "user_id", userID, "nights", out.Nights())
	return out, nil
}

// ListAll returns every booking.
func (s *Service) ListAll(ctx context.Context) ([]domain.Booking, error) {
	out, err := s.bookings.List(ctx, store.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("booking: list: %w", err)
	}
	if out == nil {
		out = []domain.Booking{}
	}
	return out, nil
}

// ListByUser returns userID's bookings, newest check-in first, with hotels
// populated.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.UserBooking, error) {
	if userID == "" {
		return nil, fmt.Errorf("booking: list: %w", domain.ErrUnauthorized)
	}
	out, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("booking: list for user: %w", err)
	}
	if out == nil {
		out = []domain.UserBooking{}
	}
	return out, nil
}

// Cancel deletes bookingID on behalf of userID. Cancelling someone else's
// booking is domain.ErrForbidden.
func (s *Service) Cancel(ctx context.Context, userID, bookingID string) error {
	if userID == "" {
		return fmt.Errorf("booking: cancel: %w", domain.ErrUnauthorized)
	}
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("booking: cancel: %w", err)
	}
	if b.UserID != userID {
		s.log.Warn("cancel refused", "booking_id", bookingID, "user_id", userID)
		return fmt.Errorf("booking: cancel %s: %w", bookingID, domain.ErrForbidden)
	}
	if err := s.bookings.Delete(ctx, bookingID); err != nil {
		return fmt.Errorf("booking: delete %s: %w", bookingID, err)
	}
	s.cancelled.Inc()
	s.log.Info("booking cancelled", "booking_id", bookingID, "user_id", userID)
	return nil
}
