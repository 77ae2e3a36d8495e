// Package payment opens Stripe checkout sessions for hotel stays and reports
// their status back to the guest who started them.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"

	"github.com/stayhub/stayhub/engine/domain"
	"github.com/stayhub/stayhub/pkg/metrics"
)

// Currency is the only currency sessions are opened in.
const Currency = "usd"

// SessionIDPlaceholder is substituted by Stripe with the real session id in
// the return URL.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// ErrMissingSession is returned for an empty session id.
var ErrMissingSession = errors.New("payment: missing session id")

// Sessions is the subset of the Stripe checkout session API in use.
// *session.Client satisfies it.
type Sessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeSessions returns the live Stripe session client for secretKey.
func NewStripeSessions(secretKey string) *session.Client {
	return &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
}

// Options configures the Service.
type Options struct {
	// PublicURL is the site origin guests return to after paying.
	PublicURL string
	Logger    *slog.Logger
	Metrics   *metrics.Registry
}

// Service creates and inspects checkout sessions.
type Service struct {
	sessions  Sessions
	returnURL string
	log       *slog.Logger

	opened *metrics.Counter
	failed *metrics.Counter
}

// New creates a Service.
func New(sessions Sessions, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Service{
		sessions:  sessions,
		returnURL: ReturnURL(opts.PublicURL),
		log:       opts.Logger,
		opened:    opts.Metrics.Counter("stayhub_payment_sessions_created_total", "Checkout sessions opened."),
		failed:    opts.Metrics.Counter("stayhub_payment_errors_total", "Stripe calls that failed."),
	}
}

// ReturnURL is where Stripe sends the guest after checkout.
func ReturnURL(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + "/booking/confirmation?session_id=" + SessionIDPlaceholder
}

// Cents converts a dollar amount to the smallest currency unit.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// LineItemName is the product name shown on the checkout page.
func LineItemName(d domain.BookingDetails) string {
	return fmt.Sprintf("Room Booking #%d", d.RoomNumber)
}

// LineItemDescription summarises the stay.
func LineItemDescription(d domain.BookingDetails) string {
	return fmt.Sprintf("%d night(s) stay from %s to %s", d.Nights, d.CheckIn.Format("1/2/2006"), d.CheckOut.Format("1/2/2006"))
}

// Metadata is attached to the session so the booking can be recovered from
// it.
func Metadata(c domain.Checkout) map[string]string {
	d := c.Details
	return map[string]string{
		"hotelId":    d.HotelID,
		"roomNumber": strconv.Itoa(d.RoomNumber),
		"checkIn":    d.CheckIn.Format(time.RFC3339),
		"checkOut":   d.CheckOut.Format(time.RFC3339),
		"nights":     strconv.Itoa(d.Nights),
		"amount":     strconv.FormatFloat(c.Amount, 'f', -1, 64),
	}
}

func (s *Service) params(userID string, c domain.Checkout) *stripe.CheckoutSessionParams {
	p := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		UIMode:             stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(LineItemName(*c.Details)),
					Description: stripe.String(LineItemDescription(*c.Details)),
				},
				UnitAmount: stripe.Int64(Cents(c.Amount)),
			},
			Quantity: stripe.Int64(1),
		}},
		ClientReferenceID: stripe.String(userID),
		ReturnURL:         stripe.String(s.returnURL),
	}
	for k, v := range Metadata(c) {
		p.AddMetadata(k, v)
	}
	return p
}

// CreateSession opens an embedded checkout session for userID and returns its
// client secret.
func (s *Service) CreateSession(ctx context.Context, userID string, c domain.Checkout) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("payment: create session: %w", domain.ErrUnauthorized)
	}
	if err := domain.ValidateCheckout(c); err != nil {
		return "", err
	}
	if c.Details.Nights == 0 {
		c.Details.Nights = domain.NightsBetween(c.Details.CheckIn, c.Details.CheckOut)
	}

	p := s.params(userID, c)
	p.Context = ctx
	sess, err := s.sessions.New(p)
	if err != nil {
		s.failed.Inc()
		return "", fmt.Errorf("payment: create session: %w", err)
	}
	s.opened.Inc()
	s.log.Info("checkout session created", "session_id", sess.ID, "user_id", userID, "hotel_id", c.Details.HotelID, "amount_cents", Cents(c.Amount))
	return sess.ClientSecret, nil
}

// SessionStatus reports the state of sessionID. A session started by another
// user is domain.ErrUnauthorized.
func (s *Service) SessionStatus(ctx context.Context, userID, sessionID string) (domain.SessionStatus, error) {
	if userID == "" {
		return domain.SessionStatus{}, fmt.Errorf("payment: session status: %w", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(sessionID) == "" {
		return domain.SessionStatus{}, ErrMissingSession
	}

	p := &stripe.CheckoutSessionParams{}
	p.Context = ctx
	sess, err := s.sessions.Get(sessionID, p)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == 404 {
			return domain.SessionStatus{}, fmt.Errorf("payment: session %s: %w", sessionID, domain.ErrNotFound)
		}
		s.failed.Inc()
		return domain.SessionStatus{}, fmt.Errorf("payment: get session %s: %w", sessionID, err)
	}
	if sess.ClientReferenceID != userID {
		s.log.Warn("session owner mismatch", "session_id", sessionID, "user_id", userID)
		return domain.SessionStatus{}, fmt.Errorf("payment: session %s: %w", sessionID, domain.ErrUnauthorized)
	}

	md := sess.Metadata
	return domain.SessionStatus{
		Status: string(sess.Status),
		BookingDetails: domain.SessionDetails{
			HotelID:    md["hotelId"],
			RoomNumber: md["roomNumber"],
			CheckIn:    md["checkIn"],
			CheckOut:   md["checkOut"],
			Nights:     md["nights"],
			Amount:     strconv.FormatFloat(float64(sess.AmountTotal)/100, 'f', 2, 64),
		},
	}, nil
}
