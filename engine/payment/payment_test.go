package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v81"

	"github.com/stayhub/stayhub/engine/domain"
	"github.com/stayhub/stayhub/pkg/metrics"
)

type fakeSessions struct {
	created *stripe.CheckoutSessionParams
	getID   string
	sess    *stripe.CheckoutSession
	err     error
}

func (f *fakeSessions) New(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = p
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", ClientSecret: "cs_test_1_secret"}, nil
}

func (f *fakeSessions) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.getID = id
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

func newService(f *fakeSessions) (*Service, *metrics.Registry) {
	reg := metrics.New()
	return New(f, Options{
		PublicURL: "https://stayhub.example.com/",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   reg,
	}), reg
}

func checkout() domain.Checkout {
	return domain.Checkout{
		Details: &domain.BookingDetails{
			HotelID:    "65f1c0ffee",
			RoomNumber: 204,
			CheckIn:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			CheckOut:   time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
			Nights:     3,
		},
		Amount: 449.99,
	}
}

func TestCents(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{100, 10000},
		{19.99, 1999},
		{0.5, 50},
		{449.99, 44999},
	}
	for _, tt := range tests {
		if got := Cents(tt.in); got != tt.want {
			t.Errorf("Cents(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestReturnURL(t *testing.T) {
	want := "https://stayhub.example.com/booking/confirmation?session_id={CHECKOUT_SESSION_ID}"
	if got := ReturnURL("https://stayhub.example.com/"); got != want {
		t.Fatalf("ReturnURL = %q", got)
	}
	if got := ReturnURL("https://stayhub.example.com"); got != want {
		t.Fatalf("ReturnURL without slash = %q", got)
	}
}

func TestCreateSessionParams(t *testing.T) {
	f := &fakeSessions{}
	svc, reg := newService(f)

	secret, err := svc.CreateSession(context.Background(), "user_1", checkout())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if secret != "cs_test_1_secret" {
		t.Fatalf("secret = %q", secret)
	}

	p := f.created
	if p.Context == nil {
		t.Fatal("context not propagated")
	}
	if *p.Mode != "payment" || *p.UIMode != "embedded" {
		t.Fatalf("mode=%s ui=%s", *p.Mode, *p.UIMode)
	}
	if len(p.PaymentMethodTypes) != 1 || *p.PaymentMethodTypes[0] != "card" {
		t.Fatalf("payment methods = %v", p.PaymentMethodTypes)
	}
	if *p.ClientReferenceID != "user_1" {
		t.Fatalf("client reference = %s", *p.ClientReferenceID)
	}
	if *p.ReturnURL != "https://stayhub.example.com/booking/confirmation?session_id={CHECKOUT_SESSION_ID}" {
		t.Fatalf("return url = %s", *p.ReturnURL)
	}

	if len(p.LineItems) != 1 {
		t.Fatalf("line items = %d", len(p.LineItems))
	}
	li := p.LineItems[0]
	if *li.Quantity != 1 || *li.PriceData.Currency != "usd" || *li.PriceData.UnitAmount != 44999 {
		t.Fatalf("unexpected price data %+v", li.PriceData)
	}
	if *li.PriceData.ProductData.Name != "Room Booking #204" {
		t.Fatalf("name = %s", *li.PriceData.ProductData.Name)
	}
	if *li.PriceData.ProductData.Description != "3 night(s) stay from 3/10/2026 to 3/13/2026" {
		t.Fatalf("description = %s", *li.PriceData.ProductData.Description)
	}

	md := p.Metadata
	if md["hotelId"] != "65f1c0ffee" || md["roomNumber"] != "204" || md["nights"] != "3" || md["amount"] != "449.99" {
		t.Fatalf("metadata = %v", md)
	}
	if md["checkIn"] != "2026-03-10T00:00:00Z" {
		t.Fatalf("checkIn metadata = %s", md["checkIn"])
	}
	if got := reg.Counter("stayhub_payment_sessions_created_total", "").Value(); got != 1 {
		t.Fatalf("opened counter = %d", got)
	}
}

func TestCreateSessionDerivesNights(t *testing.T) {
	f := &fakeSessions{}
	svc, _ := newService(f)
	c := checkout()
	c.Details.Nights = 0

	if _, err := svc.CreateSession(context.Background(), "u", c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.created.Metadata["nights"] != "3" {
		t.Fatalf("nights = %s", f.created.Metadata["nights"])
	}
}

func TestCreateSessionErrors(t *testing.T) {
	ctx := context.Background()

	svc, _ := newService(&fakeSessions{})
	if _, err := svc.CreateSession(ctx, "", checkout()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.CreateSession(ctx, "u", domain.Checkout{Amount: 10}); !errors.Is(err, domain.ErrInvalidCheckout) {
		t.Fatalf("expected ErrInvalidCheckout, got %v", err)
	}
	noAmount := checkout()
	noAmount.Amount = 0
	if _, err := svc.CreateSession(ctx, "u", noAmount); !errors.Is(err, domain.ErrInvalidCheckout) {
		t.Fatalf("expected ErrInvalidCheckout, got %v", err)
	}

	f := &fakeSessions{err: errors.New("stripe down")}
	svc, reg := newService(f)
	if _, err := svc.CreateSession(ctx, "u", checkout()); err == nil {
		t.Fatal("expected error")
	}
	if got := reg.Counter("stayhub_payment_errors_total", "").Value(); got != 1 {
		t.Fatalf("error counter = %d", got)
	}
}

func TestSessionStatus(t *testing.T) {
	f := &fakeSessions{sess: &stripe.CheckoutSession{
		ID:                "cs_test_1",
		Status:            stripe.CheckoutSessionStatusComplete,
		ClientReferenceID: "user_1",
		AmountTotal:       44999,
		Metadata: map[string]string{
			"hotelId":    "65f1c0ffee",
			"roomNumber": "204",
			"checkIn":    "2026-03-10T00:00:00Z",
			"checkOut":   "2026-03-13T00:00:00Z",
			"nights":     "3",
		},
	}}
	svc, _ := newService(f)

	st, err := svc.SessionStatus(context.Background(), "user_1", "cs_test_1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if f.getID != "cs_test_1" {
		t.Fatalf("get id = %s", f.getID)
	}
	if st.Status != "complete" {
		t.Fatalf("status = %s", st.Status)
	}
	want := domain.SessionDetails{
		HotelID:    "65f1c0ffee",
		RoomNumber: "204",
		CheckIn:    "2026-03-10T00:00:00Z",
		CheckOut:   "2026-03-13T00:00:00Z",
		Nights:     "3",
		Amount:     "449.99",
	}
	if st.BookingDetails != want {
		t.Fatalf("details = %+v, want %+v", st.BookingDetails, want)
	}
}

func TestSessionStatusErrors(t *testing.T) {
	ctx := context.Background()
	f := &fakeSessions{sess: &stripe.CheckoutSession{ClientReferenceID: "owner"}}
	svc, _ := newService(f)

	if _, err := svc.SessionStatus(ctx, "intruder", "cs_1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign session, got %v", err)
	}
	if _, err := svc.SessionStatus(ctx, "owner", " "); !errors.Is(err, ErrMissingSession) {
		t.Fatalf("expected ErrMissingSession, got %v", err)
	}
	if _, err := svc.SessionStatus(ctx, "", "cs_1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	f.err = &stripe.Error{HTTPStatusCode: http.StatusNotFound, Msg: "No such checkout.session"}
	if _, err := svc.SessionStatus(ctx, "owner", "cs_missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	f.err = errors.New("network")
	if _, err := svc.SessionStatus(ctx, "owner", "cs_1"); err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected plain error, got %v", err)
	}
}
