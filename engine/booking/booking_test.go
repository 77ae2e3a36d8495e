package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stayhub/stayhub/engine/domain"
	"github.com/stayhub/stayhub/pkg/metrics"
	"github.com/stayhub/stayhub/pkg/store"
)

type mockStore struct {
	bookings  map[string]domain.Booking
	user      []domain.UserBooking
	next      int
	err       error
	deleted   []string
	gotFilter store.ListOpts
}

func newMockStore() *mockStore {
	return &mockStore{bookings: make(map[string]domain.Booking)}
}

func (m *mockStore) Get(_ context.Context, id string) (domain.Booking, error) {
	if m.err != nil {
		return domain.Booking{}, m.err
	}
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (m *mockStore) List(_ context.Context, opts store.ListOpts) ([]domain.Booking, error) {
	m.gotFilter = opts
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Booking
	for _, b := range m.bookings {
		out = append(out, b)
	}
	return out, nil
}

func (m *mockStore) Create(_ context.Context, b domain.Booking) (domain.Booking, error) {
	if m.err != nil {
		return domain.Booking{}, m.err
	}
	m.next++
	b.ID = fmt.Sprintf("b%d", m.next)
	m.bookings[b.ID] = b
	return b, nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	if _, ok := m.bookings[id]; !ok {
		return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	delete(m.bookings, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStore) ListByUser(_ context.Context, _ string) ([]domain.UserBooking, error) {
	return m.user, m.err
}

type mockHotels map[string]domain.Hotel

func (m mockHotels) Get(_ context.Context, id string) (domain.Hotel, error) {
	h, ok := m[id]
	if !ok {
		return domain.Hotel{}, fmt.Errorf("hotel %s: %w", id, domain.ErrNotFound)
	}
	return h, nil
}

var (
	checkIn  = time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)
	checkOut = time.Date(2026, 7, 4, 11, 0, 0, 0, time.UTC)
)

func newService(st *mockStore) (*Service, *metrics.Registry) {
	reg := metrics.New()
	hotels := mockHotels{"h1": {ID: "h1", Name: "Sea Breeze", Price: 99.99}}
	return New(st, hotels, slog.New(slog.NewTextHandler(io.Discard, nil)), reg), reg
}

func validBooking() domain.Booking {
	return domain.Booking{HotelID: "h1", CheckIn: checkIn, CheckOut: checkOut, RoomNumber: 12}
}

func TestCreate(t *testing.T) {
	st := newMockStore()
	svc, reg := newService(st)

	b, err := svc.Create(context.Background(), "user-1", validBooking())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == "" || b.UserID != "user-1" {
		t.Fatalf("unexpected booking %+v", b)
	}
	// 3 nights at 99.99, partial last day rounds up.
	if b.Amount == nil || *b.Amount != 299.97 {
		t.Fatalf("amount = %v, want 299.97", b.Amount)
	}
	if got := reg.Counter("stayhub_bookings_created_total", "").Value(); got != 1 {
		t.Fatalf("created counter = %d", got)
	}
}

func TestCreateKeepsGivenAmount(t *testing.T) {
	svc, _ := newService(newMockStore())
	in := validBooking()
	amount := 10.0
	in.Amount = &amount

	b, err := svc.Create(context.Background(), "user-1", in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if *b.Amount != 10 {
		t.Fatalf("amount = %v", *b.Amount)
	}
}

func TestCreateIgnoresBodyUserID(t *testing.T) {
	svc, _ := newService(newMockStore())
	in := validBooking()
	in.UserID = "someone-else"

	b, err := svc.Create(context.Background(), "user-1", in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.UserID != "user-1" {
		t.Fatalf("user id = %q", b.UserID)
	}
}

func TestCreateErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		user   string
		mutate func(*domain.Booking)
		want   error
	}{
		{"no user", "", func(*domain.Booking) {}, domain.ErrUnauthorized},
		{"no hotel", "u", func(b *domain.Booking) { b.HotelID = "" }, domain.ErrInvalidBooking},
		{"checkout before checkin", "u", func(b *domain.Booking) { b.CheckOut = b.CheckIn.Add(-time.Hour) }, domain.ErrInvalidBooking},
		{"zero room", "u", func(b *domain.Booking) { b.RoomNumber = 0 }, domain.ErrInvalidBooking},
		{"unknown hotel", "u", func(b *domain.Booking) { b.HotelID = "nope" }, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMockStore()
			svc, _ := newService(st)
			b := validBooking()
			tt.mutate(&b)
			_, err := svc.Create(ctx, tt.user, b)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(st.bookings) != 0 {
				t.Fatal("nothing should be stored")
			}
		})
	}
}

func TestCreateStoreFailure(t *testing.T) {
	st := newMockStore()
	st.err = errors.New("write concern")
	svc, _ := newService(st)

	if _, err := svc.Create(context.Background(), "u", validBooking()); err == nil {
		t.Fatal("expected error")
	}
}

func TestListAll(t *testing.T) {
	st := newMockStore()
	svc, _ := newService(st)

	out, err := svc.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}

	_, _ = svc.Create(context.Background(), "u", validBooking())
	out, _ = svc.ListAll(context.Background())
	if len(out) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(out))
	}
	if st.gotFilter.Filter != nil || st.gotFilter.Limit != 0 {
		t.Fatalf("ListAll should not filter, got %+v", st.gotFilter)
	}
}

func TestListByUser(t *testing.T) {
	st := newMockStore()
	svc, _ := newService(st)
	ctx := context.Background()

	if _, err := svc.ListByUser(ctx, ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	out, err := svc.ListByUser(ctx, "u")
	if err != nil || out == nil || len(out) != 0 {
		t.Fatalf("expected empty list, got %#v err=%v", out, err)
	}

	st.user = []domain.UserBooking{{Booking: domain.Booking{ID: "b1"}, Hotel: &domain.HotelSummary{ID: "h1"}}}
	out, _ = svc.ListByUser(ctx, "u")
	if len(out) != 1 || out[0].Hotel.ID != "h1" {
		t.Fatalf("unexpected %+v", out)
	}
}

func TestCancel(t *testing.T) {
	st := newMockStore()
	svc, reg := newService(st)
	ctx := context.Background()
	b, _ := svc.Create(ctx, "owner", validBooking())

	if err := svc.Cancel(ctx, "intruder", b.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(st.deleted) != 0 {
		t.Fatal("foreign cancel must not delete")
	}

	if err := svc.Cancel(ctx, "owner", b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(st.deleted) != 1 {
		t.Fatal("booking not deleted")
	}
	if got := reg.Counter("stayhub_bookings_cancelled_total", "").Value(); got != 1 {
		t.Fatalf("cancelled counter = %d", got)
	}

	if err := svc.Cancel(ctx, "owner", b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second cancel, got %v", err)
	}
	if err := svc.Cancel(ctx, "", b.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
