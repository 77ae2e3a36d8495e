// Package domain defines core domain types, constants, and validation for the
// stayhub booking backend. It acts as the validation gate at API entry points.
package domain

import "time"

// Hotel is a bookable property listing.
type Hotel struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
	Rating      *float64 `json:"rating"`
	Reviews     *int     `json:"reviews"`
	Image       string   `json:"image"`
}

// HotelSummary is the subset of a hotel embedded in a user's booking list.
type HotelSummary struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Image    string `json:"image"`
}

// Summary returns the booking-list view of h.
func (h Hotel) Summary() HotelSummary {
	return HotelSummary{ID: h.ID, Name: h.Name, Location: h.Location, Image: h.Image}
}

// Booking is a room reservation made by a user.
type Booking struct {
	ID         string    `json:"_id"`
	HotelID    string    `json:"hotelId"`
	UserID     string    `json:"userId"`
	CheckIn    time.Time `json:"checkIn"`
	CheckOut   time.Time `json:"checkOut"`
	RoomNumber int       `json:"roomNumber"`
	Amount     *float64  `json:"amount,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Nights returns the number of nights between check-in and check-out,
// rounding partial days up.
func (b Booking) Nights() int {
	return NightsBetween(b.CheckIn, b.CheckOut)
}

// NightsBetween returns ceil((out-in)/24h), or 0 if out is not after in.
func NightsBetween(in, out time.Time) int {
	d := out.Sub(in)
	if d <= 0 {
		return 0
	}
	n := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		n++
	}
	return n
}

// UserBooking is a booking with its hotel populated.
type UserBooking struct {
	Booking
	Hotel *HotelSummary `json:"hotelId"`
}

// BookingDetails describes the stay being paid for at checkout.
type BookingDetails struct {
	HotelID    string    `json:"hotelId"`
	RoomNumber int       `json:"roomNumber"`
	CheckIn    time.Time `json:"checkIn"`
	CheckOut   time.Time `json:"checkOut"`
	Nights     int       `json:"nights"`
}

// Checkout is a request to open a payment session for a stay.
type Checkout struct {
	Details *BookingDetails `json:"bookingDetails"`
	Amount  float64         `json:"amount"`
}

// SessionDetails is the booking information recovered from a payment session.
type SessionDetails struct {
	HotelID    string `json:"hotelId"`
	RoomNumber string `json:"roomNumber"`
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
	Nights     string `json:"nights"`
	Amount     string `json:"amount"`
}

// SessionStatus is the state of a payment session.
type SessionStatus struct {
	Status         string         `json:"status"`
	BookingDetails SessionDetails `json:"bookingDetails"`
}

// HotelEvent is published when the hotel catalogue changes.
type HotelEvent struct {
	HotelID string    `json:"hotel_id"`
	Action  string    `json:"action"`
	At      time.Time `json:"at"`
}

// Hotel event actions.
const (
	HotelCreated = "created"
	HotelDeleted = "deleted"
)
