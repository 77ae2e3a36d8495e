package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// MinPrice is the lowest nightly price accepted for a listing.
const MinPrice = 1

// ValidateHotel validates a hotel submitted for creation.
func ValidateHotel(h Hotel) error {
	if strings.TrimSpace(h.Name) == "" {
		return NewValidationError("name", h.Name, ErrInvalidHotel)
	}
	if strings.TrimSpace(h.Location) == "" {
		return NewValidationError("location", h.Location, ErrInvalidHotel)
	}
	if !validURL(h.Image) {
		return NewValidationError("image", h.Image, ErrInvalidHotel)
	}
	if h.Price < MinPrice {
		return NewValidationError("price", fmt.Sprintf("%g", h.Price), ErrInvalidHotel)
	}
	if strings.TrimSpace(h.Description) == "" {
		return NewValidationError("description", h.Description, ErrInvalidHotel)
	}
	if h.Rating != nil && (*h.Rating < 0 || *h.Rating > 5) {
		return NewValidationError("rating", fmt.Sprintf("%g", *h.Rating), ErrInvalidHotel)
	}
	if h.Reviews != nil && *h.Reviews < 0 {
		return NewValidationError("reviews", fmt.Sprintf("%d", *h.Reviews), ErrInvalidHotel)
	}
	return nil
}

// ValidateBooking validates a booking before it is stored. The user id is set
// by the caller from the authenticated identity, not from the request body.
func ValidateBooking(b Booking) error {
	if strings.TrimSpace(b.HotelID) == "" {
		return NewValidationError("hotelId", b.HotelID, ErrInvalidBooking)
	}
	if b.CheckIn.IsZero() {
		return NewValidationError("checkIn", "", ErrInvalidBooking)
	}
	if !b.CheckOut.After(b.CheckIn) {
		return NewValidationError("checkOut", b.CheckOut.Format("2006-01-02"), ErrInvalidBooking)
	}
	if b.RoomNumber <= 0 {
		return NewValidationError("roomNumber", fmt.Sprintf("%d", b.RoomNumber), ErrInvalidBooking)
	}
	return nil
}

// ValidateCheckout validates a checkout request.
func ValidateCheckout(c Checkout) error {
	if c.Details == nil {
		return NewValidationError("bookingDetails", "", ErrInvalidCheckout)
	}
	if c.Amount <= 0 {
		return NewValidationError("amount", fmt.Sprintf("%g", c.Amount), ErrInvalidCheckout)
	}
	if strings.TrimSpace(c.Details.HotelID) == "" {
		return NewValidationError("hotelId", c.Details.HotelID, ErrInvalidCheckout)
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
