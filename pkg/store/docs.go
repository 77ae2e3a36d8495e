package store

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/stayhub/stayhub/engine/domain"
)

type hotelDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Location    string             `bson:"location"`
	Rating      *float64           `bson:"rating"`
	Reviews     *int               `bson:"reviews"`
	Image       string             `bson:"image"`
	Price       float64            `bson:"price"`
	Description string             `bson:"description"`
}

func (d hotelDoc) toDomain() domain.Hotel {
	return domain.Hotel{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Location:    d.Location,
		Price:       d.Price,
		Description: d.Description,
		Rating:      d.Rating,
		Reviews:     d.Reviews,
		Image:       d.Image,
	}
}

func hotelFromDomain(h domain.Hotel, id primitive.ObjectID) hotelDoc {
	return hotelDoc{
		ID:          id,
		Name:        h.Name,
		Location:    h.Location,
		Rating:      h.Rating,
		Reviews:     h.Reviews,
		Image:       h.Image,
		Price:       h.Price,
		Description: h.Description,
	}
}

type bookingDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	HotelID    primitive.ObjectID `bson:"hotelId"`
	UserID     string             `bson:"userId"`
	CheckIn    time.Time          `bson:"checkIn"`
	CheckOut   time.Time          `bson:"checkOut"`
	RoomNumber int                `bson:"roomNumber"`
	Amount     *float64           `bson:"amount,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt"`
}

func (d bookingDoc) toDomain() domain.Booking {
	return domain.Booking{
		ID:         d.ID.Hex(),
		HotelID:    d.HotelID.Hex(),
		UserID:     d.UserID,
		CheckIn:    d.CheckIn.UTC(),
		CheckOut:   d.CheckOut.UTC(),
		RoomNumber: d.RoomNumber,
		Amount:     d.Amount,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

// userBookingDoc is a booking joined with its hotel by $lookup.
type userBookingDoc struct {
	bookingDoc `bson:",inline"`
	Hotel      *hotelDoc `bson:"hotel,omitempty"`
}

func (d userBookingDoc) toDomain() domain.UserBooking {
	ub := domain.UserBooking{Booking: d.bookingDoc.toDomain()}
	if d.Hotel != nil {
		s := d.Hotel.toDomain().Summary()
		ub.Hotel = &s
	}
	return ub
}

// objectID parses a hex id. A malformed id can never match a document, so it
// is reported as domain.ErrNotFound.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: id %q", domain.ErrNotFound, id)
	}
	return oid, nil
}
