package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/stayhub/stayhub/engine/domain"
)

// Bookings is the Mongo-backed booking repository.
type Bookings struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ Repository[domain.Booking, string] = (*Bookings)(nil)

// NewBookings returns a repository over db's bookings collection.
func NewBookings(db *mongo.Database) *Bookings {
	return &Bookings{coll: db.Collection(BookingsCollection), now: time.Now}
}

// Get returns the booking with the given id or domain.ErrNotFound.
func (s *Bookings) Get(ctx context.Context, id string) (domain.Booking, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.Booking{}, err
	}
	var doc bookingDoc
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Booking{}, fmt.Errorf("store: get booking %s: %w", id, err)
	}
	return doc.toDomain(), nil
}

// List returns bookings matching opts.
func (s *Bookings) List(ctx context.Context, opts ListOpts) ([]domain.Booking, error) {
	cur, err := s.coll.Find(ctx, filterDoc(opts.Filter), findOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("store: list bookings: %w", err)
	}
	var docs []bookingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("store: decode bookings: %w", err)
	}
	out := make([]domain.Booking, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

// Create inserts b with a fresh id and creation time.
func (s *Bookings) Create(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	hotelID, err := primitive.ObjectIDFromHex(b.HotelID)
	if err != nil {
		return domain.Booking{}, domain.NewValidationError("hotelId", b.HotelID, domain.ErrInvalidBooking)
	}
	doc := bookingDoc{
		ID:         primitive.NewObjectID(),
		HotelID:    hotelID,
		UserID:     b.UserID,
		CheckIn:    b.CheckIn.UTC(),
		CheckOut:   b.CheckOut.UTC(),
		RoomNumber: b.RoomNumber,
		Amount:     b.Amount,
		CreatedAt:  s.now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return domain.Booking{}, fmt.Errorf("store: create booking: %w", err)
	}
	return doc.toDomain(), nil
}

// Delete removes the booking with the given id.
func (s *Bookings) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("store: delete booking %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// userBookingsPipeline joins a user's bookings with their hotels, newest
// check-in first.
func userBookingsPipeline(userID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "userId", Value: userID}}}},
		{{Key: "$sort", Value: bson.D{{Key: "checkIn", Value: -1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: HotelsCollection},
			{Key: "localField", Value: "hotelId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "hotel"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$hotel"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}

// ListByUser returns userID's bookings with the hotel populated, sorted by
// check-in descending. Bookings whose hotel was deleted keep a nil hotel.
func (s *Bookings) ListByUser(ctx context.Context, userID string) ([]domain.UserBooking, error) {
	cur, err := s.coll.Aggregate(ctx, userBookingsPipeline(userID))
	if err != nil {
		return nil, fmt.Errorf("store: list bookings for %s: %w", userID, err)
	}
	var docs []userBookingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("store: decode user bookings: %w", err)
	}
	out := make([]domain.UserBooking, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}
