package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/stayhub/stayhub/engine/domain"
)

func ns(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestHotelsGet(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("found", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: oid}, {Key: "name", Value: "Sea View"}, {Key: "location", Value: "Mirissa"}, {Key: "price", Value: 95.0},
			{Key: "description", Value: "Beachfront rooms"}, {Key: "image", Value: "https://x/sea.jpg"}, {Key: "rating", Value: nil}, {Key: "reviews", Value: 120},
		}))
		h, err := (&Hotels{coll: mt.Coll}).Get(ctx, oid.Hex())
		if err != nil {
			mt.Fatal(err)
		}
		if h.ID != oid.Hex() || h.Name != "Sea View" || h.Rating != nil || h.Reviews == nil || *h.Reviews != 120 {
			mt.Fatalf("unexpected hotel %+v", h)
		}
	})

	mt.Run("missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))
		_, err := (&Hotels{coll: mt.Coll}).Get(ctx, primitive.NewObjectID().Hex())
		if !errors.Is(err, domain.ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("store error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad value", Name: "BadValue"}))
		_, err := (&Hotels{coll: mt.Coll}).Get(ctx, primitive.NewObjectID().Hex())
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			mt.Fatalf("expected a store error, got %v", err)
		}
	})
}

func TestHotelsListAndCreate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("list", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "A"}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "B"}},
		))
		hs, err := (&Hotels{coll: mt.Coll}).All(ctx)
		if err != nil {
			mt.Fatal(err)
		}
		if len(hs) != 2 || hs[0].Name != "A" || hs[1].Name != "B" {
			mt.Fatalf("unexpected hotels %+v", hs)
		}
	})

	mt.Run("create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		h, err := (&Hotels{coll: mt.Coll}).Create(ctx, domain.Hotel{Name: "New", Location: "Kandy", Price: 50})
		if err != nil {
			mt.Fatal(err)
		}
		if _, err := primitive.ObjectIDFromHex(h.ID); err != nil {
			mt.Fatalf("expected generated id, got %q", h.ID)
		}
	})
}

func TestBookingsDelete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("deleted", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		if err := (&Bookings{coll: mt.Coll, now: time.Now}).Delete(ctx, primitive.NewObjectID().Hex()); err != nil {
			mt.Fatal(err)
		}
	})

	mt.Run("nothing deleted", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		err := (&Bookings{coll: mt.Coll, now: time.Now}).Delete(ctx, primitive.NewObjectID().Hex())
		if !errors.Is(err, domain.ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBookingsCreate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	fixed := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	mt.Run("ok", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		s := &Bookings{coll: mt.Coll, now: func() time.Time { return fixed }}
		hid := primitive.NewObjectID().Hex()
		b, err := s.Create(context.Background(), domain.Booking{
			HotelID: hid, UserID: "user_1", RoomNumber: 3,
			CheckIn: fixed.AddDate(0, 0, 7), CheckOut: fixed.AddDate(0, 0, 9),
		})
		if err != nil {
			mt.Fatal(err)
		}
		if b.ID == "" || b.HotelID != hid || !b.CreatedAt.Equal(fixed) {
			mt.Fatalf("unexpected booking %+v", b)
		}
	})

	mt.Run("bad hotel id", func(mt *mtest.T) {
		s := &Bookings{coll: mt.Coll, now: time.Now}
		_, err := s.Create(context.Background(), domain.Booking{HotelID: "xyz"})
		if !errors.Is(err, domain.ErrInvalidBooking) {
			mt.Fatalf("expected ErrInvalidBooking, got %v", err)
		}
	})
}

func TestBookingsListByUser(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("populated", func(mt *mtest.T) {
		hid := primitive.NewObjectID()
		later := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)
		earlier := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "hotelId", Value: hid}, {Key: "userId", Value: "user_1"}, {Key: "checkIn", Value: later},
				{Key: "hotel", Value: bson.D{{Key: "_id", Value: hid}, {Key: "name", Value: "Sea View"}, {Key: "location", Value: "Mirissa"}, {Key: "image", Value: "https://x/sea.jpg"}}}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "hotelId", Value: primitive.NewObjectID()}, {Key: "userId", Value: "user_1"}, {Key: "checkIn", Value: earlier}},
		))
		got, err := (&Bookings{coll: mt.Coll, now: time.Now}).ListByUser(context.Background(), "user_1")
		if err != nil {
			mt.Fatal(err)
		}
		if len(got) != 2 {
			mt.Fatalf("expected 2 bookings, got %d", len(got))
		}
		if got[0].Hotel == nil || got[0].Hotel.Name != "Sea View" || !got[0].CheckIn.Equal(later) {
			mt.Fatalf("unexpected first booking %+v", got[0])
		}
		if got[1].Hotel != nil {
			mt.Fatal("booking of a deleted hotel should have no hotel")
		}
	})
}

func TestAtlasIndexSearch(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("hits in order", func(mt *mtest.T) {
		a, b := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: a}, {Key: "score", Value: 0.93}},
			bson.D{{Key: "_id", Value: b}, {Key: "score", Value: 0.71}},
		))
		idx := &AtlasIndex{coll: mt.Coll, index: DefaultVectorIndex}
		hits, err := idx.Search(context.Background(), []float32{0.1, 0.2}, 5)
		if err != nil {
			mt.Fatal(err)
		}
		if len(hits) != 2 || hits[0].HotelID != a.Hex() || hits[1].HotelID != b.Hex() {
			mt.Fatalf("unexpected hits %+v", hits)
		}
		if hits[0].Score < 0.92 || hits[0].Score > 0.94 {
			mt.Fatalf("unexpected score %v", hits[0].Score)
		}
	})

	mt.Run("zero k", func(mt *mtest.T) {
		hits, err := (&AtlasIndex{coll: mt.Coll}).Search(context.Background(), []float32{1}, 0)
		if err != nil || hits == nil || len(hits) != 0 {
			mt.Fatalf("expected empty non-nil hits, got %v %v", hits, err)
		}
	})

	mt.Run("upsert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		err := (&AtlasIndex{coll: mt.Coll}).Upsert(context.Background(), []domain.VectorRecord{
			{HotelID: primitive.NewObjectID().Hex(), Text: "t", Vector: []float32{1, 2}},
		})
		if err != nil {
			mt.Fatal(err)
		}
	})
}
