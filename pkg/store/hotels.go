package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/stayhub/stayhub/engine/domain"
)

// Hotels is the Mongo-backed hotel repository.
type Hotels struct {
	coll *mongo.Collection
}

var _ Repository[domain.Hotel, string] = (*Hotels)(nil)

// NewHotels returns a repository over db's hotels collection.
func NewHotels(db *mongo.Database) *Hotels {
	return &Hotels{coll: db.Collection(HotelsCollection)}
}

// Get returns the hotel with the given id or domain.ErrNotFound.
func (s *Hotels) Get(ctx context.Context, id string) (domain.Hotel, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.Hotel{}, err
	}
	var doc hotelDoc
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Hotel{}, fmt.Errorf("hotel %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Hotel{}, fmt.Errorf("store: get hotel %s: %w", id, err)
	}
	return doc.toDomain(), nil
}

// List returns hotels in natural order.
func (s *Hotels) List(ctx context.Context, opts ListOpts) ([]domain.Hotel, error) {
	cur, err := s.coll.Find(ctx, filterDoc(opts.Filter), findOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("store: list hotels: %w", err)
	}
	var docs []hotelDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("store: decode hotels: %w", err)
	}
	out := make([]domain.Hotel, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

// All returns every hotel.
func (s *Hotels) All(ctx context.Context) ([]domain.Hotel, error) {
	return s.List(ctx, ListOpts{})
}

// Create inserts h with a fresh id and returns the stored hotel.
func (s *Hotels) Create(ctx context.Context, h domain.Hotel) (domain.Hotel, error) {
	doc := hotelFromDomain(h, primitive.NewObjectID())
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return domain.Hotel{}, fmt.Errorf("store: create hotel: %w", err)
	}
	return doc.toDomain(), nil
}

// Delete removes the hotel with the given id.
func (s *Hotels) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("store: delete hotel %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("hotel %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
