package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names shared with the web frontend.
const (
	HotelsCollection   = "hotels"
	BookingsCollection = "bookings"
	VectorCollection   = "hotelVector"
)

// Connect opens a client for uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("stayhub"))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the secondary indexes the queries rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(BookingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "checkIn", Value: -1}},
		Options: options.Index().SetName("user_checkin"),
	})
	if err != nil {
		return fmt.Errorf("store: ensure bookings index: %w", err)
	}
	return nil
}

func findOptions(opts ListOpts) *options.FindOptions {
	fo := options.Find()
	if opts.Offset > 0 {
		fo.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		fo.SetLimit(int64(opts.Limit))
	}
	return fo
}

func filterDoc(f map[string]any) bson.M {
	out := bson.M{}
	for k, v := range f {
		out[k] = v
	}
	return out
}
