package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stayhub/stayhub/engine/domain"
)

// DefaultVectorIndex is the Atlas Search index over hotelVector.embedding.
const DefaultVectorIndex = "vector_index"

// candidatesPerResult is the $vectorSearch numCandidates multiplier.
const candidatesPerResult = 20

// vectorDoc is one hotel embedding. Its _id is the hotel's _id.
type vectorDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Text      string             `bson:"text"`
	Embedding []float32          `bson:"embedding"`
}

// AtlasIndex searches hotel embeddings with MongoDB Atlas $vectorSearch.
type AtlasIndex struct {
	coll  *mongo.Collection
	index string
}

// NewAtlasIndex returns an index over db's hotelVector collection. An empty
// index name selects DefaultVectorIndex.
func NewAtlasIndex(db *mongo.Database, index string) *AtlasIndex {
	if index == "" {
		index = DefaultVectorIndex
	}
	return &AtlasIndex{coll: db.Collection(VectorCollection), index: index}
}

func vectorSearchPipeline(index string, vec []float32, k int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: index},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: vec},
			{Key: "numCandidates", Value: candidatesPerResult * k},
			{Key: "limit", Value: k},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

// Search returns up to k hits, best first.
func (a *AtlasIndex) Search(ctx context.Context, vec []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return []domain.Hit{}, nil
	}
	cur, err := a.coll.Aggregate(ctx, vectorSearchPipeline(a.index, vec, k))
	if err != nil {
		return nil, fmt.Errorf("store: vector search: %w", err)
	}
	var rows []struct {
		ID    primitive.ObjectID `bson:"_id"`
		Score float64            `bson:"score"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("store: decode vector hits: %w", err)
	}
	hits := make([]domain.Hit, len(rows))
	for i, r := range rows {
		hits[i] = domain.Hit{HotelID: r.ID.Hex(), Score: float32(r.Score)}
	}
	return hits, nil
}

// Upsert replaces the embedding of every record's hotel.
func (a *AtlasIndex) Upsert(ctx context.Context, recs []domain.VectorRecord) error {
	if len(recs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(recs))
	for _, r := range recs {
		oid, err := objectID(r.HotelID)
		if err != nil {
			return err
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": oid}).
			SetReplacement(vectorDoc{ID: oid, Text: r.Text, Embedding: r.Vector}).
			SetUpsert(true))
	}
	if _, err := a.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("store: upsert %d vectors: %w", len(recs), err)
	}
	return nil
}

// Delete removes the embeddings of the given hotels. Unknown ids are ignored.
func (a *AtlasIndex) Delete(ctx context.Context, hotelIDs []string) error {
	oids := make([]primitive.ObjectID, 0, len(hotelIDs))
	for _, id := range hotelIDs {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return nil
	}
	if _, err := a.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}}); err != nil {
		return fmt.Errorf("store: delete vectors: %w", err)
	}
	return nil
}
