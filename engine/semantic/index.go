// Package semantic holds the vector index backends used for hotel search:
// Qdrant over gRPC and an in-process chromem collection.
package semantic

import (
	"context"

	"github.com/google/uuid"

	"github.com/stayhub/stayhub/engine/domain"
)

// Index is a similarity index with one embedding per hotel.
type Index interface {
	// Search returns at most k hits, best first. An empty index yields an
	// empty slice.
	Search(ctx context.Context, vec []float32, k int) ([]domain.Hit, error)
	// Upsert replaces the embeddings of the given hotels.
	Upsert(ctx context.Context, recs []domain.VectorRecord) error
	// Delete drops the embeddings of the given hotels.
	Delete(ctx context.Context, hotelIDs []string) error
}

// PointID maps a hotel id to a stable UUID, so re-indexing a hotel
// overwrites its previous point.
func PointID(hotelID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("stayhub:hotel:"+hotelID)).String()
}
