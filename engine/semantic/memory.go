package semantic

import (
	"context"
	"errors"
	"fmt"

	"github.com/philippgille/chromem-go"

	"github.com/stayhub/stayhub/engine/domain"
)

var errNoEmbedder = errors.New("semantic: memory index stores precomputed vectors only")

// Memory is an in-process Index backed by a chromem collection. It suits
// development and tests; contents are lost on restart.
type Memory struct {
	coll *chromem.Collection
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty in-process index.
func NewMemory(name string) (*Memory, error) {
	db := chromem.NewDB()
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbedder }
	coll, err := db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("semantic: create memory collection: %w", err)
	}
	return &Memory{coll: coll}, nil
}

// Len returns the number of stored embeddings.
func (m *Memory) Len() int { return m.coll.Count() }

// Upsert implements Index.
func (m *Memory) Upsert(ctx context.Context, recs []domain.VectorRecord) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(recs))
	for i, r := range recs {
		docs[i] = chromem.Document{
			ID:        r.HotelID,
			Content:   r.Text,
			Embedding: r.Vector,
			Metadata:  map[string]string{payloadHotelID: r.HotelID},
		}
	}
	if err := m.coll.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("semantic: memory upsert: %w", err)
	}
	return nil
}

// Delete implements Index.
func (m *Memory) Delete(ctx context.Context, hotelIDs []string) error {
	if len(hotelIDs) == 0 {
		return nil
	}
	if err := m.coll.Delete(ctx, nil, nil, hotelIDs...); err != nil {
		return fmt.Errorf("semantic: memory delete: %w", err)
	}
	return nil
}

// Search implements Index. k is capped at the collection size.
func (m *Memory) Search(ctx context.Context, vec []float32, k int) ([]domain.Hit, error) {
	n := m.coll.Count()
	if n == 0 || k <= 0 {
		return []domain.Hit{}, nil
	}
	k = min(k, n)
	res, err := m.coll.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic: memory search: %w", err)
	}
	hits := make([]domain.Hit, len(res))
	for i, r := range res {
		hits[i] = domain.Hit{HotelID: r.ID, Score: r.Similarity}
	}
	return hits, nil
}
