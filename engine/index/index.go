// Package index keeps the hotel vector index in sync with the catalogue.
// Hotels flow through Validate, Document, Embed and Store stages, either one
// at a time from catalogue events or in batches during a full reindex.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/stayhub/stayhub/engine/domain"
	"github.com/stayhub/stayhub/pkg/fn"
	"github.com/stayhub/stayhub/pkg/metrics"
	"github.com/stayhub/stayhub/pkg/natsutil"
)

const (
	// SubjectCreated carries a HotelEvent for every new hotel.
	SubjectCreated = "hotels.created"
	// SubjectDeleted carries a HotelEvent for every removed hotel.
	SubjectDeleted = "hotels.deleted"
	// DLQSubject receives events that could not be indexed.
	DLQSubject = "hotels.index.dlq"
	// QueueGroup load-balances events across indexer replicas.
	QueueGroup = "stayhub-indexer"
	// MaxRetries before an event goes to DLQSubject.
	MaxRetries = 3
	// DefaultBatchSize is the number of hotels embedded per request on reindex.
	DefaultBatchSize = 16
)

// Document is a hotel paired with the text that represents it in the index.
type Document struct {
	Hotel domain.Hotel
	Text  string
}

// Embedded is a document with its vector.
type Embedded struct {
	Document
	Vector []float32
}

// Embedder embeds one text or a batch of texts in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter is the write side of the vector index.
type VectorWriter interface {
	Upsert(ctx context.Context, recs []domain.VectorRecord) error
	Delete(ctx context.Context, hotelIDs []string) error
}

// HotelSource reads hotels from the catalogue.
type HotelSource interface {
	Get(ctx context.Context, id string) (domain.Hotel, error)
	All(ctx context.Context) ([]domain.Hotel, error)
}

// Deps holds the external dependencies of an Indexer.
type Deps struct {
	Embedder Embedder
	Vectors  VectorWriter
	Hotels   HotelSource
	// Limiter paces embedding calls. Nil means unlimited.
	Limiter   *rate.Limiter
	BatchSize int
	Logger    *slog.Logger
	Metrics   *metrics.Registry
}

// --- Pipeline Stages ---

// Validate rejects hotels that cannot be indexed.
var Validate fn.Stage[domain.Hotel, domain.Hotel] = func(_ context.Context, h domain.Hotel) fn.Result[domain.Hotel] {
	if strings.TrimSpace(h.ID) == "" {
		return fn.Err[domain.Hotel](domain.NewValidationError("_id", h.ID, domain.ErrInvalidHotel))
	}
	if err := domain.ValidateHotel(h); err != nil {
		return fn.Err[domain.Hotel](err)
	}
	return fn.Ok(h)
}

// ToDocument builds the embedding text of a hotel.
var ToDocument fn.Stage[domain.Hotel, Document] = func(_ context.Context, h domain.Hotel) fn.Result[Document] {
	return fn.Ok(Document{Hotel: h, Text: domain.EmbeddingText(h)})
}

// NewEmbed creates an Embed stage. limiter may be nil.
func NewEmbed(e Embedder, limiter *rate.Limiter) fn.Stage[Document, Embedded] {
	return func(ctx context.Context, doc Document) fn.Result[Embedded] {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fn.Err[Embedded](fmt.Errorf("index: embed wait: %w", err))
			}
		}
		vec, err := e.Embed(ctx, doc.Text)
		if err != nil {
			return fn.Err[Embedded](fmt.Errorf("index: embed %s: %w", doc.Hotel.ID, err))
		}
		return fn.Ok(Embedded{Document: doc, Vector: vec})
	}
}

// NewStore creates a Store stage that upserts into w and yields the hotel id.
func NewStore(w VectorWriter) fn.Stage[Embedded, string] {
	return func(ctx context.Context, e Embedded) fn.Result[string] {
		if err := w.Upsert(ctx, []domain.VectorRecord{record(e)}); err != nil {
			return fn.Err[string](fmt.Errorf("index: upsert %s: %w", e.Hotel.ID, err))
		}
		return fn.Ok(e.Hotel.ID)
	}
}

func record(e Embedded) domain.VectorRecord {
	return domain.VectorRecord{HotelID: e.Hotel.ID, Text: e.Text, Vector: e.Vector}
}

// NewPipeline composes Validate → Document → Embed → Store with a span per
// stage.
func NewPipeline(deps Deps) fn.Stage[domain.Hotel, string] {
	validated := fn.TracedStage("index.validate", Validate)
	documented := fn.Then(validated, fn.TracedStage("index.document", ToDocument))
	embedded := fn.Then(documented, fn.TracedStage("index.embed", NewEmbed(deps.Embedder, deps.Limiter)))
	return fn.Then(embedded, fn.TracedStage("index.store", NewStore(deps.Vectors)))
}

// Indexer writes hotel embeddings into the vector index.
type Indexer struct {
	deps     Deps
	pipeline fn.Stage[domain.Hotel, string]
	log      *slog.Logger

	indexed  *metrics.Counter
	skipped  *metrics.Counter
	failed   *metrics.Counter
	removed  *metrics.Counter
	lastRun  *metrics.Gauge
	duration *metrics.Histogram
}

// New creates an Indexer.
func New(deps Deps) *Indexer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = DefaultBatchSize
	}
	reg := deps.Metrics
	return &Indexer{
		deps:     deps,
		pipeline: NewPipeline(deps),
		log:      deps.Logger,
		indexed:  reg.Counter("stayhub_index_hotels_indexed_total", "Hotels written to the vector index."),
		skipped:  reg.Counter("stayhub_index_hotels_skipped_total", "Hotels skipped as invalid."),
		failed:   reg.Counter("stayhub_index_failures_total", "Indexing attempts that failed."),
		removed:  reg.Counter("stayhub_index_hotels_removed_total", "Hotels removed from the vector index."),
		lastRun:  reg.Gauge("stayhub_index_last_reindex_timestamp_seconds", "Unix time of the last completed reindex."),
		duration: reg.Histogram("stayhub_index_reindex_duration_seconds", "Full reindex latency.", []float64{0.5, 1, 5, 15, 30, 60, 120, 300}),
	}
}

// Index runs one hotel through the pipeline.
func (ix *Indexer) Index(ctx context.Context, h domain.Hotel) error {
	id, err := ix.pipeline(ctx, h).Unwrap()
	if err != nil {
		// Invalid hotels are counted as skipped by the caller.
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			ix.failed.Inc()
		}
		return err
	}
	ix.indexed.Inc()
	ix.log.Info("hotel indexed", "hotel_id", id)
	return nil
}

// Remove drops a hotel from the index.
func (ix *Indexer) Remove(ctx context.Context, hotelID string) error {
	if err := ix.deps.Vectors.Delete(ctx, []string{hotelID}); err != nil {
		ix.failed.Inc()
		return fmt.Errorf("index: delete %s: %w", hotelID, err)
	}
	ix.removed.Inc()
	ix.log.Info("hotel removed from index", "hotel_id", hotelID)
	return nil
}

// Reindex embeds every hotel in the catalogue and returns how many were
// written. Invalid hotels are skipped; any embed or store failure aborts.
func (ix *Indexer) Reindex(ctx context.Context) (int, error) {
	start := time.Now()
	hotels, err := ix.deps.Hotels.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: list hotels: %w", err)
	}

	docs := fn.FilterMap(hotels, func(h domain.Hotel) (Document, bool) {
		v, err := Validate(ctx, h).Unwrap()
		if err != nil {
			ix.skipped.Inc()
			ix.log.Warn("skipping hotel", "hotel_id", h.ID, "err", err)
			return Document{}, false
		}
		return ToDocument(ctx, v).Must(), true
	})

	n := 0
	for _, batch := range fn.Chunk(docs, ix.deps.BatchSize) {
		if err := ix.storeBatch(ctx, batch); err != nil {
			ix.failed.Inc()
			return n, err
		}
		n += len(batch)
		ix.indexed.Add(int64(len(batch)))
	}

	ix.duration.Since(start)
	ix.lastRun.Set(float64(time.Now().Unix()))
	ix.log.Info("reindex done", "indexed", n, "skipped", len(hotels)-len(docs), "took", time.Since(start))
	return n, nil
}

func (ix *Indexer) storeBatch(ctx context.Context, batch []Document) error {
	if ix.deps.Limiter != nil {
		if err := ix.deps.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("index: embed wait: %w", err)
		}
	}
	texts := fn.Map(batch, func(d Document) string { return d.Text })
	vecs, err := ix.deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("index: embed batch: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("index: embed batch: got %d vectors for %d texts", len(vecs), len(batch))
	}
	recs := make([]domain.VectorRecord, len(batch))
	for i, d := range batch {
		recs[i] = record(Embedded{Document: d, Vector: vecs[i]})
	}
	if err := ix.deps.Vectors.Upsert(ctx, recs); err != nil {
		return fmt.Errorf("index: upsert batch: %w", err)
	}
	return nil
}

// HandleEvent applies a catalogue event. Errors worth retrying are returned;
// hotels that no longer exist or cannot be indexed are logged and dropped.
func (ix *Indexer) HandleEvent(ctx context.Context, ev domain.HotelEvent) error {
	switch ev.Action {
	case domain.HotelDeleted:
		return ix.Remove(ctx, ev.HotelID)
	case domain.HotelCreated, "":
	default:
		ix.log.Warn("ignoring hotel event", "hotel_id", ev.HotelID, "action", ev.Action)
		return nil
	}

	h, err := ix.deps.Hotels.Get(ctx, ev.HotelID)
	if errors.Is(err, domain.ErrNotFound) {
		ix.log.Info("hotel gone before indexing", "hotel_id", ev.HotelID)
		return ix.Remove(ctx, ev.HotelID)
	}
	if err != nil {
		return fmt.Errorf("index: load hotel %s: %w", ev.HotelID, err)
	}

	err = ix.Index(ctx, h)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		ix.skipped.Inc()
		ix.log.Warn("hotel not indexable", "hotel_id", ev.HotelID, "err", err)
		return nil
	}
	return err
}

// Consumer returns a NATS consumer that feeds catalogue events to
// HandleEvent, retrying through pub and dead-lettering to DLQSubject.
func (ix *Indexer) Consumer(pub natsutil.Publisher) *natsutil.Consumer[domain.HotelEvent] {
	return natsutil.NewConsumer(pub, natsutil.ConsumerOpts{
		Queue:      QueueGroup,
		MaxRetries: MaxRetries,
		DeadLetter: DLQSubject,
		Logger:     ix.log,
	}, ix.HandleEvent)
}
