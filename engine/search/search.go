// Package search matches free-text hotel queries against the vector index.
// A query is embedded, the nearest hotels are looked up, and each hit is
// resolved back to its hotel record with the similarity score attached.
// An empty query browses the whole catalogue instead.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/stayhub/stayhub/engine/domain"
	"github.com/stayhub/stayhub/pkg/fn"
	"github.com/stayhub/stayhub/pkg/metrics"
)

const (
	// FetchK is how many candidates are requested from the index. One more
	// than ResultLimit, leaving a spare slot for a hit whose hotel is gone.
	FetchK = 5
	// ResultLimit caps the number of results returned for a query.
	ResultLimit = 4
)

// BrowseConfidence is attached to every hotel returned in browse mode.
const BrowseConfidence float32 = 1.0

var (
	// ErrUnavailable is matched by failures of the embedding client or the
	// vector index, including timeouts and an open circuit breaker.
	ErrUnavailable = errors.New("search: upstream unavailable")
	// ErrStoreUnavailable is matched when the hotel store cannot be read.
	ErrStoreUnavailable = errors.New("search: hotel store unavailable")
)

// Stage names the upstream call that failed.
type Stage string

const (
	StageEmbed Stage = "embed"
	StageIndex Stage = "index"
)

// UpstreamError reports a failed embedding or index call.
type UpstreamError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("search: %s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes every UpstreamError match ErrUnavailable.
func (e *UpstreamError) Is(target error) bool { return target == ErrUnavailable }

// Mode selects between listing the catalogue and a similarity query.
type Mode int

const (
	ModeBrowse Mode = iota
	ModeQuery
)

func (m Mode) String() string {
	if m == ModeQuery {
		return "query"
	}
	return "browse"
}

// Request is one search call. Build it with NewRequest.
type Request struct {
	Mode  Mode
	Query string
}

// NewRequest trims query and picks the mode from what is left.
func NewRequest(query string) Request {
	q := strings.TrimSpace(query)
	if q == "" {
		return Request{Mode: ModeBrowse}
	}
	return Request{Mode: ModeQuery, Query: q}
}

// Result pairs a hotel with its similarity score.
type Result struct {
	Hotel      domain.Hotel `json:"hotel"`
	Confidence float32      `json:"confidence"`
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index returns the k nearest hotels to a vector, best first.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]domain.Hit, error)
}

// HotelStore reads hotel records. Get returns domain.ErrNotFound for an
// unknown id.
type HotelStore interface {
	Get(ctx context.Context, id string) (domain.Hotel, error)
	All(ctx context.Context) ([]domain.Hotel, error)
}

// Options configures the orchestrator.
type Options struct {
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
	// FetchWorkers bounds concurrent hotel lookups. 0 means one per hit.
	FetchWorkers int
	// FallbackToBrowse serves the full catalogue when the embedding client
	// or the index is unavailable, instead of returning ErrUnavailable.
	FallbackToBrowse bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		EmbedTimeout:  5 * time.Second,
		SearchTimeout: 5 * time.Second,
	}
}

// Service is the search orchestrator.
type Service struct {
	embed  Embedder
	index  Index
	hotels HotelStore
	opts   Options
	logger *slog.Logger

	reg      *metrics.Registry
	duration *metrics.Histogram
	dropped  *metrics.Counter
}

// New creates a Service. A nil logger or registry gets a default.
func New(embed Embedder, index Index, hotels HotelStore, opts Options, logger *slog.Logger, reg *metrics.Registry) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Service{
		embed:    embed,
		index:    index,
		hotels:   hotels,
		opts:     opts,
		logger:   logger,
		reg:      reg,
		duration: reg.Histogram("stayhub_search_duration_seconds", "Search latency.", nil),
		dropped:  reg.Counter("stayhub_search_dropped_hits_total", "Index hits whose hotel no longer exists."),
	}
}

// Search runs req. Query mode returns at most ResultLimit results in index
// order; zero surviving hits is an empty slice and a nil error.
func (s *Service) Search(ctx context.Context, req Request) ([]Result, error) {
	start := time.Now()
	defer s.duration.Since(start)

	ctx, span := otel.Tracer("stayhub/search").Start(ctx, "search.Search")
	defer span.End()
	span.SetAttributes(attribute.String("search.mode", req.Mode.String()))

	s.requests(req.Mode).Inc()

	var (
		results []Result
		err     error
	)
	if req.Mode == ModeBrowse {
		results, err = s.browse(ctx)
	} else {
		results, err = s.query(ctx, req.Query)
		if err != nil && s.opts.FallbackToBrowse && errors.Is(err, ErrUnavailable) {
			s.logger.Warn("search upstream unavailable, falling back to browse", "query", req.Query, "err", err)
			results, err = s.browse(ctx)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.failures(stageOf(err)).Inc()
		return nil, err
	}

	span.SetAttributes(attribute.Int("search.results", len(results)))
	s.logger.Debug("search done", "mode", req.Mode.String(), "results", len(results), "took", time.Since(start))
	return results, nil
}

func (s *Service) browse(ctx context.Context) ([]Result, error) {
	hotels, err := s.hotels.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: list hotels: %w: %w", ErrStoreUnavailable, err)
	}
	return fn.Map(hotels, func(h domain.Hotel) Result {
		return Result{Hotel: h, Confidence: BrowseConfidence}
	}), nil
}

func (s *Service) query(ctx context.Context, text string) ([]Result, error) {
	vec, err := s.embedQuery(ctx, text)
	if err != nil {
		return nil, &UpstreamError{Stage: StageEmbed, Err: err}
	}

	hits, err := s.searchIndex(ctx, vec)
	if err != nil {
		return nil, &UpstreamError{Stage: StageIndex, Err: err}
	}

	return s.assemble(ctx, hits)
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.EmbedTimeout)
		defer cancel()
	}
	vec, err := s.embed.Embed(ctx, text)
	if err == nil && len(vec) == 0 {
		err = errors.New("empty embedding")
	}
	return vec, err
}

func (s *Service) searchIndex(ctx context.Context, vec []float32) ([]domain.Hit, error) {
	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}
	return s.index.Search(ctx, vec, FetchK)
}

type resolved struct {
	result Result
	found  bool
}

// assemble resolves hits to hotels concurrently. Results keep hit order,
// missing hotels are dropped, and the first store failure aborts.
func (s *Service) assemble(ctx context.Context, hits []domain.Hit) ([]Result, error) {
	fetch := fn.Stage[domain.Hit, resolved](func(ctx context.Context, hit domain.Hit) fn.Result[resolved] {
		h, err := s.hotels.Get(ctx, hit.HotelID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return fn.Ok(resolved{})
		case err != nil:
			return fn.Err[resolved](fmt.Errorf("search: fetch hotel %s: %w: %w", hit.HotelID, ErrStoreUnavailable, err))
		}
		return fn.Ok(resolved{result: Result{Hotel: h, Confidence: hit.Score}, found: true})
	})

	all, err := fn.BatchStage(s.opts.FetchWorkers, fetch)(ctx, hits).Unwrap()
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, ResultLimit)
	for i, r := range all {
		if !r.found {
			s.dropped.Inc()
			s.logger.Debug("dropping hit for missing hotel", "hotel_id", hits[i].HotelID)
			continue
		}
		if len(out) < ResultLimit {
			out = append(out, r.result)
		}
	}
	return out, nil
}

func (s *Service) requests(m Mode) *metrics.Counter {
	return s.reg.Counter(metrics.WithLabels("stayhub_search_requests_total", "mode", m.String()), "Search requests by mode.")
}

func (s *Service) failures(stage string) *metrics.Counter {
	return s.reg.Counter(metrics.WithLabels("stayhub_search_errors_total", "stage", stage), "Search failures by stage.")
}

func stageOf(err error) string {
	var up *UpstreamError
	if errors.As(err, &up) {
		return string(up.Stage)
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return "store"
	}
	return "unknown"
}
