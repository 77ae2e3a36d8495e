package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/stayhub/stayhub/engine/assistant"
	"github.com/stayhub/stayhub/engine/domain"
	"github.com/stayhub/stayhub/engine/index"
	"github.com/stayhub/stayhub/engine/payment"
	"github.com/stayhub/stayhub/engine/search"
	"github.com/stayhub/stayhub/pkg/auth"
	"github.com/stayhub/stayhub/pkg/mid"
	"github.com/stayhub/stayhub/pkg/natsutil"
	"github.com/stayhub/stayhub/pkg/resilience"
)

const maxBodyBytes = 1 << 20

// --- Dependencies ---

type hotelStore interface {
	Get(ctx context.Context, id string) (domain.Hotel, error)
	All(ctx context.Context) ([]domain.Hotel, error)
	Create(ctx context.Context, h domain.Hotel) (domain.Hotel, error)
	Delete(ctx context.Context, id string) error
}

type searcher interface {
	Search(ctx context.Context, req search.Request) ([]search.Result, error)
}

type bookingService interface {
	Create(ctx context.Context, userID string, b domain.Booking) (domain.Booking, error)
	ListAll(ctx context.Context) ([]domain.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]domain.UserBooking, error)
	Cancel(ctx context.Context, userID, bookingID string) error
}

type paymentService interface {
	CreateSession(ctx context.Context, userID string, c domain.Checkout) (string, error)
	SessionStatus(ctx context.Context, userID, sessionID string) (domain.SessionStatus, error)
}

type reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

type chatService interface {
	Chat(ctx context.Context, prompt string) (assistant.Message, error)
}

// server holds the HTTP handlers. payments, chat and events may be nil.
type server struct {
	hotels   hotelStore
	search   searcher
	bookings bookingService
	payments paymentService
	indexer  reindexer
	chat     chatService
	events   natsutil.Publisher
	ping     func(context.Context) error
	metrics  http.Handler
	log      *slog.Logger
}

// routes registers every endpoint on a new mux.
func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	user := mid.RequireUser
	admin := mid.RequireAdmin

	mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.HandleFunc("GET /api/search/retrieve", s.handleSearch)

	mux.HandleFunc("GET /api/hotels", s.handleListHotels)
	mux.Handle("POST /api/hotels", admin(http.HandlerFunc(s.handleCreateHotel)))
	mux.HandleFunc("GET /api/hotels/{id}", s.handleGetHotel)
	mux.Handle("DELETE /api/hotels/{id}", admin(http.HandlerFunc(s.handleDeleteHotel)))
	mux.HandleFunc("POST /api/hotels/llm", s.handleChat)

	mux.Handle("POST /api/bookings", user(http.HandlerFunc(s.handleCreateBooking)))
	mux.Handle("GET /api/bookings", admin(http.HandlerFunc(s.handleListBookings)))
	mux.Handle("GET /api/bookings/user", user(http.HandlerFunc(s.handleUserBookings)))
	mux.Handle("DELETE /api/bookings/user", user(http.HandlerFunc(s.handleCancelBooking)))

	mux.Handle("POST /api/payments/create-checkout-session", user(http.HandlerFunc(s.handleCreateCheckout)))
	mux.Handle("GET /api/payments/check-session-status", user(http.HandlerFunc(s.handleSessionStatus)))

	mux.Handle("POST /api/embeddings/create", admin(http.HandlerFunc(s.handleCreateEmbeddings)))
	return mux
}

// handler wraps the routes in the middleware chain. Authentication runs
// before the access log so each line carries the caller. limits may be nil.
func (s *server) handler(v mid.RequestVerifier, limits *resilience.KeyedLimiter, corsOrigin string) http.Handler {
	mw := []mid.Middleware{
		mid.Recover(s.log),
		mid.OTel("stayhub-api"),
		mid.CORS(corsOrigin),
	}
	if limits != nil {
		mw = append(mw, mid.RateLimit(limits))
	}
	mw = append(mw, mid.Authenticate(v, s.log), mid.Logger(s.log))
	return mid.Chain(s.routes(), mw...)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetails(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, map[string]string{"error": msg, "details": details})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func userID(r *http.Request) string {
	u, _ := auth.FromContext(r.Context())
	return u.ID
}

// --- Health ---

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Search ---

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := search.NewRequest(r.URL.Query().Get("query"))
	results, err := s.search.Search(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, search.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.log.Error("search failed", "mode", req.Mode.String(), "err", err)
		mid.Error(w, status, "Failed to search for hotels")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- Hotels ---

func (s *server) handleListHotels(w http.ResponseWriter, r *http.Request) {
	hotels, err := s.hotels.All(r.Context())
	if err != nil {
		s.log.Error("list hotels failed", "err", err)
		mid.Error(w, http.StatusInternalServerError, "Failed to fetch hotels")
		return
	}
	writeJSON(w, http.StatusOK, hotels)
}

func (s *server) handleGetHotel(w http.ResponseWriter, r *http.Request) {
	h, err := s.hotels.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) {
		mid.Error(w, http.StatusNotFound, "Hotel not found")
		return
	}
	if err != nil {
		s.log.Error("get hotel failed", "id", r.PathValue("id"), "err", err)
		mid.Error(w, http.StatusInternalServerError, "Failed to fetch hotel")
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *server) handleCreateHotel(w http.ResponseWriter, r *http.Request) {
	var h domain.Hotel
	if err := decode(w, r, &h); err != nil {
		writeDetails(w, http.StatusBadRequest, "Invalid Hotel Data", err.Error())
		return
	}
	h.ID = ""
	if err := domain.ValidateHotel(h); err != nil {
		writeDetails(w, http.StatusBadRequest, "Invalid Hotel Data", err.Error())
		return
	}
	created, err := s.hotels.Create(r.Context(), h)
	if err != nil {
		s.log.Error("create hotel failed", "err", err)
		mid.Error(w, http.StatusInternalServerError, "Failed to create hotel")
		return
	}
	s.publish(r.Context(), index.SubjectCreated, created.ID, domain.HotelCreated)
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleDeleteHotel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.hotels.Delete(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		mid.Error(w, http.StatusNotFound, "Hotel not found")
		return
	}
	if err != nil {
		s.log.Error("delete hotel failed", "id", id, "err", err)
		mid.Error(w, http.StatusInternalServerError, "Failed to delete hotel")
		return
	}
	s.publish(r.Context(), index.SubjectDeleted, id, domain.HotelDeleted)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hotel deleted successfully"})
}

// publish emits a catalogue event. Failures are logged, not returned: the
// periodic reindex repairs a missed event.
func (s *server) publish(ctx context.Context, subject, hotelID, action string) {
	if s.events == nil {
		return
	}
	ev := domain.HotelEvent{HotelID: hotelID, Action: action, At: time.Now().UTC()}
	if err := natsutil.Publish(ctx, s.events, subject, ev); err != nil {
		s.log.Warn("hotel event not published", "subject", subject, "hotel_id", hotelID, "err", err)
	}
}

// --- Bookings ---

func (s *server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var b domain.Booking
	if err := decode(w, r, &b); err != nil {
		writeDetails(w, http.StatusBadRequest, "Invalid booking data", err.Error())
		return
	}
	created, err := s.bookings.Create(r.Context(), userID(r), b)
	var verr *domain.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, created)
	case errors.As(err, &verr):
		writeDetails(w, http.StatusBadRequest, "Invalid booking data", verr.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeDetails(w, http.StatusUnauthorized, "Authentication required", "User is not authenticated")
	case errors.Is(err, domain.ErrNotFound):
		mid.Error(w, http.StatusNotFound, "Hotel not found")
	default:
		s.log.Error("create booking failed", "err", err)
		writeDetails(w, http.StatusInternalServerError, "Failed to create booking", err.Error())
	}
}

func (s *server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.bookings.ListAll(r.Context())
	if err != nil {
		s.log.Error("list bookings failed", "err", err)
		mid.Error(w, http.StatusInternalServerError, "Failed to fetch bookings")
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (s *server) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.bookings.ListByUser(r.Context(), userID(r))
	if err != nil {
		s.log.Error("list user bookings failed", "err", err)
		writeDetails(w, http.StatusInternalServerError, "Failed to fetch bookings", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

type cancelRequest struct {
	BookingID string `json:"bookingId"`
}

func (s *server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(w, r, &req); err != nil || req.BookingID == "" {
		mid.Error(w, http.StatusBadRequest, "bookingId is required")
		return
	}
	err := s.bookings.Cancel(r.Context(), userID(r), req.BookingID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Booking cancelled successfully"})
	case errors.Is(err, domain.ErrNotFound):
		mid.Error(w, http.StatusNotFound, "Booking not found")
	case errors.Is(err, domain.ErrForbidden):
		mid.Error(w, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, domain.ErrUnauthorized):
		mid.Error(w, http.StatusUnauthorized, "Authentication required")
	default:
		s.log.Error("cancel booking failed", "booking_id", req.BookingID, "err", err)
		writeDetails(w, http.StatusInternalServerError, "Failed to cancel booking", err.Error())
	}
}

// --- Payments ---

func (s *server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		mid.Error(w, http.StatusServiceUnavailable, "Payments are not configured")
		return
	}
	var c domain.Checkout
	if err := decode(w, r, &c); err != nil {
		mid.Error(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	secret, err := s.payments.CreateSession(r.Context(), userID(r), c)
	var verr *domain.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"clientSecret": secret})
	case errors.As(err, &verr):
		mid.Error(w, http.StatusBadRequest, "Missing required fields")
	case errors.Is(err, domain.ErrUnauthorized):
		mid.Error(w, http.StatusUnauthorized, "Unauthorized")
	default:
		s.log.Error("create checkout session failed", "err", err)
		mid.Error(w, http.StatusInternalServerError, "Something went wrong")
	}
}

func (s *server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		mid.Error(w, http.StatusServiceUnavailable, "Payments are not configured")
		return
	}
	st, err := s.payments.SessionStatus(r.Context(), userID(r), r.URL.Query().Get("session_id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, payment.ErrMissingSession):
		mid.Error(w, http.StatusBadRequest, "Missing session ID")
	case errors.Is(err, domain.ErrUnauthorized):
		mid.Error(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		mid.Error(w, http.StatusNotFound, "Session not found")
	default:
		s.log.Error("check session status failed", "err", err)
		mid.Error(w, http.StatusInternalServerError, "Something went wrong")
	}
}

// --- Embeddings ---

func (s *server) handleCreateEmbeddings(w http.ResponseWriter, r *http.Request) {
	n, err := s.indexer.Reindex(r.Context())
	if err != nil {
		s.log.Error("reindex failed", "indexed", n, "err", err)
		writeDetails(w, http.StatusInternalServerError, "Failed to create embeddings", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Embeddings created successfully", "indexed": n})
}

// --- Assistant ---

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		mid.Error(w, http.StatusServiceUnavailable, "Assistant is not configured")
		return
	}
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		writeDetails(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	msg, err := s.chat.Chat(r.Context(), req.Prompt)
	if errors.Is(err, assistant.ErrEmptyPrompt) {
		mid.Error(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if err != nil {
		writeDetails(w, http.StatusInternalServerError, "Failed to generate message", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]assistant.Message{"message": msg})
}
