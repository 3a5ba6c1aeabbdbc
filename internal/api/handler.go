// Package api provides the HTTP gateway to the assistant session.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/ashureev/offer-assistant/internal/domain"
	"github.com/ashureev/offer-assistant/internal/session"
	"github.com/ashureev/offer-assistant/internal/stream"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// Session is the session surface used by the gateway.
type Session interface {
	Connect()
	Disconnect()
	Reconnect()
	Send(text string) bool
	SendBatchQuestions(payload json.RawMessage, offerName string) bool
	Snapshot() session.Snapshot
	Messages() []domain.Message
	ClearMessages()
	LastError() error
}

// Handler serves the gateway routes.
type Handler struct {
	sess    Session
	board   *stream.OfferBoard
	events  http.HandlerFunc
	limiter *rate.Limiter
	maxBody int64
}

// NewHandler creates a Handler. events serves the SSE stream; limiter
// throttles outbound sends and may be nil.
func NewHandler(sess Session, board *stream.OfferBoard, events http.HandlerFunc, limiter *rate.Limiter) *Handler {
	return &Handler{
		sess:    sess,
		board:   board,
		events:  events,
		limiter: limiter,
		maxBody: defaultMaxRequestBodySize,
	}
}

// RegisterRoutes registers the gateway routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/session/connect", h.Connect)
		r.Post("/session/disconnect", h.Disconnect)
		r.Post("/session/reconnect", h.Reconnect)

		r.Get("/messages", h.ListMessages)
		r.Post("/messages", h.SendMessage)
		r.Delete("/messages", h.ClearMessages)
		r.Post("/batch", h.SendBatch)

		r.Get("/offers", h.GetOffers)
		r.Post("/offers/extract", h.ExtractOffers)

		if h.events != nil {
			r.Get("/events", h.events)
		}
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a size-limited JSON body into v.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
