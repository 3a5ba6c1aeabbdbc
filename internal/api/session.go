package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/offer-assistant/internal/session"
)

// GetSession returns the connection state.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.sess.Snapshot())
}

// Connect opens the assistant connection.
func (h *Handler) Connect(w http.ResponseWriter, _ *http.Request) {
	h.sess.Connect()
	JSON(w, http.StatusAccepted, h.sess.Snapshot())
}

// Disconnect closes the assistant connection and stops auto-reconnect.
func (h *Handler) Disconnect(w http.ResponseWriter, _ *http.Request) {
	h.sess.Disconnect()
	JSON(w, http.StatusOK, h.sess.Snapshot())
}

// Reconnect forces a fresh connection cycle. It is the retry action for a
// failed session.
func (h *Handler) Reconnect(w http.ResponseWriter, _ *http.Request) {
	slog.Info("Manual reconnect requested")
	h.sess.Reconnect()
	JSON(w, http.StatusAccepted, h.sess.Snapshot())
}

// ListMessages returns the conversation log in order.
func (h *Handler) ListMessages(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"messages": h.sess.Messages(),
	})
}

type sendRequest struct {
	Message string `json:"message"`
}

// SendMessage posts a user message to the assistant.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		Error(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	if !h.sess.Send(req.Message) {
		h.sendFailed(w)
		return
	}
	JSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "sent",
		"pending": true,
	})
}

type batchRequest struct {
	Payload   json.RawMessage `json:"payload"`
	OfferName string          `json:"offer_name"`
}

// SendBatch posts a questionnaire payload to the assistant.
func (h *Handler) SendBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		Error(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	if !h.sess.SendBatchQuestions(req.Payload, req.OfferName) {
		h.sendFailed(w)
		return
	}
	JSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "sent",
		"pending": true,
	})
}

// ClearMessages starts a new conversation.
func (h *Handler) ClearMessages(w http.ResponseWriter, _ *http.Request) {
	h.sess.ClearMessages()
	JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// sendFailed maps the session's last error to a response.
func (h *Handler) sendFailed(w http.ResponseWriter) {
	err := h.sess.LastError()
	var te *session.TransportError
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, "empty_message")
	case errors.Is(err, session.ErrInvalidPayload):
		Error(w, http.StatusBadRequest, "invalid_payload")
	case errors.Is(err, session.ErrNotConnected):
		Error(w, http.StatusConflict, "not_connected")
	case errors.As(err, &te):
		slog.Warn("Send failed", "error", err)
		Error(w, http.StatusBadGateway, "send_failed")
	default:
		slog.Error("Send failed", "error", err)
		Error(w, http.StatusInternalServerError, "send_failed")
	}
}
