package api

import (
	"net/http"

	"github.com/ashureev/offer-assistant/internal/offers"
)

// GetOffers returns the offers extracted from the newest bot reply.
func (h *Handler) GetOffers(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.board.State())
}

type extractRequest struct {
	Text string `json:"text"`
}

// ExtractOffers runs the extractor on arbitrary text without touching the
// session.
func (h *Handler) ExtractOffers(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !h.decode(w, r, &req) {
		return
	}
	JSON(w, http.StatusOK, offers.Detect(req.Text))
}
