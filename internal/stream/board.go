package stream

import (
	"sync"

	"github.com/ashureev/offer-assistant/internal/domain"
	"github.com/ashureev/offer-assistant/internal/offers"
)

// BoardState is the offer set currently shown to the user.
type BoardState struct {
	Strategy  string               `json:"strategy"`
	MessageID string               `json:"message_id,omitempty"`
	Offers    []domain.OfferRecord `json:"offers"`
}

// OfferBoard tracks the offers extracted from the newest bot reply. A reply
// without offers leaves the previous set in place.
type OfferBoard struct {
	mu      sync.RWMutex
	current BoardState
}

// NewOfferBoard returns an empty board.
func NewOfferBoard() *OfferBoard {
	return &OfferBoard{current: BoardState{Offers: []domain.OfferRecord{}}}
}

// Apply extracts offers from m. It reports whether the board changed.
func (b *OfferBoard) Apply(m domain.BotMessage) (BoardState, bool) {
	res := offers.Detect(m.Text)
	if len(res.Offers) == 0 {
		return b.State(), false
	}

	next := BoardState{Strategy: res.Strategy, MessageID: m.ID, Offers: res.Offers}
	b.mu.Lock()
	b.current = next
	b.mu.Unlock()
	return copyState(next), true
}

// ApplyLatest rebuilds the board from the newest bot reply in log.
func (b *OfferBoard) ApplyLatest(log []domain.Message) (BoardState, bool) {
	bot, ok := domain.LatestBot(log)
	if !ok {
		return b.State(), false
	}
	return b.Apply(bot)
}

// State returns a copy of the current board.
func (b *OfferBoard) State() BoardState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyState(b.current)
}

// Reset empties the board.
func (b *OfferBoard) Reset() {
	b.mu.Lock()
	b.current = BoardState{Offers: []domain.OfferRecord{}}
	b.mu.Unlock()
}

func copyState(s BoardState) BoardState {
	out := s
	out.Offers = make([]domain.OfferRecord, len(s.Offers))
	copy(out.Offers, s.Offers)
	return out
}
