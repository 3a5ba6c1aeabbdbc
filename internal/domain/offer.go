package domain

// BadgeRecommended marks the single offer picked out by a recommendation.
const BadgeRecommended = "Recommandé"

// MaxOffers caps the number of offers produced by one extraction.
const MaxOffers = 4

// OfferRecord is an offer recovered from assistant text. Nil pointers mean
// the field could not be recovered.
type OfferRecord struct {
	Title        string  `json:"title"`
	Price        *string `json:"price"`
	Speed        *string `json:"speed"`
	Description  string  `json:"description"`
	DownloadLink *string `json:"downloadLink"`
	Badge        *string `json:"badge"`
}

// Recommended reports whether the offer carries the recommendation badge.
func (o OfferRecord) Recommended() bool {
	return o.Badge != nil && *o.Badge == BadgeRecommended
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
