// Package offers recovers structured offer records from free-form
// assistant replies.
//
// Extraction is a cascade. The recommendation detector runs first and, when
// it matches, yields a single badged offer. Otherwise the list strategies
// run in priority order and the first one producing at least one candidate
// wins. Every candidate goes through the textnorm pipeline, and the result
// is capped at domain.MaxOffers entries in discovery order.
//
// The package holds no state and performs no I/O; it is safe for
// concurrent use.
package offers

import (
	"strings"

	"github.com/ashureev/offer-assistant/internal/domain"
	"github.com/ashureev/offer-assistant/internal/textnorm"
)

// Strategy names, reported in Result.Strategy.
const (
	StrategyNone        = ""
	StrategyRecommended = "recommended"
	StrategyNumbered    = "numbered"
	StrategyTable       = "table"
	StrategySpeedList   = "speed_list"
	StrategyBoldPrice   = "bold_price"
	StrategySummary     = "summary"
)

// DefaultDescription is used when a candidate has no usable description.
const DefaultDescription = "Offre disponible chez Algérie Télécom"

// Candidate is the raw tuple a strategy recovers before normalization.
type Candidate struct {
	Title        string
	Price        string
	Speed        string
	Description  string
	DownloadLink string
	Badge        string
}

// Strategy is one self-contained pattern routine of the cascade.
type Strategy struct {
	Name  string
	Match func(message string) []Candidate
}

// cascade lists the list strategies in priority order.
var cascade = []Strategy{
	{Name: StrategyNumbered, Match: numberedPacks},
	{Name: StrategyTable, Match: tableRows},
	{Name: StrategySpeedList, Match: speedList},
	{Name: StrategyBoldPrice, Match: boldTitlePrice},
	{Name: StrategySummary, Match: summaryLines},
}

// Strategies returns the list strategies in priority order. The
// recommendation detector is not part of the list.
func Strategies() []Strategy {
	out := make([]Strategy, len(cascade))
	copy(out, cascade)
	return out
}

// Result is the outcome of one extraction.
type Result struct {
	Strategy string               `json:"strategy"`
	Offers   []domain.OfferRecord `json:"offers"`
}

// Extract returns the offers found in message, at most domain.MaxOffers.
// It never fails: unrecognized text yields an empty, non-nil slice.
func Extract(message string) []domain.OfferRecord {
	return Detect(message).Offers
}

// Detect is Extract plus the name of the strategy that produced the offers.
func Detect(message string) Result {
	if c, ok := recommended(message); ok {
		return Result{
			Strategy: StrategyRecommended,
			Offers:   []domain.OfferRecord{Build(c, message)},
		}
	}

	for _, s := range cascade {
		candidates := s.Match(message)
		if len(candidates) == 0 {
			continue
		}
		if len(candidates) > domain.MaxOffers {
			candidates = candidates[:domain.MaxOffers]
		}
		records := make([]domain.OfferRecord, 0, len(candidates))
		for _, c := range candidates {
			records = append(records, Build(c, message))
		}
		return Result{Strategy: s.Name, Offers: records}
	}

	return Result{Strategy: StrategyNone, Offers: []domain.OfferRecord{}}
}

// Build normalizes a candidate into an OfferRecord. fullMessage is used to
// recover a title when the candidate only says "Offre".
func Build(c Candidate, fullMessage string) domain.OfferRecord {
	speed := normalizeSpeed(c.Speed)

	desc := textnorm.CleanDescription(c.Description)
	if desc == "" {
		desc = DefaultDescription
	}

	return domain.OfferRecord{
		Title:        textnorm.NormalizeOfferTitle(c.Title, domain.Deref(speed), fullMessage),
		Price:        normalizePrice(c.Price),
		Speed:        speed,
		Description:  desc,
		DownloadLink: domain.StringPtr(strings.TrimSpace(c.DownloadLink)),
		Badge:        domain.StringPtr(c.Badge),
	}
}
