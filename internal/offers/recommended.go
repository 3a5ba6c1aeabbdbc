package offers

import (
	"regexp"
	"strings"

	"github.com/ashureev/offer-assistant/internal/domain"
)

// RecommendedDescription is used when a recommendation has no freelance line.
const RecommendedDescription = "Offre recommandée selon votre besoin"

// recommendation captures the offer name that follows a recommendation
// phrase, up to the end of the clause.
var recommendation = regexp.MustCompile(`(?i)(?:je vous recommande|je recommande|pour un freelance.*?(?:choisir|prends|choisissez)|l['’]offre la plus adaptée est|offre recommandée\s*:?)\s*[:\-]?\s*(?:(?:l['’]|cette\s+)offre\s*:?\s*)?([^\n.,]+)`)

var freelance = regexp.MustCompile(`(?i)freelance`)

// recommended detects an explicit recommendation and returns it as a
// single badged candidate.
func recommended(message string) (Candidate, bool) {
	loc := recommendation.FindStringSubmatchIndex(message)
	if loc == nil {
		return Candidate{}, false
	}
	title := strings.TrimSpace(message[loc[2]:loc[3]])
	if title == "" {
		return Candidate{}, false
	}
	after := message[loc[3]:]

	price := group(findWithin(priceToken, after, recPriceWindow), 1)
	if price == "" {
		price = group(monthlyPrice.FindStringSubmatch(message), 1)
	}

	desc := RecommendedDescription
	for _, line := range strings.Split(message, "\n") {
		if freelance.MatchString(line) {
			desc = strings.TrimSpace(line)
			break
		}
	}

	return Candidate{
		Title:       title,
		Speed:       speedNear(title, after, recSpeedWindow),
		Price:       price,
		Description: desc,
		Badge:       domain.BadgeRecommended,
	}, true
}
