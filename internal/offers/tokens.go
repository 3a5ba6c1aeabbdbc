package offers

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/offer-assistant/internal/domain"
	"github.com/ashureev/offer-assistant/internal/textnorm"
)

// Search windows, in runes, measured from the end of a matched title to the
// start of the field token.
const (
	descWindow      = 80
	recSpeedWindow  = 250
	speedWindow     = 300
	recPriceWindow  = 400
	priceWindow     = 500
	downloadWindow  = 700
	boldSpeedWindow = 250
)

var (
	// Amount followed by a currency marker. French amounts may use narrow
	// or regular no-break spaces as thousands separators.
	priceToken = regexp.MustCompile(`(?i)(\d[\s\x{00A0}\x{202F},.\d]+)\s*(?:DZD|DA)\b`)
	// Amount quoted "per month", used when nothing follows the title.
	monthlyPrice = regexp.MustCompile(`(?i)(\d[\s\x{00A0}\x{202F},.]\d{3}|\d{3,5})\s*(?:DZD|DA)\s*/?\s*mois`)

	bandwidthToken = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?\s*[MG]bps)\b`)
	speedParts     = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*([MG])bps`)

	descLine     = regexp.MustCompile(`\n([^\n#]+)`)
	downloadLink = regexp.MustCompile(`(?i)\[(Télécharger|Download)\]\(([^)]+)\)`)
	nonDigit     = regexp.MustCompile(`[^0-9]`)
)

// findWithin returns the submatches of the leftmost match of re in text,
// provided that match starts at most window runes into text.
func findWithin(re *regexp.Regexp, text string, window int) []string {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}
	if utf8.RuneCountInString(text[:loc[0]]) > window {
		return nil
	}
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return groups
}

// group returns submatch i of m, or "" when m is nil.
func group(m []string, i int) string {
	if len(m) <= i {
		return ""
	}
	return m[i]
}

// speedNear looks for a bandwidth inside the title first, then in the text
// that follows it.
func speedNear(title, after string, window int) string {
	if m := bandwidthToken.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return group(findWithin(bandwidthToken, after, window), 1)
}

// normalizeSpeed reduces raw text to an "N Mbps" or "N Gbps" token.
func normalizeSpeed(raw string) *string {
	m := speedParts.FindStringSubmatch(textnorm.CleanMarkdown(raw))
	if m == nil {
		return nil
	}
	unit := "Mbps"
	if strings.EqualFold(m[2], "g") {
		unit = "Gbps"
	}
	return domain.StringPtr(m[1] + " " + unit)
}

// normalizePrice keeps the digits of a price and drops currency and
// separators. No digits means no price.
func normalizePrice(raw string) *string {
	return domain.StringPtr(nonDigit.ReplaceAllString(textnorm.CleanMarkdown(raw), ""))
}
