package offers

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// "### 1. Pack ..." or "## 2. **Offre ...**".
	numberedHeading = regexp.MustCompile(`(?i)###?\s*\*?\*?(\d+)\.\s*\*?\*?((?:Pack|Offre) [^*\n]+)`)

	// "| title | speed | price |", price optionally suffixed by a currency.
	tableRow = regexp.MustCompile(`(?i)\|\s*\*?\*?([^|]+?)\*?\*?\s*\|\s*([^|]+?)\s*\|\s*([^|]+?)(?:\s*(?:DZD|DA))?\s*\|`)
	hasDigit = regexp.MustCompile(`\d`)

	// "- 100 Mbps (1900 DZD)".
	speedBullet = regexp.MustCompile(`(?i)[-•]\s*\*?\*?(\d+\s*[MG]bps)\*?\*?\s*[(\[:]?\s*(\d[\s\x{00A0}\x{202F},.\d]+)\s*(?:DZD|DA)\b`)

	// "**Offre X**" followed later by "*Prix...: 1.900 DZD/mois".
	boldPrice = regexp.MustCompile(`(?i)\*\*(Offre [^*]+)\*\*[\s\S]*?\*Prix[^:]*:\s*([0-9]+(?:[.,][0-9]{3})*\s*(?:DZD|DA)/mois)`)

	// "* 10 Mbps : 1600 DZD/mois".
	summaryLine = regexp.MustCompile(`(?i)[*•]\s*(\d+(?:\.\d+)?\s*[MG]bps)\s*:\s*(\d+[,\s\d]+)\s*(?:DZD|DA)/mois`)
)

// numberedPacks reads headed entries and scans the text after each heading
// for its price, speed, first description line and download link.
func numberedPacks(message string) []Candidate {
	var out []Candidate
	for _, loc := range numberedHeading.FindAllStringSubmatchIndex(message, -1) {
		title := strings.TrimSpace(message[loc[4]:loc[5]])
		after := message[loc[5]:]

		out = append(out, Candidate{
			Title:        title,
			Price:        group(findWithin(priceToken, after, priceWindow), 1),
			Speed:        speedNear(title, after, speedWindow),
			Description:  strings.TrimSpace(group(findWithin(descLine, after, descWindow), 1)),
			DownloadLink: group(findWithin(downloadLink, after, downloadWindow), 2),
		})
	}
	return out
}

// tableRows reads markdown table rows, skipping header and separator rows.
func tableRows(message string) []Candidate {
	var out []Candidate
	for _, line := range strings.Split(message, "\n") {
		if strings.Contains(line, "Offre") || strings.Contains(line, "---") {
			continue
		}
		m := tableRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		speed := strings.TrimSpace(m[2])
		price := strings.TrimSpace(m[3])
		if title == "" || !hasDigit.MatchString(price) {
			continue
		}
		out = append(out, Candidate{
			Title:       title,
			Speed:       speed,
			Price:       price,
			Description: fmt.Sprintf("Débit: %s - Prix: %s DZD/mois", speed, price),
		})
	}
	return out
}

// speedList reads "- <speed> (<price> DZD)" bullets.
func speedList(message string) []Candidate {
	var out []Candidate
	for _, m := range speedBullet.FindAllStringSubmatch(message, -1) {
		out = append(out, Candidate{
			Title:       "IDOOM Fibre " + m[1],
			Speed:       m[1],
			Price:       m[2],
			Description: "Offre fibre optique avec téléphonie fixe",
		})
	}
	return out
}

// boldTitlePrice reads "**Offre X**" titles paired with the next price line.
func boldTitlePrice(message string) []Candidate {
	var out []Candidate
	for _, loc := range boldPrice.FindAllStringSubmatchIndex(message, -1) {
		title := strings.TrimSpace(message[loc[2]:loc[3]])
		after := message[loc[3]:]
		out = append(out, Candidate{
			Title:       title,
			Price:       message[loc[4]:loc[5]],
			Speed:       speedNear(title, after, boldSpeedWindow),
			Description: "Offre résidentielle",
		})
	}
	return out
}

// summaryLines reads "* <speed> : <price> DZD/mois" lines, one offer each.
func summaryLines(message string) []Candidate {
	var out []Candidate
	for _, m := range summaryLine.FindAllStringSubmatch(message, -1) {
		out = append(out, Candidate{
			Title:       "Pack Idoom " + m[1],
			Speed:       m[1],
			Price:       m[2],
			Description: DefaultDescription,
		})
	}
	return out
}
