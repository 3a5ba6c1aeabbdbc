// Package textnorm strips markdown and metadata noise from assistant text.
// All functions are pure.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	metaLine = regexp.MustCompile(`(?i)^(?:\*+)?\s*(?:type de document|document|segment|engagement|inclus|source|contexte)\s*:`)

	codeFence   = regexp.MustCompile("(?s)```.*?```")
	mdLink      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	boldStars   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicStar  = regexp.MustCompile(`\*(.*?)\*`)
	boldUnder   = regexp.MustCompile(`__(.*?)__`)
	italicUnder = regexp.MustCompile(`_(.*?)_`)
	heading     = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bullet      = regexp.MustCompile(`(?m)^\s*[-•*]\s+`)
	hspace      = regexp.MustCompile(`[ \t]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)

	bareOffre   = regexp.MustCompile(`(?i)^offre\s*:?\s*$`)
	offrePrefix = regexp.MustCompile(`(?i)^offre\s*:\s*`)
	packPhrase  = regexp.MustCompile(`(?i)(Pack\s+[^\n*#]+)`)
)

// DefaultTitle is used when no title and no speed can be recovered.
const DefaultTitle = "Offre Internet"

// StripMetaLines removes lines that start with a metadata label such as
// "Source:" or "Type de document:". Matching is case-insensitive and
// ignores leading whitespace and bold markers.
func StripMetaLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if metaLine.MatchString(strings.TrimSpace(l)) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// CleanMarkdown removes code fences, link targets, emphasis, heading and
// bullet markers, then collapses whitespace and trims.
func CleanMarkdown(text string) string {
	s := codeFence.ReplaceAllString(text, "")
	s = mdLink.ReplaceAllString(s, "${1}")
	s = boldStars.ReplaceAllString(s, "${1}")
	s = italicStar.ReplaceAllString(s, "${1}")
	s = boldUnder.ReplaceAllString(s, "${1}")
	s = italicUnder.ReplaceAllString(s, "${1}")
	s = heading.ReplaceAllString(s, "")
	s = bullet.ReplaceAllString(s, "")
	s = hspace.ReplaceAllString(s, " ")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// CleanDescription runs the description pipeline. Metadata lines are
// removed before markdown so that labels wrapped in emphasis still match.
func CleanDescription(text string) string {
	return CleanMarkdown(StripMetaLines(text))
}

// NormalizeOfferTitle turns a raw heading into a display title. A bare
// "Offre" or "Offre :" is replaced by the first "Pack ..." phrase of the
// full message, then by a speed-based label, then by DefaultTitle. A
// leading "Offre:" label is dropped. speed may be empty.
func NormalizeOfferTitle(rawTitle, speed, fullMessage string) string {
	title := CleanMarkdown(rawTitle)

	if bareOffre.MatchString(title) {
		if m := packPhrase.FindStringSubmatch(fullMessage); m != nil {
			if pack := CleanMarkdown(m[1]); pack != "" {
				return pack
			}
		}
		return fallbackTitle(speed)
	}

	title = strings.TrimSpace(offrePrefix.ReplaceAllString(title, ""))
	if title == "" {
		return fallbackTitle(speed)
	}
	return title
}

func fallbackTitle(speed string) string {
	if s := CleanMarkdown(speed); s != "" {
		return "Offre Fibre " + s
	}
	return DefaultTitle
}
