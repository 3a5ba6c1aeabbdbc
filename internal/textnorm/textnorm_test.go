package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bold and link", "**Offre A** et [lien](http://x)", "Offre A et lien"},
		{"italic star", "un *petit* mot", "un petit mot"},
		{"underscores", "__gras__ et _penché_", "gras et penché"},
		{"heading", "### 1. Pack Fibre", "1. Pack Fibre"},
		{"bullets", "- un\n• deux\n* trois", "un\ndeux\ntrois"},
		{"code fence", "avant\n```go\nx := 1\n```\naprès", "avant\n\naprès"},
		{"horizontal whitespace", "a \t  b", "a b"},
		{"blank line runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"trim", "   texte  \n", "texte"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanMarkdown(tt.input))
		})
	}
}

func TestStripMetaLines(t *testing.T) {
	input := "Pack Fibre\nType de document: brochure\n  **Source : site\nContexte: x\nsegment: résidentiel\nPrix 1900 DZD"
	assert.Equal(t, "Pack Fibre\nPrix 1900 DZD", StripMetaLines(input))

	// Labels only count at the start of a line.
	assert.Equal(t, "voir la source: site", StripMetaLines("voir la source: site"))
}

func TestCleanDescription(t *testing.T) {
	input := "**Source:** [doc](http://x)\n**Internet** illimité\n\n\n\nEngagement : 12 mois"
	assert.Equal(t, "Internet illimité", CleanDescription(input))
	assert.Equal(t, "", CleanDescription("Contexte: rien"))
}

func TestNormalizeOfferTitle(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		speed   string
		message string
		want    string
	}{
		{"plain title kept", "Pack Fibre 100 Mbps", "", "", "Pack Fibre 100 Mbps"},
		{"offre prefix dropped", "Offre : Idoom Fibre", "", "", "Idoom Fibre"},
		{"offre colon no space", "offre:Idoom", "", "", "Idoom"},
		{"bare offre uses pack phrase", "Offre :", "", "intro\nPack Gamer 300 Mbps\nfin", "Pack Gamer 300 Mbps"},
		{"bare offre uses speed", "**Offre**", "100 Mbps", "rien", "Offre Fibre 100 Mbps"},
		{"bare offre default", "offre", "", "rien", DefaultTitle},
		{"empty raw uses speed", "", "20 Mbps", "", "Offre Fibre 20 Mbps"},
		{"empty raw default", "  ", "", "", DefaultTitle},
		{"markdown cleaned", "**Pack Pro**", "", "", "Pack Pro"},
		{"offre word without colon kept", "Offre Fibre 50", "", "", "Offre Fibre 50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeOfferTitle(tt.raw, tt.speed, tt.message)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, got)
		})
	}
}
