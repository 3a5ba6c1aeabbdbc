package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/ashureev/offer-assistant/internal/domain"
	"github.com/ashureev/offer-assistant/internal/stream"
)

const cardsPerRow = 2

var (
	accent      = lipgloss.Color("#2196F3")
	success     = lipgloss.Color("#8BC34A")
	destructive = lipgloss.Color("#e53935")
	muted       = lipgloss.Color("#8a94a6")

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1).
			Width(36)
	recommendedCardStyle = cardStyle.BorderForeground(success)
	titleStyle           = lipgloss.NewStyle().Bold(true)
	badgeStyle           = lipgloss.NewStyle().Bold(true).Foreground(success)
	priceStyle           = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle           = lipgloss.NewStyle().Foreground(muted)
	errorStyle           = lipgloss.NewStyle().Foreground(destructive)
	botStyle             = lipgloss.NewStyle().PaddingLeft(2)
)

// renderOffer draws one offer as a bordered card.
func renderOffer(o domain.OfferRecord) string {
	var lines []string
	if o.Badge != nil {
		lines = append(lines, badgeStyle.Render("★ "+*o.Badge))
	}
	lines = append(lines, titleStyle.Render(o.Title))
	if o.Speed != nil {
		lines = append(lines, "Débit : "+*o.Speed)
	}
	if o.Price != nil {
		lines = append(lines, priceStyle.Render(*o.Price+" DZD/mois"))
	}
	lines = append(lines, mutedStyle.Render(o.Description))
	if o.DownloadLink != nil {
		lines = append(lines, mutedStyle.Render(*o.DownloadLink))
	}

	style := cardStyle
	if o.Recommended() {
		style = recommendedCardStyle
	}
	return style.Render(strings.Join(lines, "\n"))
}

// renderOffers lays cards out in rows.
func renderOffers(list []domain.OfferRecord) string {
	var rows []string
	for start := 0; start < len(list); start += cardsPerRow {
		end := min(start+cardsPerRow, len(list))
		cards := make([]string, 0, end-start)
		for _, o := range list[start:end] {
			cards = append(cards, renderOffer(o))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// printer serializes terminal output from the input loop and the session
// dispatcher.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, s)
}

func (p *printer) state(c domain.StateChange, status string) {
	line := fmt.Sprintf("[%s]", status)
	if c.Err != nil {
		line += " " + c.Err.Error()
	}
	if c.To == domain.StateFailed {
		p.println(errorStyle.Render(line + " (tapez /reconnect)"))
		return
	}
	p.println(mutedStyle.Render(line))
}

func (p *printer) message(m domain.Message) {
	switch msg := m.(type) {
	case domain.BotMessage:
		p.println(botStyle.Render(msg.Text))
	case domain.ErrorMessage:
		p.println(errorStyle.Render(msg.Text))
	case domain.BatchResult:
		p.println(mutedStyle.Render("Réponses au questionnaire : " + string(msg.Payload)))
	}
}

func (p *printer) offers(s stream.BoardState) {
	if len(s.Offers) == 0 {
		return
	}
	p.println(renderOffers(s.Offers))
}

func (p *printer) notice(s string) {
	p.println(mutedStyle.Render(s))
}

func (p *printer) err(err error) {
	if err == nil {
		return
	}
	p.println(errorStyle.Render(err.Error()))
}
