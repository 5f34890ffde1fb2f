package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/mtbar/concerts/internal/extract"
	"github.com/mtbar/concerts/pkg/models"
)

//go:embed page.html.tmpl
var pageTemplate string

const dateUnknown = "Дата уточняется"

type page struct {
	HomeURL    string
	Title      string
	When       string
	ImageURL   string
	TicketsURL string
	MusicURL   string
	Paragraphs [][]string
}

// Renderer builds the public HTML page of an event
type Renderer struct {
	tmpl    *template.Template
	homeURL string
}

// New parses the embedded page template
func New(homeURL string) (*Renderer, error) {
	tmpl, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	return &Renderer{tmpl: tmpl, homeURL: homeURL}, nil
}

// Render returns the page body for ev
func (r *Renderer) Render(ev *models.Event) (string, error) {
	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, page{
		HomeURL:    r.homeURL,
		Title:      ev.Title,
		When:       FormatWhen(ev.Date, ev.Time),
		ImageURL:   ev.ImageURL,
		TicketsURL: ev.TicketsURL,
		MusicURL:   ev.MusicURL,
		Paragraphs: Paragraphs(ev.Description),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render event %d: %w", ev.ID, err)
	}
	return buf.String(), nil
}

// FormatWhen renders "5 марта 2026 • 20:00". A date that does not parse is shown as stored.
func FormatWhen(date, clock string) string {
	if date == "" {
		return dateUnknown
	}

	formatted := date
	if t, ok := extract.ParseDate(date); ok {
		formatted = strconv.Itoa(t.Day()) + " " + extract.MonthNames[t.Month()] + " " + strconv.Itoa(t.Year())
	}

	if clock == "" {
		return formatted
	}
	return formatted + " • " + clock
}

// Paragraphs splits text on blank lines, each paragraph keeping its line breaks
func Paragraphs(text string) [][]string {
	var out [][]string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		out = append(out, strings.Split(block, "\n"))
	}
	return out
}
