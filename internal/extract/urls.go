package extract

import (
	"regexp"
	"strings"
)

// URLKind is the classification of a discovered URL
type URLKind string

const (
	URLTickets URLKind = "tickets"
	URLMusic   URLKind = "music"
	URLUnknown URLKind = "unknown"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'«»]+`)

// MusicDomains are streaming services whose links fill the secondary media field
var MusicDomains = []string{
	"music.yandex",
	"band.link",
	"zvuk.com",
	"open.spotify.com",
	"music.apple.com",
}

// TicketDomains are ticketing platforms whose links fill the tickets field
var TicketDomains = []string{
	"afisha.yandex",
	"widget.afisha",
	"yandex.ru/afisha",
	"ticketscloud",
	"radario",
	"kassir.ru",
	"ponominalu",
	"timepad",
	"qtickets",
	"intickets",
	"tickets.mts",
	"concert.ru",
}

// URLs returns every absolute URL in order of appearance, duplicates preserved
func URLs(text string) []string {
	found := urlPattern.FindAllString(text, -1)
	urls := make([]string, 0, len(found))
	for _, u := range found {
		u = strings.TrimRight(u, ".,;:!?)")
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// ClassifyURL matches the URL against the music list, then the ticket list
func ClassifyURL(url string) URLKind {
	lower := strings.ToLower(url)
	for _, d := range MusicDomains {
		if strings.Contains(lower, d) {
			return URLMusic
		}
	}
	for _, d := range TicketDomains {
		if strings.Contains(lower, d) {
			return URLTickets
		}
	}
	return URLUnknown
}
