package extract

import (
	"testing"
	"time"
)

func TestDateTimeAt(t *testing.T) {
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		text      string
		wantDate  string
		wantClock string
	}{
		{"numeric with time", "05.03.2026 20:00", "05.03.2026", "20:00"},
		{"numeric slashes", "концерт 5/3/2026", "05.03.2026", ""},
		{"numeric dashes", "7-11-2026 в 19.30", "07.11.2026", "19:30"},
		{"month name with year", "Test Band 5 марта 2026 20:00", "05.03.2026", "20:00"},
		{"month name without year", "12 апреля в 19:00", "12.04.2026", "19:00"},
		{"month name uppercase", "1 ДЕКАБРЯ 2026", "01.12.2026", ""},
		{"numeric wins over month", "5 марта, точнее 06.03.2026", "06.03.2026", ""},
		{"time only", "начало в 9:15", "", "09:15"},
		{"hour out of range", "счёт 25:10", "", ""},
		{"minute out of range", "в 20:75", "", ""},
		{"nothing", "просто текст", "", ""},
		{"invalid month", "32.13.2026", "", ""},
		{"digits glued to time ignored", "код 120:00", "", ""},
		{"day past month end", "31.02.2026 20:00", "", "20:00"},
		{"month name day past month end", "30 февраля", "", ""},
		{"leap day", "29.02.2028", "29.02.2028", ""},
		{"leap day in common year", "29 февраля 2026", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, clock := DateTimeAt(tt.text, now)
			if date != tt.wantDate {
				t.Errorf("date = %q, want %q", date, tt.wantDate)
			}
			if clock != tt.wantClock {
				t.Errorf("clock = %q, want %q", clock, tt.wantClock)
			}
			if date != "" {
				if _, ok := ParseDate(date); !ok {
					t.Errorf("extracted date %q does not parse", date)
				}
			}
		})
	}
}

func TestURLs(t *testing.T) {
	text := "билеты https://afisha.yandex.ru/a?b=1, музыка https://music.yandex.ru/album/1. и снова https://afisha.yandex.ru/a?b=1"
	got := URLs(text)
	want := []string{
		"https://afisha.yandex.ru/a?b=1",
		"https://music.yandex.ru/album/1",
		"https://afisha.yandex.ru/a?b=1",
	}
	if len(got) != len(want) {
		t.Fatalf("URLs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("URLs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if len(URLs("без ссылок")) != 0 {
		t.Error("expected no urls")
	}
}

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		url  string
		want URLKind
	}{
		{"https://afisha.yandex.ru/moscow/concert/x", URLTickets},
		{"https://widget.afisha.yandex.ru/w/123", URLTickets},
		{"https://ticketscloud.com/v1/widgets/x", URLTickets},
		{"https://MUSIC.yandex.ru/artist/1", URLMusic},
		{"https://band.link/xyz", URLMusic},
		{"https://example.com", URLUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyURL(tt.url); got != tt.want {
			t.Errorf("ClassifyURL(%q) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

func TestHasKeyword(t *testing.T) {
	if !HasKeyword("Афиша УТВЕРЖДЕНА", ApproveKeywords) {
		t.Error("expected approve keyword")
	}
	if !HasKeyword("Афиша УТВЕРЖДЕНА", PosterKeywords) {
		t.Error("expected poster keyword")
	}
	if !HasKeyword("концерт ОТМЕНА", CancelKeywords) {
		t.Error("expected cancel keyword")
	}
	if !HasKeyword("перенос на 7 марта", DateChangeKeywords) {
		t.Error("expected date change keyword")
	}
	if HasKeyword("обычное сообщение", TicketKeywords) {
		t.Error("unexpected ticket keyword")
	}
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("05.03.2026")
	if !ok {
		t.Fatal("expected date to parse")
	}
	if d.Day() != 5 || d.Month() != time.March || d.Year() != 2026 {
		t.Errorf("unexpected parsed date %v", d)
	}
	if _, ok := ParseDate("завтра"); ok {
		t.Error("expected parse failure")
	}
}
