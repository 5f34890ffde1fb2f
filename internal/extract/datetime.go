package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})[.\-/](\d{1,2})[.\-/](\d{4})\b`)
	monthDatePattern   = regexp.MustCompile(`\b(\d{1,2})\s+(января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря)(?:\s+(\d{4}))?`)
	clockPattern       = regexp.MustCompile(`(\d{1,2})[:.](\d{2})`)
)

// Months maps genitive month names to month numbers
var Months = map[string]int{
	"января":   1,
	"февраля":  2,
	"марта":    3,
	"апреля":   4,
	"мая":      5,
	"июня":     6,
	"июля":     7,
	"августа":  8,
	"сентября": 9,
	"октября":  10,
	"ноября":   11,
	"декабря":  12,
}

// MonthNames is the inverse of Months, indexed by month number
var MonthNames = [13]string{"", "января", "февраля", "марта", "апреля", "мая", "июня", "июля", "августа", "сентября", "октября", "ноября", "декабря"}

// DateLayout is the canonical stored date format
const DateLayout = "02.01.2006"

// DateTime extracts a date and a time from free text using the current year as default
func DateTime(text string) (date, clock string) {
	return DateTimeAt(text, time.Now())
}

// DateTimeAt extracts a canonical DD.MM.YYYY date and HH:MM time. Either may be empty.
// The numeric pattern wins over the month-name pattern.
func DateTimeAt(text string, now time.Time) (date, clock string) {
	lower := strings.ToLower(text)
	masked := lower

	if loc := numericDatePattern.FindStringSubmatchIndex(lower); loc != nil {
		day, _ := strconv.Atoi(lower[loc[2]:loc[3]])
		month, _ := strconv.Atoi(lower[loc[4]:loc[5]])
		year, _ := strconv.Atoi(lower[loc[6]:loc[7]])
		if validDate(day, month, year) {
			date = formatDate(day, month, year)
		}
		// digits of the date must not be read back as a time
		masked = lower[:loc[0]] + strings.Repeat(" ", loc[1]-loc[0]) + lower[loc[1]:]
	}

	if date == "" {
		if m := monthDatePattern.FindStringSubmatch(lower); m != nil {
			day, _ := strconv.Atoi(m[1])
			month := Months[m[2]]
			year := now.Year()
			if m[3] != "" {
				year, _ = strconv.Atoi(m[3])
			}
			if validDate(day, month, year) {
				date = formatDate(day, month, year)
			}
		}
	}

	clock = Clock(masked)
	return date, clock
}

// Clock finds the first H:MM or H.MM time with hour 0-23 and minute 0-59
func Clock(text string) string {
	for _, loc := range clockPattern.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > 0 && isDigit(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isDigit(text[loc[1]]) {
			continue
		}
		hour, _ := strconv.Atoi(text[loc[2]:loc[3]])
		minute, _ := strconv.Atoi(text[loc[4]:loc[5]])
		if hour > 23 || minute > 59 {
			continue
		}
		return fmt.Sprintf("%02d:%02d", hour, minute)
	}
	return ""
}

// ParseDate parses a stored DD.MM.YYYY date
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatDate(day, month, year int) string {
	return fmt.Sprintf("%02d.%02d.%d", day, month, year)
}

// validDate rejects days the calendar does not have, like 31.02
func validDate(day, month, year int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Day() == day && t.Month() == time.Month(month)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
