package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Unparsed is what Resolve reports for due dates it cannot interpret.
const Unparsed = "unparsed"

const (
	dateLayout = "2006-01-02"
	dueLayout  = "2006-01-02T00:00:00.000Z"
	// DefaultClock is used when an event time is missing or unreadable.
	DefaultClock = "09:00:00"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var (
	datedLayouts    = []string{"2006-01-02", "Jan 2, 2006", "January 2, 2006", "1/2/2006", "2006/01/02"}
	yearlessLayouts = []string{"Jan 2", "January 2", "1/2"}

	ordinalRe = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)
	spacesRe  = regexp.MustCompile(`\s+`)
)

// ParseDueDate interprets a free-text due date relative to now. The result
// is midnight of the resolved day in now's location.
//
// Recognized: today, tomorrow, this week (the coming Friday), next week
// (the Monday after next), next <weekday>, <weekday>, and explicit dates
// with or without a year. Yearless dates already past roll to next year.
func ParseDueDate(s string, now time.Time) (time.Time, bool) {
	text := strings.ToLower(strings.TrimSpace(s))
	if text == "" {
		return time.Time{}, false
	}
	today := midnight(now)

	switch {
	case text == "today" || text == "eod" || text == "end of day":
		return today, true
	case text == "tomorrow":
		return today.AddDate(0, 0, 1), true
	case strings.Contains(text, "this week"):
		days := (int(time.Friday) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days), true
	case strings.Contains(text, "next week"):
		// Monday-based week: Monday 0 .. Sunday 6.
		wd := (int(now.Weekday()) + 6) % 7
		return today.AddDate(0, 0, (7-wd)%7+7), true
	}

	if strings.Contains(text, "next") {
		for name, wd := range weekdays {
			if strings.Contains(text, name) {
				days := int(wd) - int(now.Weekday())
				if days <= 0 {
					days += 7
				}
				return today.AddDate(0, 0, days), true
			}
		}
	}
	if wd, ok := weekdays[strings.TrimPrefix(text, "on ")]; ok {
		days := (int(wd) - int(now.Weekday()) + 7) % 7
		return today.AddDate(0, 0, days), true
	}

	text = spacesRe.ReplaceAllString(ordinalRe.ReplaceAllString(strings.TrimSpace(s), "$1"), " ")
	for _, layout := range datedLayouts {
		if t, err := time.ParseInLocation(layout, text, now.Location()); err == nil {
			return t, true
		}
	}
	for _, layout := range yearlessLayouts {
		t, err := time.ParseInLocation(layout, text, now.Location())
		if err != nil {
			continue
		}
		d := time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
		if d.Before(today) {
			d = d.AddDate(1, 0, 0)
		}
		return d, true
	}
	return time.Time{}, false
}

// Resolve renders a due date as YYYY-MM-DD, Unparsed when it cannot be
// read, or "" when s is blank.
func Resolve(s string, now time.Time) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	t, ok := ParseDueDate(s, now)
	if !ok {
		return Unparsed
	}
	return t.Format(dateLayout)
}

// FormatDue renders a day in the RFC 3339 form Google Tasks stores.
func FormatDue(t time.Time) string {
	return t.Format(dueLayout)
}

// ParseClock normalizes a time of day to HH:MM:SS. It accepts HH:MM,
// HH:MM:SS, "3:04 PM" and "3 PM"; anything else yields DefaultClock.
func ParseClock(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultClock
	}
	upper := strings.ToUpper(s)
	if !strings.Contains(upper, "AM") && !strings.Contains(upper, "PM") {
		for _, layout := range []string{"15:04", "15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format("15:04:05")
			}
		}
		return DefaultClock
	}
	upper = strings.Join(strings.Fields(upper), " ")
	for _, layout := range []string{"3:04 PM", "3:04PM", "3 PM", "3PM"} {
		if t, err := time.Parse(layout, upper); err == nil {
			return t.Format("15:04:05")
		}
	}
	return DefaultClock
}

// EventStart combines a YYYY-MM-DD date and a free-form clock into an
// instant in loc.
func EventStart(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateLayout+" 15:04:05", strings.TrimSpace(date)+" "+ParseClock(clock), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event date %q (want YYYY-MM-DD)", date)
	}
	return t, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
