package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Window names a reporting period.
type Window string

const (
	WindowAll       Window = "all"
	WindowToday     Window = "today"
	WindowYesterday Window = "yesterday"
	WindowCustom    Window = "custom"
)

const dateLayout = "2006-01-02"

var (
	// ErrInvalidWindow is returned for unknown window names.
	ErrInvalidWindow = errors.New("analytics: unknown window")
	// ErrInvalidRange is returned when a custom range is malformed or inverted.
	ErrInvalidRange = errors.New("analytics: invalid date range")
)

// ParseWindow maps a query value to a Window. Empty means all.
func ParseWindow(raw string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(raw))); w {
	case "":
		return WindowAll, nil
	case WindowAll, WindowToday, WindowYesterday, WindowCustom:
		return w, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWindow, raw)
	}
}

// Range is a half-open interval [Start, End). An unbounded range matches
// every timestamp.
type Range struct {
	Start     time.Time
	End       time.Time
	Unbounded bool
}

// Contains reports whether t falls inside the range. It is the only window
// membership test used for sales and purchases.
func (r Range) Contains(t time.Time) bool {
	if r.Unbounded {
		return true
	}
	return !t.Before(r.Start) && t.Before(r.End)
}

// Days returns the inclusive calendar dates covered by a bounded range.
func (r Range) Days() (string, string) {
	if r.Unbounded {
		return "", ""
	}
	return r.Start.Format(dateLayout), r.End.AddDate(0, 0, -1).Format(dateLayout)
}

// Resolve turns a window into day boundaries in loc. Custom ranges take
// inclusive YYYY-MM-DD dates.
func Resolve(w Window, now time.Time, loc *time.Location, from, to string) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := startOfDay(now, loc)
	switch w {
	case WindowAll, "":
		return Range{Unbounded: true}, nil
	case WindowToday:
		return Range{Start: today, End: nextDay(today)}, nil
	case WindowYesterday:
		start := time.Date(today.Year(), today.Month(), today.Day()-1, 0, 0, 0, 0, loc)
		return Range{Start: start, End: today}, nil
	case WindowCustom:
		start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(from), loc)
		if err != nil {
			return Range{}, fmt.Errorf("%w: from %q", ErrInvalidRange, from)
		}
		last, err := time.ParseInLocation(dateLayout, strings.TrimSpace(to), loc)
		if err != nil {
			return Range{}, fmt.Errorf("%w: to %q", ErrInvalidRange, to)
		}
		if last.Before(start) {
			return Range{}, fmt.Errorf("%w: from after to", ErrInvalidRange)
		}
		return Range{Start: start, End: nextDay(last)}, nil
	default:
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidWindow, w)
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// nextDay uses calendar arithmetic so DST days keep their true length.
func nextDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location())
}
