// Package icalmeta derives the stored metadata (uid, component type,
// occurrence bounds) from raw iCalendar data. It is the default provider of
// the precomputed bounds the object write path requires; full recurrence
// expansion stays with the calling engine.
package icalmeta

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/linagora/esn-sabre-sub002/internal/contracts"
)

var errNoComponent = errors.New("icalmeta: no calendar component found")

// MaxDate caps the last occurrence of unbounded recurring components so
// open-ended RRULEs still match forward time-range queries.
var MaxDate = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)

// Extract parses raw iCalendar data and returns the object metadata. The
// first non-timezone component wins; its siblings (recurrence overrides)
// only widen the bounds.
func Extract(data string) (contracts.ObjectMeta, error) {
	cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		return contracts.ObjectMeta{}, err
	}

	var meta contracts.ObjectMeta
	for _, child := range cal.Children {
		if child.Name == ical.CompTimezone {
			continue
		}
		if meta.ComponentType == "" {
			meta.ComponentType = child.Name
			if uid := child.Props.Get(ical.PropUID); uid != nil {
				meta.UID = uid.Value
			}
		}
		if child.Name != meta.ComponentType {
			continue
		}
		widenBounds(&meta, child)
	}
	if meta.ComponentType == "" {
		return contracts.ObjectMeta{}, errNoComponent
	}
	return meta, nil
}

func widenBounds(meta *contracts.ObjectMeta, component *ical.Component) {
	start, err := component.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil || start.IsZero() {
		return
	}

	end := componentEnd(component, start)
	if component.Props.Get(ical.PropRecurrenceRule) != nil {
		end = recurrenceEnd(component, end)
	}

	if meta.FirstOccurrence == nil || start.Before(*meta.FirstOccurrence) {
		s := start
		meta.FirstOccurrence = &s
	}
	if meta.LastOccurrence == nil || end.After(*meta.LastOccurrence) {
		e := end
		meta.LastOccurrence = &e
	}
}

func componentEnd(component *ical.Component, start time.Time) time.Time {
	if end, err := component.Props.DateTime(ical.PropDateTimeEnd, time.UTC); err == nil && !end.IsZero() {
		return end
	}
	if due, err := component.Props.DateTime(ical.PropDue, time.UTC); err == nil && !due.IsZero() {
		return due
	}
	if durProp := component.Props.Get(ical.PropDuration); durProp != nil {
		if dur, err := time.ParseDuration(parseICalDuration(durProp.Value)); err == nil {
			return start.Add(dur)
		}
	}
	return start
}

// recurrenceEnd keeps an UNTIL bound when present; anything open-ended is
// clamped to MaxDate.
func recurrenceEnd(component *ical.Component, fallback time.Time) time.Time {
	rrule := component.Props.Get(ical.PropRecurrenceRule)
	if rrule == nil {
		return fallback
	}
	for _, part := range strings.Split(rrule.Value, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok || !strings.EqualFold(key, "UNTIL") {
			continue
		}
		for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
			if until, err := time.Parse(layout, value); err == nil {
				return until
			}
		}
	}
	return MaxDate
}

// parseICalDuration rewrites an RFC 5545 duration (e.g. PT1H30M, P1D) into
// the form time.ParseDuration accepts. Week and day units are expanded into
// hours; negative durations keep their sign.
func parseICalDuration(value string) string {
	var sb strings.Builder
	rest := value
	if strings.HasPrefix(rest, "-") {
		sb.WriteString("-")
		rest = rest[1:]
	}
	rest = strings.TrimPrefix(rest, "+")
	rest = strings.TrimPrefix(rest, "P")

	var datePart, timePart string
	if idx := strings.Index(rest, "T"); idx >= 0 {
		datePart, timePart = rest[:idx], rest[idx+1:]
	} else {
		datePart = rest
	}

	hours := 0
	num := ""
	for _, r := range datePart {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'W':
			n, _ := strconv.Atoi(num)
			hours += n * 7 * 24
			num = ""
		case r == 'D':
			n, _ := strconv.Atoi(num)
			hours += n * 24
			num = ""
		}
	}
	if hours > 0 {
		sb.WriteString(strconv.Itoa(hours))
		sb.WriteString("h")
	}

	num = ""
	for _, r := range timePart {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'H':
			sb.WriteString(num)
			sb.WriteString("h")
			num = ""
		case r == 'M':
			sb.WriteString(num)
			sb.WriteString("m")
			num = ""
		case r == 'S':
			sb.WriteString(num)
			sb.WriteString("s")
			num = ""
		}
	}
	if sb.Len() == 0 || sb.String() == "-" {
		return "0s"
	}
	return sb.String()
}
