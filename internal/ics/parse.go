package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "tripcal/internal/log"
)

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
)

// ParsedEvent is a VEVENT read back from an iCalendar payload.
type ParsedEvent struct {
	UID string

	Summary     string
	Description string

	Start  time.Time
	End    time.Time
	AllDay bool
	Stamp  time.Time
}

// Parse reads an iCalendar payload and returns its events in document
// order. Events whose DTSTART cannot be read are logged and skipped.
func Parse(body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "bytes", len(body))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "uid", ev.UID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := parseICSTime(dtStart.Value)
	if err != nil {
		return out, err
	}
	out.Start = start
	out.AllDay = isDateValue(dtStart)

	// DTEND is optional; an all-day event without it ends on its start date.
	out.End = start
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, err := parseICSTime(dtEnd.Value); err == nil {
			out.End = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtstamp); p != nil {
		if ts, err := parseICSTime(p.Value); err == nil {
			out.Stamp = ts
		}
	}

	return out, nil
}

// isDateValue reports whether a DTSTART/DTEND property carries a date-only
// value: either VALUE=DATE or a value without a time part.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime parses the DATE, local DATE-TIME and UTC DATE-TIME forms.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse(dateTimeLayout+"Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation(dateTimeLayout, v, time.Local)
	}
	return time.ParseInLocation(dateLayout, v, time.Local)
}

// textUnescaper reverses RFC 5545 TEXT escaping, which the decoder leaves in
// property values.
var textUnescaper = strings.NewReplacer(
	`\\`, `\`,
	`\n`, "\n",
	`\N`, "\n",
	`\;`, ";",
	`\,`, ",",
)

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
