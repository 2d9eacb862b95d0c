package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"tripcal/internal/itinerary"
	"tripcal/internal/model"
)

const (
	// ProductID and Version are written into every generated VCALENDAR.
	ProductID = "-//AI Travel Planner//"
	Version   = "2.0"

	// FallbackSummary titles the single event produced when the plan has
	// no day markers.
	FallbackSummary = "Travel Itinerary"

	// ContentType and FileName describe the payload for download.
	ContentType = "text/calendar"
	FileName    = "travel.ics"
)

// Converter turns itinerary text into an iCalendar document.
//
// The zero value is ready to use: it reads the wall clock and resolves
// "today" in time.Local.
type Converter struct {
	// Now returns the current instant. Used for DTSTAMP and, when no start
	// date is given, for the anchor date.
	Now func() time.Time

	// Location is the zone in which "today" is resolved. Nil means time.Local.
	Location *time.Location
}

// Convert builds and serializes the calendar for plan using the default
// Converter. A zero start means today.
func Convert(plan string, start time.Time) []byte {
	return Converter{}.Convert(plan, start)
}

// Convert builds and serializes the calendar for plan. A zero start means
// today.
func (c Converter) Convert(plan string, start time.Time) []byte {
	return Serialize(c.Build(plan, start))
}

// Build produces the in-memory calendar for plan.
//
// Each "Day N" block becomes one all-day event on start + (N-1) days, in the
// order the blocks appear in the text. Text without any day marker yields a
// single FallbackSummary event on the anchor date carrying the whole plan.
//
// Build panics on day numbers that overflow the date arithmetic; see
// itinerary.CheckText for bounding untrusted input.
func (c Converter) Build(plan string, start time.Time) model.CalendarDocument {
	anchor := c.anchorDate(start)

	doc := model.CalendarDocument{
		ProductID: ProductID,
		Version:   Version,
	}

	blocks := itinerary.Parse(plan)
	if len(blocks) == 0 {
		doc.Events = append(doc.Events, model.CalendarEvent{
			Summary:     FallbackSummary,
			Description: plan,
			Start:       anchor,
			End:         anchor,
			Stamp:       c.now(),
		})
		return doc
	}

	doc.Events = make([]model.CalendarEvent, 0, len(blocks))
	for _, b := range blocks {
		date := anchor.AddDate(0, 0, b.Day-1)
		doc.Events = append(doc.Events, model.CalendarEvent{
			Summary:     fmt.Sprintf("Day %d Itinerary", b.Day),
			Description: b.Content,
			Start:       date,
			End:         date,
			Stamp:       c.now(),
		})
	}
	return doc
}

// Serialize encodes doc as an RFC 5545 VCALENDAR. DTSTART/DTEND are written
// as VALUE=DATE and DTSTAMP in UTC.
func Serialize(doc model.CalendarDocument) []byte {
	cal := ical.NewCalendar()
	cal.SetProductId(doc.ProductID)
	cal.SetVersion(doc.Version)

	for i, ev := range doc.Events {
		ve := cal.AddEvent(eventUID(i, ev))
		ve.SetSummary(ev.Summary)
		ve.SetDescription(ev.Description)
		ve.SetAllDayStartAt(ev.Start)
		ve.SetAllDayEndAt(ev.End)
		ve.SetDtStampTime(ev.Stamp)
	}

	return []byte(cal.Serialize())
}

// eventUID is stable for a given position and date so that repeated
// conversions of the same plan differ only in DTSTAMP.
func eventUID(i int, ev model.CalendarEvent) string {
	return fmt.Sprintf("%d-%s@tripcal", i+1, ev.Start.Format(dateLayout))
}

func (c Converter) anchorDate(start time.Time) time.Time {
	if start.IsZero() {
		loc := c.Location
		if loc == nil {
			loc = time.Local
		}
		start = c.now().In(loc)
	}
	y, m, d := start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, start.Location())
}

func (c Converter) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
