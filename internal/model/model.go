package model

import "time"

// DayBlock is one "Day N" segment extracted from itinerary text.
type DayBlock struct {
	// Day is the number parsed from the marker. It is not guaranteed to be
	// contiguous, unique or sorted across blocks.
	Day int
	// Content is the trimmed text between this marker and the next one
	// (or end of input).
	Content string
}

// CalendarEvent is a single all-day event before serialization.
type CalendarEvent struct {
	Summary     string
	Description string

	// Start / End carry only a calendar date; time-of-day is ignored when
	// the event is serialized.
	Start time.Time
	End   time.Time

	// Stamp is the instant the event record was generated (DTSTAMP).
	Stamp time.Time
}

// CalendarDocument is an ordered list of events plus the fixed header
// properties of the VCALENDAR container.
type CalendarDocument struct {
	ProductID string
	Version   string
	Events    []CalendarEvent
}

// Place is a point of interest returned by the map search API.
type Place struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Address string `json:"address"`
}

// Itinerary is the result of one planning run. It is handed back to the
// caller and passed explicitly into the calendar download step.
type Itinerary struct {
	Destination string    `json:"destination"`
	Days        int       `json:"days"`
	Research    string    `json:"research"`
	Plan        string    `json:"plan"`
	GeneratedAt time.Time `json:"generated_at"`
}
