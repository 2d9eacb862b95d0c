package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tripcal/internal/config"
	"tripcal/internal/ics"
	"tripcal/internal/model"
	"tripcal/internal/planner"
)

type stubPlanner struct {
	it  model.Itinerary
	err error
	got planner.Request
}

func (s *stubPlanner) Plan(_ context.Context, req planner.Request) (model.Itinerary, error) {
	s.got = req
	return s.it, s.err
}

var stamp = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestServer(cfg *config.Config, p ItineraryPlanner) http.Handler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	conv := ics.Converter{
		Now:      func() time.Time { return stamp },
		Location: time.UTC,
	}
	return NewServer(cfg, p, conv).Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(newTestServer(nil, nil), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("health = %d %q", w.Code, w.Body.String())
	}
}

func TestItinerary(t *testing.T) {
	p := &stubPlanner{it: model.Itinerary{Destination: "北京", Days: 2, Plan: "Day 1: A\nDay 2: B"}}
	h := newTestServer(nil, p)

	w := do(h, http.MethodPost, "/api/itinerary", `{"destination": "北京", "days": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if p.got.Destination != "北京" || p.got.Days != 2 {
		t.Errorf("planner got %+v", p.got)
	}

	var it model.Itinerary
	if err := json.NewDecoder(w.Body).Decode(&it); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if it.Plan != p.it.Plan {
		t.Errorf("plan = %q", it.Plan)
	}
}

func TestItineraryErrors(t *testing.T) {
	tests := []struct {
		name    string
		planner ItineraryPlanner
		body    string
		want    int
	}{
		{
			name:    "no planner configured",
			planner: nil,
			body:    `{"destination": "Rome", "days": 2}`,
			want:    http.StatusServiceUnavailable,
		},
		{
			name:    "invalid json",
			planner: &stubPlanner{},
			body:    `{"destination":`,
			want:    http.StatusBadRequest,
		},
		{
			name:    "unknown field",
			planner: &stubPlanner{},
			body:    `{"city": "Rome"}`,
			want:    http.StatusBadRequest,
		},
		{
			name:    "invalid request",
			planner: &stubPlanner{err: fmt.Errorf("%w: days must be between 1 and 30", planner.ErrInvalidRequest)},
			body:    `{"destination": "Rome", "days": 99}`,
			want:    http.StatusBadRequest,
		},
		{
			name:    "upstream failure",
			planner: &stubPlanner{err: errors.New("model unavailable")},
			body:    `{"destination": "Rome", "days": 2}`,
			want:    http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newTestServer(nil, tt.planner), http.MethodPost, "/api/itinerary", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("body has no error field: %s", w.Body.String())
			}
		})
	}
}

func TestCalendarDownload(t *testing.T) {
	h := newTestServer(nil, nil)
	w := do(h, http.MethodPost, "/api/itinerary.ics",
		`{"plan": "Day 1: Visit museum\nDay 2: Beach day", "start_date": "2024-06-01"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="travel.ics"` {
		t.Errorf("content disposition = %q", cd)
	}

	events, err := ics.Parse(w.Body.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Summary != "Day 1 Itinerary" || events[0].Start.Format("2006-01-02") != "2024-06-01" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Summary != "Day 2 Itinerary" || events[1].Start.Format("2006-01-02") != "2024-06-02" {
		t.Errorf("event 1 = %+v", events[1])
	}
}

func TestCalendarDefaultsToToday(t *testing.T) {
	w := do(newTestServer(nil, nil), http.MethodPost, "/api/itinerary.ics", `{"plan": "just relax"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "DTSTART;VALUE=DATE:20240601") {
		t.Errorf("expected anchor from converter clock:\n%s", w.Body.String())
	}
}

func TestCalendarRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad date", `{"plan": "Day 1: x", "start_date": "06/01/2024"}`},
		{"day too large", `{"plan": "Day 4000: x"}`},
		{"day overflow", `{"plan": "Day 99999999999999999999999: x"}`},
		{"not json", `plan=Day 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newTestServer(nil, nil), http.MethodPost, "/api/itinerary.ics", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestCalendarAcceptsEdgeDays(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		summary string
		start   string
	}{
		{
			name:    "day zero lands before the anchor",
			body:    `{"plan": "Day 0: Arrival\nDay 1: Museum", "start_date": "2024-06-01"}`,
			summary: "Day 0 Itinerary",
			start:   "20240531",
		},
		{
			name:    "oversized number in prose is not a marker",
			body:    `{"plan": "Notes: see Day 99999x errata. Day 1: Museum", "start_date": "2024-06-01"}`,
			summary: "Day 1 Itinerary",
			start:   "20240601",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newTestServer(nil, nil), http.MethodPost, "/api/itinerary.ics", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			out := w.Body.String()
			if !strings.Contains(out, "SUMMARY:"+tt.summary) || !strings.Contains(out, "DTSTART;VALUE=DATE:"+tt.start) {
				t.Errorf("missing %q on %s:\n%s", tt.summary, tt.start, out)
			}
		})
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := newTestServer(cfg, nil)

	if w := do(h, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health behind auth: %d", w.Code)
	}

	body := `{"plan": "Day 1: x"}`
	if w := do(h, http.MethodPost, "/api/itinerary.ics", body); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/itinerary.ics", strings.NewReader(body))
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated status = %d", w.Code)
	}
}

func TestStaticUI(t *testing.T) {
	h := newTestServer(nil, nil)

	w := do(h, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("index status = %d", w.Code)
	}
	page, _ := io.ReadAll(w.Body)
	if !bytes.Contains(page, []byte("/api/itinerary.ics")) {
		t.Error("index page does not reference the calendar endpoint")
	}

	if w := do(h, http.MethodGet, "/api/unknown", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown api path status = %d, want 404", w.Code)
	}
}
