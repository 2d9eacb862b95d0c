package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"tripcal/internal/config"
	"tripcal/internal/ics"
	"tripcal/internal/itinerary"
	appLog "tripcal/internal/log"
	"tripcal/internal/model"
	"tripcal/internal/planner"
)

const (
	maxBodyBytes = 1 << 20
	dateLayout   = "2006-01-02"
)

// ItineraryPlanner generates itineraries. *planner.Planner implements it.
type ItineraryPlanner interface {
	Plan(ctx context.Context, req planner.Request) (model.Itinerary, error)
}

// Server exposes itinerary generation and calendar export over HTTP.
//
// The server keeps no per-user state: the generated plan text is returned to
// the client, which sends it back to the calendar endpoint.
type Server struct {
	cfg       *config.Config
	planner   ItineraryPlanner
	converter ics.Converter
	mux       *http.ServeMux
}

// embeddedStatic contains the single-page UI served at "/".
//
//go:embed static
var embeddedStatic embed.FS

// NewServer constructs a new Server. p may be nil when no LLM or map API key
// is configured; itinerary generation is then unavailable but calendar
// export still works.
func NewServer(cfg *config.Config, p ItineraryPlanner, conv ics.Converter) *Server {
	s := &Server{
		cfg:       cfg,
		planner:   p,
		converter: conv,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "planner", s.planner != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials are treated as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tripcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/itinerary", s.handleItinerary)
	s.mux.HandleFunc("POST /api/itinerary.ics", s.handleCalendar)
	s.mux.Handle("GET /", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleItinerary runs the planner.
//
// POST /api/itinerary {"destination": "北京", "days": 5}
func (s *Server) handleItinerary(w http.ResponseWriter, r *http.Request) {
	if s.planner == nil {
		writeError(w, http.StatusServiceUnavailable, "itinerary planner is not configured")
		return
	}

	var req planner.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	started := time.Now()
	it, err := s.planner.Plan(r.Context(), req)
	if err != nil {
		if errors.Is(err, planner.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Error("api itinerary: planning failed", err, "destination", req.Destination, "days", req.Days)
		writeError(w, http.StatusBadGateway, "itinerary generation failed")
		return
	}

	appLog.Info("api itinerary generated",
		"destination", it.Destination,
		"days", it.Days,
		"plan_bytes", len(it.Plan),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	writeJSON(w, http.StatusOK, it)
}

// calendarRequest is the body of POST /api/itinerary.ics.
type calendarRequest struct {
	Plan      string `json:"plan"`
	StartDate string `json:"start_date,omitempty"`
}

// handleCalendar converts plan text into a downloadable .ics file.
//
// POST /api/itinerary.ics {"plan": "Day 1: ...", "start_date": "2024-06-01"}
//   - start_date: optional; defaults to today in the configured timezone.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	var req calendarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var start time.Time
	if req.StartDate != "" {
		loc := s.converter.Location
		if loc == nil {
			loc = time.Local
		}
		t, err := time.ParseInLocation(dateLayout, req.StartDate, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
			return
		}
		start = t
	}

	if err := itinerary.CheckText(req.Plan, itinerary.MaxDayNumber); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := itinerary.CheckRange(itinerary.Parse(req.Plan), itinerary.MaxDayNumber); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body := s.converter.Convert(req.Plan, start)

	w.Header().Set("Content-Type", ics.ContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ics.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// staticFileServer serves the embedded UI. /api/* never falls through to it.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
