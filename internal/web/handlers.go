package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sflip/radiopi/core/control"
	"github.com/sflip/radiopi/internal/logging"
	"github.com/sflip/radiopi/internal/server"
)

// MaxFormBytes bounds a submitted control form.
const MaxFormBytes = 64 << 10

// Form defaults and input limits shown in the panel.
const (
	DefaultTimerMinutes = 30
	MaxTimerMinutes     = 250
	DefaultAlarmTime    = "08:00"
	DefaultAlarmMinutes = 60
	MaxAlarmMinutes     = 150
)

// PageData contains common page data.
type PageData struct {
	Title  string
	Errors []string
}

// Panel is the view model of the control panel page.
type Panel struct {
	PageData
	Module control.Module

	Playing bool
	Station string

	TimerAvailable bool
	TimerEnabled   bool
	TimerSetTo     string

	AlarmEnabled           bool
	AlarmTime              string
	AlarmDurationAvailable bool

	Stations   []string
	ShowVolume bool
	Hostname   string

	TimerMinutes     int
	MaxTimerMinutes  int
	DefaultAlarmTime string
	AlarmMinutes     int
	MaxAlarmMinutes  int
	EqualiserBars    int
}

// StatusDocument is the JSON form of the current state.
type StatusDocument struct {
	Status        map[string]string `json:"status"`
	DefaultModule control.Module    `json:"default_module"`
	Playing       bool              `json:"playing"`
	Errors        []string          `json:"errors"`
}

// buildPanel derives the page view model from a fresh snapshot. errs come
// first, followed by problems met while querying the snapshot.
func (s *Server) buildPanel(snap *control.Snapshot, errs []string) Panel {
	status := snap.Status
	station, _ := status.Get(control.KeyStation)
	timerSetTo, _ := status.Get(control.KeyTimerSetTo)
	alarmTime, _ := status.Get(control.KeyAlarmTime)

	return Panel{
		PageData: PageData{
			Title:  "radiopi",
			Errors: append(append([]string(nil), errs...), snap.Problems...),
		},
		Module:                 control.DefaultModule(status),
		Playing:                status.Playing(),
		Station:                server.SanitizeUserInput(station),
		TimerAvailable:         s.features.Timer,
		TimerEnabled:           status.TimerEnabled(),
		TimerSetTo:             timerSetTo,
		AlarmEnabled:           status.AlarmEnabled(),
		AlarmTime:              alarmTime,
		AlarmDurationAvailable: s.features.AlarmDuration,
		Stations:               snap.Stations,
		ShowVolume:             s.features.ShowVolume(s.hostname),
		Hostname:               s.hostname,
		TimerMinutes:           DefaultTimerMinutes,
		MaxTimerMinutes:        MaxTimerMinutes,
		DefaultAlarmTime:       DefaultAlarmTime,
		AlarmMinutes:           DefaultAlarmMinutes,
		MaxAlarmMinutes:        MaxAlarmMinutes,
		EqualiserBars:          9,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.renderPanel(w, r, http.StatusOK, nil)
	case http.MethodPost:
		s.handleAction(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxFormBytes)
	if err := r.ParseForm(); err != nil {
		logging.WarnContext(r.Context(), "form parsing failed", "error", err)
		s.renderPanel(w, r, http.StatusBadRequest, []string{"Could not read the submitted form."})
		return
	}

	outcome := s.dispatcher.Dispatch(r.Context(), r.PostForm)
	if outcome.ShouldRedirect() {
		redirectAfterPost(w, r)
		return
	}
	s.renderPanel(w, r, http.StatusOK, outcome.Messages())
}

// redirectAfterPost drops the submitted form and sends the client back to
// a plain GET of the same path with an empty body.
func redirectAfterPost(w http.ResponseWriter, r *http.Request) {
	r.PostForm = nil
	r.Form = nil
	http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
}

// renderPanel queries the control program and renders the page. The page is
// rendered into a buffer so a template failure can still become a 500.
func (s *Server) renderPanel(w http.ResponseWriter, r *http.Request, status int, errs []string) {
	snap := control.TakeSnapshot(r.Context(), s.runner, true)
	panel := s.buildPanel(snap, errs)

	var buf bytes.Buffer
	if err := Templates.ExecuteTemplate(&buf, "index.html", panel); err != nil {
		httpError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		w.Write(buf.Bytes())
	}
}

// statusDocument queries the current status without the station list.
func (s *Server) statusDocument(r *http.Request) StatusDocument {
	snap := control.TakeSnapshot(r.Context(), s.runner, false)
	errs := snap.Problems
	if errs == nil {
		errs = []string{}
	}
	return StatusDocument{
		Status:        snap.Status,
		DefaultModule: control.DefaultModule(snap.Status),
		Playing:       snap.Status.Playing(),
		Errors:        errs,
	}
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	doc := s.statusDocument(r)
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logging.ErrorContext(r.Context(), "failed to encode status", "error", err)
	}
}

var staticContentTypes = map[string]string{
	"style.css": "text/css; charset=utf-8",
	"main.js":   "application/javascript",
}

func handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/static/")
	contentType, ok := staticContentTypes[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	content, err := staticFS.ReadFile("static/" + name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	h := fnv.New64a()
	h.Write(content)
	etag := fmt.Sprintf("\"%x\"", h.Sum64())
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", etag)
	w.Write(content)
}

// httpError logs err with a correlation ID and returns a generic message.
func httpError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	errID := uuid.NewString()[:8]
	logging.ErrorContext(r.Context(), "http_error",
		"error_id", errID,
		"status_code", statusCode,
		"error", err)
	http.Error(w, fmt.Sprintf("%s (ref: %s)", http.StatusText(statusCode), errID), statusCode)
}
