package web

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/evcraddock/estate-market/internal/auth"
	"github.com/evcraddock/estate-market/internal/config"
	"github.com/evcraddock/estate-market/internal/format"
)

// page is the data every full-page template receives.
type page struct {
	Title   string
	Active  string // nav item
	Address string // connected wallet, "" when disconnected
	Network config.Network
	Error   string
	Data    interface{}
}

func (s *Server) newPage(r *http.Request, title, active string, data interface{}) page {
	address, _ := auth.AddressFromContext(r.Context())
	return page{
		Title:   title,
		Active:  active,
		Address: address,
		Network: s.network,
		Data:    data,
	}
}

// render executes a full page template. Output is buffered so a template
// failure never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	s.renderStatus(w, http.StatusOK, name, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("rendering template", "template", name, "err", err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("writing response", "err", err)
	}
}

// renderPartial executes a named template block (no layout).
func (s *Server) renderPartial(w http.ResponseWriter, name string, data interface{}) {
	s.render(w, name, data)
}

// renderError shows the inline error page.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	p := s.newPage(r, http.StatusText(status), "", nil)
	p.Error = msg
	s.renderStatus(w, status, "error.html", p)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func templateFuncs(network config.Network) template.FuncMap {
	return template.FuncMap{
		"usd":         format.USD,
		"number":      format.Number,
		"short":       format.ShortAddress,
		"count":       format.Count,
		"formatFloat": tmplFormatFloat,
		"formatInt":   tmplFormatInt,
		"formatStr":   tmplFormatStr,
		"explorer":    network.AddressURL,
		"sameAddress": strings.EqualFold,
		"formatTime":  tmplFormatTime,
	}
}

func tmplFormatFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	if *f == float64(int64(*f)) {
		return fmt.Sprintf("%d", int64(*f))
	}
	return format.Float(*f, 1)
}

func tmplFormatInt(i *int64) string {
	if i == nil {
		return "-"
	}
	return format.Number(*i)
}

func tmplFormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 2, 2006 15:04")
}

func tmplFormatStr(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
