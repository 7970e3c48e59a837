package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageFuncs = template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%+.2f%%", v) },
	"yi":  func(v float64) string { return fmt.Sprintf("%.2f亿", v/1e8) },
	"num": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"share": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
	"hm": func(p *contracts.Pick) string {
		if p == nil || p.Time.IsZero() {
			return ""
		}
		return p.Time.Format("15:04:05")
	},
}

// Page renders the HTML dashboard
type Page struct {
	engine Engine
	tmpl   *template.Template
	logger *logger.Logger
}

// NewPage parses the embedded dashboard template
func NewPage(engine Engine, log *logger.Logger) (*Page, error) {
	tmpl, err := template.New("dashboard.html").Funcs(pageFuncs).ParseFS(templateFS, "templates/dashboard.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard template: %w", err)
	}
	return &Page{engine: engine, tmpl: tmpl, logger: log}, nil
}

// ServeHTTP renders the latest dashboard
// GET /
func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, p.engine.Latest()); err != nil {
		p.logger.WithError(err).Error("Failed to render dashboard")
		respondError(w, http.StatusInternalServerError, "Failed to render dashboard")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
