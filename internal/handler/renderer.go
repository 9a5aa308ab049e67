package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
)

//go:embed templates
var embeddedTemplates embed.FS

// DefaultTemplates returns the built-in admin page templates.
func DefaultTemplates() fs.FS {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Renderer renders the admin pages. Each page in pages/*.html is parsed into
// its own clone of layouts/admin.html so that pages can redefine blocks
// without clashing.
type Renderer struct {
	templates map[string]*template.Template
	logger    *slog.Logger
}

// RendererConfig holds configuration for the renderer.
type RendererConfig struct {
	FS       fs.FS // defaults to DefaultTemplates()
	Currency string
	Logger   *slog.Logger
}

// NewRenderer parses every admin page.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	fsys := cfg.FS
	if fsys == nil {
		fsys = DefaultTemplates()
	}

	r := &Renderer{
		templates: make(map[string]*template.Template),
		logger:    cfg.Logger,
	}
	if err := r.loadTemplates(fsys, cfg.Currency); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) loadTemplates(fsys fs.FS, currency string) error {
	base, err := template.New("admin").Funcs(TemplateFuncs(currency)).ParseFS(fsys, "layouts/admin.html")
	if err != nil {
		return fmt.Errorf("failed to parse admin layout: %w", err)
	}

	pages, err := fs.Glob(fsys, "pages/*.html")
	if err != nil {
		return fmt.Errorf("failed to glob pages: %w", err)
	}

	for _, page := range pages {
		pageTmpl, err := base.Clone()
		if err != nil {
			return fmt.Errorf("failed to clone admin layout for %s: %w", page, err)
		}

		pageTmpl, err = pageTmpl.ParseFS(fsys, page)
		if err != nil {
			return fmt.Errorf("failed to parse page %s: %w", page, err)
		}

		// Store as "index", "upgrade", etc.
		name := strings.TrimSuffix(path.Base(page), path.Ext(page))
		r.templates[name] = pageTmpl
	}

	r.logger.Info("templates loaded", "count", len(r.templates))
	return nil
}

// Render renders a page to an io.Writer.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "admin", data)
}

// RenderHTTP renders a page directly to an http.ResponseWriter.
func (r *Renderer) RenderHTTP(w http.ResponseWriter, name string, data any) {
	// Render to buffer first to catch errors before writing headers
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		r.logger.Error("template execution failed", "name", name, "error", err)
		http.Error(w, "Template execution failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// ListTemplates returns the names of all loaded pages.
func (r *Renderer) ListTemplates() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
