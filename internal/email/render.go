package email

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"io/fs"
	"path"
	"strings"
	"text/template"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/money"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

//go:embed templates
var embeddedTemplates embed.FS

// DefaultTemplates returns the built-in notification templates.
func DefaultTemplates() fs.FS {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// TemplateData is the context every notification template is rendered with.
type TemplateData struct {
	Site     domain.Site
	TierInfo *domain.SiteTierInfo
	Tier     domain.Tier
	User     *domain.Owner // nil when mailing the site developers
	BaseURL  string
	Year     int
	Extra    map[string]any
}

// Rendered is the output of a template pair.
type Rendered struct {
	Subject  string
	TextBody string
	HTMLBody string
}

type templatePair struct {
	subject *template.Template
	body    *template.Template
}

// Renderer renders notification templates.
type Renderer struct {
	templates map[string]templatePair
	strip     *bluemonday.Policy
	markdown  goldmark.Markdown
	currency  string
}

// NewRenderer parses every <name>/subject.txt and <name>/body.md pair in fsys.
func NewRenderer(fsys fs.FS, currency string) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[string]templatePair),
		strip:     bluemonday.StrictPolicy(),
		markdown:  goldmark.New(),
		currency:  currency,
	}

	subjects, err := fs.Glob(fsys, "*/subject.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to list email templates: %w", err)
	}

	for _, subjectPath := range subjects {
		name := path.Dir(subjectPath)

		subject, err := template.New("subject.txt").Funcs(r.funcs()).ParseFS(fsys, subjectPath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", subjectPath, err)
		}

		bodyPath := path.Join(name, "body.md")
		body, err := template.New("body.md").Funcs(r.funcs()).ParseFS(fsys, bodyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", bodyPath, err)
		}

		r.templates[name] = templatePair{subject: subject, body: body}
	}

	return r, nil
}

// Has reports whether a template pair with the given name exists.
func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// Render executes the named template pair.
func (r *Renderer) Render(name string, data TemplateData) (Rendered, error) {
	pair, ok := r.templates[name]
	if !ok {
		return Rendered{}, fmt.Errorf("email template %q not found", name)
	}

	subject, err := execute(pair.subject, data)
	if err != nil {
		return Rendered{}, fmt.Errorf("failed to render %s subject: %w", name, err)
	}

	body, err := execute(pair.body, data)
	if err != nil {
		return Rendered{}, fmt.Errorf("failed to render %s body: %w", name, err)
	}

	text := strings.TrimSpace(r.stripTags(body)) + "\n"

	var htmlBody bytes.Buffer
	if err := r.markdown.Convert([]byte(text), &htmlBody); err != nil {
		return Rendered{}, fmt.Errorf("failed to convert %s body: %w", name, err)
	}

	return Rendered{
		Subject:  strings.Join(strings.Fields(r.stripTags(subject)), " "),
		TextBody: text,
		HTMLBody: htmlBody.String(),
	}, nil
}

// stripTags removes all markup. The sanitizer escapes entities, which are
// turned back into text for the plain text alternative.
func (r *Renderer) stripTags(s string) string {
	return html.UnescapeString(r.strip.Sanitize(s))
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"percent": func(ratio float64) string {
			return fmt.Sprintf("%.0f%%", ratio*100)
		},
		"price": func(cents int64) string {
			return money.FormatTierPrice(cents, r.currency)
		},
		"date": func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
		"limit": func(n *int64) string {
			if n == nil {
				return "unlimited"
			}
			return fmt.Sprintf("%d", *n)
		},
	}
}

func execute(t *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
