package handler

import (
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/DukeRupert/sitetier/internal/csrf"
	"github.com/DukeRupert/sitetier/internal/money"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TemplateFuncs returns the FuncMap shared by the admin pages. Prices are
// formatted in currency.
func TemplateFuncs(currency string) template.FuncMap {
	return template.FuncMap{
		"year": func() int {
			return time.Now().Year()
		},
		"formatDate": func(t any) string {
			switch v := t.(type) {
			case time.Time:
				if v.IsZero() {
					return ""
				}
				return v.Format("Jan 2, 2006")
			case *time.Time:
				if v == nil || v.IsZero() {
					return ""
				}
				return v.Format("Jan 2, 2006")
			}
			return ""
		},
		"price": func(cents int64) string {
			return money.FormatTierPrice(cents, currency)
		},
		"limit": func(n *int64) string {
			if n == nil {
				return "Unlimited"
			}
			return strconv.FormatInt(*n, 10)
		},
		"title": func(v any) string {
			return cases.Title(language.English).String(fmt.Sprint(v))
		},
		"csrfField": func(token string) template.HTML {
			return template.HTML(fmt.Sprintf(`<input type="hidden" name="%s" value="%s">`,
				csrf.FormFieldName, template.HTMLEscapeString(token)))
		},
	}
}
