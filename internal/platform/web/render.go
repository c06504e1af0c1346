package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ehr/patients/internal/platform/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page template names.
const (
	PageLogin       = "login"
	PageDashboard   = "dashboard"
	PagePatients    = "patients"
	PagePatientForm = "patient_form"
	PageError       = "error"
)

var pages = []string{PageLogin, PageDashboard, PagePatients, PagePatientForm, PageError}

// View is the value every page template is executed with.
type View struct {
	Title     string
	User      *auth.Identity
	RequestID string
	Data      interface{}
}

// Titled lets page data supply the document title.
type Titled interface {
	PageTitle() string
}

// Renderer renders the embedded page templates. Each page is parsed
// together with the shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page template. It fails if any template is
// malformed, so a broken template stops the server at startup.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render implements echo.Renderer. Data that is not already a View is
// wrapped in one carrying the request's identity.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}

	view, ok := data.(View)
	if !ok {
		view = View{Data: data}
		if tp, ok := data.(Titled); ok {
			view.Title = tp.PageTitle()
		}
	}
	if c != nil {
		if view.User == nil {
			view.User = auth.IdentityFromContext(c.Request().Context())
		}
		if view.RequestID == "" {
			view.RequestID, _ = c.Get("request_id").(string)
		}
	}
	return t.ExecuteTemplate(w, "layout", view)
}

// StaticFS serves the embedded stylesheet.
func StaticFS() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// numbers formats counts with Indonesian digit grouping.
var numbers = message.NewPrinter(language.Indonesian)

var funcs = template.FuncMap{
	"can": func(id *auth.Identity, action string) bool {
		return auth.Can(id, auth.Action(action))
	},
	"date": func(t interface{}) string {
		switch v := t.(type) {
		case time.Time:
			if v.IsZero() {
				return "-"
			}
			return v.Format("2006-01-02")
		case *time.Time:
			if v == nil || v.IsZero() {
				return "-"
			}
			return v.Format("2006-01-02")
		}
		return "-"
	},
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"dash": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "-"
		}
		return s
	},
	// pct returns n as a percentage of max for bar widths.
	"pct": func(n, max int) int {
		if max <= 0 {
			return 0
		}
		return n * 100 / max
	},
	"num": func(n int) string { return numbers.Sprintf("%d", n) },
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
}
