package views

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"coursework/portal/access"
	"coursework/portal/auth"
	"coursework/portal/schema"
	"coursework/utils"

	"github.com/gorilla/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

const sessionName = "portal_session"

var pages = []string{
	"race_list", "race_detail", "registration_delete", "comment_form",
	"entity_list", "entity_detail", "entity_form", "entity_confirm_delete", "entity_bulk_delete",
	"login", "signup", "error",
}

var funcs = template.FuncMap{
	"time": func(t schema.Time) string {
		return schema.FormatTime(t)
	},
	"choice": func(choices []schema.Choice, value string) string {
		if label, ok := schema.ChoiceLabel(choices, value); ok {
			return label
		}
		return value
	},
	"join": strings.Join,
}

// Renderer draws the server-side pages. Every page is rendered inside the
// shared layout, which shows the caller and any pending flash messages.
type Renderer struct {
	pages    map[string]*template.Template
	sessions sessions.Store
}

func NewRenderer(sessionSecret []byte, secureCookies bool) (*Renderer, error) {
	parsed := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("error parsing template %v: %w", page, err)
		}
		parsed[page] = tmpl
	}

	store := sessions.NewCookieStore(sessionSecret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	}

	return &Renderer{pages: parsed, sessions: store}, nil
}

func (v *Renderer) session(r *http.Request) *sessions.Session {
	session, err := v.sessions.Get(r, sessionName)
	if err != nil {
		// A cookie signed with an old secret still yields a usable new session.
		slog.Warn("discarding invalid session cookie", "error", err)
	}
	return session
}

func (v *Renderer) Flash(w http.ResponseWriter, r *http.Request, kind, message string) {
	session := v.session(r)
	session.AddFlash(message, kind)
	if err := session.Save(r, w); err != nil {
		slog.Error("error saving flash message", "error", err)
	}
}

type flash struct {
	Kind    string
	Message string
}

func (v *Renderer) popFlashes(w http.ResponseWriter, r *http.Request) []flash {
	session := v.session(r)

	var out []flash
	for _, kind := range []string{access.FlashSuccess, access.FlashError} {
		for _, msg := range session.Flashes(kind) {
			out = append(out, flash{Kind: kind, Message: fmt.Sprint(msg)})
		}
	}
	if len(out) > 0 {
		if err := session.Save(r, w); err != nil {
			slog.Error("error clearing flash messages", "error", err)
		}
	}
	return out
}

func (v *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]interface{}) {
	tmpl, ok := v.pages[page]
	if !ok {
		slog.Error("unknown page requested", "page", page)
		http.Error(w, fmt.Sprintf("unknown page %v", page), http.StatusInternalServerError)
		return
	}

	ctx := map[string]interface{}{
		"User":    auth.CallerOrNil(r),
		"Flashes": v.popFlashes(w, r),
		"Path":    r.URL.Path,
	}
	for k, val := range data {
		ctx[k] = val
	}

	var body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&body, "layout", ctx); err != nil {
		slog.Error("error rendering page", "page", page, "error", err)
		http.Error(w, fmt.Sprintf("error rendering page: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := body.WriteTo(w); err != nil {
		slog.Error("error writing page", "page", page, "error", err)
	}
}

// Error renders the error page with the status carried by err.
func (v *Renderer) Error(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, access.ErrNotFound), errors.Is(err, schema.ErrRaceNotFound):
		status = http.StatusNotFound
	case utils.HasResponseCode(err):
		status = utils.GetResponseCode(err)
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Something went wrong. Please try again later."
	}

	v.Render(w, r, status, "error", map[string]interface{}{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Message": message,
	})
}
