// Package web serves a small password-protected dashboard of recent merges.
package web

import (
	"crypto/subtle"
	"embed"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	// CookieName carries the login token.
	CookieName = "pdfstamp_auth"
	loginTTL   = 12 * time.Hour
)

// Sessions reports live session count.
type Sessions interface {
	Len() int
}

type Web struct {
	tpl      *template.Template
	history  store.History
	sessions Sessions
	title    string
	username string
	password string

	mu     sync.Mutex
	tokens map[string]time.Time
}

// Options configures the dashboard. Empty credentials disable it.
type Options struct {
	History  store.History
	Sessions Sessions
	Title    string
	Username string
	Password string
}

func New(opts Options) *Web {
	tpl := template.Must(template.New("").Funcs(template.FuncMap{
		"ago": func(t time.Time) string { return time.Since(t).Round(time.Second).String() },
	}).ParseFS(templateFS, "templates/*.html"))
	title := opts.Title
	if title == "" {
		title = "PDF Merger"
	}
	return &Web{
		tpl:      tpl,
		history:  opts.History,
		sessions: opts.Sessions,
		title:    title,
		username: opts.Username,
		password: opts.Password,
		tokens:   make(map[string]time.Time),
	}
}

// Enabled reports whether login credentials are configured.
func (w *Web) Enabled() bool {
	return w.username != "" && w.password != ""
}

// Authorized reports whether r carries a live token issued by a successful login.
func (w *Web) Authorized(r *http.Request) bool {
	if !w.Enabled() {
		return false
	}
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return false
	}
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	ok := false
	for tok, exp := range w.tokens {
		if now.After(exp) {
			delete(w.tokens, tok)
			continue
		}
		if subtle.ConstantTimeCompare([]byte(tok), []byte(c.Value)) == 1 {
			ok = true
		}
	}
	return ok
}

func (w *Web) issue() string {
	tok := uuid.NewString()
	w.mu.Lock()
	w.tokens[tok] = time.Now().Add(loginTTL)
	w.mu.Unlock()
	return tok
}

func (w *Web) revoke(tok string) {
	w.mu.Lock()
	delete(w.tokens, tok)
	w.mu.Unlock()
}

func (w *Web) credentialsMatch(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(username), []byte(w.username))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(w.password))
	return u&p == 1
}

// Routes returns the dashboard router, mounted under /web.
func (w *Web) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/login", w.handleLogin)
	r.Post("/login", w.handleLogin)
	r.Get("/logout", w.handleLogout)
	r.Get("/", w.requireAuth(w.handleDashboard))
	r.Get("/dashboard", w.requireAuth(w.handleDashboard))
	return r
}

func (w *Web) render(wr http.ResponseWriter, name string, data any) {
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := w.tpl.ExecuteTemplate(wr, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("dashboard render failed")
	}
}

func (w *Web) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(wr http.ResponseWriter, r *http.Request) {
		if !w.Enabled() {
			http.Error(wr, "WEB_USERNAME/WEB_PASSWORD not set", http.StatusForbidden)
			return
		}
		if !w.Authorized(r) {
			http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
			return
		}
		next(wr, r)
	}
}

func (w *Web) handleLogin(wr http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.render(wr, "login.html", map[string]any{"Title": w.title, "Error": r.URL.Query().Get("error")})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Redirect(wr, r, "/web/login?error=invalid+form", http.StatusSeeOther)
			return
		}
		if w.Enabled() && w.credentialsMatch(r.Form.Get("username"), r.Form.Get("password")) {
			http.SetCookie(wr, &http.Cookie{
				Name:     CookieName,
				Value:    w.issue(),
				Path:     "/",
				MaxAge:   int(loginTTL / time.Second),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			http.Redirect(wr, r, "/web/dashboard", http.StatusSeeOther)
			return
		}
		http.Redirect(wr, r, "/web/login?error=invalid+credentials", http.StatusSeeOther)
	}
}

func (w *Web) handleLogout(wr http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(CookieName); err == nil {
		w.revoke(c.Value)
	}
	http.SetCookie(wr, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
}

func (w *Web) handleDashboard(wr http.ResponseWriter, r *http.Request) {
	var (
		merges []store.MergeRecord
		errMsg string
	)
	if w.history != nil {
		recs, err := w.history.Recent(r.Context(), 50)
		if err != nil {
			errMsg = err.Error()
		}
		merges = recs
	}
	active := 0
	if w.sessions != nil {
		active = w.sessions.Len()
	}
	w.render(wr, "dashboard.html", map[string]any{
		"Title":    w.title,
		"Username": w.username,
		"Merges":   merges,
		"Active":   active,
		"Error":    errMsg,
	})
}
