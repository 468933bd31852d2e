package handlers

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"

	"adstudio/internal/session"
	"adstudio/internal/stability"
	"adstudio/internal/storage"
	"adstudio/internal/task"
	"adstudio/web"

	"github.com/rs/zerolog"
)

// Generator is the vendor-client contract the handlers depend on.
type Generator interface {
	Generate(ctx context.Context, t task.Task, in task.Input) (*stability.Result, error)
}

const sessionCookie = "adstudio_session"

// App bundles the dependencies shared by all handlers.
type App struct {
	Logger    zerolog.Logger
	Generator Generator
	Sessions  *session.Manager
	Store     *storage.FileStore
	tmpl      *template.Template
}

// NewApp wires the handler container and parses the embedded templates.
func NewApp(logger zerolog.Logger, gen Generator, sessions *session.Manager, store *storage.FileStore) (*App, error) {
	tmpl, err := template.ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &App{
		Logger:    logger,
		Generator: gen,
		Sessions:  sessions,
		Store:     store,
		tmpl:      tmpl,
	}, nil
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) render(w http.ResponseWriter, code int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := a.tmpl.ExecuteTemplate(w, name, data); err != nil {
		a.Logger.Error().Err(err).Str("template", name).Msg("render failed")
	}
}

// currentSession returns the caller's session, creating one (and setting the
// cookie) on first contact.
func (a *App) currentSession(w http.ResponseWriter, r *http.Request) *session.Session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if s, ok := a.Sessions.Get(c.Value); ok {
			return s
		}
	}
	s := a.Sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
