package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/sakif/jokebot/internal/model"
	"github.com/sakif/jokebot/internal/service"
	"github.com/sakif/jokebot/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// UIHandler serves the browser interface.
//
// Every form posts to a small handler that turns the form into a
// session.Command, dispatches it, stores the resulting state in cookies
// and redirects to "/" (post/redirect/get). GET / renders whatever the
// state says.
type UIHandler struct {
	dispatcher *session.Dispatcher
	accounts   *service.AuthService
	store      sessions.Store
	templates  *template.Template
	tokenTTL   time.Duration
	secure     bool
	logger     *slog.Logger
}

// UIConfig holds cookie settings for the UI.
type UIConfig struct {
	TokenTTL      time.Duration
	SecureCookies bool
}

func NewUIHandler(
	dispatcher *session.Dispatcher,
	accounts *service.AuthService,
	store sessions.Store,
	cfg UIConfig,
	logger *slog.Logger,
) (*UIHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &UIHandler{
		dispatcher: dispatcher,
		accounts:   accounts,
		store:      store,
		templates:  tmpl,
		tokenTTL:   cfg.TokenTTL,
		secure:     cfg.SecureCookies,
		logger:     logger,
	}, nil
}

type pageData struct {
	View    session.View
	Title   string
	State   *session.State
	History []model.Conversation
	Flashes []session.Flash
}

// HandleIndex renders the current view.
//
// HTTP: GET /
func (h *UIHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	st, sess, err := h.loadState(w, r)
	if err != nil {
		h.logger.Error("loading state", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	render := h.dispatcher.Dispatch(r.Context(), st, session.Refresh{})

	flashes := popFlashes(sess)
	if render.Flash != nil {
		flashes = append(flashes, *render.Flash)
	}
	// Persists the consumed flashes and any conversation Refresh started.
	h.saveState(w, r, sess, st, session.Render{})

	data := pageData{
		View:    render.View,
		State:   st,
		History: st.History(),
		Flashes: flashes,
	}
	if st.User != nil {
		data.Title = session.Title(st.User)
	}

	// Render into a buffer so a template error can still become a 500.
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "base", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	buf.WriteTo(w)
}

// run dispatches cmd, saves the outcome and redirects to "/".
func (h *UIHandler) run(w http.ResponseWriter, r *http.Request, cmd session.Command) {
	st, sess, err := h.loadState(w, r)
	if err != nil {
		h.logger.Error("loading state", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	render := h.dispatcher.Dispatch(r.Context(), st, cmd)
	h.saveState(w, r, sess, st, render)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogin handles POST /auth/login.
func (h *UIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.Login{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
}

// HandleSignup handles POST /auth/signup.
func (h *UIHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.Signup{
		Email:    r.PostFormValue("email"),
		Name:     r.PostFormValue("name"),
		Password: r.PostFormValue("password"),
	})
}

func (h *UIHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.Logout{})
}

// HandleAuthMode switches between the login and sign-up forms.
func (h *UIHandler) HandleAuthMode(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.SetAuthMode{Mode: session.AuthMode(r.PostFormValue("mode"))})
}

func (h *UIHandler) HandleShowReset(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.ShowReset{})
}

func (h *UIHandler) HandleCancelReset(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.HideReset{})
}

// HandleRequestReset handles POST /reset/request.
func (h *UIHandler) HandleRequestReset(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.RequestReset{Email: r.PostFormValue("email")})
}

// HandleConfirmReset handles POST /reset/confirm.
func (h *UIHandler) HandleConfirmReset(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.ConfirmReset{
		Code:        r.PostFormValue("code"),
		NewPassword: r.PostFormValue("password"),
	})
}

func (h *UIHandler) HandleNewChat(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.NewChat{})
}

func (h *UIHandler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.DeleteAll{})
}

// HandleOpenChat handles POST /chats/{id}/open.
func (h *UIHandler) HandleOpenChat(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, session.SelectChat{ID: chi.URLParam(r, "id")})
}
