package handler

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"github.com/sakif/jokebot/internal/apperror"
	"github.com/sakif/jokebot/internal/auth"
	"github.com/sakif/jokebot/internal/session"
)

// The UI state cookie. It is signed, not encrypted: it holds nothing a
// visitor could not see on screen anyway.
const (
	sessionName   = "jokebot_ui"
	sessionMaxAge = 7 * 24 * time.Hour

	keyOwner        = "owner"
	keyConversation = "conversation_id"
	keyAuthMode     = "auth_mode"
	keyShowReset    = "show_reset"
	keyResetEmail   = "reset_email"
	keyResetStep    = "reset_step"
)

// flashValue is what a session.Flash looks like inside the cookie.
type flashValue struct {
	Level string
	Text  string
}

func init() {
	gob.Register(flashValue{})
}

// NewSessionStore returns the cookie store for UI state, signed with secret.
func NewSessionStore(secret []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// loadState rebuilds the visitor's session.State from the identity cookie
// and the UI state cookie.
//
// A UI cookie that fails verification is replaced by a fresh one. An
// identity cookie naming an account that no longer exists is cleared.
// Chat fields saved for a different account than the current one are
// dropped.
func (h *UIHandler) loadState(w http.ResponseWriter, r *http.Request) (*session.State, *sessions.Session, error) {
	sess, err := h.store.Get(r, sessionName)
	if err != nil {
		h.logger.Debug("discarding unreadable UI cookie", slog.String("error", err.Error()))
	}

	st := &session.State{}
	if email, ok := auth.EmailFromContext(r.Context()); ok {
		user, err := h.accounts.GetUser(r.Context(), email)
		switch {
		case err == nil:
			st.User = user
		case errors.Is(err, apperror.ErrNotFound):
			auth.ClearCookie(w)
		default:
			return nil, nil, fmt.Errorf("handler: resolving identity: %w", err)
		}
	}

	owner, _ := sess.Values[keyOwner].(string)
	if st.User != nil && owner == st.User.Email {
		st.ConversationID, _ = sess.Values[keyConversation].(string)
	}

	mode, _ := sess.Values[keyAuthMode].(string)
	st.AuthMode = session.AuthMode(mode)
	st.ShowReset, _ = sess.Values[keyShowReset].(bool)
	st.ResetEmail, _ = sess.Values[keyResetEmail].(string)
	step, _ := sess.Values[keyResetStep].(string)
	st.ResetStep = session.ResetStep(step)

	return st, sess, nil
}

// saveState writes st and the effects of render back to the cookies. It
// must run before anything is written to the body.
func (h *UIHandler) saveState(w http.ResponseWriter, r *http.Request, sess *sessions.Session, st *session.State, render session.Render) {
	if render.Token != "" {
		auth.SetCookie(w, render.Token, h.tokenTTL, h.secure)
	}
	if render.ClearIdentity {
		auth.ClearCookie(w)
	}

	owner := ""
	if st.User != nil {
		owner = st.User.Email
	}
	sess.Values[keyOwner] = owner
	sess.Values[keyConversation] = st.ConversationID
	sess.Values[keyAuthMode] = string(st.AuthMode)
	sess.Values[keyShowReset] = st.ShowReset
	sess.Values[keyResetEmail] = st.ResetEmail
	sess.Values[keyResetStep] = string(st.ResetStep)

	if render.Flash != nil {
		sess.AddFlash(flashValue{Level: string(render.Flash.Level), Text: render.Flash.Text})
	}

	if err := sess.Save(r, w); err != nil {
		h.logger.Error("saving UI cookie", slog.String("error", err.Error()))
	}
}

// popFlashes removes and returns the pending flashes. The session must be
// saved afterwards for the removal to stick.
func popFlashes(sess *sessions.Session) []session.Flash {
	var out []session.Flash
	for _, v := range sess.Flashes() {
		if f, ok := v.(flashValue); ok {
			out = append(out, session.Flash{Level: session.FlashLevel(f.Level), Text: f.Text})
		}
	}
	return out
}
