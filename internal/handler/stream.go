package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/jokebot/internal/apperror"
	"github.com/sakif/jokebot/internal/assistant"
	"github.com/sakif/jokebot/internal/session"
)

type fragmentEvent struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

type errorEvent struct {
	Message string `json:"message"`
}

type doneEvent struct {
	ConversationID string `json:"conversationId"`
}

// eventStream writes Server-Sent Events.
type eventStream struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	open   bool
	logger *slog.Logger
}

func (s *eventStream) start() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.open = true
	s.flush()
}

func (s *eventStream) send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("encoding event", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	// A write error means the client left; the request context is
	// cancelled too and the turn winds down on its own.
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return
	}
	s.flush()
}

func (s *eventStream) flush() {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Debug("flush failed", slog.String("error", err.Error()))
	}
}

// HandleSendMessage runs one chat turn and streams the reply.
//
// HTTP: POST /chats/messages (form field "text")
//
// Events:
//
//	fragment {"text": "...", "kind": "text"}            zero or more
//	error    {"message": "..."}                         on failure
//	done     {"conversationId": "..."}                  always last
//
// The UI cookie is saved before the first byte of the body, since cookies
// cannot be set once streaming has begun.
func (h *UIHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	st, sess, err := h.loadState(w, r)
	if err != nil {
		h.logger.Error("loading state", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if st.User == nil {
		writeError(w, apperror.Unauthorized(session.MsgLoginRequired))
		return
	}

	rc := http.NewResponseController(w)
	// Replies can outlast the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("clearing write deadline", slog.String("error", err.Error()))
	}

	stream := &eventStream{w: w, rc: rc, logger: h.logger}
	open := func() {
		if stream.open {
			return
		}
		h.saveState(w, r, sess, st, session.Render{})
		stream.start()
	}

	render := h.dispatcher.Dispatch(r.Context(), st, session.SendMessage{
		Text: r.PostFormValue("text"),
		OnFragment: func(f assistant.Fragment) {
			open()
			stream.send("fragment", fragmentEvent{Text: f.Text, Kind: f.Kind.String()})
		},
	})

	open()
	if render.Flash != nil && render.Flash.Level == session.FlashError {
		stream.send("error", errorEvent{Message: render.Flash.Text})
	}
	stream.send("done", doneEvent{ConversationID: st.ConversationID})
}
