// Package session turns user actions into state changes and render
// instructions.
//
// The HTTP handler decodes a request into a Command, restores the visitor's
// State, and calls Dispatch. Dispatch runs the matching service operation,
// updates the State and returns a Render describing the screen and the
// one-time message to show. The package knows nothing about HTTP, cookies
// or templates.
package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sakif/jokebot/internal/apperror"
	"github.com/sakif/jokebot/internal/model"
	"github.com/sakif/jokebot/internal/service"
)

const (
	MsgLoginOK       = "Login successful!"
	MsgSignupOK      = "Registered and logged in!"
	MsgOTPSent       = "OTP sent to your email."
	MsgResetOK       = "Password reset successful!"
	MsgChatsDeleted  = "All chats deleted."
	MsgDeleteFailed  = "Failed to delete chats. Please try again."
	MsgLoginRequired = "Please log in first."
	MsgSomethingBad  = "Something went wrong. Please try again."
)

// Dispatcher executes Commands against the services.
type Dispatcher struct {
	auth   *service.AuthService
	reset  *service.ResetService
	chats  *service.ChatService
	logger *slog.Logger
}

func NewDispatcher(auth *service.AuthService, reset *service.ResetService, chats *service.ChatService, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		auth:   auth,
		reset:  reset,
		chats:  chats,
		logger: logger,
	}
}

// Title is the heading of the chat screen.
func Title(user *model.User) string {
	return fmt.Sprintf("Chat with JokeBot, %s", user.Name)
}

// Dispatch applies cmd to st and returns what to render.
func (d *Dispatcher) Dispatch(ctx context.Context, st *State, cmd Command) Render {
	switch c := cmd.(type) {
	case Refresh:
		return d.view(ctx, st, nil)
	case SetAuthMode:
		return d.setAuthMode(ctx, st, c)
	case Login:
		return d.login(ctx, st, c)
	case Signup:
		return d.signup(ctx, st, c)
	case Logout:
		return d.logout(st)
	case NewChat:
		return d.newChat(ctx, st)
	case SelectChat:
		return d.selectChat(ctx, st, c)
	case DeleteAll:
		return d.deleteAll(ctx, st)
	case SendMessage:
		return d.sendMessage(ctx, st, c)
	case ShowReset:
		if st.User == nil {
			st.ShowReset = true
		}
		return d.view(ctx, st, nil)
	case HideReset:
		st.ShowReset = false
		return d.view(ctx, st, nil)
	case RequestReset:
		return d.requestReset(ctx, st, c)
	case ConfirmReset:
		return d.confirmReset(ctx, st, c)
	default:
		d.logger.Error("unknown command", slog.String("type", fmt.Sprintf("%T", cmd)))
		return d.view(ctx, st, errorFlash(MsgSomethingBad))
	}
}

// view picks the screen for st. For a logged-in user it makes sure a
// conversation is active and reloads the sidebar and the transcript.
func (d *Dispatcher) view(ctx context.Context, st *State, flash *Flash) Render {
	if st.User == nil {
		switch {
		case st.ShowReset:
			return Render{View: ViewReset, Flash: flash}
		case st.AuthMode == ModeSignup:
			return Render{View: ViewSignup, Flash: flash}
		default:
			return Render{View: ViewLogin, Flash: flash}
		}
	}

	if st.ConversationID == "" {
		if err := d.start(ctx, st); err != nil {
			d.logger.Error("starting conversation", slog.String("email", st.User.Email), slog.String("error", err.Error()))
			if flash == nil {
				flash = errorFlash(MsgSomethingBad)
			}
		}
	}

	st.Conversations = d.chats.Conversations(ctx, st.User)
	st.Messages = nil
	if st.ConversationID != "" {
		st.Messages = d.chats.Open(ctx, st.User, st.ConversationID)
		slices.SortStableFunc(st.Messages, func(a, b model.Message) int {
			return cmp.Compare(a.Timestamp, b.Timestamp)
		})
	}

	return Render{View: ViewChat, Flash: flash}
}

func (d *Dispatcher) start(ctx context.Context, st *State) error {
	conv, err := d.chats.Start(ctx, st.User)
	if err != nil {
		return err
	}
	st.ConversationID = conv.ID
	return nil
}

func (d *Dispatcher) setAuthMode(ctx context.Context, st *State, c SetAuthMode) Render {
	switch c.Mode {
	case ModeLogin, ModeSignup:
		st.AuthMode = c.Mode
	default:
		st.AuthMode = ModeLogin
	}
	return d.view(ctx, st, nil)
}

func (d *Dispatcher) login(ctx context.Context, st *State, c Login) Render {
	res, err := d.auth.Authenticate(ctx, c.Email, c.Password)
	if err != nil {
		return d.view(ctx, st, d.failure(err, "login", MsgSomethingBad))
	}
	return d.enter(ctx, st, res, MsgLoginOK)
}

func (d *Dispatcher) signup(ctx context.Context, st *State, c Signup) Render {
	res, err := d.auth.Register(ctx, c.Email, c.Name, c.Password)
	if err != nil {
		return d.view(ctx, st, d.failure(err, "signup", MsgSomethingBad))
	}
	return d.enter(ctx, st, res, MsgSignupOK)
}

// enter logs the user in with a fresh conversation.
func (d *Dispatcher) enter(ctx context.Context, st *State, res *service.AuthResult, msg string) Render {
	*st = State{User: res.User}
	r := d.view(ctx, st, successFlash(msg))
	r.Token = res.Token
	return r
}

func (d *Dispatcher) logout(st *State) Render {
	if st.User != nil {
		d.logger.Info("user logged out", slog.String("email", st.User.Email))
	}
	*st = State{}
	return Render{View: ViewLogin, ClearIdentity: true}
}

func (d *Dispatcher) newChat(ctx context.Context, st *State) Render {
	if st.User == nil {
		return d.view(ctx, st, errorFlash(MsgLoginRequired))
	}
	st.ConversationID = ""
	return d.view(ctx, st, nil)
}

func (d *Dispatcher) selectChat(ctx context.Context, st *State, c SelectChat) Render {
	if st.User == nil {
		return d.view(ctx, st, errorFlash(MsgLoginRequired))
	}

	// Only conversations that are actually listed can be opened.
	for _, conv := range d.chats.Conversations(ctx, st.User) {
		if conv.ID == c.ID {
			st.ConversationID = c.ID
			return d.view(ctx, st, nil)
		}
	}
	return d.view(ctx, st, errorFlash(apperror.NotFound("conversation", c.ID).Error()))
}

func (d *Dispatcher) deleteAll(ctx context.Context, st *State) Render {
	if st.User == nil {
		return d.view(ctx, st, errorFlash(MsgLoginRequired))
	}

	if err := d.chats.DeleteAll(ctx, st.User); err != nil {
		d.logger.Error("deleting conversations", slog.String("email", st.User.Email), slog.String("error", err.Error()))
		return d.view(ctx, st, errorFlash(MsgDeleteFailed))
	}

	st.ConversationID = ""
	return d.view(ctx, st, successFlash(MsgChatsDeleted))
}

// sendMessage runs one chat turn. It does not reload from storage
// afterwards, so the transcript still shows the turn when saving failed.
func (d *Dispatcher) sendMessage(ctx context.Context, st *State, c SendMessage) Render {
	if st.User == nil {
		return d.view(ctx, st, errorFlash(MsgLoginRequired))
	}
	if st.ConversationID == "" {
		if err := d.start(ctx, st); err != nil {
			d.logger.Error("starting conversation", slog.String("email", st.User.Email), slog.String("error", err.Error()))
			return Render{View: ViewChat, Flash: errorFlash(service.MsgSaveFailed)}
		}
	}

	messages, err := d.chats.Reply(ctx, st.User, st.ConversationID, c.Text, c.OnFragment)
	var flash *Flash
	if err != nil {
		flash = d.failure(err, "send message", service.MsgSaveFailed)
	}
	if messages != nil {
		st.Messages = messages
	}
	st.Conversations = d.chats.Conversations(ctx, st.User)

	return Render{View: ViewChat, Flash: flash}
}

func (d *Dispatcher) requestReset(ctx context.Context, st *State, c RequestReset) Render {
	if st.User != nil {
		return d.view(ctx, st, nil)
	}
	st.ShowReset = true

	if err := d.reset.RequestReset(ctx, c.Email); err != nil {
		return d.view(ctx, st, d.failure(err, "request reset", service.MsgOTPSendFailed))
	}

	st.ResetEmail = c.Email
	st.ResetStep = StepVerify
	return d.view(ctx, st, successFlash(MsgOTPSent))
}

func (d *Dispatcher) confirmReset(ctx context.Context, st *State, c ConfirmReset) Render {
	if st.User != nil {
		return d.view(ctx, st, nil)
	}
	st.ShowReset = true

	if st.ResetStep != StepVerify || st.ResetEmail == "" {
		return d.view(ctx, st, errorFlash(service.MsgIncorrectOTP))
	}

	if err := d.reset.Verify(ctx, st.ResetEmail, c.Code, c.NewPassword); err != nil {
		return d.view(ctx, st, d.failure(err, "confirm reset", service.MsgResetStoreFailed))
	}

	st.ShowReset = false
	st.ResetStep = StepRequest
	st.ResetEmail = ""
	st.AuthMode = ModeLogin
	return d.view(ctx, st, successFlash(MsgResetOK))
}

// failure turns a service error into a flash. Errors meant for the user
// (validation, bad credentials, conflicts, unavailable dependencies) show
// their own message; anything else is logged and shown as fallback.
func (d *Dispatcher) failure(err error, op, fallback string) *Flash {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrValidation),
			errors.Is(err, apperror.ErrUnauthorized),
			errors.Is(err, apperror.ErrConflict),
			errors.Is(err, apperror.ErrUnavailable):
			return errorFlash(appErr.Message)
		}
		if appErr.Message == fallback {
			return errorFlash(fallback)
		}
	}

	d.logger.Error(op+" failed", slog.String("error", err.Error()))
	return errorFlash(fallback)
}

func successFlash(text string) *Flash {
	return &Flash{Level: FlashSuccess, Text: text}
}

func errorFlash(text string) *Flash {
	return &Flash{Level: FlashError, Text: text}
}
