package session

import (
	"slices"
	"strings"

	"github.com/sakif/jokebot/internal/model"
)

// View names the screen to render.
type View string

const (
	ViewLogin  View = "login"
	ViewSignup View = "signup"
	ViewReset  View = "reset"
	ViewChat   View = "chat"
)

// AuthMode selects the form shown to a logged-out visitor.
type AuthMode string

const (
	ModeLogin  AuthMode = "login"
	ModeSignup AuthMode = "signup"
)

// ResetStep is the position in the password reset form.
type ResetStep string

const (
	StepRequest ResetStep = ""
	StepVerify  ResetStep = "verify"
)

// State is everything the presentation layer knows about one visitor.
//
// User, ConversationID, AuthMode and the reset fields are carried between
// requests by the caller. Messages and Conversations are derived: the
// dispatcher reloads them from storage when rendering the chat view.
type State struct {
	User           *model.User
	ConversationID string

	Messages      []model.Message
	Conversations []model.Conversation

	AuthMode   AuthMode
	ShowReset  bool
	ResetEmail string
	ResetStep  ResetStep
}

// History returns the conversations newest first, as the sidebar shows them.
func (s *State) History() []model.Conversation {
	out := slices.Clone(s.Conversations)
	slices.SortFunc(out, func(a, b model.Conversation) int {
		return strings.Compare(b.ID, a.ID)
	})
	return out
}

// FlashLevel is the severity of a Flash.
type FlashLevel string

const (
	FlashSuccess FlashLevel = "success"
	FlashError   FlashLevel = "error"
)

// Flash is a one-time message shown on the next render.
type Flash struct {
	Level FlashLevel
	Text  string
}

// Render tells the caller what to show after a command.
type Render struct {
	View  View
	Flash *Flash

	// Token is a freshly issued identity token after login or sign-up.
	Token string
	// ClearIdentity is set on logout.
	ClearIdentity bool
}
