package session

import "github.com/sakif/jokebot/internal/assistant"

// Command is a user action. The set is closed: only types in this file
// implement it.
type Command interface {
	command()
}

// Refresh re-renders the current state without changing it.
type Refresh struct{}

// SetAuthMode switches the logged-out form between login and sign-up.
type SetAuthMode struct {
	Mode AuthMode
}

type Login struct {
	Email    string
	Password string
}

type Signup struct {
	Email    string
	Name     string
	Password string
}

type Logout struct{}

// NewChat starts an empty conversation and makes it active.
type NewChat struct{}

// SelectChat makes a stored conversation active.
type SelectChat struct {
	ID string
}

// DeleteAll removes every conversation of the logged-in user.
type DeleteAll struct{}

// SendMessage runs one chat turn. OnFragment, if set, receives each reply
// fragment as it streams in.
type SendMessage struct {
	Text       string
	OnFragment func(assistant.Fragment)
}

// ShowReset opens the password reset form.
type ShowReset struct{}

// HideReset goes back to the login form.
type HideReset struct{}

// RequestReset emails a one-time code to Email.
type RequestReset struct {
	Email string
}

// ConfirmReset checks Code for the email of the pending reset and sets
// NewPassword.
type ConfirmReset struct {
	Code        string
	NewPassword string
}

func (Refresh) command()      {}
func (SetAuthMode) command()  {}
func (Login) command()        {}
func (Signup) command()       {}
func (Logout) command()       {}
func (NewChat) command()      {}
func (SelectChat) command()   {}
func (DeleteAll) command()    {}
func (SendMessage) command()  {}
func (ShowReset) command()    {}
func (HideReset) command()    {}
func (RequestReset) command() {}
func (ConfirmReset) command() {}
