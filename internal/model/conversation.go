package model

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TimestampLayout is the wall-clock format stored with every message.
const TimestampLayout = "2006-01-02 15:04:05"

// Message is one entry of a conversation file. The JSON shape is the on-disk
// format: an array of {role, content, timestamp} objects.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Conversation describes a stored chat session. Title is derived from the
// first message when listing; it is not persisted.
type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"-"`
}
