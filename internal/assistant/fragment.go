package assistant

// FragmentKind tags what a Fragment carries.
type FragmentKind int

const (
	// KindText is reply text. The missing-key message and the fallback joke
	// are reply text too; only their content tells them apart.
	KindText FragmentKind = iota + 1
)

func (k FragmentKind) String() string {
	switch k {
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Fragment is one piece of a streamed reply. Concatenating the Text of all
// fragments of a reply, in order, yields the full reply.
type Fragment struct {
	Kind FragmentKind
	Text string
}
