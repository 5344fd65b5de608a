package assistant

// Event types accepted by the engine. Anything else yields no intents.
const (
	EventMessage  = "message"
	EventCallback = "callback"
)

// Callback actions understood by the engine.
const (
	ActionPickDone = "pick_done"
	ActionPickEdit = "pick_edit"
)

// Callback is a parsed inline-button press.
type Callback struct {
	Action string
	Params map[string]string
}

// Event is one normalized inbound chat event. Route may be pre-computed by
// the transport; when nil for a message event the engine routes Text itself.
type Event struct {
	Type      string
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
	Route     *Route
	Callback  *Callback
}

// List kinds stored in the render cache.
const (
	ListToday = "today"
	ListInbox = "inbox"
)

// Button is a transport-agnostic inline button: either a callback button
// (Action, optional Params) or a URL button.
type Button struct {
	Text   string
	Action string
	Params map[string]string
	URL    string
}

// Markup is a grid of inline buttons.
type Markup struct {
	Rows [][]Button
}

// TaskUpdate carries edited task fields for an Edit intent.
type TaskUpdate struct {
	ID          string
	Title       string
	Description string
}

// Intent is one side effect for the transport layer to execute, in order.
type Intent interface{ intent() }

// Reply sends a new message to the chat.
type Reply struct {
	ChatID         int64
	Text           string
	Markup         *Markup
	DisablePreview bool
}

// Edit rewrites a previously sent list message: either removing one task or
// updating one task in place. Text and Markup carry the fully re-rendered
// replacement so the transport does not reach into the cache.
type Edit struct {
	ChatID       int64
	MessageID    int
	Text         string
	Markup       *Markup
	RemoveTaskID string
	Update       *TaskUpdate
}

// CacheTaskList asks the transport to store the rendered snapshot under the
// message id it actually sent for the preceding Reply.
type CacheTaskList struct {
	ChatID   int64
	ListKind string
	Tasks    []Task
	Text     string
}

func (Reply) intent()         {}
func (Edit) intent()          {}
func (CacheTaskList) intent() {}
