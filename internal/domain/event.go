package domain

// EventType identifies the kind of inbound webhook event.
type EventType string

const (
	EventFollow  EventType = "follow"
	EventMessage EventType = "message"
)

// Event is one inbound notification from the chat platform, already
// unwrapped from the webhook envelope. ID is the platform event
// identifier or a synthesized fallback; it is the deduplication key.
type Event struct {
	ID         string
	Type       EventType
	UserID     string
	ReplyToken string
	Text       string
	IsText     bool
}
