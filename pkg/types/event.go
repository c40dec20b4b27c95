package types

// EventKind is the type of a stream event on the wire.
type EventKind string

const (
	EventStatus EventKind = "status"
	EventLog    EventKind = "log"
	EventCard   EventKind = "card"
	EventToken  EventKind = "token"
	EventDone   EventKind = "done"
	EventError  EventKind = "error"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventStatus, EventLog, EventCard, EventToken, EventDone, EventError:
		return true
	}
	return false
}

// Terminal reports whether no event may follow one of this kind.
func (k EventKind) Terminal() bool {
	return k == EventDone || k == EventError
}

// Event is one line of the NDJSON stream.
// Target serializes as null when absent.
type Event struct {
	Type    EventKind `json:"type"`
	Content string    `json:"content"`
	Target  *string   `json:"target"`
}

// NewEvent creates an event without a target.
func NewEvent(kind EventKind, content string) Event {
	return Event{Type: kind, Content: content}
}

// NewCard creates a card event for the named artifact.
func NewCard(content, target string) Event {
	return Event{Type: EventCard, Content: content, Target: &target}
}

// TargetString returns the target or an empty string.
func (e Event) TargetString() string {
	if e.Target == nil {
		return ""
	}
	return *e.Target
}
