// Package events models Matrix events as they appear in client-server
// responses.
//
// Event is the single representation of every event kind. Its content is
// kept raw and decoded on demand through ParseContent, which knows the
// content shapes of the common event types. StateEvent, RoomEvent and
// MemberEvent are narrowing views: decoding into one of them rejects events
// that lack the fields the view guarantees.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/broady/mxapi/id"
)

// Type is an event type such as "m.room.member".
type Type string

const (
	TypeMember    Type = "m.room.member"
	TypeMessage   Type = "m.room.message"
	TypeName      Type = "m.room.name"
	TypeTopic     Type = "m.room.topic"
	TypeRedaction Type = "m.room.redaction"
	TypeTyping    Type = "m.typing"
	TypePresence  Type = "m.presence"
)

// Event is a Matrix event. Only Type is guaranteed; which other fields are
// present depends on where the event was delivered.
type Event struct {
	Type           Type            `json:"type"`
	Content        json.RawMessage `json:"content,omitempty"`
	EventID        id.EventID      `json:"event_id,omitzero"`
	Sender         id.UserID       `json:"sender,omitzero"`
	OriginServerTS int64           `json:"origin_server_ts,omitempty"`
	RoomID         id.RoomID       `json:"room_id,omitzero"`
	// StateKey is nil for non-state events. The empty string is a valid key.
	StateKey *string    `json:"state_key,omitempty"`
	Redacts  id.EventID `json:"redacts,omitzero"`
	Unsigned *Unsigned  `json:"unsigned,omitempty"`
}

// Unsigned holds data the homeserver attaches outside the signed event.
type Unsigned struct {
	Age           int64           `json:"age,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PrevContent   json.RawMessage `json:"prev_content,omitempty"`
}

// UnmarshalJSON decodes an event and rejects one without a type.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Type == "" {
		return errors.New("event has no type")
	}
	*e = Event(p)
	return nil
}

// IsState reports whether the event carries a state key.
func (e *Event) IsState() bool {
	return e.StateKey != nil
}

// ParseContent decodes Content into the registered shape for the event
// type, returned as a pointer (for example *MemberContent). Types without a
// registered shape decode into map[string]any.
func (e *Event) ParseContent() (any, error) {
	content := newContent(e.Type)
	if len(e.Content) > 0 {
		if err := json.Unmarshal(e.Content, content); err != nil {
			return nil, fmt.Errorf("%s content: %w", e.Type, err)
		}
	}
	if m, ok := content.(*map[string]any); ok {
		return *m, nil
	}
	return content, nil
}

// ContentAs decodes the event content into T regardless of the event type.
func ContentAs[T any](e *Event) (T, error) {
	var content T
	if len(e.Content) == 0 {
		return content, nil
	}
	if err := json.Unmarshal(e.Content, &content); err != nil {
		var zero T
		return zero, fmt.Errorf("%s content: %w", e.Type, err)
	}
	return content, nil
}

// StateEvent is an event that carries a state key.
type StateEvent struct {
	Event
}

// Key returns the state key.
func (e *StateEvent) Key() string {
	if e.StateKey == nil {
		return ""
	}
	return *e.StateKey
}

func (e *StateEvent) UnmarshalJSON(data []byte) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	if ev.StateKey == nil {
		return fmt.Errorf("%s event is not a state event: missing state_key", ev.Type)
	}
	e.Event = ev
	return nil
}

// RoomEvent is an event delivered in a room timeline.
type RoomEvent struct {
	Event
}

func (e *RoomEvent) UnmarshalJSON(data []byte) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	if ev.EventID.IsZero() {
		return fmt.Errorf("%s room event missing event_id", ev.Type)
	}
	if ev.Sender.IsZero() {
		return fmt.Errorf("%s room event missing sender", ev.Type)
	}
	e.Event = ev
	return nil
}

// MemberEvent is an m.room.member state event with its content decoded.
// The state key is the affected user.
type MemberEvent struct {
	StateEvent
	Member MemberContent `json:"-"`
}

func (e *MemberEvent) UnmarshalJSON(data []byte) error {
	var st StateEvent
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.Type != TypeMember {
		return fmt.Errorf("expected %s event, got %s", TypeMember, st.Type)
	}
	member, err := ContentAs[MemberContent](&st.Event)
	if err != nil {
		return err
	}
	if !member.Membership.IsValid() {
		return fmt.Errorf("invalid membership %q", member.Membership)
	}
	e.StateEvent = st
	e.Member = member
	return nil
}

// UserID returns the member the event applies to.
func (e *MemberEvent) UserID() (id.UserID, error) {
	return id.ParseUserID(e.Key())
}
