package r0

import (
	"bytes"
	"encoding/json"
	"errors"
)

// EventFormat selects how events are rendered in sync responses.
type EventFormat string

const (
	EventFormatClient     EventFormat = "client"
	EventFormatFederation EventFormat = "federation"
)

// FilterDefinition is an inline sync filter.
type FilterDefinition struct {
	EventFields []string     `json:"event_fields,omitempty"`
	EventFormat EventFormat  `json:"event_format,omitempty"`
	AccountData *EventFilter `json:"account_data,omitempty"`
	Room        *RoomFilter  `json:"room,omitempty"`
	Presence    *EventFilter `json:"presence,omitempty"`
}

// EventFilter restricts the events returned for non-room data.
type EventFilter struct {
	Limit      *uint64  `json:"limit,omitempty"`
	NotSenders []string `json:"not_senders,omitempty"`
	NotTypes   []string `json:"not_types,omitempty"`
	Senders    []string `json:"senders,omitempty"`
	Types      []string `json:"types,omitempty"`
}

// RoomFilter restricts the room data returned.
type RoomFilter struct {
	IncludeLeave *bool            `json:"include_leave,omitempty"`
	AccountData  *RoomEventFilter `json:"account_data,omitempty"`
	Timeline     *RoomEventFilter `json:"timeline,omitempty"`
	Ephemeral    *RoomEventFilter `json:"ephemeral,omitempty"`
	State        *RoomEventFilter `json:"state,omitempty"`
	NotRooms     []string         `json:"not_rooms,omitempty"`
	Rooms        []string         `json:"rooms,omitempty"`
}

// RoomEventFilter is an EventFilter that can also select rooms.
type RoomEventFilter struct {
	EventFilter
	NotRooms    []string `json:"not_rooms,omitempty"`
	Rooms       []string `json:"rooms,omitempty"`
	ContainsURL *bool    `json:"contains_url,omitempty"`
}

// Filter is either an inline FilterDefinition or the ID of a filter saved
// on the homeserver. The two travel in the same query parameter with no
// discriminator: text that decodes as a definition is one, anything else
// is an ID. A saved-filter ID that is itself a valid definition is read
// back as that definition.
type Filter struct {
	definition *FilterDefinition
	id         string
}

// FilterFromDefinition wraps an inline definition.
func FilterFromDefinition(def FilterDefinition) Filter {
	return Filter{definition: &def}
}

// FilterFromID wraps a saved-filter ID.
func FilterFromID(id string) Filter {
	return Filter{id: id}
}

// Definition returns the inline definition, if f holds one.
func (f Filter) Definition() (FilterDefinition, bool) {
	if f.definition == nil {
		return FilterDefinition{}, false
	}
	return *f.definition, true
}

// ID returns the saved-filter ID, if f holds one.
func (f Filter) ID() (string, bool) {
	if f.definition != nil || f.id == "" {
		return "", false
	}
	return f.id, true
}

// IsZero reports whether f holds neither variant.
func (f Filter) IsZero() bool {
	return f.definition == nil && f.id == ""
}

// String renders f as MarshalText does. The empty filter renders as "".
func (f Filter) String() string {
	text, _ := f.MarshalText()
	return string(text)
}

// MarshalText renders the definition as compact JSON, or the ID verbatim.
func (f Filter) MarshalText() ([]byte, error) {
	switch {
	case f.definition != nil:
		return json.Marshal(f.definition)
	case f.id == "":
		return nil, errors.New("empty filter")
	}
	return []byte(f.id), nil
}

// UnmarshalText tries the definition first and falls back to an ID. Only
// empty text fails both readings.
func (f *Filter) UnmarshalText(text []byte) error {
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) == 0 {
		return errors.New("empty filter")
	}
	if def, ok := decodeDefinition(trimmed); ok {
		*f = Filter{definition: &def}
		return nil
	}
	*f = Filter{id: string(text)}
	return nil
}

// decodeDefinition reports whether text is exactly one JSON object that
// decodes as a FilterDefinition.
func decodeDefinition(text []byte) (FilterDefinition, bool) {
	var def FilterDefinition
	if text[0] != '{' {
		return def, false
	}
	dec := json.NewDecoder(bytes.NewReader(text))
	if err := dec.Decode(&def); err != nil || dec.More() {
		return FilterDefinition{}, false
	}
	return def, true
}
