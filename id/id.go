// Package id provides validated Matrix identifiers.
//
// Identifiers are opaque: the only checks are the leading sigil and, for
// room and user IDs, a non-empty ":server" suffix. Values are immutable and
// the zero value means unset; use IsZero to check.
package id

import (
	"fmt"
	"strings"
)

// RoomID is a Matrix room ID such as "!abc123:example.org".
type RoomID struct {
	id string
}

// ParseRoomID validates and wraps a raw room ID.
func ParseRoomID(raw string) (RoomID, error) {
	if err := checkQualified(raw, '!', "room ID"); err != nil {
		return RoomID{}, err
	}
	return RoomID{id: raw}, nil
}

// MustParseRoomID is like ParseRoomID but panics on error. Use in tests
// and static initialization where the input is known-valid.
func MustParseRoomID(raw string) RoomID {
	r, err := ParseRoomID(raw)
	if err != nil {
		panic(fmt.Sprintf("id.MustParseRoomID(%q): %v", raw, err))
	}
	return r
}

func (r RoomID) String() string { return r.id }

// IsZero reports whether r is unset.
func (r RoomID) IsZero() bool { return r.id == "" }

// Server returns the server name after the first ':'.
func (r RoomID) Server() string { return serverOf(r.id) }

// MarshalText implements encoding.TextMarshaler.
func (r RoomID) MarshalText() ([]byte, error) {
	if r.id == "" {
		return nil, nil
	}
	return []byte(r.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (r *RoomID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomID{}
		return nil
	}
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// EventID is a Matrix event ID. Room versions 4 and later use
// "$base64hash" with no server part; older versions use "$local:server".
// Both are accepted.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw event ID.
func ParseEventID(raw string) (EventID, error) {
	if raw == "" {
		return EventID{}, fmt.Errorf("empty event ID")
	}
	if raw[0] != '$' {
		return EventID{}, fmt.Errorf("event ID must start with '$': %q", raw)
	}
	if len(raw) < 2 {
		return EventID{}, fmt.Errorf("event ID has no content after '$': %q", raw)
	}
	return EventID{id: raw}, nil
}

// MustParseEventID is like ParseEventID but panics on error.
func MustParseEventID(raw string) EventID {
	e, err := ParseEventID(raw)
	if err != nil {
		panic(fmt.Sprintf("id.MustParseEventID(%q): %v", raw, err))
	}
	return e
}

func (e EventID) String() string { return e.id }

// IsZero reports whether e is unset.
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) {
	if e.id == "" {
		return nil, nil
	}
	return []byte(e.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// UserID is a Matrix user ID such as "@alice:example.org".
type UserID struct {
	id string
}

// ParseUserID validates and wraps a raw user ID.
func ParseUserID(raw string) (UserID, error) {
	if err := checkQualified(raw, '@', "user ID"); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// MustParseUserID is like ParseUserID but panics on error.
func MustParseUserID(raw string) UserID {
	u, err := ParseUserID(raw)
	if err != nil {
		panic(fmt.Sprintf("id.MustParseUserID(%q): %v", raw, err))
	}
	return u
}

func (u UserID) String() string { return u.id }

// IsZero reports whether u is unset.
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the part between '@' and the first ':'.
func (u UserID) Localpart() string {
	if u.id == "" {
		return ""
	}
	local, _, _ := strings.Cut(u.id[1:], ":")
	return local
}

// Server returns the server name after the first ':'.
func (u UserID) Server() string { return serverOf(u.id) }

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) {
	if u.id == "" {
		return nil, nil
	}
	return []byte(u.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// checkQualified validates "<sigil>local:server".
func checkQualified(raw string, sigil byte, kind string) error {
	if raw == "" {
		return fmt.Errorf("empty %s", kind)
	}
	if raw[0] != sigil {
		return fmt.Errorf("%s must start with '%c': %q", kind, sigil, raw)
	}
	colon := strings.IndexByte(raw[1:], ':')
	if colon < 0 {
		return fmt.Errorf("%s missing ':server' suffix: %q", kind, raw)
	}
	if colon == 0 {
		return fmt.Errorf("%s has empty local part: %q", kind, raw)
	}
	if raw[1+colon+1:] == "" {
		return fmt.Errorf("%s has empty server name: %q", kind, raw)
	}
	return nil
}

func serverOf(raw string) string {
	_, server, _ := strings.Cut(raw, ":")
	return server
}
