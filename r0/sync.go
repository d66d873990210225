package r0

import (
	"errors"
	"fmt"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/events"
	"github.com/broady/mxapi/id"
)

// SetPresence controls whether a sync marks the user online.
type SetPresence string

// PresenceOffline syncs without marking the user online.
const PresenceOffline SetPresence = "offline"

func (p SetPresence) IsValid() bool {
	return p == PresenceOffline
}

func (p SetPresence) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid set_presence %q", string(p))
	}
	return []byte(p), nil
}

func (p *SetPresence) UnmarshalText(text []byte) error {
	v := SetPresence(text)
	if !v.IsValid() {
		return fmt.Errorf("invalid set_presence %q", string(text))
	}
	*p = v
	return nil
}

// SyncQuery selects what a sync returns. All fields are optional; Since is
// the next_batch cursor of a previous response and Timeout is the long-poll
// duration in milliseconds.
type SyncQuery struct {
	Filter      *Filter      `schema:"filter,omitempty"`
	Since       *string      `schema:"since,omitempty"`
	FullState   *bool        `schema:"full_state,omitempty"`
	SetPresence *SetPresence `schema:"set_presence,omitempty" validate:"omitempty,enum"`
	Timeout     *uint64      `schema:"timeout,omitempty"`
}

// SyncResponse is the result of a sync. A room appears in at most one of
// Rooms.Join, Rooms.Invite and Rooms.Leave.
type SyncResponse struct {
	NextBatch string   `json:"next_batch"`
	Rooms     Rooms    `json:"rooms"`
	Presence  Presence `json:"presence"`
}

// Validate implements mxapi.Validator.
func (r *SyncResponse) Validate() error {
	if r.NextBatch == "" {
		return errors.New("missing next_batch")
	}
	for roomID := range r.Rooms.Join {
		if _, ok := r.Rooms.Invite[roomID]; ok {
			return fmt.Errorf("room %s is both joined and invited", roomID)
		}
		if _, ok := r.Rooms.Leave[roomID]; ok {
			return fmt.Errorf("room %s is both joined and left", roomID)
		}
	}
	for roomID := range r.Rooms.Invite {
		if _, ok := r.Rooms.Leave[roomID]; ok {
			return fmt.Errorf("room %s is both invited and left", roomID)
		}
	}
	return nil
}

// Rooms groups per-room updates by membership. Keys are validated room IDs.
type Rooms struct {
	Join   map[id.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[id.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[id.RoomID]LeftRoom    `json:"leave,omitempty"`
}

type JoinedRoom struct {
	UnreadNotifications UnreadNotificationsCount `json:"unread_notifications"`
	Timeline            Timeline                 `json:"timeline"`
	State               State                    `json:"state"`
	AccountData         AccountData              `json:"account_data"`
	Ephemeral           Ephemeral                `json:"ephemeral"`
}

type UnreadNotificationsCount struct {
	HighlightCount    uint64 `json:"highlight_count"`
	NotificationCount uint64 `json:"notification_count"`
}

type InvitedRoom struct {
	InviteState InviteState `json:"invite_state"`
}

type LeftRoom struct {
	Timeline Timeline `json:"timeline"`
	State    State    `json:"state"`
}

// Timeline is a window of room events. When Limited is set, PrevBatch
// paginates backwards through the gap with GetMessageEvents.
type Timeline struct {
	Limited   bool               `json:"limited"`
	PrevBatch string             `json:"prev_batch"`
	Events    []events.RoomEvent `json:"events"`
}

type State struct {
	Events []events.StateEvent `json:"events"`
}

type InviteState struct {
	Events []events.StateEvent `json:"events"`
}

type AccountData struct {
	Events []events.Event `json:"events"`
}

type Ephemeral struct {
	Events []events.Event `json:"events"`
}

type Presence struct {
	Events []events.Event `json:"events"`
}

// Sync is GET /_matrix/client/r0/sync.
var Sync = mxapi.NewEndpoint[mxapi.Empty, SyncQuery, mxapi.Empty, SyncResponse](mxapi.Config{
	Name:                   "sync",
	Description:            "Get all new events from all rooms since the last sync or a given point of time.",
	Method:                 mxapi.MethodGet,
	Path:                   Prefix + "/sync",
	RequiresAuthentication: true,
})
