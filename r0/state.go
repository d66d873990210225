package r0

import (
	"encoding/json"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/events"
	"github.com/broady/mxapi/id"
)

type RoomPath struct {
	RoomID id.RoomID `path:"room_id"`
}

type StateTypePath struct {
	RoomID    id.RoomID   `path:"room_id"`
	EventType events.Type `path:"event_type"`
}

// StateKeyPath addresses one state entry. An empty StateKey cannot be
// rendered; use GetStateEventsForEmptyKey for that entry.
type StateKeyPath struct {
	RoomID    id.RoomID   `path:"room_id"`
	EventType events.Type `path:"event_type"`
	StateKey  string      `path:"state_key"`
}

// GetStateEvents is GET /_matrix/client/r0/rooms/{roomId}/state.
var GetStateEvents = mxapi.NewEndpoint[RoomPath, mxapi.Empty, mxapi.Empty, []events.StateEvent](mxapi.Config{
	Name:                   "get_state_events",
	Description:            "Get state events for a room.",
	Method:                 mxapi.MethodGet,
	Path:                   Prefix + "/rooms/:room_id/state",
	RequiresAuthentication: true,
})

// GetStateEventsForEmptyKey is GET /_matrix/client/r0/rooms/{roomId}/state/{eventType}.
// The response is the event content, whose shape depends on the type.
var GetStateEventsForEmptyKey = mxapi.NewEndpoint[StateTypePath, mxapi.Empty, mxapi.Empty, json.RawMessage](mxapi.Config{
	Name:                   "get_state_events_for_empty_key",
	Description:            "Get state events of a given type associated with the empty key.",
	Method:                 mxapi.MethodGet,
	Path:                   Prefix + "/rooms/:room_id/state/:event_type",
	RequiresAuthentication: true,
})

// GetStateEventsForKey is GET /_matrix/client/r0/rooms/{roomId}/state/{eventType}/{stateKey}.
var GetStateEventsForKey = mxapi.NewEndpoint[StateKeyPath, mxapi.Empty, mxapi.Empty, json.RawMessage](mxapi.Config{
	Name:                   "get_state_events_for_key",
	Description:            "Get state events associated with a given key.",
	Method:                 mxapi.MethodGet,
	Path:                   Prefix + "/rooms/:room_id/state/:event_type/:state_key",
	RequiresAuthentication: true,
})

// GetMemberEventsResponse lists the membership state of a room.
type GetMemberEventsResponse struct {
	Chunk []events.MemberEvent `json:"chunk"`
}

// GetMemberEvents is GET /_matrix/client/r0/rooms/{roomId}/members.
//
// It is declared as not requiring authentication, although homeservers
// answer M_FORBIDDEN to callers who are not members of the room. Clients
// that have a token should send it anyway.
var GetMemberEvents = mxapi.NewEndpoint[RoomPath, mxapi.Empty, mxapi.Empty, GetMemberEventsResponse](mxapi.Config{
	Name:        "get_member_events",
	Description: "Get membership events for a room.",
	Method:      mxapi.MethodGet,
	Path:        Prefix + "/rooms/:room_id/members",
})
