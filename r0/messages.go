package r0

import (
	"fmt"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/events"
)

// Direction is the order in which to paginate a room timeline.
type Direction int

const (
	Backward Direction = iota + 1
	Forward
)

var directionTokens = map[Direction]string{
	Backward: "b",
	Forward:  "f",
}

// ParseDirection maps a wire token to a Direction. Only "b" and "f" are
// accepted.
func ParseDirection(token string) (Direction, error) {
	for d, t := range directionTokens {
		if t == token {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid direction %q: want \"b\" or \"f\"", token)
}

func (d Direction) IsValid() bool {
	_, ok := directionTokens[d]
	return ok
}

func (d Direction) String() string {
	if t, ok := directionTokens[d]; ok {
		return t
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func (d Direction) MarshalText() ([]byte, error) {
	t, ok := directionTokens[d]
	if !ok {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(t), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// GetMessageEventsQuery pages through a room timeline starting at From.
type GetMessageEventsQuery struct {
	From  string    `schema:"from,required" validate:"required"`
	To    *string   `schema:"to,omitempty"`
	Dir   Direction `schema:"dir,required" validate:"enum"`
	Limit *uint64   `schema:"limit,omitempty"`
}

type GetMessageEventsResponse struct {
	Start string             `json:"start"`
	Chunk []events.RoomEvent `json:"chunk"`
	End   string             `json:"end"`
}

// GetMessageEvents is GET /_matrix/client/r0/rooms/{roomId}/messages.
// Some endpoint listings also name an event type parameter; the path has no
// segment for it, so it is not part of RoomPath. Filter by type client-side.
var GetMessageEvents = mxapi.NewEndpoint[RoomPath, GetMessageEventsQuery, mxapi.Empty, GetMessageEventsResponse](mxapi.Config{
	Name:                   "get_message_events",
	Description:            "Get message events for a room.",
	Method:                 mxapi.MethodGet,
	Path:                   Prefix + "/rooms/:room_id/messages",
	RequiresAuthentication: true,
})
