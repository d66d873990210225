package r0

import (
	"encoding/json"
	"errors"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/id"
)

type TypingPath struct {
	RoomID id.RoomID `path:"room_id"`
	UserID id.UserID `path:"user_id"`
}

// CreateTypingEventBody reports whether the user is typing. Timeout is the
// number of milliseconds the typing state lasts.
type CreateTypingEventBody struct {
	Typing  bool    `json:"typing"`
	Timeout *uint64 `json:"timeout,omitempty"`
}

// UnmarshalJSON rejects a body without "typing"; false and absent differ.
func (b *CreateTypingEventBody) UnmarshalJSON(data []byte) error {
	var raw struct {
		Typing  *bool   `json:"typing"`
		Timeout *uint64 `json:"timeout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Typing == nil {
		return errors.New("typing is required")
	}
	b.Typing = *raw.Typing
	b.Timeout = raw.Timeout
	return nil
}

// CreateTypingEvent is PUT /_matrix/client/r0/rooms/{roomId}/typing/{userId}.
// Homeservers rate limit it.
var CreateTypingEvent = mxapi.NewEndpoint[TypingPath, mxapi.Empty, CreateTypingEventBody, mxapi.Empty](mxapi.Config{
	Name:                   "create_typing_event",
	Description:            "Send a typing event to a room.",
	Method:                 mxapi.MethodPut,
	Path:                   Prefix + "/rooms/:room_id/typing/:user_id",
	RequiresAuthentication: true,
	RateLimited:            true,
})
