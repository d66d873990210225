package r0

import (
	"errors"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/id"
)

// RedactEventPath addresses the event to redact. TxnID is the caller's
// idempotency token and is sent exactly as given.
type RedactEventPath struct {
	RoomID  id.RoomID  `path:"room_id"`
	EventID id.EventID `path:"event_id"`
	TxnID   string     `path:"txn_id"`
}

type RedactEventBody struct {
	Reason *string `json:"reason,omitempty"`
}

// RedactEventResponse carries the ID of the redaction event itself.
type RedactEventResponse struct {
	EventID id.EventID `json:"event_id"`
}

func (r *RedactEventResponse) Validate() error {
	if r.EventID.IsZero() {
		return errors.New("missing event_id")
	}
	return nil
}

// RedactEvent is PUT /_matrix/client/r0/rooms/{roomId}/redact/{eventId}/{txnId}.
var RedactEvent = mxapi.NewEndpoint[RedactEventPath, mxapi.Empty, RedactEventBody, RedactEventResponse](mxapi.Config{
	Name:                   "redact_event",
	Description:            "Redact an event, stripping all information not critical to the event graph integrity.",
	Method:                 mxapi.MethodPut,
	Path:                   Prefix + "/rooms/:room_id/redact/:event_id/:txn_id",
	RequiresAuthentication: true,
})
