package r0

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/id"
)

func TestCreateTypingEvent(t *testing.T) {
	req, err := CreateTypingEvent.NewRequest(TypingPath{
		RoomID: id.MustParseRoomID("!r:example.org"),
		UserID: id.MustParseUserID("@alice:example.org"),
	}, mxapi.Empty{}, CreateTypingEventBody{Typing: true})
	require.NoError(t, err)
	assert.Equal(t, "/_matrix/client/r0/rooms/!r:example.org/typing/@alice:example.org", req.Path)
	assert.JSONEq(t, `{"typing":true}`, string(req.Body))

	assert.True(t, CreateTypingEvent.RequiresAuthentication())
	assert.True(t, CreateTypingEvent.RateLimited())

	_, err = CreateTypingEvent.DecodeResponse([]byte(`{}`))
	assert.NoError(t, err)
}

func TestCreateTypingEventBody(t *testing.T) {
	timeout := uint64(30000)
	data, err := CreateTypingEvent.EncodeBody(CreateTypingEventBody{Typing: false, Timeout: &timeout})
	require.NoError(t, err)
	assert.JSONEq(t, `{"typing":false,"timeout":30000}`, string(data))

	body, err := CreateTypingEvent.DecodeBody(data)
	require.NoError(t, err)
	assert.False(t, body.Typing)
	require.NotNil(t, body.Timeout)
	assert.Equal(t, timeout, *body.Timeout)

	_, err = CreateTypingEvent.DecodeBody([]byte(`{"timeout":1}`))
	assert.ErrorIs(t, err, mxapi.ErrDecode)
}
