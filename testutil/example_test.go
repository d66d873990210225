package testutil_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/id"
	"github.com/broady/mxapi/r0"
	"github.com/broady/mxapi/server"
	"github.com/broady/mxapi/testutil"
)

var (
	room     = id.MustParseRoomID("!abc:example.org")
	target   = id.MustParseEventID("$ev1:example.org")
	redacted = id.MustParseEventID("$redaction:example.org")
)

func newServer() *server.Server {
	s := server.New()
	server.Handle(s, r0.RedactEvent, func(ctx context.Context, req *server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]) (r0.RedactEventResponse, error) {
		if req.Body.Reason != nil && *req.Body.Reason == "" {
			return r0.RedactEventResponse{}, mxapi.NewMatrixError(http.StatusBadRequest, mxapi.ErrCodeBadJSON, "empty reason")
		}
		server.SetHeader(ctx, "X-Txn-Id", req.Path.TxnID)
		return r0.RedactEventResponse{EventID: redacted}, nil
	})
	server.Handle(s, r0.GetMessageEvents, func(ctx context.Context, req *server.Request[r0.RoomPath, r0.GetMessageEventsQuery, mxapi.Empty]) (r0.GetMessageEventsResponse, error) {
		return r0.GetMessageEventsResponse{Start: req.Query.From, End: req.Query.From + "+"}, nil
	})
	return s
}

// TestRequestBuilder shows the fluent API for building requests by hand.
func TestRequestBuilder(t *testing.T) {
	req, w := testutil.NewRequest().
		PUT("/_matrix/client/r0/rooms/!abc:example.org/redact/$ev1:example.org/t1").
		WithJSON(r0.RedactEventBody{}).
		Build()

	newServer().Handler().ServeHTTP(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, r0.RedactEventResponse{EventID: redacted})
	testutil.AssertHeader(t, w, "X-Txn-Id", "t1")
}

// TestFromRequest sends exactly what an endpoint renders for a client.
func TestFromRequest(t *testing.T) {
	reason := "spam"
	rendered, err := r0.RedactEvent.NewRequest(
		r0.RedactEventPath{RoomID: room, EventID: target, TxnID: "t2"},
		mxapi.Empty{},
		r0.RedactEventBody{Reason: &reason},
	)
	if err != nil {
		t.Fatal(err)
	}

	req, w := testutil.FromRequest(rendered).Build()
	newServer().Handler().ServeHTTP(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)
	var res r0.RedactEventResponse
	testutil.DecodeJSON(t, w, &res)
	if res.EventID != redacted {
		t.Errorf("expected %s, got %s", redacted, res.EventID)
	}
}

// TestRequestBuilder_Query shows query parameters on a GET request.
func TestRequestBuilder_Query(t *testing.T) {
	req, w := testutil.NewRequest().
		GET("/_matrix/client/r0/rooms/!abc:example.org/messages").
		WithQuery("from", "t1").
		WithQuery("dir", "f").
		Build()

	newServer().Handler().ServeHTTP(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, r0.GetMessageEventsResponse{Start: "t1", End: "t1+"})
}

// TestAssertMatrixError shows how error envelopes are checked.
func TestAssertMatrixError(t *testing.T) {
	req, w := testutil.NewRequest().
		PUT("/_matrix/client/r0/rooms/!abc:example.org/redact/$ev1:example.org/t3").
		WithBody(`{"reason": ""}`).
		WithHeader("Content-Type", "application/json").
		Build()

	newServer().Handler().ServeHTTP(w, req)

	testutil.AssertStatus(t, w, http.StatusBadRequest)
	matrixErr := testutil.AssertMatrixError(t, w, mxapi.ErrCodeBadJSON)
	if matrixErr.Message != "empty reason" || matrixErr.StatusCode != http.StatusBadRequest {
		t.Errorf("unexpected error %+v", matrixErr)
	}

	req, w = testutil.NewRequest().
		GET("/_matrix/client/r0/rooms/!abc:example.org/messages").
		WithQuery("from", "t1").
		Build()
	newServer().Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	testutil.AssertMatrixError(t, w, mxapi.ErrCodeInvalidParam)
}
