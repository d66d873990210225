package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/client"
	"github.com/broady/mxapi/id"
	"github.com/broady/mxapi/r0"
	"github.com/broady/mxapi/server"
	"github.com/broady/mxapi/testutil"
	"github.com/broady/mxapi/unversioned"
)

var (
	alice    = id.MustParseUserID("@alice:example.org")
	room     = id.MustParseRoomID("!abc:example.org")
	target   = id.MustParseEventID("$ev1:example.org")
	redacted = id.MustParseEventID("$redaction:example.org")
)

func staticAuth(ctx context.Context, token string) (id.UserID, error) {
	if token == "secret" {
		return alice, nil
	}
	return id.UserID{}, errors.New("unknown token")
}

func redactHandler(seen *atomic.Pointer[server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]]) func(context.Context, *server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]) (r0.RedactEventResponse, error) {
	return func(ctx context.Context, req *server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]) (r0.RedactEventResponse, error) {
		if seen != nil {
			seen.Store(req)
		}
		return r0.RedactEventResponse{EventID: redacted}, nil
	}
}

func redactRequest(t *testing.T, reason *string) *mxapi.Request {
	t.Helper()
	req, err := r0.RedactEvent.NewRequest(
		r0.RedactEventPath{RoomID: room, EventID: target, TxnID: "t42"},
		mxapi.Empty{},
		r0.RedactEventBody{Reason: reason},
	)
	if err != nil {
		t.Fatalf("failed to render request: %v", err)
	}
	return req
}

func TestServer_Redact(t *testing.T) {
	s := server.New().WithAuthenticator(staticAuth)
	var seen atomic.Pointer[server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]]
	var user atomic.Value
	server.Handle(s, r0.RedactEvent, func(ctx context.Context, req *server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]) (r0.RedactEventResponse, error) {
		if u, ok := server.UserIDFromContext(ctx); ok {
			user.Store(u)
		}
		return redactHandler(&seen)(ctx, req)
	})

	reason := "spam"
	req, w := testutil.FromRequest(redactRequest(t, &reason)).WithBearer("secret").Build()
	s.Handler().ServeHTTP(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, map[string]string{"event_id": "$redaction:example.org"})

	got := seen.Load()
	if got == nil {
		t.Fatal("handler was not called")
	}
	if got.Path.RoomID != room || got.Path.EventID != target || got.Path.TxnID != "t42" {
		t.Errorf("unexpected path params %+v", got.Path)
	}
	if got.Body.Reason == nil || *got.Body.Reason != "spam" {
		t.Errorf("unexpected body %+v", got.Body)
	}
	if u, _ := user.Load().(id.UserID); u != alice {
		t.Errorf("expected authenticated user %s, got %v", alice, user.Load())
	}
}

func TestServer_EscapedPath(t *testing.T) {
	s := server.New()
	var seen atomic.Pointer[server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]]
	server.Handle(s, r0.RedactEvent, redactHandler(&seen))

	req, w := testutil.NewRequest().
		PUT("/_matrix/client/r0/rooms/%21abc%3Aexample.org/redact/%24ev1%3Aexample.org/t%2F1").
		WithBody(`{}`).
		Build()
	s.Handler().ServeHTTP(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)
	got := seen.Load()
	if got == nil {
		t.Fatal("handler was not called")
	}
	if got.Path.RoomID != room || got.Path.TxnID != "t/1" {
		t.Errorf("expected unescaped segments, got %+v", got.Path)
	}
	if got.Body.Reason != nil {
		t.Errorf("expected absent reason, got %q", *got.Body.Reason)
	}
}

func TestServer_Unrecognized(t *testing.T) {
	s := server.New()
	server.Handle(s, r0.RedactEvent, redactHandler(nil))

	req, w := testutil.NewRequest().GET("/_matrix/client/r0/nowhere").Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusNotFound)
	testutil.AssertMatrixError(t, w, mxapi.ErrCodeUnrecognized)

	req, w = testutil.NewRequest().GET(redactRequest(t, nil).Path).Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusMethodNotAllowed)
	testutil.AssertHeader(t, w, "Allow", "PUT")
	testutil.AssertMatrixError(t, w, mxapi.ErrCodeUnrecognized)
}

func TestServer_Authentication(t *testing.T) {
	s := server.New().WithAuthenticator(staticAuth)
	server.Handle(s, r0.RedactEvent, redactHandler(nil))
	server.Handle(s, unversioned.GetSupportedVersions, func(ctx context.Context, _ *server.Request[mxapi.Empty, mxapi.Empty, mxapi.Empty]) (unversioned.GetSupportedVersionsResponse, error) {
		return unversioned.GetSupportedVersionsResponse{Versions: []string{"r0.6.1"}}, nil
	})

	tests := []struct {
		name       string
		build      func() *testutil.RequestBuilder
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing token",
			build:      func() *testutil.RequestBuilder { return testutil.FromRequest(redactRequest(t, nil)) },
			wantStatus: http.StatusUnauthorized,
			wantCode:   mxapi.ErrCodeMissingToken,
		},
		{
			name:       "unknown token",
			build:      func() *testutil.RequestBuilder { return testutil.FromRequest(redactRequest(t, nil)).WithBearer("wrong") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   mxapi.ErrCodeUnknownToken,
		},
		{
			name:       "query token",
			build:      func() *testutil.RequestBuilder { return testutil.FromRequest(redactRequest(t, nil)).WithQuery("access_token", "secret") },
			wantStatus: http.StatusOK,
		},
		{
			name:       "public endpoint",
			build:      func() *testutil.RequestBuilder { return testutil.NewRequest().GET("/_matrix/client/versions") },
			wantStatus: http.StatusOK,
		},
		{
			name: "public endpoint with bad token",
			build: func() *testutil.RequestBuilder {
				return testutil.NewRequest().GET("/_matrix/client/versions").WithBearer("wrong")
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   mxapi.ErrCodeUnknownToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, w := tt.build().Build()
			s.Handler().ServeHTTP(w, req)
			testutil.AssertStatus(t, w, tt.wantStatus)
			if tt.wantCode != "" {
				testutil.AssertMatrixError(t, w, tt.wantCode)
			}
		})
	}
}

func TestServer_AuthenticatorMatrixError(t *testing.T) {
	s := server.New().WithAuthenticator(func(ctx context.Context, token string) (id.UserID, error) {
		return id.UserID{}, mxapi.NewMatrixError(http.StatusForbidden, mxapi.ErrCodeForbidden, "account locked")
	})
	server.Handle(s, r0.RedactEvent, redactHandler(nil))

	req, w := testutil.FromRequest(redactRequest(t, nil)).WithBearer("secret").Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusForbidden)
	if got := testutil.AssertMatrixError(t, w, mxapi.ErrCodeForbidden); got.Message != "account locked" {
		t.Errorf("expected authenticator message, got %q", got.Message)
	}
}

func TestServer_NoAuthenticatorSkipsPolicy(t *testing.T) {
	s := server.New()
	server.Handle(s, r0.RedactEvent, redactHandler(nil))

	req, w := testutil.FromRequest(redactRequest(t, nil)).Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestServer_DecodeErrors(t *testing.T) {
	s := server.New()
	server.Handle(s, r0.RedactEvent, redactHandler(nil))
	server.Handle(s, r0.GetMessageEvents, func(ctx context.Context, req *server.Request[r0.RoomPath, r0.GetMessageEventsQuery, mxapi.Empty]) (r0.GetMessageEventsResponse, error) {
		return r0.GetMessageEventsResponse{Start: req.Query.From}, nil
	})
	server.Handle(s, r0.CreateTypingEvent, func(ctx context.Context, req *server.Request[r0.TypingPath, mxapi.Empty, r0.CreateTypingEventBody]) (mxapi.Empty, error) {
		return mxapi.Empty{}, nil
	})

	tests := []struct {
		name     string
		build    *testutil.RequestBuilder
		wantCode string
	}{
		{
			name:     "invalid room id",
			build:    testutil.NewRequest().PUT("/_matrix/client/r0/rooms/notaroom/redact/$ev1:example.org/t1").WithBody(`{}`),
			wantCode: mxapi.ErrCodeInvalidParam,
		},
		{
			name:     "malformed body",
			build:    testutil.FromRequest(redactRequest(t, nil)).WithBody(`{"reason":`),
			wantCode: mxapi.ErrCodeBadJSON,
		},
		{
			name:     "missing from",
			build:    testutil.NewRequest().GET("/_matrix/client/r0/rooms/!abc:example.org/messages").WithQuery("dir", "b"),
			wantCode: mxapi.ErrCodeInvalidParam,
		},
		{
			name: "unknown direction",
			build: testutil.NewRequest().GET("/_matrix/client/r0/rooms/!abc:example.org/messages").
				WithQuery("from", "t1").WithQuery("dir", "up"),
			wantCode: mxapi.ErrCodeInvalidParam,
		},
		{
			name:     "typing without typing",
			build:    testutil.NewRequest().PUT("/_matrix/client/r0/rooms/!abc:example.org/typing/@alice:example.org").WithBody(`{"timeout":3000}`),
			wantCode: mxapi.ErrCodeBadJSON,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, w := tt.build.Build()
			s.Handler().ServeHTTP(w, req)
			testutil.AssertStatus(t, w, http.StatusBadRequest)
			testutil.AssertMatrixError(t, w, tt.wantCode)
		})
	}
}

func TestServer_BodyTooLarge(t *testing.T) {
	s := server.New().WithMaxRequestBodySize(16)
	server.Handle(s, r0.RedactEvent, redactHandler(nil))

	reason := strings.Repeat("x", 64)
	req, w := testutil.FromRequest(redactRequest(t, &reason)).Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusRequestEntityTooLarge)
	testutil.AssertMatrixError(t, w, mxapi.ErrCodeTooLarge)
}

func TestServer_RateLimit(t *testing.T) {
	var consulted atomic.Int32
	s := server.New().WithLimiter(server.LimiterFunc(func(ctx *server.Context) (time.Duration, bool) {
		consulted.Add(1)
		return 1500 * time.Millisecond, false
	}))
	server.Handle(s, r0.CreateTypingEvent, func(ctx context.Context, req *server.Request[r0.TypingPath, mxapi.Empty, r0.CreateTypingEventBody]) (mxapi.Empty, error) {
		t.Error("rate limited handler should not run")
		return mxapi.Empty{}, nil
	})
	server.Handle(s, r0.RedactEvent, redactHandler(nil))

	req, w := testutil.NewRequest().
		PUT("/_matrix/client/r0/rooms/!abc:example.org/typing/@alice:example.org").
		WithJSON(r0.CreateTypingEventBody{Typing: true}).
		Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusTooManyRequests)
	testutil.AssertHeader(t, w, "Retry-After", "2")
	if got := testutil.AssertMatrixError(t, w, mxapi.ErrCodeLimitExceeded); got.RetryAfterMs != 1500 {
		t.Errorf("expected retry_after_ms 1500, got %d", got.RetryAfterMs)
	}

	req, w = testutil.FromRequest(redactRequest(t, nil)).Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	if n := consulted.Load(); n != 1 {
		t.Errorf("expected limiter to be consulted once, got %d", n)
	}
}

func TestServer_HandlerErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		mask        bool
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "matrix error passes through",
			err:         mxapi.NewMatrixError(http.StatusForbidden, mxapi.ErrCodeForbidden, "not in room"),
			wantStatus:  http.StatusForbidden,
			wantCode:    mxapi.ErrCodeForbidden,
			wantMessage: "not in room",
		},
		{
			name:        "internal error",
			err:         errors.New("database down"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    mxapi.ErrCodeUnknown,
			wantMessage: "database down",
		},
		{
			name:        "masked internal error",
			err:         errors.New("database down"),
			mask:        true,
			wantStatus:  http.StatusInternalServerError,
			wantCode:    mxapi.ErrCodeUnknown,
			wantMessage: "Internal server error",
		},
		{
			name:        "masking keeps client errors",
			err:         mxapi.NewMatrixError(http.StatusNotFound, mxapi.ErrCodeNotFound, "event not found"),
			mask:        true,
			wantStatus:  http.StatusNotFound,
			wantCode:    mxapi.ErrCodeNotFound,
			wantMessage: "event not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := server.New()
			if tt.mask {
				s.WithMaskInternalErrors()
			}
			server.Handle(s, r0.RedactEvent, func(ctx context.Context, req *server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]) (r0.RedactEventResponse, error) {
				return r0.RedactEventResponse{}, tt.err
			})

			req, w := testutil.FromRequest(redactRequest(t, nil)).Build()
			s.Handler().ServeHTTP(w, req)
			testutil.AssertStatus(t, w, tt.wantStatus)
			got := testutil.AssertMatrixError(t, w, tt.wantCode)
			if got.Message != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, got.Message)
			}
		})
	}
}

func TestServer_PanicRecovery(t *testing.T) {
	s := server.New()
	server.Handle(s, r0.RedactEvent, func(ctx context.Context, req *server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]) (r0.RedactEventResponse, error) {
		panic("boom")
	})

	req, w := testutil.FromRequest(redactRequest(t, nil)).Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusInternalServerError)
	testutil.AssertMatrixError(t, w, mxapi.ErrCodeUnknown)
}

func TestServer_Registration(t *testing.T) {
	s := server.New()
	server.Handle(s, r0.RedactEvent, func(ctx context.Context, req *server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]) (r0.RedactEventResponse, error) {
		return r0.RedactEventResponse{}, errors.New("replaced handler called")
	})
	server.Handle(s, r0.RedactEvent, redactHandler(nil))
	server.Handle(s, r0.CreateTypingEvent, func(ctx context.Context, req *server.Request[r0.TypingPath, mxapi.Empty, r0.CreateTypingEventBody]) (mxapi.Empty, error) {
		return mxapi.Empty{}, nil
	})

	routes := s.Routes()
	if len(routes) != 2 || routes[0].Name != "redact_event" || routes[1].Name != "create_typing_event" {
		t.Errorf("unexpected route table %+v", routes)
	}

	req, w := testutil.FromRequest(redactRequest(t, nil)).Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestServer_RouteCollisionPanics(t *testing.T) {
	s := server.New()
	server.Handle(s, unversioned.GetSupportedVersions, func(ctx context.Context, _ *server.Request[mxapi.Empty, mxapi.Empty, mxapi.Empty]) (unversioned.GetSupportedVersionsResponse, error) {
		return unversioned.GetSupportedVersionsResponse{Versions: []string{}}, nil
	})

	shadow := mxapi.NewEndpoint[mxapi.Empty, mxapi.Empty, mxapi.Empty, mxapi.Empty](mxapi.Config{
		Name:   "shadow_versions",
		Method: mxapi.MethodGet,
		Path:   "/_matrix/client/versions",
	})
	defer func() {
		if recover() == nil {
			t.Error("expected panic for colliding route")
		}
	}()
	server.Handle(s, shadow, func(ctx context.Context, _ *server.Request[mxapi.Empty, mxapi.Empty, mxapi.Empty]) (mxapi.Empty, error) {
		return mxapi.Empty{}, nil
	})
}

func TestServer_Middleware(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	s := server.New().WithMiddleware(mw("outer")).WithMiddleware(mw("inner"))
	server.Handle(s, r0.RedactEvent, redactHandler(nil))

	req, w := testutil.FromRequest(redactRequest(t, nil)).Build()
	s.Handler().ServeHTTP(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("unexpected middleware order %v", order)
	}
}

func TestServer_ClientRoundTrip(t *testing.T) {
	s := server.New().WithAuthenticator(staticAuth)
	var seen atomic.Pointer[server.Request[r0.RedactEventPath, mxapi.Empty, r0.RedactEventBody]]
	server.Handle(s, r0.RedactEvent, redactHandler(&seen))
	server.Handle(s, r0.GetMessageEvents, func(ctx context.Context, req *server.Request[r0.RoomPath, r0.GetMessageEventsQuery, mxapi.Empty]) (r0.GetMessageEventsResponse, error) {
		if req.Query.Dir != r0.Forward {
			return r0.GetMessageEventsResponse{}, mxapi.NewMatrixError(http.StatusBadRequest, mxapi.ErrCodeInvalidParam, "expected forward pagination")
		}
		return r0.GetMessageEventsResponse{Start: req.Query.From, End: "t2"}, nil
	})
	server.Handle(s, unversioned.GetSupportedVersions, func(ctx context.Context, _ *server.Request[mxapi.Empty, mxapi.Empty, mxapi.Empty]) (unversioned.GetSupportedVersionsResponse, error) {
		return unversioned.GetSupportedVersionsResponse{Versions: []string{"r0.5.0", "r0.6.1"}}, nil
	})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c, err := client.New(client.Config{HomeserverURL: ts.URL, AccessToken: "secret"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	ctx := context.Background()

	reason := "spam"
	res, err := client.Call(ctx, c, r0.RedactEvent,
		r0.RedactEventPath{RoomID: room, EventID: target, TxnID: "t42"}, mxapi.Empty{}, r0.RedactEventBody{Reason: &reason})
	if err != nil {
		t.Fatalf("redact failed: %v", err)
	}
	if res.EventID != redacted {
		t.Errorf("expected %s, got %s", redacted, res.EventID)
	}
	if got := seen.Load(); got == nil || got.Path.EventID != target || got.Path.TxnID != "t42" {
		t.Errorf("unexpected request seen by handler: %+v", got)
	}

	messages, err := client.Call(ctx, c, r0.GetMessageEvents,
		r0.RoomPath{RoomID: room}, r0.GetMessageEventsQuery{From: "t1", Dir: r0.Forward}, mxapi.Empty{})
	if err != nil {
		t.Fatalf("messages failed: %v", err)
	}
	if messages.Start != "t1" || messages.End != "t2" {
		t.Errorf("unexpected messages response %+v", messages)
	}

	_, err = client.Call(ctx, c, r0.GetMessageEvents,
		r0.RoomPath{RoomID: room}, r0.GetMessageEventsQuery{From: "t1", Dir: r0.Backward}, mxapi.Empty{})
	var matrixErr *mxapi.MatrixError
	if !errors.As(err, &matrixErr) || matrixErr.Code != mxapi.ErrCodeInvalidParam || matrixErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected M_INVALID_PARAM, got %v", err)
	}

	versions, err := client.Call(ctx, c, unversioned.GetSupportedVersions, mxapi.Empty{}, mxapi.Empty{}, mxapi.Empty{})
	if err != nil {
		t.Fatalf("versions failed: %v", err)
	}
	if !versions.Supports("r0.6.1") {
		t.Errorf("expected r0.6.1 in %v", versions.Versions)
	}
}
