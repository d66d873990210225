// Package testutil provides testing helpers for HTTP handlers serving mxapi
// endpoints. It is import-cycle safe and can be used from any package
// outside the root mxapi package.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/broady/mxapi"
)

// RequestBuilder helps construct test HTTP requests with fluent API.
type RequestBuilder struct {
	method  string
	path    string
	body    []byte
	headers map[string]string
	query   url.Values
}

// NewRequest creates a new request builder.
func NewRequest() *RequestBuilder {
	return &RequestBuilder{
		method:  "GET",
		path:    "/",
		headers: make(map[string]string),
		query:   make(url.Values),
	}
}

// FromRequest starts a builder from a request rendered by an endpoint, so
// tests send exactly what a client would.
func FromRequest(req *mxapi.Request) *RequestBuilder {
	b := NewRequest()
	b.method = req.Method.String()
	b.path = req.Path
	if req.Query != "" {
		b.path += "?" + req.Query
	}
	if req.Body != nil {
		b.body = req.Body
		b.headers["Content-Type"] = "application/json"
	}
	return b
}

// GET sets the HTTP method to GET.
func (b *RequestBuilder) GET(path string) *RequestBuilder {
	b.method = "GET"
	b.path = path
	return b
}

// PUT sets the HTTP method to PUT.
func (b *RequestBuilder) PUT(path string) *RequestBuilder {
	b.method = "PUT"
	b.path = path
	return b
}

// POST sets the HTTP method to POST.
func (b *RequestBuilder) POST(path string) *RequestBuilder {
	b.method = "POST"
	b.path = path
	return b
}

// DELETE sets the HTTP method to DELETE.
func (b *RequestBuilder) DELETE(path string) *RequestBuilder {
	b.method = "DELETE"
	b.path = path
	return b
}

// WithJSON sets the request body as JSON.
func (b *RequestBuilder) WithJSON(v any) *RequestBuilder {
	data, _ := json.Marshal(v)
	b.body = data
	b.headers["Content-Type"] = "application/json"
	return b
}

// WithBody sets the raw request body.
func (b *RequestBuilder) WithBody(body string) *RequestBuilder {
	b.body = []byte(body)
	return b
}

// WithHeader adds a header to the request.
func (b *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	b.headers[key] = value
	return b
}

// WithBearer sets the Authorization header to a bearer token.
func (b *RequestBuilder) WithBearer(token string) *RequestBuilder {
	return b.WithHeader("Authorization", "Bearer "+token)
}

// WithQuery adds a query parameter.
func (b *RequestBuilder) WithQuery(key, value string) *RequestBuilder {
	b.query.Add(key, value)
	return b
}

// Build creates the HTTP request and ResponseRecorder.
func (b *RequestBuilder) Build() (*http.Request, *httptest.ResponseRecorder) {
	path := b.path
	if len(b.query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + b.query.Encode()
	}

	var req *http.Request
	if len(b.body) > 0 {
		req = httptest.NewRequest(b.method, path, bytes.NewReader(b.body))
	} else {
		req = httptest.NewRequest(b.method, path, nil)
	}

	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	return req, httptest.NewRecorder()
}

// AssertStatus checks that the response has the expected status code.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if w.Code != expectedStatus {
		t.Errorf("expected status %d, got %d\nBody: %s", expectedStatus, w.Code, w.Body.String())
	}
}

// AssertJSONResponse decodes the response body and compares it with expected value.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expected any) {
	t.Helper()

	contentType := w.Header().Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		t.Errorf("expected Content-Type to contain application/json, got %s", contentType)
	}

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to encode expected value: %v", err)
	}

	// Compare as JSON to ignore formatting differences
	var expectedData, actualData any
	if err := json.Unmarshal(expectedJSON, &expectedData); err != nil {
		t.Fatalf("failed to decode expected value: %v", err)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &actualData); err != nil {
		t.Fatalf("response is not JSON: %v\nBody: %s", err, w.Body.String())
	}

	expectedStr, _ := json.MarshalIndent(expectedData, "", "  ")
	actualStr, _ := json.MarshalIndent(actualData, "", "  ")

	if string(expectedStr) != string(actualStr) {
		t.Errorf("response mismatch:\nExpected:\n%s\nActual:\n%s", expectedStr, actualStr)
	}
}

// AssertMatrixError checks that the response carries a Matrix error
// envelope with the expected errcode. The returned error has StatusCode and
// Body filled in from the recorder.
func AssertMatrixError(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) *mxapi.MatrixError {
	t.Helper()

	body := w.Body.Bytes()
	var matrixErr mxapi.MatrixError
	if err := json.Unmarshal(body, &matrixErr); err != nil {
		t.Fatalf("failed to decode error response: %v\nBody: %s", err, body)
	}
	matrixErr.StatusCode = w.Code
	matrixErr.Body = body

	if matrixErr.Code != expectedCode {
		t.Errorf("expected errcode %s, got %s (error: %s)", expectedCode, matrixErr.Code, matrixErr.Message)
	}

	return &matrixErr
}

// AssertHeader checks that a response header has the expected value.
func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expectedValue string) {
	t.Helper()
	actual := w.Header().Get(key)
	if actual != expectedValue {
		t.Errorf("expected header %s=%s, got %s", key, expectedValue, actual)
	}
}

// DecodeJSON decodes the response body into the provided value.
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nBody: %s", err, w.Body.String())
	}
}
