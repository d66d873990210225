package mxapi

import (
	"net/url"
	"strings"
)

// Request is a fully rendered operation: what a transport needs to put on
// the wire. Query is already encoded and Body is nil when nothing is sent.
type Request struct {
	Method Method
	Path   string
	Query  string
	Body   []byte
}

// URL joins the request onto a homeserver base URL such as
// "https://matrix.example.org". A trailing slash on base is ignored.
func (r *Request) URL(base string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteString(r.Path)
	if r.Query != "" {
		b.WriteByte('?')
		b.WriteString(r.Query)
	}
	return b.String()
}

// RawRequest is the untyped form of an operation's inputs, as a CLI or a
// router produces them. Path values are unescaped.
type RawRequest struct {
	Path  map[string]string
	Query url.Values
	Body  []byte
}
