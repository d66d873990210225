package mxapi

import (
	"fmt"
	"net/url"
	"strings"
)

// Template is a parsed router path such as
// "/_matrix/client/r0/rooms/:room_id/redact/:event_id/:txn_id".
// Every segment is either a literal or a ":name" placeholder that binds
// exactly one path segment.
//
// A Template is immutable once parsed and safe for concurrent use.
type Template struct {
	pattern  string
	segments []segment
	params   []string
}

type segment struct {
	literal string
	param   string
}

func (s segment) isParam() bool { return s.param != "" }

// ParseTemplate parses a router path. The pattern must start with "/",
// must not contain empty segments, and must not repeat a placeholder name.
func ParseTemplate(pattern string) (*Template, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("mxapi: template %q must start with /", pattern)
	}
	t := &Template{pattern: pattern}
	if pattern == "/" {
		return t, nil
	}
	seen := make(map[string]bool)
	for _, part := range strings.Split(pattern[1:], "/") {
		if part == "" {
			return nil, fmt.Errorf("mxapi: template %q has an empty segment", pattern)
		}
		if name, ok := strings.CutPrefix(part, ":"); ok {
			if name == "" {
				return nil, fmt.Errorf("mxapi: template %q has an unnamed placeholder", pattern)
			}
			if seen[name] {
				return nil, fmt.Errorf("mxapi: template %q repeats placeholder %q", pattern, name)
			}
			seen[name] = true
			t.segments = append(t.segments, segment{param: name})
			t.params = append(t.params, name)
			continue
		}
		t.segments = append(t.segments, segment{literal: part})
	}
	return t, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
// It is intended for package-level endpoint declarations.
func MustParseTemplate(pattern string) *Template {
	t, err := ParseTemplate(pattern)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the router path, with ":name" placeholders.
func (t *Template) String() string {
	return t.pattern
}

// Params returns the placeholder names in template order.
func (t *Template) Params() []string {
	out := make([]string, len(t.params))
	copy(out, t.params)
	return out
}

// Render substitutes each placeholder with its value. values must bind every
// placeholder with a non-empty value and nothing else; any disagreement is an
// ErrParameterMismatch.
//
// Values are kept verbatim except for '%', '/', '?' and '#', which are
// percent-encoded so that a value always occupies exactly one segment.
func (t *Template) Render(values map[string]string) (string, error) {
	for name := range values {
		if !t.hasParam(name) {
			return "", Errorf(CodeParameterMismatch, t.pattern, "no placeholder for %q", name)
		}
	}

	var b strings.Builder
	for _, seg := range t.segments {
		b.WriteByte('/')
		if !seg.isParam() {
			b.WriteString(seg.literal)
			continue
		}
		value, ok := values[seg.param]
		if !ok {
			return "", Errorf(CodeParameterMismatch, t.pattern, "placeholder %q is unbound", seg.param)
		}
		if value == "" {
			return "", Errorf(CodeParameterMismatch, t.pattern, "placeholder %q is empty", seg.param)
		}
		b.WriteString(escapeSegment(value))
	}
	if b.Len() == 0 {
		return "/", nil
	}
	return b.String(), nil
}

// Match applies the router matching rule: the path must have as many
// segments as the template, literals must be equal, and each placeholder
// captures one segment. Captured values are unescaped, so Match inverts Render.
func (t *Template) Match(path string) (map[string]string, bool) {
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}
	if len(t.segments) == 0 {
		return map[string]string{}, path == "/"
	}
	parts := strings.Split(path[1:], "/")
	if len(parts) != len(t.segments) {
		return nil, false
	}
	values := make(map[string]string, len(t.params))
	for i, seg := range t.segments {
		if !seg.isParam() {
			if parts[i] != seg.literal {
				return nil, false
			}
			continue
		}
		if parts[i] == "" {
			return nil, false
		}
		value, err := url.PathUnescape(parts[i])
		if err != nil {
			return nil, false
		}
		values[seg.param] = value
	}
	return values, true
}

func (t *Template) hasParam(name string) bool {
	for _, p := range t.params {
		if p == name {
			return true
		}
	}
	return false
}

var segmentEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"?", "%3F",
	"#", "%23",
)

func escapeSegment(value string) string {
	return segmentEscaper.Replace(value)
}
