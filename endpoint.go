package mxapi

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"

	"github.com/broady/mxapi/internal/meta"
)

// Config declares an endpoint. Path is the router path with ":name"
// placeholders.
type Config struct {
	Name        string
	Description string
	Method      Method
	Path        string

	// RequiresAuthentication and RateLimited are declared policy. Nothing in
	// this package enforces them; callers and dispatchers must.
	RequiresAuthentication bool
	RateLimited            bool
}

// Descriptor is the type-erased view of an endpoint, used by catalogs,
// routers and tools that handle operations they do not know statically.
// It is implemented by *Endpoint.
type Descriptor interface {
	Name() string
	Description() string
	Method() Method
	RouterPath() string
	Template() *Template
	RequiresAuthentication() bool
	RateLimited() bool
	Metadata() *meta.EndpointMetadata

	// BuildRequest decodes raw inputs through the endpoint's typed shapes
	// and renders the canonical request.
	BuildRequest(raw RawRequest) (*Request, error)
	// DecodeResponseValue decodes a success payload into the response shape.
	DecodeResponseValue(data []byte) (any, error)
}

// Endpoint is the contract of one client-server operation:
// P is the path parameter set, Q the query parameters, B the request body
// and R the response. Use [Empty] for any absent part.
//
// An Endpoint is immutable after NewEndpoint and safe for concurrent use.
type Endpoint[P, Q, B, R any] struct {
	name         string
	description  string
	method       Method
	template     *Template
	requiresAuth bool
	rateLimited  bool

	path  *pathCodec
	query *queryCodec
}

var _ Descriptor = (*Endpoint[Empty, Empty, Empty, Empty])(nil)

// NewEndpoint builds an endpoint from cfg and the shape type parameters.
// It panics if the declaration is inconsistent: an invalid template, a
// placeholder without a path field or vice versa, or non-struct shapes.
// Endpoints are declared at package level, so a defect fails at init.
func NewEndpoint[P, Q, B, R any](cfg Config) *Endpoint[P, Q, B, R] {
	e, err := newEndpoint[P, Q, B, R](cfg)
	if err != nil {
		panic(fmt.Sprintf("mxapi: endpoint %q: %v", cfg.Name, err))
	}
	return e
}

func newEndpoint[P, Q, B, R any](cfg Config) (*Endpoint[P, Q, B, R], error) {
	if cfg.Name == "" {
		return nil, errors.New("name is required")
	}
	if !cfg.Method.IsValid() {
		return nil, fmt.Errorf("unsupported method %q", cfg.Method)
	}
	tmpl, err := ParseTemplate(cfg.Path)
	if err != nil {
		return nil, err
	}
	path, err := newPathCodec(reflect.TypeFor[P](), tmpl)
	if err != nil {
		return nil, err
	}
	query, err := newQueryCodec(reflect.TypeFor[Q]())
	if err != nil {
		return nil, err
	}
	if bt := reflect.TypeFor[B](); bt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("body must be a struct, got %v", bt)
	}
	if !isEmptyType(reflect.TypeFor[B]()) && !cfg.Method.HasBody() {
		return nil, fmt.Errorf("%s requests cannot carry a body", cfg.Method)
	}
	return &Endpoint[P, Q, B, R]{
		name:         cfg.Name,
		description:  cfg.Description,
		method:       cfg.Method,
		template:     tmpl,
		requiresAuth: cfg.RequiresAuthentication,
		rateLimited:  cfg.RateLimited,
		path:         path,
		query:        query,
	}, nil
}

func (e *Endpoint[P, Q, B, R]) Name() string                 { return e.name }
func (e *Endpoint[P, Q, B, R]) Description() string          { return e.description }
func (e *Endpoint[P, Q, B, R]) Method() Method               { return e.method }
func (e *Endpoint[P, Q, B, R]) RouterPath() string           { return e.template.String() }
func (e *Endpoint[P, Q, B, R]) Template() *Template          { return e.template }
func (e *Endpoint[P, Q, B, R]) RequiresAuthentication() bool { return e.requiresAuth }
func (e *Endpoint[P, Q, B, R]) RateLimited() bool            { return e.rateLimited }

// Metadata returns the runtime metadata for the endpoint.
func (e *Endpoint[P, Q, B, R]) Metadata() *meta.EndpointMetadata {
	return &meta.EndpointMetadata{
		Name:                   e.name,
		Description:            e.description,
		Method:                 string(e.method),
		Path:                   e.template.String(),
		Params:                 e.template.Params(),
		PathParams:             reflect.TypeFor[P](),
		QueryParams:            reflect.TypeFor[Q](),
		BodyParams:             reflect.TypeFor[B](),
		Response:               reflect.TypeFor[R](),
		RequiresAuthentication: e.requiresAuth,
		RateLimited:            e.rateLimited,
	}
}

// RequestPath renders the concrete path for p.
func (e *Endpoint[P, Q, B, R]) RequestPath(p P) (string, error) {
	path, err := e.template.Render(e.path.values(reflect.ValueOf(p)))
	if err != nil {
		return "", e.withOp(err)
	}
	return path, nil
}

// EncodeQuery serializes the present fields of q. Absent optional fields
// produce no key.
func (e *Endpoint[P, Q, B, R]) EncodeQuery(q Q) (url.Values, error) {
	values, err := e.query.encode(reflect.ValueOf(q))
	if err != nil {
		return nil, wrapError(CodeEncode, e.name, "query", err)
	}
	return values, nil
}

// QueryString is EncodeQuery rendered with keys in field declaration order.
func (e *Endpoint[P, Q, B, R]) QueryString(q Q) (string, error) {
	values, err := e.EncodeQuery(q)
	if err != nil {
		return "", err
	}
	return e.query.render(values), nil
}

// EncodeBody serializes b as JSON. An Empty body encodes to nil.
func (e *Endpoint[P, Q, B, R]) EncodeBody(b B) ([]byte, error) {
	data, err := encodeBody(b)
	if err != nil {
		return nil, wrapError(CodeEncode, e.name, "body", err)
	}
	return data, nil
}

// NewRequest renders the full request for the given inputs.
func (e *Endpoint[P, Q, B, R]) NewRequest(p P, q Q, b B) (*Request, error) {
	path, err := e.RequestPath(p)
	if err != nil {
		return nil, err
	}
	query, err := e.QueryString(q)
	if err != nil {
		return nil, err
	}
	body, err := e.EncodeBody(b)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method: e.method,
		Path:   path,
		Query:  query,
		Body:   body,
	}, nil
}

// DecodeResponse parses a success payload. Error envelopes must be handled
// before calling it; they are never decoded into R.
func (e *Endpoint[P, Q, B, R]) DecodeResponse(data []byte) (R, error) {
	var r R
	if err := decodeJSON(data, &r); err != nil {
		var zero R
		return zero, wrapError(CodeDecode, e.name, "response", err)
	}
	return r, nil
}

// DecodePath is the inverse of RequestPath: it converts the values captured
// by [Template.Match] into P.
func (e *Endpoint[P, Q, B, R]) DecodePath(values map[string]string) (P, error) {
	var p P
	if err := e.path.decode(values, reflect.ValueOf(&p).Elem()); err != nil {
		var zero P
		var contractErr *Error
		if errors.As(err, &contractErr) {
			return zero, e.withOp(err)
		}
		return zero, wrapError(CodeDecode, e.name, "path", err)
	}
	return p, nil
}

// DecodeQuery parses query parameters. Unknown keys are ignored.
func (e *Endpoint[P, Q, B, R]) DecodeQuery(values url.Values) (Q, error) {
	var q Q
	if err := e.query.decode(values, &q); err != nil {
		var zero Q
		return zero, wrapError(CodeDecode, e.name, "query", err)
	}
	return q, nil
}

// DecodeBody parses a JSON request body. An empty body is read as "{}".
func (e *Endpoint[P, Q, B, R]) DecodeBody(data []byte) (B, error) {
	var b B
	if err := decodeBody(data, &b); err != nil {
		var zero B
		return zero, wrapError(CodeDecode, e.name, "body", err)
	}
	return b, nil
}

// EncodeResponse serializes a success payload.
func (e *Endpoint[P, Q, B, R]) EncodeResponse(r R) ([]byte, error) {
	data, err := encodeResponse(r)
	if err != nil {
		return nil, wrapError(CodeEncode, e.name, "response", err)
	}
	return data, nil
}

// withOp attributes a contract error to this endpoint.
func (e *Endpoint[P, Q, B, R]) withOp(err error) error {
	var contractErr *Error
	if errors.As(err, &contractErr) {
		contractErr.Op = e.name
	}
	return err
}

// BuildRequest implements Descriptor.
func (e *Endpoint[P, Q, B, R]) BuildRequest(raw RawRequest) (*Request, error) {
	p, err := e.DecodePath(raw.Path)
	if err != nil {
		return nil, err
	}
	q, err := e.DecodeQuery(raw.Query)
	if err != nil {
		return nil, err
	}
	b, err := e.DecodeBody(raw.Body)
	if err != nil {
		return nil, err
	}
	return e.NewRequest(p, q, b)
}

// DecodeResponseValue implements Descriptor.
func (e *Endpoint[P, Q, B, R]) DecodeResponseValue(data []byte) (any, error) {
	return e.DecodeResponse(data)
}
