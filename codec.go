package mxapi

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

// Empty is the unit shape: an operation with no path parameters, no query,
// no body, or no meaningful response uses Empty in that position.
// An Empty body is never sent; an Empty response accepts any JSON object.
type Empty struct{}

// Enum is implemented by wire enumerations. Fields of an Enum type tagged
// `validate:"enum"` are rejected unless IsValid reports true.
type Enum interface {
	IsValid() bool
}

// Validator is implemented by response shapes with invariants that JSON
// decoding alone cannot express.
type Validator interface {
	Validate() error
}

var (
	validate = newValidator()

	emptyType           = reflect.TypeFor[Empty]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	stringerType        = reflect.TypeFor[fmt.Stringer]()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(wireName)
	if err := v.RegisterValidation("enum", validateEnum); err != nil {
		panic(err)
	}
	return v
}

func validateEnum(fl validator.FieldLevel) bool {
	field := fl.Field()
	if !field.CanInterface() {
		return false
	}
	if e, ok := field.Interface().(Enum); ok {
		return e.IsValid()
	}
	if field.CanAddr() {
		if e, ok := field.Addr().Interface().(Enum); ok {
			return e.IsValid()
		}
	}
	return false
}

// wireName reports the name a field has on the wire, so validation errors
// mention "from" rather than "From".
func wireName(f reflect.StructField) string {
	for _, tag := range []string{"json", "schema", "path"} {
		if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" {
			if name == "-" {
				return ""
			}
			return name
		}
	}
	return f.Name
}

func isEmptyType(t reflect.Type) bool {
	return t == emptyType
}

// queryCodec encodes and decodes one query parameter struct type. It is
// built once per endpoint and never mutated afterwards.
type queryCodec struct {
	typ     reflect.Type
	keys    []string
	text    []int
	encoder *schema.Encoder
	decoder *schema.Decoder
}

func newQueryCodec(t reflect.Type) (*queryCodec, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("query parameters must be a struct, got %v", t)
	}
	c := &queryCodec{
		typ:     t,
		encoder: schema.NewEncoder(),
		decoder: schema.NewDecoder(),
	}
	c.decoder.IgnoreUnknownKeys(true)

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := schemaName(f)
		if name == "-" {
			continue
		}
		c.keys = append(c.keys, name)
		if f.Type.Implements(textMarshalerType) {
			c.text = append(c.text, i)
			c.encoder.RegisterEncoder(reflect.Zero(f.Type).Interface(), encodeText)
		}
	}
	return c, nil
}

func schemaName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("schema"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

func encodeText(v reflect.Value) string {
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return ""
	}
	text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return ""
	}
	return string(text)
}

// encode serializes present fields only. Text-marshaled fields are checked
// up front because the schema encoder cannot report their errors.
func (c *queryCodec) encode(v reflect.Value) (url.Values, error) {
	for _, i := range c.text {
		field := v.Field(i)
		if field.Kind() == reflect.Pointer && field.IsNil() {
			continue
		}
		if _, err := field.Interface().(encoding.TextMarshaler).MarshalText(); err != nil {
			return nil, fmt.Errorf("%s: %w", schemaName(c.typ.Field(i)), err)
		}
	}
	if err := validate.Struct(v.Interface()); err != nil {
		return nil, err
	}
	values := url.Values{}
	if err := c.encoder.Encode(v.Interface(), values); err != nil {
		return nil, err
	}
	return values, nil
}

func (c *queryCodec) decode(values url.Values, dst any) error {
	if err := c.decoder.Decode(dst, values); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// render writes values in struct field order; keys the struct does not
// declare follow in sorted order.
func (c *queryCodec) render(values url.Values) string {
	var b strings.Builder
	write := func(key string, vs []string) {
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	for _, key := range c.keys {
		write(key, values[key])
	}
	var rest []string
	for key := range values {
		if !slices.Contains(c.keys, key) {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	for _, key := range rest {
		write(key, values[key])
	}
	return b.String()
}

// pathCodec maps a path parameter struct onto template placeholders.
type pathCodec struct {
	typ    reflect.Type
	fields []pathField
}

type pathField struct {
	index int
	name  string
}

func newPathCodec(t reflect.Type, tmpl *Template) (*pathCodec, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("path parameters must be a struct, got %v", t)
	}
	c := &pathCodec{typ: t}
	bound := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, ok := f.Tag.Lookup("path")
		if !ok {
			continue
		}
		if !f.IsExported() {
			return nil, fmt.Errorf("path field %s is unexported", f.Name)
		}
		if prev, dup := bound[name]; dup {
			return nil, fmt.Errorf("placeholder %q bound by both %s and %s", name, prev, f.Name)
		}
		if !tmpl.hasParam(name) {
			return nil, fmt.Errorf("field %s binds %q, which %s does not declare", f.Name, name, tmpl)
		}
		if !isSegmentType(f.Type) {
			return nil, fmt.Errorf("field %s has type %v, which cannot form a path segment", f.Name, f.Type)
		}
		bound[name] = f.Name
		c.fields = append(c.fields, pathField{index: i, name: name})
	}
	for _, name := range tmpl.params {
		if _, ok := bound[name]; !ok {
			return nil, fmt.Errorf("placeholder %q in %s has no field", name, tmpl)
		}
	}
	return c, nil
}

func isSegmentType(t reflect.Type) bool {
	if t.Implements(stringerType) && reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return true
	}
	return t.Kind() == reflect.String
}

func (c *pathCodec) values(v reflect.Value) map[string]string {
	values := make(map[string]string, len(c.fields))
	for _, f := range c.fields {
		field := v.Field(f.index)
		if s, ok := field.Interface().(fmt.Stringer); ok {
			values[f.name] = s.String()
		} else {
			values[f.name] = field.String()
		}
	}
	return values
}

func (c *pathCodec) decode(values map[string]string, dst reflect.Value) error {
	for name := range values {
		if !c.binds(name) {
			return Errorf(CodeParameterMismatch, "", "unexpected path parameter %q", name)
		}
	}
	for _, f := range c.fields {
		raw, ok := values[f.name]
		if !ok || raw == "" {
			return Errorf(CodeParameterMismatch, "", "path parameter %q is missing", f.name)
		}
		field := dst.Field(f.index)
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			if err := u.UnmarshalText([]byte(raw)); err != nil {
				return fmt.Errorf("path parameter %q: %w", f.name, err)
			}
			continue
		}
		field.SetString(raw)
	}
	return nil
}

func (c *pathCodec) binds(name string) bool {
	for _, f := range c.fields {
		if f.name == name {
			return true
		}
	}
	return false
}

// encodeBody marshals a body, omitting optional fields that are absent.
// The Empty body encodes to nil.
func encodeBody(v any) ([]byte, error) {
	if _, ok := v.(Empty); ok {
		return nil, nil
	}
	if err := validate.Struct(v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func decodeBody(data []byte, dst any) error {
	if _, ok := dst.(*Empty); ok {
		return nil
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func encodeResponse(v any) ([]byte, error) {
	if _, ok := v.(Empty); ok {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// decodeJSON decodes a response payload and runs its Validate hook.
func decodeJSON(data []byte, dst any) error {
	data = bytes.TrimSpace(data)
	if _, ok := dst.(*Empty); ok {
		if len(data) == 0 {
			return nil
		}
		var object map[string]json.RawMessage
		return json.Unmarshal(data, &object)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	if v, ok := dst.(Validator); ok {
		return v.Validate()
	}
	return nil
}
