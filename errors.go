package mxapi

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

// ErrorCode represents a machine-readable contract error code.
type ErrorCode string

const (
	// CodeParameterMismatch means a path template and its parameter set disagree:
	// a placeholder has no value, or a value has no placeholder.
	CodeParameterMismatch ErrorCode = "parameter_mismatch"
	// CodeEncode means a value cannot be represented in the wire format,
	// e.g. an invalid enum discriminant.
	CodeEncode ErrorCode = "encode_error"
	// CodeDecode means bytes on the wire do not match the declared shape.
	CodeDecode ErrorCode = "decode_error"
)

// Sentinel errors for use with errors.Is. Any *Error with the same code matches.
var (
	ErrParameterMismatch = &Error{Code: CodeParameterMismatch}
	ErrEncode            = &Error{Code: CodeEncode}
	ErrDecode            = &Error{Code: CodeDecode}
)

// Error is returned by every rendering, encoding and decoding operation.
// These are local, synchronous failures; protocol failures reported by a
// homeserver are [MatrixError] values instead.
type Error struct {
	Code ErrorCode
	// Op is the endpoint name, or the codec operation when no endpoint is involved.
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errorf creates a new contract error with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

func wrapError(code ErrorCode, op, message string, err error) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     simplifyCause(err),
	}
}

// simplifyCause flattens validator and schema errors into readable messages,
// keeping the original error reachable through errors.As.
func simplifyCause(err error) error {
	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		messages := make([]string, 0, len(valErrs))
		for _, ve := range valErrs {
			messages = append(messages, ve.Field()+": "+formatValidationError(ve))
		}
		return &causeError{msg: strings.Join(messages, "; "), err: err}
	}
	var multi schema.MultiError
	if errors.As(err, &multi) {
		messages := make([]string, 0, len(multi))
		for key, e := range multi {
			messages = append(messages, key+": "+e.Error())
		}
		slices.Sort(messages)
		return &causeError{msg: strings.Join(messages, "; "), err: err}
	}
	return err
}

type causeError struct {
	msg string
	err error
}

func (c *causeError) Error() string { return c.msg }
func (c *causeError) Unwrap() error { return c.err }

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "enum":
		return fmt.Sprintf("invalid value %v", ve.Value())
	case "min":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

// MatrixError is the standard error envelope a homeserver returns with a
// non-2xx status. It is never decoded into an endpoint's response type: the
// payload is carried through untouched in Body.
//
//	var matrixErr *mxapi.MatrixError
//	if errors.As(err, &matrixErr) && matrixErr.Code == mxapi.ErrCodeForbidden { ... }
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN", "M_LIMIT_EXCEEDED").
	Code string `json:"errcode"`
	// Message is the human-readable error description.
	Message string `json:"error"`
	// RetryAfterMs is set by rate-limited endpoints answering M_LIMIT_EXCEEDED.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
	// Body is the raw response payload.
	Body []byte `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken  = "M_MISSING_TOKEN"
	ErrCodeBadJSON       = "M_BAD_JSON"
	ErrCodeNotJSON       = "M_NOT_JSON"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnrecognized  = "M_UNRECOGNIZED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeInvalidParam  = "M_INVALID_PARAM"
	ErrCodeMissingParam  = "M_MISSING_PARAM"
	ErrCodeTooLarge      = "M_TOO_LARGE"
)

// NewMatrixError creates a protocol error with the given status and code.
func NewMatrixError(status int, code, message string) *MatrixError {
	return &MatrixError{
		Code:       code,
		Message:    message,
		StatusCode: status,
	}
}

// IsMatrixError checks whether err is a *MatrixError with the given error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// MatrixErrorFrom maps a contract error onto the protocol envelope a
// dispatcher should answer with. Errors that are already *MatrixError pass
// through; anything unrecognized becomes M_UNKNOWN.
func MatrixErrorFrom(err error) *MatrixError {
	if err == nil {
		return nil
	}

	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr
	}

	var contractErr *Error
	if errors.As(err, &contractErr) {
		switch contractErr.Code {
		case CodeParameterMismatch:
			return NewMatrixError(http.StatusBadRequest, ErrCodeMissingParam, contractErr.Error())
		case CodeDecode:
			var valErrs validator.ValidationErrors
			var multi schema.MultiError
			if contractErr.Message == "path" || contractErr.Message == "query" ||
				errors.As(contractErr, &valErrs) || errors.As(contractErr, &multi) {
				return NewMatrixError(http.StatusBadRequest, ErrCodeInvalidParam, contractErr.Error())
			}
			return NewMatrixError(http.StatusBadRequest, ErrCodeBadJSON, contractErr.Error())
		case CodeEncode:
			return NewMatrixError(http.StatusInternalServerError, ErrCodeUnknown, contractErr.Error())
		}
	}

	return NewMatrixError(http.StatusInternalServerError, ErrCodeUnknown, err.Error())
}
