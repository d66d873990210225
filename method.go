package mxapi

import "net/http"

// Method is the HTTP verb an endpoint is served under.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPut    Method = http.MethodPut
	MethodPost   Method = http.MethodPost
	MethodDelete Method = http.MethodDelete
)

// IsValid reports whether m is one of the verbs the client-server API uses.
func (m Method) IsValid() bool {
	switch m {
	case MethodGet, MethodPut, MethodPost, MethodDelete:
		return true
	}
	return false
}

// HasBody reports whether requests with this method carry a JSON body.
func (m Method) HasBody() bool {
	return m == MethodPut || m == MethodPost
}

func (m Method) String() string {
	return string(m)
}
