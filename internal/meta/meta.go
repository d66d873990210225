package meta

import "reflect"

// EndpointMetadata holds the runtime metadata for one endpoint descriptor.
// This type is internal so it cannot be instantiated by external packages,
// which keeps descriptors the only source of truth for it.
type EndpointMetadata struct {
	Name        string
	Description string
	Method      string
	Path        string
	Params      []string

	PathParams  reflect.Type
	QueryParams reflect.Type
	BodyParams  reflect.Type
	Response    reflect.Type

	RequiresAuthentication bool
	RateLimited            bool
}
