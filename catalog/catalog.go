// Package catalog assembles every declared client-server operation into one
// immutable mxapi.Catalog.
package catalog

import (
	"sync"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/r0"
	"github.com/broady/mxapi/unversioned"
)

var defaultCatalog = sync.OnceValue(func() *mxapi.Catalog {
	return mxapi.MustCatalog(Endpoints()...)
})

// Endpoints returns every operation in declaration order.
func Endpoints() []mxapi.Descriptor {
	return []mxapi.Descriptor{
		r0.RedactEvent,
		r0.GetStateEvents,
		r0.GetStateEventsForEmptyKey,
		r0.GetStateEventsForKey,
		r0.GetMemberEvents,
		r0.GetMessageEvents,
		r0.Sync,
		r0.CreateTypingEvent,
		unversioned.GetSupportedVersions,
	}
}

// Default returns the catalog of all operations. It is built once.
func Default() *mxapi.Catalog {
	return defaultCatalog()
}
