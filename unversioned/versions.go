// Package unversioned declares the operations whose paths do not change
// between protocol revisions.
package unversioned

import (
	"errors"
	"slices"

	"github.com/broady/mxapi"
)

// GetSupportedVersionsResponse lists the client-server API versions the
// homeserver speaks. UnstableFeatures advertises optional extensions and is
// absent on older homeservers.
type GetSupportedVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}

func (r *GetSupportedVersionsResponse) Validate() error {
	if r.Versions == nil {
		return errors.New("missing versions")
	}
	return nil
}

// Supports reports whether version is listed.
func (r *GetSupportedVersionsResponse) Supports(version string) bool {
	return slices.Contains(r.Versions, version)
}

// Feature reports whether an unstable feature is advertised and enabled.
func (r *GetSupportedVersionsResponse) Feature(name string) bool {
	return r.UnstableFeatures[name]
}

// GetSupportedVersions is GET /_matrix/client/versions.
var GetSupportedVersions = mxapi.NewEndpoint[mxapi.Empty, mxapi.Empty, mxapi.Empty, GetSupportedVersionsResponse](mxapi.Config{
	Name:        "api_version",
	Description: "Get the versions of the client-server API supported by this homeserver.",
	Method:      mxapi.MethodGet,
	Path:        "/_matrix/client/versions",
})
