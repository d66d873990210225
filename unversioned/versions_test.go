package unversioned

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broady/mxapi"
)

func TestGetSupportedVersions(t *testing.T) {
	req, err := GetSupportedVersions.NewRequest(mxapi.Empty{}, mxapi.Empty{}, mxapi.Empty{})
	require.NoError(t, err)
	assert.Equal(t, mxapi.MethodGet, req.Method)
	assert.Equal(t, "/_matrix/client/versions", req.Path)
	assert.Empty(t, req.Query)
	assert.Nil(t, req.Body)

	assert.Equal(t, "api_version", GetSupportedVersions.Name())
	assert.False(t, GetSupportedVersions.RequiresAuthentication())
	assert.False(t, GetSupportedVersions.RateLimited())
}

func TestGetSupportedVersions_Response(t *testing.T) {
	res, err := GetSupportedVersions.DecodeResponse([]byte(`{
		"versions": ["r0.0.1", "r0.2.0", "v1.1"],
		"unstable_features": {"org.matrix.e2e_cross_signing": true, "m.lazy_load_members": false}
	}`))
	require.NoError(t, err)
	assert.True(t, res.Supports("r0.2.0"))
	assert.False(t, res.Supports("r0.6.0"))
	assert.True(t, res.Feature("org.matrix.e2e_cross_signing"))
	assert.False(t, res.Feature("m.lazy_load_members"))
	assert.False(t, res.Feature("unknown"))

	res, err = GetSupportedVersions.DecodeResponse([]byte(`{"versions":["r0.2.0"]}`))
	require.NoError(t, err)
	assert.Nil(t, res.UnstableFeatures)

	data, err := GetSupportedVersions.EncodeResponse(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"versions":["r0.2.0"]}`, string(data))

	_, err = GetSupportedVersions.DecodeResponse([]byte(`{}`))
	assert.ErrorIs(t, err, mxapi.ErrDecode)
}
