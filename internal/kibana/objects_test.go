package kibana

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/logger"
)

const testBaseURL = "https://kibana.example.com"

// mockKibanaAPI registers the spaces and data-views endpoints for a small
// two-space deployment where the telegram index exists in both spaces.
func mockKibanaAPI(t *testing.T, cache *ObjectCache) {
	t.Helper()
	httpmock.ActivateNonDefault(cache.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/api/spaces/space",
		httpmock.NewStringResponder(http.StatusOK,
			`[{"id": "default", "name": "Default"}, {"id": "ops", "name": "Operations"}]`))

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/s/default/api/data_views",
		httpmock.NewStringResponder(http.StatusOK,
			`{"data_view": [
				{"id": "view-tg-default", "title": "dm_8_countries_tg"},
				{"id": "view-web-default", "title": "dm_8_countries_web"}
			]}`))

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/s/ops/api/data_views",
		httpmock.NewStringResponder(http.StatusOK,
			`{"data_view": [{"id": "view-tg-ops", "title": "dm_8_countries_tg"}]}`))
}

func TestObjectCache_DataViewsByIndex(t *testing.T) {
	cache := NewObjectCache(testBaseURL, "secret", time.Hour, logger.NewNop())
	mockKibanaAPI(t, cache)

	views, err := cache.DataViewsByIndex(context.Background(), "dm_8_countries_tg")
	require.NoError(t, err)
	assert.Equal(t, DataViews{"view-tg-default": "default", "view-tg-ops": "ops"}, views)

	views, err = cache.DataViewsByIndex(context.Background(), "dm_8_countries_web")
	require.NoError(t, err)
	assert.Equal(t, DataViews{"view-web-default": "default"}, views)

	// Both lookups were served by the single setup round.
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestObjectCache_UnknownIndexRetriesSetupOnce(t *testing.T) {
	cache := NewObjectCache(testBaseURL, "secret", time.Hour, logger.NewNop())
	mockKibanaAPI(t, cache)

	views, err := cache.DataViewsByIndex(context.Background(), "no_such_index")
	require.NoError(t, err)
	assert.Nil(t, views)
	assert.Equal(t, 3, httpmock.GetTotalCallCount(), "miss triggers exactly one setup round")
}

func TestObjectCache_SendsAPIKeyHeader(t *testing.T) {
	cache := NewObjectCache(testBaseURL, "secret", time.Hour, logger.NewNop())
	httpmock.ActivateNonDefault(cache.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	var gotAuth string
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/api/spaces/space",
		func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			return httpmock.NewStringResponse(http.StatusOK, `[]`), nil
		})

	_, err := cache.DataViewsByIndex(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "ApiKey secret", gotAuth)
}

func TestObjectCache_PropagatesHTTPFailure(t *testing.T) {
	cache := NewObjectCache(testBaseURL, "secret", time.Hour, logger.NewNop())
	httpmock.ActivateNonDefault(cache.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/api/spaces/space",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error": "missing credentials"}`))

	_, err := cache.DataViewsByIndex(context.Background(), "dm_8_countries_tg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestObjectCache_DefaultTTL(t *testing.T) {
	t.Parallel()
	cache := NewObjectCache(testBaseURL, "secret", 0, logger.NewNop())
	require.NotNil(t, cache.objects)
}
