// Package kibana resolves deep links into the Kibana Discover UI. Space and
// data-view identifiers are fetched over the Kibana REST API and cached with
// a long TTL, since they change about as often as dashboards are rebuilt.
package kibana

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/driftwatch/driftwatch/internal/errors"
	"github.com/driftwatch/driftwatch/internal/logger"
)

const defaultObjectTTL = 24 * time.Hour

// DataViews maps data-view IDs to the space each lives in, for one index.
type DataViews map[string]string

// ObjectCache caches the index → data-views mapping assembled from the
// Kibana spaces and data-views APIs.
type ObjectCache struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Logger

	objects *gocache.Cache
	mu      sync.Mutex // serializes full re-setups on miss
}

// NewObjectCache creates an ObjectCache. A zero ttl uses the default of one
// day. No eager setup is performed: the first lookup populates the cache, so
// construction cannot fail on a Kibana outage.
func NewObjectCache(baseURL, apiKey string, ttl time.Duration, log logger.Logger) *ObjectCache {
	if ttl <= 0 {
		ttl = defaultObjectTTL
	}
	return &ObjectCache{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
		objects: gocache.New(ttl, ttl/2),
	}
}

// DataViewsByIndex returns the data views registered for an index. A miss
// triggers one full re-setup before reporting absence.
func (c *ObjectCache) DataViewsByIndex(ctx context.Context, index string) (DataViews, error) {
	if v, found := c.objects.Get(index); found {
		return v.(DataViews), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.objects.Get(index); found {
		return v.(DataViews), nil
	}

	if err := c.setup(ctx); err != nil {
		return nil, err
	}

	if v, found := c.objects.Get(index); found {
		return v.(DataViews), nil
	}
	return nil, nil
}

// setup rebuilds the whole index → data-views mapping.
func (c *ObjectCache) setup(ctx context.Context) error {
	spaces, err := c.fetchSpaces(ctx)
	if err != nil {
		return err
	}

	objects := make(map[string]DataViews)
	for _, space := range spaces {
		views, err := c.fetchDataViews(ctx, space)
		if err != nil {
			return err
		}
		for index, viewID := range views {
			if objects[index] == nil {
				objects[index] = make(DataViews)
			}
			objects[index][viewID] = space
		}
	}

	for index, views := range objects {
		c.objects.SetDefault(index, views)
	}
	c.log.Debug("kibana object cache rebuilt",
		logger.Int("spaces", len(spaces)),
		logger.Int("indexes", len(objects)))
	return nil
}

func (c *ObjectCache) fetchSpaces(ctx context.Context) ([]string, error) {
	var spaces []struct {
		ID string `json:"id"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/api/spaces/space", &spaces); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(spaces))
	for _, s := range spaces {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// fetchDataViews returns index-title → data-view-id for one space.
func (c *ObjectCache) fetchDataViews(ctx context.Context, spaceID string) (map[string]string, error) {
	var resp struct {
		DataView []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"data_view"`
	}
	url := fmt.Sprintf("%s/s/%s/api/data_views", c.baseURL, spaceID)
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	views := make(map[string]string, len(resp.DataView))
	for _, dv := range resp.DataView {
		views[dv.Title] = dv.ID
	}
	return views, nil
}

func (c *ObjectCache) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build kibana request: %w", err)
	}
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.New(fmt.Errorf("kibana request %s: %w", url, err)).
			Component("kibana").Category(errors.CategoryNetwork).Build()
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("kibana request %s: status %d: %s", url, resp.StatusCode, body).
			Component("kibana").Category(errors.CategoryNetwork).Build()
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode kibana response from %s: %w", url, err)
	}
	return nil
}
