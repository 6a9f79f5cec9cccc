package kibana

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/driftwatch/driftwatch/internal/detector"
)

// linkTimeWindow is the Discover time window placed around the alert date.
const linkTimeWindow = 5 * time.Minute

// linkTimeFormat is the timestamp format Kibana expects in the _g time range.
const linkTimeFormat = "2006-01-02T15:04:05.000Z"

// LinkGenerator builds Discover deep links for alerts. It implements
// detector.LinkResolver.
type LinkGenerator struct {
	baseURL string
	objects *ObjectCache
}

// NewLinkGenerator creates a LinkGenerator over the given object cache.
func NewLinkGenerator(baseURL string, objects *ObjectCache) *LinkGenerator {
	return &LinkGenerator{baseURL: baseURL, objects: objects}
}

// Resolve returns one Discover URL per data view registered for the
// destination index, each scoped to a ±5 minute window around center.
// An index with no data views yields zero links, which is not an error.
func (g *LinkGenerator) Resolve(ctx context.Context, destination string, query []detector.QueryPair, center time.Time) ([]string, error) {
	views, err := g.objects.DataViewsByIndex(ctx, destination)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}

	kuery := buildQuery(query)
	from := center.Add(-linkTimeWindow)
	to := center.Add(linkTimeWindow)

	// Deterministic link order regardless of map iteration.
	viewIDs := make([]string, 0, len(views))
	for viewID := range views {
		viewIDs = append(viewIDs, viewID)
	}
	sort.Strings(viewIDs)

	urls := make([]string, 0, len(viewIDs))
	for _, viewID := range viewIDs {
		urls = append(urls, g.buildURL(kuery, views[viewID], viewID, from, to))
	}
	return urls, nil
}

// buildQuery renders the equality terms as a KQL conjunction. Values are
// passed through as-is; callers quote string values themselves.
func buildQuery(query []detector.QueryPair) string {
	terms := make([]string, 0, len(query))
	for _, pair := range query {
		terms = append(terms, fmt.Sprintf("%s : %s", pair.Key, pair.Value))
	}
	return strings.Join(terms, " and ")
}

func (g *LinkGenerator) buildURL(kuery, spaceID, viewID string, from, to time.Time) string {
	return fmt.Sprintf(
		"%s/s/%s/app/discover#/?_g=(time:(from:'%s',to:'%s'))&_a=(index:%s,query:(language:kuery,query:'%s'))",
		g.baseURL, spaceID,
		from.UTC().Format(linkTimeFormat), to.UTC().Format(linkTimeFormat),
		viewID, url.QueryEscape(kuery))
}
