package detector

import (
	"context"

	"github.com/driftwatch/driftwatch/internal/telemetry"
)

// MetricForward is the metric name of the cross-border repost signal.
const MetricForward = "forward"

// unknownCountry is the sentinel for sources whose country is not known.
// Articles or forward sources carrying it are never flagged.
const unknownCountry = "xx"

// RepostDetector flags articles forwarded across country borders: when the
// article's own country and the forwarded-from chat's country are both known
// and differ, it emits a categorical anomaly with full score.
type RepostDetector struct {
	countries CountryDirectory
}

// NewRepostDetector creates the cross-reference detector.
func NewRepostDetector(countries CountryDirectory) *RepostDetector {
	return &RepostDetector{countries: countries}
}

// Name implements Detector.
func (d *RepostDetector) Name() string { return "repost" }

// Run implements Detector.
func (d *RepostDetector) Run(ctx context.Context, article *Article, anomalies *[]Anomaly) error {
	if article.Country == "" || article.ForwardFromChatID == 0 {
		return nil
	}

	forwardCountry, err := d.countries.ForwardCountry(ctx, article.ForwardFromChatID)
	if err != nil {
		return err
	}

	if article.Country == unknownCountry || forwardCountry == unknownCountry || forwardCountry == "" {
		return nil
	}
	if article.Country == forwardCountry {
		return nil
	}

	// Categorical signal: a cross-border forward either happened or not.
	*anomalies = append(*anomalies, Anomaly{
		MetricName:    MetricForward,
		MetricValue:   1,
		ExpectedValue: 0,
		Score:         1.0,
		Weight:        weightDefault,
	})
	telemetry.AnomaliesDetected.WithLabelValues(MetricForward).Inc()
	return nil
}
