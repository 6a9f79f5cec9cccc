package detector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driftwatch/driftwatch/internal/logger"
	"github.com/driftwatch/driftwatch/internal/telemetry"
)

// domainByMethod maps the envelope's ingestion method onto the alert domain.
var domainByMethod = map[string]string{
	"TelegramEngagementExecutor": "Telegram",
	"TelegramListener":           "Telegram",
	"opoint":                     "Web",
}

// domainUnknown is the alert domain for unrecognized ingestion methods.
const domainUnknown = "Unknown"

// Severity thresholds against the raw total score. The total is a plain sum
// of per-anomaly scores and exceeds 1.0 when several detectors fire; the
// thresholds are calibrated against that sum, so it must not be normalized.
const (
	severityCritical = 0.75
	severityMajor    = 0.25
)

// QueryPair is one equality term of a deep-link query. Order is significant:
// terms appear in the generated link in slice order.
type QueryPair struct {
	Key   string
	Value string
}

// LinkResolver resolves deep links into the search UI for an alert. Zero
// links is a valid response; errors are treated as "no link available".
type LinkResolver interface {
	Resolve(ctx context.Context, destination string, query []QueryPair, center time.Time) ([]string, error)
}

// Aggregator runs every configured detector over one article and folds their
// findings into a single ranked alert.
type Aggregator struct {
	detectors []Detector
	links     LinkResolver // nil disables deep links
	log       logger.Logger
}

// NewAggregator creates an Aggregator. The detector order fixes the
// encounter order used for stable score ties.
func NewAggregator(detectors []Detector, links LinkResolver, log logger.Logger) *Aggregator {
	return &Aggregator{detectors: detectors, links: links, log: log}
}

// Run evaluates one pipeline message. A nil alert means no anomalies were
// found, which is the common case and not an error. Failing detectors are
// logged and contribute nothing; they never suppress other detectors'
// findings.
func (a *Aggregator) Run(ctx context.Context, msg *Message) *Alert {
	var anomalies []Anomaly
	for _, det := range a.detectors {
		// Each detector gets a scratch accumulator so a mid-run failure
		// discards its whole contribution, not just the unfinished part.
		var found []Anomaly
		if err := det.Run(ctx, &msg.Payload, &found); err != nil {
			telemetry.DetectorFailures.WithLabelValues(det.Name()).Inc()
			a.log.Warn("detector failed, dropping its contribution",
				logger.String("detector", det.Name()),
				logger.String("article_id", msg.Metadata.ID),
				logger.Error(err))
			continue
		}
		anomalies = append(anomalies, found...)
	}
	if len(anomalies) == 0 {
		return nil
	}

	// Rank by score, keeping encounter order on ties.
	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Score > anomalies[j].Score
	})

	var total float64
	for i := range anomalies {
		total += anomalies[i].Score
	}

	top := &anomalies[0]
	date := msg.EffectiveDate()

	return &Alert{
		ID:            uuid.NewString(),
		Date:          date,
		TotalScore:    total,
		Domain:        resolveDomain(msg.Metadata.Method),
		Source:        msg.Payload.Source,
		Description:   buildDescription(anomalies, msg, total),
		URL:           a.resolveURL(ctx, msg, date),
		FieldName:     top.MetricName,
		AnomalyValue:  top.Record().MetricValue,
		ExpectedValue: top.Record().ExpectedValue,
		ArticleID:     msg.Metadata.ID,
		Anomalies:     anomalies,
	}
}

func resolveDomain(method string) string {
	if domain, ok := domainByMethod[method]; ok {
		return domain
	}
	return domainUnknown
}

// resolveURL asks the link resolver for deep links and takes the first one.
// Any failure downgrades to "no link available"; an alert is never lost to
// a broken link service.
func (a *Aggregator) resolveURL(ctx context.Context, msg *Message, date time.Time) string {
	if a.links == nil || len(msg.Metadata.Destination) == 0 {
		return ""
	}

	query := []QueryPair{{Key: "source", Value: strconv.Quote(msg.Payload.Source)}}
	if msg.Payload.Delta != 0 {
		query = append(query, QueryPair{Key: "delta", Value: strconv.FormatInt(msg.Payload.Delta, 10)})
	}

	urls, err := a.links.Resolve(ctx, msg.Metadata.Destination[0], query, date)
	if err != nil {
		a.log.Warn("deep link resolution failed",
			logger.String("article_id", msg.Metadata.ID),
			logger.Error(err))
		return ""
	}
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// buildDescription renders the deterministic alert summary: a severity
// prefix from the total score, one clause per anomaly, and an optional
// publication-delta suffix.
func buildDescription(anomalies []Anomaly, msg *Message, total float64) string {
	var prefix string
	switch {
	case total > severityCritical:
		prefix = "Critical anomaly"
	case total > severityMajor:
		prefix = "Major anomaly"
	case total > 0:
		prefix = "Minor anomaly"
	default:
		prefix = "Warning anomaly"
	}

	points := make([]string, 0, len(anomalies))
	for i := range anomalies {
		points = append(points, describeAnomaly(&anomalies[i]))
	}

	var joined string
	if len(points) == 1 {
		joined = points[0]
	} else {
		joined = strings.Join(points[:len(points)-1], ", ") + " and " + points[len(points)-1]
	}

	text := fmt.Sprintf("%s in %s found for %s", prefix, joined, msg.Payload.Source)
	if msg.Payload.Delta != 0 {
		text += fmt.Sprintf(" %d seconds after publication", msg.Payload.Delta)
	}
	return text
}

func describeAnomaly(a *Anomaly) string {
	if a.CategoryValue != "" {
		return fmt.Sprintf("%s is %s", a.MetricName, a.CategoryValue)
	}
	// Expected value of exactly zero cannot express a ratio.
	if a.ExpectedValue == 0 {
		return fmt.Sprintf("%s (%.2fx expected)", a.MetricName, a.ExpectedValue)
	}
	return fmt.Sprintf("%s (%.1fx higher)", a.MetricName, a.MetricValue/a.ExpectedValue)
}
