// Package detector implements the anomaly detection core: the detector
// capability interface, its two variants, and the aggregator that folds
// detector findings into one ranked alert per article.
package detector

import (
	"strconv"
	"time"
)

// Detector weights, carried on anomalies for output-schema compatibility.
// Weights are informational only: ranking uses the score alone.
const (
	weightPredictedMetrics = 200
	weightStaticMetrics    = 100
	weightDefault          = 100
)

// Anomaly is one detected deviation. Immutable once created: the emitting
// detector owns it until it is handed to the aggregator.
type Anomaly struct {
	MetricName    string
	MetricValue   float64
	ExpectedValue float64
	Score         float64 // in [0, 1], detector-produced, not normalized across detectors
	Weight        int

	// CategoryValue marks a categorical signal. When set, descriptions
	// render "<metric> is <value>" instead of a ratio.
	CategoryValue string
}

// AnomalyRecord is the transport form of an Anomaly: every value serialized
// as a string.
type AnomalyRecord struct {
	MetricName    string `json:"metric_name"`
	MetricValue   string `json:"metric_value"`
	ExpectedValue string `json:"expected_value"`
	Score         string `json:"score"`
	Weight        string `json:"weight"`
}

// Record converts the anomaly to its transport form.
func (a *Anomaly) Record() AnomalyRecord {
	value := formatFloat(a.MetricValue)
	if a.CategoryValue != "" {
		value = a.CategoryValue
	}
	return AnomalyRecord{
		MetricName:    a.MetricName,
		MetricValue:   value,
		ExpectedValue: formatFloat(a.ExpectedValue),
		Score:         formatFloat(a.Score),
		Weight:        strconv.Itoa(a.Weight),
	}
}

// Alert is the aggregated, ranked result for one article. Created once per
// article with at least one anomaly; never mutated after construction.
type Alert struct {
	ID   string
	Date time.Time

	// TotalScore is the plain sum of constituent anomaly scores. It is
	// deliberately not normalized into [0, 1]: the severity thresholds in
	// the description generator are calibrated against the raw sum.
	TotalScore float64

	Domain string
	Source string

	Description string
	URL         string // empty when no deep link could be resolved

	// Headline fields, taken from the highest-scoring anomaly.
	FieldName     string
	AnomalyValue  string
	ExpectedValue string

	ArticleID string

	// Anomalies is sorted descending by score; ties keep encounter order.
	Anomalies []Anomaly
}

// AlertRecord is the alert's transport form: every value serialized as a
// string, as downstream consumers expect.
type AlertRecord struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	Score         string          `json:"score"`
	Domain        string          `json:"domain"`
	Source        string          `json:"source"`
	Description   string          `json:"description"`
	URL           string          `json:"url"`
	FieldName     string          `json:"field_name"`
	AnomalyValue  string          `json:"anomaly_value"`
	ExpectedValue string          `json:"expected_value"`
	ArticleID     string          `json:"article_id"`
	AllAnomalies  []AnomalyRecord `json:"all_anomalies"`
}

// Record converts the alert to its transport form, preserving anomaly order.
func (a *Alert) Record() AlertRecord {
	anomalies := make([]AnomalyRecord, 0, len(a.Anomalies))
	for i := range a.Anomalies {
		anomalies = append(anomalies, a.Anomalies[i].Record())
	}
	return AlertRecord{
		ID:            a.ID,
		Date:          a.Date.Format(timestampLayout),
		Score:         formatFloat(a.TotalScore),
		Domain:        a.Domain,
		Source:        a.Source,
		Description:   a.Description,
		URL:           a.URL,
		FieldName:     a.FieldName,
		AnomalyValue:  a.AnomalyValue,
		ExpectedValue: a.ExpectedValue,
		ArticleID:     a.ArticleID,
		AllAnomalies:  anomalies,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
