package detector

import (
	"context"
	"math"

	"github.com/driftwatch/driftwatch/internal/telemetry"
)

// Metric names emitted by the engagement detector.
const (
	MetricForwardsByViews      = "forwards_by_views"
	MetricReactionCountByViews = "reaction_count_by_views"
	MetricViews                = "views"
)

// EngagementDetector flags articles whose engagement metrics deviate from
// the chat's baselines: static engagement ratios against per-chat
// coefficients, and observed views against the predicted-views band.
type EngagementDetector struct {
	baselines BaselineSource
}

// NewEngagementDetector creates the metric-deviation detector.
func NewEngagementDetector(baselines BaselineSource) *EngagementDetector {
	return &EngagementDetector{baselines: baselines}
}

// Name implements Detector.
func (d *EngagementDetector) Name() string { return "engagement" }

// Run implements Detector.
func (d *EngagementDetector) Run(ctx context.Context, article *Article, anomalies *[]Anomaly) error {
	if !d.hasRequiredFields(article) {
		return nil
	}

	coefficients, ok, err := d.baselines.GetCoefficients(ctx, article.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		// No baseline for this chat: nothing to evaluate.
		return nil
	}

	// Low-traffic articles are not evaluated for ratio anomalies.
	if float64(article.Views) < coefficients.MinimalViewsThreshold {
		return nil
	}

	views := float64(article.Views)

	d.checkStaticRatio(anomalies, MetricForwardsByViews,
		float64(article.Forwards)/views, coefficients.ForwardsByViews)
	d.checkStaticRatio(anomalies, MetricReactionCountByViews,
		float64(article.ReactionCount)/views, coefficients.ReactionCountByViews)

	return d.checkPredicted(ctx, article, anomalies)
}

// hasRequiredFields reports whether every field this detector reads is
// present and non-zero. Zero views can never reach the ratio divisions.
func (d *EngagementDetector) hasRequiredFields(article *Article) bool {
	return article.ChatID != 0 &&
		article.Delta != 0 &&
		!article.LoadingDate.IsZero() &&
		article.Views > 0 &&
		article.Forwards > 0 &&
		article.ReactionCount > 0
}

func (d *EngagementDetector) checkStaticRatio(anomalies *[]Anomaly, metric string, observed, expected float64) {
	if observed <= expected {
		return
	}
	*anomalies = append(*anomalies, Anomaly{
		MetricName:    metric,
		MetricValue:   observed,
		ExpectedValue: expected,
		Score:         staticRatioScore(observed, expected),
		Weight:        weightStaticMetrics,
	})
	telemetry.AnomaliesDetected.WithLabelValues(metric).Inc()
}

func (d *EngagementDetector) checkPredicted(ctx context.Context, article *Article, anomalies *[]Anomaly) error {
	date := article.LoadingDate.Time

	prediction, ok, err := d.baselines.GetPrediction(ctx, date, article.ChatID, article.Delta)
	if err != nil {
		return err
	}
	if !ok {
		// No prediction bucket for this article: nothing to compare against.
		return nil
	}

	statistic, hasStats, err := d.baselines.GetStatistics(ctx, date, article.ChatID, article.Delta, MetricViews)
	if err != nil {
		return err
	}

	views := float64(article.Views)
	if views <= prediction.ViewsUpper || prediction.Views <= 0 {
		return nil
	}

	deviation := views / prediction.Views
	z := deviation
	if hasStats && statistic.Std > 0 {
		z = (deviation - statistic.Mean) / statistic.Std
	}

	*anomalies = append(*anomalies, Anomaly{
		MetricName:    MetricViews,
		MetricValue:   views,
		ExpectedValue: prediction.Views,
		Score:         predictedMetricScore(z),
		Weight:        weightPredictedMetrics,
	})
	telemetry.AnomaliesDetected.WithLabelValues(MetricViews).Inc()
	return nil
}

// staticRatioScore maps a ratio deviation above its expected coefficient
// into (0, 1) with a steep sigmoid: deviations far above the expectation
// approach 1.
func staticRatioScore(deviation, expected float64) float64 {
	return 1 / (1 + math.Exp((expected-deviation)*10))
}

// predictedMetricScore maps a z-scored views deviation into (0, 1). The
// offset shifts the midpoint so only strong deviations score high.
func predictedMetricScore(z float64) float64 {
	const (
		xStretch = 1.5
		xOffset  = 2
	)
	return 1 / (1 + math.Exp(-z/xStretch+xOffset))
}
