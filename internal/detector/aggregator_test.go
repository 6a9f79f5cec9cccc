package detector

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/logger"
)

// stubDetector appends canned anomalies or fails.
type stubDetector struct {
	name      string
	anomalies []Anomaly
	fail      error
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Run(_ context.Context, _ *Article, anomalies *[]Anomaly) error {
	*anomalies = append(*anomalies, s.anomalies...)
	return s.fail
}

// stubLinks resolves canned URLs.
type stubLinks struct {
	urls []string
	fail error

	gotDestination string
	gotQuery       []QueryPair
	gotCenter      time.Time
}

func (s *stubLinks) Resolve(_ context.Context, destination string, query []QueryPair, center time.Time) ([]string, error) {
	s.gotDestination = destination
	s.gotQuery = query
	s.gotCenter = center
	return s.urls, s.fail
}

func testMessage() *Message {
	return &Message{
		Metadata: Metadata{
			ID:          "article-42",
			Method:      "TelegramListener",
			Destination: Destinations{"dm_8_countries_tg"},
		},
		Payload: Article{
			Source:      "@somechannel",
			Date:        Timestamp{time.Date(2023, 10, 25, 14, 50, 0, 0, time.UTC)},
			LoadingDate: Timestamp{time.Date(2023, 10, 25, 14, 56, 37, 0, time.UTC)},
		},
	}
}

func TestAggregator_NoAnomaliesMeansNoAlert(t *testing.T) {
	t.Parallel()
	agg := NewAggregator([]Detector{&stubDetector{name: "quiet"}}, nil, logger.NewNop())
	assert.Nil(t, agg.Run(context.Background(), testMessage()))
}

func TestAggregator_RanksAndSums(t *testing.T) {
	t.Parallel()
	agg := NewAggregator([]Detector{
		&stubDetector{name: "a", anomalies: []Anomaly{
			{MetricName: "forwards_by_views", MetricValue: 0.2, ExpectedValue: 0.1, Score: 0.3},
			{MetricName: "views", MetricValue: 5000, ExpectedValue: 1000, Score: 0.9},
		}},
		&stubDetector{name: "b", anomalies: []Anomaly{
			{MetricName: "forward", MetricValue: 1, ExpectedValue: 0, Score: 0.3},
		}},
	}, nil, logger.NewNop())

	alert := agg.Run(context.Background(), testMessage())
	require.NotNil(t, alert)

	// Descending by score, ties in encounter order.
	require.Len(t, alert.Anomalies, 3)
	assert.Equal(t, "views", alert.Anomalies[0].MetricName)
	assert.Equal(t, "forwards_by_views", alert.Anomalies[1].MetricName)
	assert.Equal(t, "forward", alert.Anomalies[2].MetricName)

	// Total is the exact unclamped sum.
	assert.InDelta(t, 1.5, alert.TotalScore, 1e-9)

	// Headline fields come from the top anomaly.
	assert.Equal(t, "views", alert.FieldName)
	assert.Equal(t, "5000", alert.AnomalyValue)
	assert.Equal(t, "1000", alert.ExpectedValue)

	assert.Equal(t, "article-42", alert.ArticleID)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, time.Date(2023, 10, 25, 14, 56, 37, 0, time.UTC), alert.Date)
}

func TestAggregator_FailedDetectorContributesNothing(t *testing.T) {
	t.Parallel()
	agg := NewAggregator([]Detector{
		&stubDetector{
			name:      "broken",
			anomalies: []Anomaly{{MetricName: "views", Score: 0.9}},
			fail:      assert.AnError,
		},
		&stubDetector{name: "healthy", anomalies: []Anomaly{
			{MetricName: "forward", MetricValue: 1, Score: 1.0},
		}},
	}, nil, logger.NewNop())

	alert := agg.Run(context.Background(), testMessage())
	require.NotNil(t, alert, "one failing detector must not suppress the others")
	require.Len(t, alert.Anomalies, 1)
	assert.Equal(t, "forward", alert.Anomalies[0].MetricName)
}

func TestAggregator_DomainResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		want   string
	}{
		{"TelegramListener", "Telegram"},
		{"TelegramEngagementExecutor", "Telegram"},
		{"opoint", "Web"},
		{"somethingelse", "Unknown"},
		{"", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.method+"→"+tt.want, func(t *testing.T) {
			t.Parallel()
			agg := NewAggregator([]Detector{&stubDetector{
				name:      "a",
				anomalies: []Anomaly{{MetricName: "views", MetricValue: 2, ExpectedValue: 1, Score: 0.5}},
			}}, nil, logger.NewNop())

			msg := testMessage()
			msg.Metadata.Method = tt.method
			alert := agg.Run(context.Background(), msg)
			require.NotNil(t, alert)
			assert.Equal(t, tt.want, alert.Domain)
		})
	}
}

func TestAggregator_LinkResolution(t *testing.T) {
	t.Parallel()

	anomalies := []Anomaly{{MetricName: "views", MetricValue: 2, ExpectedValue: 1, Score: 0.5}}

	t.Run("first link wins", func(t *testing.T) {
		t.Parallel()
		links := &stubLinks{urls: []string{"https://kibana/first", "https://kibana/second"}}
		agg := NewAggregator([]Detector{&stubDetector{name: "a", anomalies: anomalies}}, links, logger.NewNop())

		msg := testMessage()
		msg.Payload.Delta = 3600
		alert := agg.Run(context.Background(), msg)
		require.NotNil(t, alert)

		assert.Equal(t, "https://kibana/first", alert.URL)
		assert.Equal(t, "dm_8_countries_tg", links.gotDestination)
		require.Len(t, links.gotQuery, 2)
		assert.Equal(t, QueryPair{Key: "source", Value: `"@somechannel"`}, links.gotQuery[0])
		assert.Equal(t, QueryPair{Key: "delta", Value: "3600"}, links.gotQuery[1])
		assert.Equal(t, alert.Date, links.gotCenter)
	})

	t.Run("resolver failure leaves URL empty", func(t *testing.T) {
		t.Parallel()
		links := &stubLinks{fail: assert.AnError}
		agg := NewAggregator([]Detector{&stubDetector{name: "a", anomalies: anomalies}}, links, logger.NewNop())

		alert := agg.Run(context.Background(), testMessage())
		require.NotNil(t, alert, "a broken link service must never cost an alert")
		assert.Empty(t, alert.URL)
	})

	t.Run("zero links leave URL empty", func(t *testing.T) {
		t.Parallel()
		agg := NewAggregator([]Detector{&stubDetector{name: "a", anomalies: anomalies}}, &stubLinks{}, logger.NewNop())
		alert := agg.Run(context.Background(), testMessage())
		require.NotNil(t, alert)
		assert.Empty(t, alert.URL)
	})

	t.Run("publication date used when loading date absent", func(t *testing.T) {
		t.Parallel()
		links := &stubLinks{}
		agg := NewAggregator([]Detector{&stubDetector{name: "a", anomalies: anomalies}}, links, logger.NewNop())

		msg := testMessage()
		msg.Payload.LoadingDate = Timestamp{}
		alert := agg.Run(context.Background(), msg)
		require.NotNil(t, alert)
		assert.Equal(t, msg.Payload.Date.Time, links.gotCenter)
	})
}

func TestBuildDescription(t *testing.T) {
	t.Parallel()

	t.Run("single ratio anomaly", func(t *testing.T) {
		t.Parallel()
		anomalies := []Anomaly{{MetricName: "views", MetricValue: 500, ExpectedValue: 100, Score: 0.9}}
		got := buildDescription(anomalies, testMessage(), 0.9)
		assert.Equal(t, "Critical anomaly in views (5.0x higher) found for @somechannel", got)
	})

	t.Run("severity prefixes", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			total float64
			want  string
		}{
			{0.9, "Critical anomaly"},
			{0.76, "Critical anomaly"},
			{0.75, "Major anomaly"},
			{0.3, "Major anomaly"},
			{0.25, "Minor anomaly"},
			{0.1, "Minor anomaly"},
			{0, "Warning anomaly"},
		}
		anomalies := []Anomaly{{MetricName: "views", MetricValue: 2, ExpectedValue: 1}}
		for _, tt := range tests {
			got := buildDescription(anomalies, testMessage(), tt.total)
			assert.Contains(t, got, tt.want, "total %v", tt.total)
		}
	})

	t.Run("multiple anomalies joined with and", func(t *testing.T) {
		t.Parallel()
		anomalies := []Anomaly{
			{MetricName: "views", MetricValue: 500, ExpectedValue: 100},
			{MetricName: "forwards_by_views", MetricValue: 0.2, ExpectedValue: 0.1},
			{MetricName: "forward", MetricValue: 1, ExpectedValue: 0},
		}
		got := buildDescription(anomalies, testMessage(), 2.0)
		assert.Equal(t,
			"Critical anomaly in views (5.0x higher), forwards_by_views (2.0x higher) "+
				"and forward (0.00x expected) found for @somechannel",
			got)
	})

	t.Run("categorical anomaly renders its value", func(t *testing.T) {
		t.Parallel()
		anomalies := []Anomaly{{MetricName: "forward", CategoryValue: "cross-border", Score: 1}}
		got := buildDescription(anomalies, testMessage(), 1)
		assert.Equal(t, "Critical anomaly in forward is cross-border found for @somechannel", got)
	})

	t.Run("delta suffix", func(t *testing.T) {
		t.Parallel()
		msg := testMessage()
		msg.Payload.Delta = 3600
		anomalies := []Anomaly{{MetricName: "views", MetricValue: 500, ExpectedValue: 100}}
		got := buildDescription(anomalies, msg, 0.9)
		assert.Equal(t,
			"Critical anomaly in views (5.0x higher) found for @somechannel 3600 seconds after publication",
			got)
	})
}

func TestAlertRecord_RoundTrip(t *testing.T) {
	t.Parallel()

	alert := Alert{
		ID:            "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Date:          time.Date(2023, 10, 25, 14, 56, 37, 0, time.UTC),
		TotalScore:    1.7311,
		Domain:        "Telegram",
		Source:        "@somechannel",
		Description:   "Critical anomaly in views (5.0x higher) found for @somechannel",
		URL:           "https://kibana/discover",
		FieldName:     "views",
		AnomalyValue:  "500",
		ExpectedValue: "100",
		ArticleID:     "article-42",
		Anomalies: []Anomaly{
			{MetricName: "views", MetricValue: 500, ExpectedValue: 100, Score: 0.9311, Weight: 200},
			{MetricName: "forward", MetricValue: 1, ExpectedValue: 0, Score: 0.8, Weight: 100},
		},
	}

	payload, err := json.Marshal(alert.Record())
	require.NoError(t, err)

	var decoded AlertRecord
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, alert.Record(), decoded)
	require.Len(t, decoded.AllAnomalies, 2)
	assert.Equal(t, "views", decoded.AllAnomalies[0].MetricName, "anomaly order must survive transport")
	assert.Equal(t, "500", decoded.AllAnomalies[0].MetricValue)
	assert.Equal(t, "0.9311", decoded.AllAnomalies[0].Score)
	assert.Equal(t, "200", decoded.AllAnomalies[0].Weight)
	assert.Equal(t, "forward", decoded.AllAnomalies[1].MetricName)
	assert.Equal(t, "1.7311", decoded.Score)
}
