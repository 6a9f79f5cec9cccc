package detector

import (
	"context"
	"time"

	"github.com/driftwatch/driftwatch/internal/datastore/entities"
)

// Detector inspects one article against its baselines and appends zero or
// more anomalies to the shared accumulator. Implementations must never
// mutate the article, must silently no-op when their required fields are
// missing, and must not depend on anomalies appended by other detectors.
// A returned error aborts only this detector's contribution for this
// article.
type Detector interface {
	Name() string
	Run(ctx context.Context, article *Article, anomalies *[]Anomaly) error
}

// BaselineSource is the slice of the baseline cache the engagement detector
// consumes. Lookups report absence via ok=false; an error means the backing
// store could not be consulted and must not be read as absence.
type BaselineSource interface {
	GetPrediction(ctx context.Context, date time.Time, chatID, delta int64) (entities.Prediction, bool, error)
	GetStatistics(ctx context.Context, date time.Time, chatID, delta int64, metric string) (entities.Statistic, bool, error)
	GetCoefficients(ctx context.Context, chatID int64) (entities.Coefficient, bool, error)
}

// CountryDirectory resolves the origin country of a source chat. The repost
// detector consults it for the forwarded-from chat.
type CountryDirectory interface {
	ForwardCountry(ctx context.Context, chatID int64) (string, error)
}
