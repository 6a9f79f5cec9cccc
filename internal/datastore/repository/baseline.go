// Package repository provides read access to the baseline metrics tables.
// The detector service never writes these tables; they are maintained by the
// forecasting pipeline.
package repository

import (
	"context"
	"time"

	"github.com/driftwatch/driftwatch/internal/datastore/entities"
)

// BaselineRepository serves the time/key-bounded reads the prediction cache
// issues on warm-up and refill.
type BaselineRepository interface {
	// PredictionsBetween returns all prediction rows with from <= date <= to.
	PredictionsBetween(ctx context.Context, from, to time.Time) ([]entities.Prediction, error)

	// StatisticsContaining returns all statistics windows containing date
	// (date_from <= date <= date_to).
	StatisticsContaining(ctx context.Context, date time.Time) ([]entities.Statistic, error)

	// Coefficients returns the full coefficients table.
	Coefficients(ctx context.Context) ([]entities.Coefficient, error)
}
