package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/driftwatch/driftwatch/internal/datastore/entities"
)

// baselineRepository implements BaselineRepository over GORM.
type baselineRepository struct {
	db *gorm.DB
}

// NewBaselineRepository creates a new BaselineRepository.
func NewBaselineRepository(db *gorm.DB) BaselineRepository {
	return &baselineRepository{db: db}
}

// PredictionsBetween returns all prediction rows inside the closed range.
func (r *baselineRepository) PredictionsBetween(ctx context.Context, from, to time.Time) ([]entities.Prediction, error) {
	var rows []entities.Prediction
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions between %s and %s: %w",
			from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return rows, nil
}

// StatisticsContaining returns all statistics windows that contain date.
func (r *baselineRepository) StatisticsContaining(ctx context.Context, date time.Time) ([]entities.Statistic, error) {
	var rows []entities.Statistic
	err := r.db.WithContext(ctx).
		Where("date_from <= ? AND date_to >= ?", date, date).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load statistics for %s: %w", date.Format(time.RFC3339), err)
	}
	return rows, nil
}

// Coefficients returns the full coefficients table.
func (r *baselineRepository) Coefficients(ctx context.Context) ([]entities.Coefficient, error) {
	var rows []entities.Coefficient
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load coefficients: %w", err)
	}
	return rows, nil
}
