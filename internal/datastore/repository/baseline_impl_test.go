package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/driftwatch/driftwatch/internal/datastore/entities"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A file-backed database sidesteps the per-connection ":memory:" trap.
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "baseline.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&entities.Prediction{},
		&entities.Statistic{},
		&entities.Coefficient{},
	))
	return db
}

func TestPredictionsBetween(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	repo := NewBaselineRepository(db)

	base := time.Date(2023, 10, 25, 14, 0, 0, 0, time.UTC)
	rows := []entities.Prediction{
		{Date: base.Add(-time.Hour), ChatID: 100, Delta: 3600, Views: 900},
		{Date: base, ChatID: 100, Delta: 3600, Views: 1000, ViewsUpper: 1200, ViewsLower: 800},
		{Date: base, ChatID: 200, Delta: 3600, Views: 50},
		{Date: base.Add(time.Hour), ChatID: 100, Delta: 3600, Views: 1100},
		{Date: base.Add(3 * time.Hour), ChatID: 100, Delta: 3600, Views: 1200},
	}
	require.NoError(t, db.Create(&rows).Error)

	got, err := repo.PredictionsBetween(context.Background(), base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3, "range bounds are inclusive on both ends")
	for _, row := range got {
		assert.False(t, row.Date.Before(base))
		assert.False(t, row.Date.After(base.Add(time.Hour)))
	}

	got, err = repo.PredictionsBetween(context.Background(), base.Add(4*time.Hour), base.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStatisticsContaining(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	repo := NewBaselineRepository(db)

	day := time.Date(2023, 10, 25, 0, 0, 0, 0, time.UTC)
	rows := []entities.Statistic{
		{DateFrom: day, DateTo: day.Add(24 * time.Hour), ChatID: 100, Delta: 3600, Metric: "views", Mean: 1.1, Std: 0.2},
		{DateFrom: day.Add(-48 * time.Hour), DateTo: day.Add(-24 * time.Hour), ChatID: 100, Delta: 3600, Metric: "views", Mean: 0.9, Std: 0.1},
		{DateFrom: day, DateTo: day.Add(24 * time.Hour), ChatID: 200, Delta: 3600, Metric: "forwards", Mean: 1.0, Std: 0.3},
	}
	require.NoError(t, db.Create(&rows).Error)

	got, err := repo.StatisticsContaining(context.Background(), day.Add(12*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2, "only windows containing the probe date")
	for _, row := range got {
		assert.False(t, row.DateFrom.After(day.Add(12*time.Hour)))
		assert.False(t, row.DateTo.Before(day.Add(12*time.Hour)))
	}

	// Window bounds are inclusive at the SQL layer; the cache applies its
	// own strict containment on top.
	got, err = repo.StatisticsContaining(context.Background(), day)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.StatisticsContaining(context.Background(), day.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCoefficients(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	repo := NewBaselineRepository(db)

	rows := []entities.Coefficient{
		{ChatID: 100, ForwardsByViews: 0.1, ReactionCountByViews: 0.01, MinimalViewsThreshold: 100},
		{ChatID: 200, ForwardsByViews: 0.2, ReactionCountByViews: 0.02, MinimalViewsThreshold: 50},
	}
	require.NoError(t, db.Create(&rows).Error)

	got, err := repo.Coefficients(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	byChat := make(map[int64]entities.Coefficient, len(got))
	for _, c := range got {
		byChat[c.ChatID] = c
	}
	assert.Equal(t, 0.1, byChat[100].ForwardsByViews)
	assert.Equal(t, float64(50), byChat[200].MinimalViewsThreshold)
}

func TestQueriesHonorContextCancellation(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	repo := NewBaselineRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Coefficients(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
