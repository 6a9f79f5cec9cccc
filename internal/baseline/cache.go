// Package baseline maintains the read-through, time-windowed caches over the
// three baseline tables: predictions, rolling statistics, and per-chat
// coefficients. Each cache has its own size and retention policy and its own
// refill-on-miss behavior; a miss triggers exactly one bounded re-fetch from
// the metrics database before being treated as a true absence.
package baseline

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/driftwatch/driftwatch/internal/conf"
	"github.com/driftwatch/driftwatch/internal/datastore/entities"
	"github.com/driftwatch/driftwatch/internal/datastore/repository"
	"github.com/driftwatch/driftwatch/internal/errors"
	"github.com/driftwatch/driftwatch/internal/logger"
	"github.com/driftwatch/driftwatch/internal/telemetry"
)

const (
	cachePredictions  = "predictions"
	cacheStatistics   = "statistics"
	cacheCoefficients = "coefficients"

	lookupHit    = "hit"
	lookupMiss   = "miss"
	lookupAbsent = "absent"

	refillOK     = "ok"
	refillFailed = "failed"
)

// Clock supplies the current time. Injectable so window anchoring is
// deterministic in tests.
type Clock func() time.Time

// Config carries the cache sizing and window policy.
type Config struct {
	// PredictionStep is the bucketing step prediction rows are keyed by.
	PredictionStep time.Duration

	// PredictionSize caps the prediction cache entry count. Inserts beyond
	// the cap are skipped until retention expiry frees room.
	PredictionSize int
	// PredictionUpdateWindow bounds the date range of a prediction refill.
	PredictionUpdateWindow time.Duration
	// PredictionRetention is the TTL of a prediction entry from insertion.
	PredictionRetention time.Duration

	// SmallSize caps the statistics and coefficients caches.
	SmallSize int
	// SmallRetention is the TTL of statistics and coefficient entries.
	SmallRetention time.Duration

	// QueryTimeout bounds each refill round trip to the database.
	QueryTimeout time.Duration
}

// ConfigFromSettings maps the service configuration onto a cache Config.
func ConfigFromSettings(s *conf.Settings) Config {
	return Config{
		PredictionStep:         time.Duration(s.Cache.PredictionStepMinutes) * time.Minute,
		PredictionSize:         s.Cache.PredictionSize,
		PredictionUpdateWindow: s.Cache.PredictionUpdateWindow.Std(),
		PredictionRetention:    s.Cache.PredictionRetentionWindow.Std(),
		SmallSize:              s.Cache.SmallSize,
		SmallRetention:         s.Cache.SmallRetentionWindow.Std(),
		QueryTimeout:           s.Database.QueryTimeout.Std(),
	}
}

// withDefaults fills zero fields with the production defaults.
func (c Config) withDefaults() Config {
	// Bucket arithmetic works in whole minutes; a sub-minute step would
	// divide by zero.
	if c.PredictionStep < time.Minute {
		c.PredictionStep = 5 * time.Minute
	}
	if c.PredictionSize <= 0 {
		c.PredictionSize = 500000
	}
	if c.PredictionUpdateWindow <= 0 {
		c.PredictionUpdateWindow = time.Hour
	}
	if c.PredictionRetention <= 0 {
		c.PredictionRetention = time.Hour
	}
	if c.SmallSize <= 0 {
		c.SmallSize = 10000
	}
	if c.SmallRetention <= 0 {
		c.SmallRetention = time.Hour
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
	return c
}

// Cache serves prediction, statistics and coefficient lookups with bounded
// staleness. Lookups are cheap; a miss takes the per-cache refill mutex so
// concurrent consumers never race duplicate refills against the same table.
type Cache struct {
	repo repository.BaselineRepository
	log  logger.Logger
	now  Clock
	cfg  Config

	predictions  *gocache.Cache
	statistics   *gocache.Cache
	coefficients *gocache.Cache

	// One refill mutex per cache key space. Refill cost dominates lookup
	// cost, so a whole-cache lock is sufficient.
	predMu sync.Mutex
	statMu sync.Mutex
	coefMu sync.Mutex
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock used for window anchoring.
func WithClock(now Clock) Option {
	return func(c *Cache) { c.now = now }
}

// New creates the cache and eagerly warms all three key spaces so the first
// lookups after startup hit. A warm-up failure is returned to the caller:
// starting with a silently cold cache would make every article look
// baseline-free.
func New(ctx context.Context, repo repository.BaselineRepository, cfg Config, log logger.Logger, opts ...Option) (*Cache, error) {
	cfg = cfg.withDefaults()
	c := &Cache{
		repo:         repo,
		log:          log,
		now:          time.Now,
		cfg:          cfg,
		predictions:  gocache.New(cfg.PredictionRetention, cfg.PredictionRetention/2),
		statistics:   gocache.New(cfg.SmallRetention, cfg.SmallRetention/2),
		coefficients: gocache.New(cfg.SmallRetention, cfg.SmallRetention/2),
	}
	for _, opt := range opts {
		opt(c)
	}

	now := c.now()
	if err := c.refillPredictions(ctx, now); err != nil {
		return nil, err
	}
	if err := c.refillStatistics(ctx, now); err != nil {
		return nil, err
	}
	if err := c.refillCoefficients(ctx); err != nil {
		return nil, err
	}

	log.Info("baseline caches warmed",
		logger.Int("predictions", c.predictions.ItemCount()),
		logger.Int("statistics", c.statistics.ItemCount()),
		logger.Int("coefficients", c.coefficients.ItemCount()))
	return c, nil
}

// Bucket rounds date down to the prediction step: minute - minute%step with
// seconds zeroed. Rounding is idempotent.
func (c *Cache) Bucket(date time.Time) time.Time {
	step := int(c.cfg.PredictionStep / time.Minute)
	return time.Date(date.Year(), date.Month(), date.Day(), date.Hour(),
		date.Minute()-date.Minute()%step, 0, 0, date.Location())
}

// GetPrediction returns the prediction for the bucket containing date.
// On a miss it performs one windowed refill around the bucket and re-checks
// exactly once; a second miss is a true absence, reported via ok=false.
// A refill failure is returned: absence must never be fabricated from a
// database error.
func (c *Cache) GetPrediction(ctx context.Context, date time.Time, chatID, delta int64) (entities.Prediction, bool, error) {
	bucket := c.Bucket(date)
	key := predictionKey(bucket, chatID, delta)

	if v, found := c.predictions.Get(key); found {
		telemetry.CacheLookups.WithLabelValues(cachePredictions, lookupHit).Inc()
		return v.(entities.Prediction), true, nil
	}
	telemetry.CacheLookups.WithLabelValues(cachePredictions, lookupMiss).Inc()

	c.predMu.Lock()
	defer c.predMu.Unlock()

	// Another consumer may have refilled the same window while we waited.
	if v, found := c.predictions.Get(key); found {
		return v.(entities.Prediction), true, nil
	}

	if err := c.refillPredictions(ctx, bucket); err != nil {
		return entities.Prediction{}, false, err
	}

	if v, found := c.predictions.Get(key); found {
		return v.(entities.Prediction), true, nil
	}
	telemetry.CacheLookups.WithLabelValues(cachePredictions, lookupAbsent).Inc()
	return entities.Prediction{}, false, nil
}

// GetStatistics returns the statistics window containing date for the given
// chat, delta and metric. Containment is strict (date_from < date < date_to);
// when several cached windows qualify the latest-ending one wins. Miss
// handling mirrors GetPrediction: one refill anchored at date, one re-scan.
func (c *Cache) GetStatistics(ctx context.Context, date time.Time, chatID, delta int64, metric string) (entities.Statistic, bool, error) {
	if stat, found := c.scanStatistics(date, chatID, delta, metric); found {
		telemetry.CacheLookups.WithLabelValues(cacheStatistics, lookupHit).Inc()
		return stat, true, nil
	}
	telemetry.CacheLookups.WithLabelValues(cacheStatistics, lookupMiss).Inc()

	c.statMu.Lock()
	defer c.statMu.Unlock()

	if stat, found := c.scanStatistics(date, chatID, delta, metric); found {
		return stat, true, nil
	}

	if err := c.refillStatistics(ctx, date); err != nil {
		return entities.Statistic{}, false, err
	}

	if stat, found := c.scanStatistics(date, chatID, delta, metric); found {
		return stat, true, nil
	}
	telemetry.CacheLookups.WithLabelValues(cacheStatistics, lookupAbsent).Inc()
	return entities.Statistic{}, false, nil
}

// GetCoefficients returns the static thresholds for chatID. The table is
// small, so a miss refreshes it in full and retries once.
func (c *Cache) GetCoefficients(ctx context.Context, chatID int64) (entities.Coefficient, bool, error) {
	key := strconv.FormatInt(chatID, 10)

	if v, found := c.coefficients.Get(key); found {
		telemetry.CacheLookups.WithLabelValues(cacheCoefficients, lookupHit).Inc()
		return v.(entities.Coefficient), true, nil
	}
	telemetry.CacheLookups.WithLabelValues(cacheCoefficients, lookupMiss).Inc()

	c.coefMu.Lock()
	defer c.coefMu.Unlock()

	if v, found := c.coefficients.Get(key); found {
		return v.(entities.Coefficient), true, nil
	}

	if err := c.refillCoefficients(ctx); err != nil {
		return entities.Coefficient{}, false, err
	}

	if v, found := c.coefficients.Get(key); found {
		return v.(entities.Coefficient), true, nil
	}
	telemetry.CacheLookups.WithLabelValues(cacheCoefficients, lookupAbsent).Inc()
	return entities.Coefficient{}, false, nil
}

// scanStatistics linearly scans the cached windows. The statistics cache
// stays small (thousands of windows at most), so a scan per lookup is fine.
func (c *Cache) scanStatistics(date time.Time, chatID, delta int64, metric string) (entities.Statistic, bool) {
	var best entities.Statistic
	var found bool
	for _, item := range c.statistics.Items() {
		stat := item.Object.(entities.Statistic)
		if stat.ChatID != chatID || stat.Delta != delta || stat.Metric != metric {
			continue
		}
		if !stat.DateFrom.Before(date) || !stat.DateTo.After(date) {
			continue
		}
		// Latest-ending window wins; on equal ends prefer the later start.
		if !found || stat.DateTo.After(best.DateTo) ||
			(stat.DateTo.Equal(best.DateTo) && stat.DateFrom.After(best.DateFrom)) {
			best = stat
			found = true
		}
	}
	return best, found
}

func (c *Cache) refillPredictions(ctx context.Context, anchor time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	rows, err := c.repo.PredictionsBetween(ctx,
		anchor.Add(-c.cfg.PredictionUpdateWindow),
		anchor.Add(c.cfg.PredictionUpdateWindow))
	if err != nil {
		telemetry.CacheRefills.WithLabelValues(cachePredictions, refillFailed).Inc()
		return errors.New(fmt.Errorf("prediction refill: %w", err)).
			Component("baseline").Category(errors.CategoryDatabase).Build()
	}

	var skipped int
	for i := range rows {
		row := &rows[i]
		key := predictionKey(c.Bucket(row.Date), row.ChatID, row.Delta)
		if _, exists := c.predictions.Get(key); !exists && c.predictions.ItemCount() >= c.cfg.PredictionSize {
			// At capacity: keep serving what we have until TTL frees room.
			skipped++
			continue
		}
		c.predictions.SetDefault(key, *row)
	}
	if skipped > 0 {
		c.log.Warn("prediction cache at capacity, skipped inserts",
			logger.Int("skipped", skipped),
			logger.Int("capacity", c.cfg.PredictionSize))
	}

	telemetry.CacheRefills.WithLabelValues(cachePredictions, refillOK).Inc()
	telemetry.CacheEntries.WithLabelValues(cachePredictions).Set(float64(c.predictions.ItemCount()))
	c.log.Debug("prediction cache refilled",
		logger.Int("rows", len(rows)),
		logger.Time("anchor", anchor))
	return nil
}

func (c *Cache) refillStatistics(ctx context.Context, anchor time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	rows, err := c.repo.StatisticsContaining(ctx, anchor)
	if err != nil {
		telemetry.CacheRefills.WithLabelValues(cacheStatistics, refillFailed).Inc()
		return errors.New(fmt.Errorf("statistics refill: %w", err)).
			Component("baseline").Category(errors.CategoryDatabase).Build()
	}

	for i := range rows {
		row := &rows[i]
		if c.statistics.ItemCount() >= c.cfg.SmallSize {
			c.log.Warn("statistics cache at capacity, skipped inserts",
				logger.Int("skipped", len(rows)-i),
				logger.Int("capacity", c.cfg.SmallSize))
			break
		}
		c.statistics.SetDefault(statisticKey(row), *row)
	}

	telemetry.CacheRefills.WithLabelValues(cacheStatistics, refillOK).Inc()
	telemetry.CacheEntries.WithLabelValues(cacheStatistics).Set(float64(c.statistics.ItemCount()))
	c.log.Debug("statistics cache refilled", logger.Int("rows", len(rows)))
	return nil
}

func (c *Cache) refillCoefficients(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	rows, err := c.repo.Coefficients(ctx)
	if err != nil {
		telemetry.CacheRefills.WithLabelValues(cacheCoefficients, refillFailed).Inc()
		return errors.New(fmt.Errorf("coefficients refill: %w", err)).
			Component("baseline").Category(errors.CategoryDatabase).Build()
	}

	for i := range rows {
		row := &rows[i]
		c.coefficients.SetDefault(strconv.FormatInt(row.ChatID, 10), *row)
	}

	telemetry.CacheRefills.WithLabelValues(cacheCoefficients, refillOK).Inc()
	telemetry.CacheEntries.WithLabelValues(cacheCoefficients).Set(float64(c.coefficients.ItemCount()))
	c.log.Debug("coefficients cache refilled", logger.Int("rows", len(rows)))
	return nil
}

func predictionKey(bucket time.Time, chatID, delta int64) string {
	return strconv.FormatInt(bucket.Unix(), 10) + "|" +
		strconv.FormatInt(chatID, 10) + "|" +
		strconv.FormatInt(delta, 10)
}

func statisticKey(s *entities.Statistic) string {
	return strconv.FormatInt(s.DateFrom.Unix(), 10) + "|" +
		strconv.FormatInt(s.DateTo.Unix(), 10) + "|" +
		strconv.FormatInt(s.ChatID, 10) + "|" +
		strconv.FormatInt(s.Delta, 10) + "|" +
		s.Metric
}
