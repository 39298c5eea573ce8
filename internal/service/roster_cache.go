package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

const rosterKeyPrefix = "roster:"

// CacheRepository stores JSON payloads by key.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// RosterCache keeps assembled rosters keyed by class and date. Any cache fault reads as a
// miss, so rosters always fall through to the store.
type RosterCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
	flight  singleflight.Group
	// generation advances on every invalidation. A build that started under an older
	// generation may have read pre-mutation rows and is not stored.
	generation atomic.Uint64
}

// NewRosterCache constructs a roster cache. A nil repo disables it.
func NewRosterCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *RosterCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled reports whether a backing store is configured.
func (c *RosterCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

func rosterCacheKey(classID string, date time.Time) string {
	return fmt.Sprintf("%s%s:%s", rosterKeyPrefix, classID, date.Format(dateLayout))
}

// Load returns the cached roster, or runs build once for concurrent callers asking for the same
// class and date and caches its result.
func (c *RosterCache) Load(ctx context.Context, classID string, date time.Time, build func() (*models.ClassRoster, error)) (*models.ClassRoster, error) {
	if !c.Enabled() {
		return build()
	}
	key := rosterCacheKey(classID, date)
	if roster, ok := c.get(ctx, key); ok {
		return roster, nil
	}
	v, err, _ := c.flight.Do(flightKey(key, c.generation.Load()), func() (interface{}, error) {
		gen := c.generation.Load()
		roster, err := build()
		if err != nil {
			return nil, err
		}
		if c.generation.Load() != gen {
			return roster, nil
		}
		c.set(ctx, key, roster)
		if c.generation.Load() != gen {
			// Invalidated while writing; drop what was just stored.
			if _, err := c.repo.DeleteByPattern(ctx, key); err != nil {
				c.logger.Warn("roster cache cleanup failed", zap.String("key", key), zap.Error(err))
			}
		}
		return roster, nil
	})
	if err != nil {
		return nil, err
	}
	roster := *v.(*models.ClassRoster)
	return &roster, nil
}

// InvalidateRosters drops every cached roster.
func (c *RosterCache) InvalidateRosters(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	c.generation.Add(1)
	n, err := c.repo.DeleteByPattern(ctx, rosterKeyPrefix+"*")
	if err != nil {
		return err
	}
	c.logger.Debug("roster cache invalidated", zap.Int("keys", n))
	return nil
}

// flightKey scopes shared builds to one generation, so a caller arriving after an
// invalidation never joins a build that started before it.
func flightKey(key string, generation uint64) string {
	return fmt.Sprintf("%s#%d", key, generation)
}

func (c *RosterCache) get(ctx context.Context, key string) (*models.ClassRoster, bool) {
	start := time.Now()
	var roster models.ClassRoster
	err := c.repo.Get(ctx, key, &roster)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("roster cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return &roster, true
}

func (c *RosterCache) set(ctx context.Context, key string, roster *models.ClassRoster) {
	start := time.Now()
	err := c.repo.Set(ctx, key, roster, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("roster cache write failed", zap.String("key", key), zap.Error(err))
	}
}
