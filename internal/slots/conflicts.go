package slots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"appointo/internal/metrics"
	"appointo/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// BookingStore lists active bookings of an employee intersecting [from, to).
type BookingStore interface {
	BookingsOnDay(ctx context.Context, employeeID int64, from, to time.Time, excludeID int64) ([]model.Booking, error)
}

// ConflictSource returns the busy intervals of an employee on the local calendar date
// of date in loc, ordered by start. excludeID removes one booking; zero removes none.
type ConflictSource interface {
	Bookings(ctx context.Context, employeeID int64, date time.Time, loc *time.Location, excludeID int64) ([]model.Interval, error)
}

// StoreConflictSource reads conflicts straight from storage.
type StoreConflictSource struct {
	store BookingStore
}

func NewStoreConflictSource(store BookingStore) *StoreConflictSource {
	return &StoreConflictSource{store: store}
}

func (s *StoreConflictSource) Bookings(ctx context.Context, employeeID int64, date time.Time, loc *time.Location, excludeID int64) ([]model.Interval, error) {
	from := localMidnight(date, loc)
	// AddDate keeps 23h and 25h DST days intact.
	to := from.AddDate(0, 0, 1)

	bookings, err := s.store.BookingsOnDay(ctx, employeeID, from, to, excludeID)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	intervals := make([]model.Interval, 0, len(bookings))
	for i := range bookings {
		if !bookings[i].IsActive() || (excludeID != 0 && bookings[i].ID == excludeID) {
			continue
		}
		intervals = append(intervals, bookings[i].Interval())
	}
	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})
	return intervals, nil
}

// CachedConflictSource keeps per-employee day lists in Redis as JSON.
// Edit-mode lookups (non-zero excludeID) bypass the cache.
// Each day has a generation counter bumped by Invalidate; a loaded list is
// stored only when the generation did not move while it was read.
type CachedConflictSource struct {
	next   ConflictSource
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedConflictSource(next ConflictSource, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedConflictSource {
	return &CachedConflictSource{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "conflict_cache").Logger(),
	}
}

// ConflictCacheKey names the cache entry of an employee's local date.
func ConflictCacheKey(employeeID int64, date time.Time, loc *time.Location) string {
	return fmt.Sprintf("slots:conflicts:%d:%s", employeeID, date.In(loc).Format("2006-01-02"))
}

// ConflictGenerationKey names the invalidation counter of an employee's local date.
func ConflictGenerationKey(employeeID int64, date time.Time, loc *time.Location) string {
	return fmt.Sprintf("slots:gen:%d:%s", employeeID, date.In(loc).Format("2006-01-02"))
}

func (c *CachedConflictSource) Bookings(ctx context.Context, employeeID int64, date time.Time, loc *time.Location, excludeID int64) ([]model.Interval, error) {
	if excludeID != 0 || c.redis == nil || c.ttl <= 0 {
		return c.next.Bookings(ctx, employeeID, date, loc, excludeID)
	}

	key := ConflictCacheKey(employeeID, date, loc)
	var cached []model.Interval
	if c.readCache(ctx, key, &cached) {
		metrics.IncConflictCache("hit")
		return cached, nil
	}
	metrics.IncConflictCache("miss")

	var (
		intervals []model.Interval
		loadErr   error
		loaded    bool
	)
	genKey := ConflictGenerationKey(employeeID, date, loc)
	err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
		intervals, loadErr = c.next.Bookings(ctx, employeeID, date, loc, 0)
		loaded = true
		if loadErr != nil {
			return nil
		}
		data, err := json.Marshal(intervals)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case !loaded:
		c.logger.Debug().Err(err).Str("key", key).Msg("conflict cache unavailable")
		return c.next.Bookings(ctx, employeeID, date, loc, 0)
	case loadErr != nil:
		return nil, loadErr
	case errors.Is(err, redis.TxFailedErr):
		metrics.IncConflictCache("stale")
	case err != nil:
		c.logger.Debug().Err(err).Str("key", key).Msg("conflict cache write failed")
	}
	return intervals, nil
}

// Invalidate drops cached days of an employee touched by [start, end) and bumps
// their generation so lists read before the change are not stored afterwards.
func (c *CachedConflictSource) Invalidate(ctx context.Context, employeeID int64, start, end time.Time, loc *time.Location) {
	if c.redis == nil {
		return
	}

	var keys []string
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for day := localMidnight(start, loc); day.Before(end); day = day.AddDate(0, 0, 1) {
			key := ConflictCacheKey(employeeID, day, loc)
			genKey := ConflictGenerationKey(employeeID, day, loc)
			keys = append(keys, key)
			pipe.Incr(ctx, genKey)
			// Outlives any entry written under the previous generation.
			pipe.Expire(ctx, genKey, c.ttl+time.Hour)
			pipe.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("conflict cache invalidation failed")
	}
}

func (c *CachedConflictSource) readCache(ctx context.Context, key string, out any) bool {
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug().Err(err).Str("key", key).Msg("conflict cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}
