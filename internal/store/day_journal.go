// Package store provides Redis-based persistence for the daily performance
// journal. When Redis is unavailable it falls back to an in-memory cache so a
// trading session continues without interruption; only restart recovery is
// degraded.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/governor"
)

const (
	// DayJournalKeyPrefix is the prefix for day state keys.
	// Format: coordinator:day:{YYYY-MM-DD}
	DayJournalKeyPrefix = "coordinator:day"

	// DayJournalTTL keeps past day states around long enough for audits.
	DayJournalTTL = 7 * 24 * time.Hour

	opTimeout = 2 * time.Second
)

// DayJournal stores one PerformanceState per trading day. It implements
// governor.Journal.
type DayJournal struct {
	client         *redis.Client
	logger         zerolog.Logger
	redisAvailable atomic.Bool

	cacheMu sync.RWMutex
	cache   map[string]governor.PerformanceState
}

// NewDayJournal creates a day journal. If client is nil the journal operates
// in memory-only mode.
func NewDayJournal(client *redis.Client, logger zerolog.Logger) *DayJournal {
	j := &DayJournal{
		client: client,
		logger: logger.With().Str("component", "DayJournal").Logger(),
		cache:  make(map[string]governor.PerformanceState),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			j.logger.Warn().Err(err).Msg("redis unavailable at startup, using in-memory cache")
			j.redisAvailable.Store(false)
		} else {
			j.logger.Info().Msg("redis connected")
			j.redisAvailable.Store(true)
		}
	}

	return j
}

// dayKey generates the Redis key for a trading day.
func (j *DayJournal) dayKey(day string) string {
	return fmt.Sprintf("%s:%s", DayJournalKeyPrefix, day)
}

// Save persists the day state, always updating the in-memory cache first.
func (j *DayJournal) Save(state governor.PerformanceState) error {
	if state.TradingDay == "" {
		return fmt.Errorf("state has no trading day")
	}

	j.cacheMu.Lock()
	j.cache[state.TradingDay] = state
	j.cacheMu.Unlock()

	if j.client == nil {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal day state: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := j.client.Set(ctx, j.dayKey(state.TradingDay), data, DayJournalTTL).Err(); err != nil {
		if j.redisAvailable.Swap(false) {
			j.logger.Warn().Err(err).Msg("redis save failed, continuing on in-memory cache")
		}
		return nil
	}
	j.redisAvailable.Store(true)
	return nil
}

// Load returns the journaled state for a day, or nil when none was recorded.
func (j *DayJournal) Load(day string) (*governor.PerformanceState, error) {
	if j.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		data, err := j.client.Get(ctx, j.dayKey(day)).Bytes()
		switch {
		case err == redis.Nil:
			j.redisAvailable.Store(true)
			return j.loadFromCache(day), nil
		case err != nil:
			if j.redisAvailable.Swap(false) {
				j.logger.Warn().Err(err).Msg("redis load failed, falling back to in-memory cache")
			}
		default:
			j.redisAvailable.Store(true)
			var state governor.PerformanceState
			if err := json.Unmarshal(data, &state); err != nil {
				return nil, fmt.Errorf("corrupt day journal entry for %s: %w", day, err)
			}
			return &state, nil
		}
	}

	return j.loadFromCache(day), nil
}

func (j *DayJournal) loadFromCache(day string) *governor.PerformanceState {
	j.cacheMu.RLock()
	defer j.cacheMu.RUnlock()

	if state, ok := j.cache[day]; ok {
		return &state
	}
	return nil
}

// Available reports whether the last Redis operation succeeded.
func (j *DayJournal) Available() bool {
	return j.redisAvailable.Load()
}
