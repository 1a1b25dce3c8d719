package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/suchimauz/weekly-schedule-sync/internal/config"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
)

// LRUCacheAdapter хранит разобранные значения хранилища по исходной строке.
// Значения дней повторяются (эхо собственных записей, дубликаты уведомлений),
// поэтому повторный разбор не нужен.
type LRUCacheAdapter struct {
	cache  *lru.Cache[string, []domain.TimeSlot]
	hits   atomic.Int64
	misses atomic.Int64
	logger out.LoggerPort
}

var _ out.CachePort = (*LRUCacheAdapter)(nil)

type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewLRUCacheAdapter возвращает nil, если кэш выключен в конфигурации
func NewLRUCacheAdapter(cfg *config.Config, logger out.LoggerPort) (*LRUCacheAdapter, error) {
	if !cfg.Cache.Enabled {
		logger.Info("cache.disabled", out.LogFields{
			"message": "Cache is disabled",
		})
		return nil, nil
	}

	cache, err := lru.New[string, []domain.TimeSlot](cfg.Cache.Size)
	if err != nil {
		logger.Error("cache.init.failed", out.LogFields{
			"error": err.Error(),
			"size":  cfg.Cache.Size,
		})
		return nil, fmt.Errorf("cache.init: %w", err)
	}

	return &LRUCacheAdapter{
		cache:  cache,
		logger: logger.WithModule("CacheAdapter"),
	}, nil
}

func (c *LRUCacheAdapter) GetDecodedSlots(ctx context.Context, raw string) ([]domain.TimeSlot, bool) {
	slots, exists := c.cache.Get(raw)
	if !exists {
		c.misses.Add(1)
		c.logger.Debug("cache.get.miss", out.LogFields{
			"value": raw,
		})
		return nil, false
	}

	c.hits.Add(1)
	c.logger.Debug("cache.get.hit", out.LogFields{
		"value":      raw,
		"slotsCount": len(slots),
	})
	return domain.CloneSlots(slots), true
}

func (c *LRUCacheAdapter) StoreDecodedSlots(ctx context.Context, raw string, slots []domain.TimeSlot) {
	evicted := c.cache.Add(raw, domain.CloneSlots(slots))

	c.logger.Debug("cache.store", out.LogFields{
		"value":      raw,
		"slotsCount": len(slots),
		"evicted":    evicted,
	})
}

func (c *LRUCacheAdapter) InvalidateDecodedSlots(ctx context.Context) {
	c.cache.Purge()
	c.logger.Info("cache.invalidate", out.LogFields{})
}

func (c *LRUCacheAdapter) Stats() Stats {
	return Stats{
		Size:   c.cache.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
