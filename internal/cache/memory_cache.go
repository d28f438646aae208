package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/alphavantage"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
)

// MemoryCache provides an in-memory L1 cache for vendor payload envelopes and
// watermark summaries. Fundamentals endpoints return every quarter in one
// call, so caching the envelope per pair lets a multi-quarter plan cost a
// single request.
type MemoryCache struct {
	payloads   map[string]payloadEntry
	summaries  map[string]summaryEntry
	payloadMu  sync.RWMutex
	summaryMu  sync.RWMutex
	payloadTTL time.Duration
	summaryTTL time.Duration
}

type payloadEntry struct {
	envelope  *alphavantage.Envelope
	fetchedAt time.Time
}

type summaryEntry struct {
	summary   *models.WatermarkSummary
	fetchedAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(payloadTTL, summaryTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		payloads:   make(map[string]payloadEntry),
		summaries:  make(map[string]summaryEntry),
		payloadTTL: payloadTTL,
		summaryTTL: summaryTTL,
	}
}

// payloadCacheKey generates a cache key for one (entity, dataset) payload
func payloadCacheKey(entityID int64, dataset string) string {
	return fmt.Sprintf("%d:%s", entityID, dataset)
}

// GetPayload retrieves a cached envelope if fresh
func (c *MemoryCache) GetPayload(entityID int64, dataset string) (*alphavantage.Envelope, bool) {
	c.payloadMu.RLock()
	defer c.payloadMu.RUnlock()

	entry, exists := c.payloads[payloadCacheKey(entityID, dataset)]
	if !exists {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > c.payloadTTL {
		return nil, false
	}
	return entry.envelope, true
}

// SetPayload caches an envelope
func (c *MemoryCache) SetPayload(entityID int64, dataset string, env *alphavantage.Envelope) {
	c.payloadMu.Lock()
	defer c.payloadMu.Unlock()

	c.payloads[payloadCacheKey(entityID, dataset)] = payloadEntry{
		envelope:  env,
		fetchedAt: time.Now(),
	}
}

// GetSummary retrieves a cached watermark summary if fresh
func (c *MemoryCache) GetSummary(dataset string) (*models.WatermarkSummary, bool) {
	c.summaryMu.RLock()
	defer c.summaryMu.RUnlock()

	entry, exists := c.summaries[dataset]
	if !exists {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > c.summaryTTL {
		return nil, false
	}
	return entry.summary, true
}

// SetSummary caches a watermark summary
func (c *MemoryCache) SetSummary(dataset string, summary *models.WatermarkSummary) {
	c.summaryMu.Lock()
	defer c.summaryMu.Unlock()

	c.summaries[dataset] = summaryEntry{
		summary:   summary,
		fetchedAt: time.Now(),
	}
}

// InvalidateSummary removes a dataset's summary from the cache
func (c *MemoryCache) InvalidateSummary(dataset string) {
	c.summaryMu.Lock()
	defer c.summaryMu.Unlock()

	delete(c.summaries, dataset)
}

// Clear removes all cached data
func (c *MemoryCache) Clear() {
	c.payloadMu.Lock()
	c.payloads = make(map[string]payloadEntry)
	c.payloadMu.Unlock()

	c.summaryMu.Lock()
	c.summaries = make(map[string]summaryEntry)
	c.summaryMu.Unlock()
}
