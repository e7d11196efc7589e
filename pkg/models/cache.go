package models

import "time"

// CacheKey is the hex SHA-256 fingerprint of a normalized request.
type CacheKey string

// CacheEntry stores one cached response.
type CacheEntry struct {
	Key        CacheKey      `json:"key"`
	ProviderID ProviderID    `json:"provider"`
	Response   string        `json:"response"`
	CreatedAt  time.Time     `json:"created_at"`
	TTL        time.Duration `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// CacheStats reports cache contents and performance counters.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
