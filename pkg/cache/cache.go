// Package cache defines the response cache contract and its key derivation.
// Implementations live in the sqlite and memory subpackages.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/workyterm/workyterm/pkg/models"
)

// ErrCacheIO wraps persistence failures. Callers treat it as a miss or a
// skipped write, never as a request failure.
var ErrCacheIO = errors.New("cache i/o error")

// Store is a keyed response store with TTL semantics. Get treats expired
// entries as absent; Put overwrites any existing entry for the key.
type Store interface {
	Get(ctx context.Context, key models.CacheKey) (models.CacheEntry, bool, error)
	Put(ctx context.Context, entry models.CacheEntry) error
	Clear(ctx context.Context, expiredOnly bool) error
	Stats(ctx context.Context) (models.CacheStats, error)
	Close() error
}

// Key derives the cache key for a provider call. Each field is hashed with
// its length so no field can spill into the next. The prompt has whitespace
// runs collapsed so cosmetic differences still hit.
func Key(provider models.ProviderID, prompt, model, taskHint string) models.CacheKey {
	h := sha256.New()
	for _, part := range []string{
		strings.ToLower(strings.TrimSpace(string(provider))),
		NormalizePrompt(prompt),
		strings.TrimSpace(model),
		strings.ToLower(strings.TrimSpace(taskHint)),
	} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}
	return models.CacheKey(fmt.Sprintf("%x", h.Sum(nil)))
}

// NormalizePrompt trims the prompt and collapses internal whitespace.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}

// IOError wraps err as an ErrCacheIO for op.
func IOError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCacheIO, err)
}
