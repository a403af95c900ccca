// README: Live-location cache backed by Redis; one JSON value per ambulance,
// no TTL (explicit delete on disconnect marks the unit unavailable).
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"sirena/internal/types"
)

const keyPattern = "ambulancia:*:ubicacion"

func cacheKey(id types.ID) string {
	return fmt.Sprintf("ambulancia:%d:ubicacion", int64(id))
}

// idFromKey extracts the ambulance id from ambulancia:{id}:ubicacion.
func idFromKey(key string) (types.ID, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return 0, false
	}
	n, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return types.ID(n), true
}

// Cache adapts Redis to the live-location store contract. Every call carries
// its own deadline so readers in the request path fail fast instead of
// hanging on cache I/O.
type Cache struct {
	redis     *redis.Client
	timeout   time.Duration
	scanCount int64
}

func NewCache(client *redis.Client, timeout time.Duration, scanCount int64) *Cache {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if scanCount <= 0 {
		scanCount = 100
	}
	return &Cache{redis: client, timeout: timeout, scanCount: scanCount}
}

// Set overwrites the ambulance's record.
func (c *Cache) Set(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, cacheKey(rec.AmbulanceID), raw, 0).Err()
}

// Get returns the ambulance's record, or nil when the unit has no live
// position (a normal condition, not an error).
func (c *Cache) Get(ctx context.Context, id types.ID) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.redis.Get(ctx, cacheKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("registro de ubicación corrupto para ambulancia %d: %w", int64(id), err)
	}
	rec.AmbulanceID = id
	return &rec, nil
}

// Delete removes the ambulance's record, marking it unmatchable.
func (c *Cache) Delete(ctx context.Context, id types.ID) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.redis.Del(ctx, cacheKey(id)).Err()
}

// All enumerates every live record with a paginated SCAN plus one MGET per
// page, so the operation stays responsive as the fleet grows. Keys or values
// that fail to parse are skipped, never fatal.
func (c *Cache) All(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var records []Record
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, keyPattern, c.scanCount).Result()
		if err != nil {
			return nil, err
		}

		if len(keys) > 0 {
			values, err := c.redis.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, err
			}
			for i, v := range values {
				raw, ok := v.(string)
				if !ok {
					continue // deleted between SCAN and MGET
				}
				id, ok := idFromKey(keys[i])
				if !ok {
					continue
				}
				var rec Record
				if err := json.Unmarshal([]byte(raw), &rec); err != nil {
					continue
				}
				rec.AmbulanceID = id
				records = append(records, rec)
			}
		}

		cursor = next
		if cursor == 0 {
			return records, nil
		}
	}
}
