// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package matchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AImitSK/skamp-sub025/internal/matcher"
)

// keyPrefix namespaces cached results in Redis.
const keyPrefix = "inbound:match:"

// Redis caches match results in Redis as JSON. Redis failures are logged
// and treated as misses; the matcher then simply recomputes.
type Redis struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis creates a Redis-backed cache. A nil logger disables logging.
func NewRedis(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}
}

// redisKey hashes the raw key, which carries subjects of arbitrary length.
func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached result for key.
func (c *Redis) Get(ctx context.Context, key string) (matcher.Result, bool) {
	data, err := c.rdb.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("match cache get failed", zap.Error(err))
		}
		return matcher.Result{}, false
	}

	var r matcher.Result
	if err := json.Unmarshal(data, &r); err != nil {
		c.logger.Warn("match cache entry corrupt", zap.Error(err))
		return matcher.Result{}, false
	}
	return r, true
}

// Set stores r under key with the cache TTL.
func (c *Redis) Set(ctx context.Context, key string, r matcher.Result) {
	data, err := json.Marshal(r)
	if err != nil {
		c.logger.Warn("match cache marshal failed", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, redisKey(key), data, c.ttl).Err(); err != nil {
		c.logger.Warn("match cache set failed", zap.Error(err))
	}
}
