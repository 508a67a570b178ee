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

// Package dedup suppresses repeated webhook deliveries of the same message
// using Redis SET NX with a TTL. Mail providers retry deliveries they
// consider unacknowledged, so the same message id can arrive several times.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a seen message id is remembered.
	// Providers stop retrying well within a day.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "inbound:seen:"
)

// Filter tracks which messages have already been accepted.
type Filter struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A non-positive ttl
// selects DefaultTTL.
func NewFilter(rdb redis.Cmdable, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		rdb: rdb,
		ttl: ttl,
	}
}

func key(orgID, messageID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, orgID, messageID)
}

// IsNew returns true if the message has NOT been seen before for the
// organization. If true, the message is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, orgID, messageID string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, key(orgID, messageID), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Forget releases a claim taken by IsNew, so a retried delivery of a
// message that failed to process is accepted again.
func (f *Filter) Forget(ctx context.Context, orgID, messageID string) error {
	if err := f.rdb.Del(ctx, key(orgID, messageID)).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
