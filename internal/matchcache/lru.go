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

// Package matchcache provides the result caches the matcher can use: a
// bounded in-process LRU with expiry and a Redis-backed cache shared by
// all replicas.
package matchcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/AImitSK/skamp-sub025/internal/matcher"
)

const (
	// DefaultSize is the default number of cached results.
	DefaultSize = 10000

	// DefaultTTL is how long a cached result stays valid.
	DefaultTTL = 15 * time.Minute
)

// LRU is an in-process cache of match results, safe for concurrent use.
type LRU struct {
	lru *expirable.LRU[string, matcher.Result]
}

// NewLRU creates a cache holding at most size results for ttl each.
// Non-positive values fall back to the defaults.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU{lru: expirable.NewLRU[string, matcher.Result](size, nil, ttl)}
}

// Get returns the cached result for key.
func (c *LRU) Get(_ context.Context, key string) (matcher.Result, bool) {
	return c.lru.Get(key)
}

// Set stores r under key, evicting the least recently used entry when full.
func (c *LRU) Set(_ context.Context, key string, r matcher.Result) {
	c.lru.Add(key, r)
}

// Len returns the number of live entries.
func (c *LRU) Len() int {
	return c.lru.Len()
}
