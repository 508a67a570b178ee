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

// Package queue publishes routing outcomes to a Redis list. The filing
// workers that move messages into project and domain mailboxes consume it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AImitSK/skamp-sub025/internal/routing"
)

// EventRouted is the envelope type of a published routing outcome.
const EventRouted = "inbound.routed"

// Envelope is the JSON document pushed onto the queue.
type Envelope struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	OrgID      string           `json:"org_id"`
	MessageID  string           `json:"message_id"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	Outcome    *routing.Outcome `json:"outcome"`
}

// Publisher sends routing outcomes to Redis.
type Publisher struct {
	rdb       redis.Cmdable
	queueName string
	logger    *zap.Logger
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb redis.Cmdable, queueName string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		logger:    logger,
		now:       time.Now,
	}
}

// PublishOutcome wraps out in an Envelope and LPUSHes it onto the queue.
// Consumers BRPOP, so outcomes are delivered oldest first. It returns the
// envelope id.
func (p *Publisher) PublishOutcome(ctx context.Context, out *routing.Outcome) (string, error) {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       EventRouted,
		OrgID:      out.OrganizationID,
		MessageID:  out.MessageID,
		EnqueuedAt: p.now().UTC(),
		Outcome:    out,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal routing outcome: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, data).Err(); err != nil {
		return "", fmt.Errorf("redis LPUSH: %w", err)
	}

	p.logger.Info("published routing outcome",
		zap.String("envelope_id", env.ID),
		zap.String("message_id", out.MessageID),
		zap.String("org_id", out.OrganizationID),
		zap.String("queue", p.queueName),
	)
	return env.ID, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
