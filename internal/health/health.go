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

// Package health serves the /live and /ready probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger is a dependency that can report its availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker wraps a healthcheck handler.
type Checker struct {
	handler healthcheck.Handler
	timeout time.Duration
	logger  *zap.Logger
}

// NewChecker creates a checker with a goroutine-leak liveness check.
func NewChecker(timeout time.Duration, logger *zap.Logger) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{
		handler: healthcheck.NewHandler(),
		timeout: timeout,
		logger:  logger,
	}
	c.handler.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))
	return c
}

// AddReadiness registers a dependency that must answer before the
// service takes traffic.
func (c *Checker) AddReadiness(name string, p Pinger) {
	c.handler.AddReadinessCheck(name, healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			c.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			return err
		}
		return nil
	}, c.timeout))
}

// Handler serves /live and /ready.
func (c *Checker) Handler() http.Handler {
	return c.handler
}
