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

// Inbound routing service.
//
// Entry point for the webhook service. It:
//  1. Loads configuration from config.yaml, .env and the environment
//  2. Opens the CRM store (Postgres, or a YAML snapshot in memory)
//  3. Connects to Redis for dedup, the decisions queue and the match cache
//  4. Wires parser, mailbox resolver, matcher and router
//  5. Serves the inbound webhook, health probes and metrics
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/config"
	"github.com/AImitSK/skamp-sub025/internal/dedup"
	"github.com/AImitSK/skamp-sub025/internal/health"
	"github.com/AImitSK/skamp-sub025/internal/logger"
	"github.com/AImitSK/skamp-sub025/internal/mailbox"
	"github.com/AImitSK/skamp-sub025/internal/matchcache"
	"github.com/AImitSK/skamp-sub025/internal/matcher"
	"github.com/AImitSK/skamp-sub025/internal/metrics"
	"github.com/AImitSK/skamp-sub025/internal/queue"
	"github.com/AImitSK/skamp-sub025/internal/routing"
	"github.com/AImitSK/skamp-sub025/internal/store/memory"
	"github.com/AImitSK/skamp-sub025/internal/store/postgres"
	"github.com/AImitSK/skamp-sub025/internal/webhook"
)

// crmStore is everything the pipeline reads from the CRM.
type crmStore interface {
	mailbox.ProjectRepository
	mailbox.DomainMailboxRepository
	matcher.CampaignRepository
	matcher.ContactRepository
	matcher.CompanyRepository
	health.Pinger
}

func main() {
	boot, _ := logger.New(logger.Config{})

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal("failed to load configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		boot.Fatal("failed to build logger", zap.Error(err))
	}
	defer log.Sync() //nolint:errcheck

	log.Info("configuration loaded",
		zap.String("inbox_domain", cfg.Inbox.DomainSuffix),
		zap.String("project_split", cfg.Inbox.ProjectSplit),
		zap.Int("organizations", len(cfg.Organizations)),
		zap.String("match_cache", cfg.Matcher.Cache),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- CRM Store ---
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open CRM store", zap.Error(err))
	}
	defer closeStore()

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("invalid redis url", zap.Error(err))
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.Redis.Queues.Decisions, log.Named("queue"))
	if err := publisher.Ping(ctx); err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	log.Info("connected to Redis")

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Pipeline ---
	matcherOpts := []matcher.Option{
		matcher.WithCompanyScanLimit(cfg.Matcher.CompanyScanLimit),
		matcher.WithLogger(log.Named("matcher")),
		matcher.WithMetrics(m),
	}
	switch cfg.Matcher.Cache {
	case config.CacheMemory:
		matcherOpts = append(matcherOpts, matcher.WithCache(matchcache.NewLRU(cfg.Matcher.CacheSize, cfg.Matcher.CacheTTL)))
	case config.CacheRedis:
		matcherOpts = append(matcherOpts, matcher.WithCache(matchcache.NewRedis(rdb, cfg.Matcher.CacheTTL, log.Named("matchcache"))))
	}
	match := matcher.New(matcher.Repositories{Campaigns: store, Contacts: store, Companies: store}, matcherOpts...)

	router := routing.New(
		address.NewParser(cfg.Inbox.DomainSuffix, address.WithSplit(cfg.Inbox.Split())),
		mailbox.NewResolver(store, mailbox.WithLogger(log.Named("mailbox"))),
		store,
		match,
		routing.RequireRoutingAddress(cfg.Inbox.RequireAddress()),
		routing.WithLogger(log.Named("routing")),
		routing.WithMetrics(m),
	)

	// --- Webhook ---
	handler := webhook.NewHandler(router, dedup.NewFilter(rdb, cfg.Redis.DedupTTL), publisher, webhook.Config{
		Secrets:        cfg.Secrets(),
		RateLimit:      rate.Limit(cfg.Server.RateLimit),
		Burst:          cfg.Server.RateBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}, log.Named("webhook"), m)

	ready, err := webhook.Serve(ctx, cfg.Server.WebhookPort, handler.Routes(), log)
	if err != nil {
		log.Fatal("failed to start webhook server", zap.Error(err))
	}
	<-ready

	// --- Health & Metrics Server ---
	checker := health.NewChecker(2*time.Second, log.Named("health"))
	checker.AddReadiness("crm", store)
	checker.AddReadiness("redis", publisher)

	mux := http.NewServeMux()
	mux.Handle("/live", checker.Handler())
	mux.Handle("/ready", checker.Handler())
	mux.Handle("/metrics", metrics.Handler(reg))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel() // stops the webhook server

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
	}()

	log.Info("health server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("inbound routing service stopped")
}

// openStore opens Postgres when configured, otherwise the YAML snapshot.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (crmStore, func(), error) {
	if cfg.Postgres.URL == "" {
		s, err := memory.Load(cfg.Fixtures)
		if err != nil {
			return nil, nil, err
		}
		log.Info("serving CRM snapshot from memory", zap.String("fixtures", cfg.Fixtures))
		return s, func() {}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	s, err := postgres.NewStore(ctx, pool, log.Named("store"))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("connected to PostgreSQL")
	return s, pool.Close, nil
}
