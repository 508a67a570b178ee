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

// Package config loads configuration from config.yaml, an optional .env
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AImitSK/skamp-sub025/internal/address"
	"github.com/AImitSK/skamp-sub025/internal/logger"
)

// Cache backends for match results.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// InboxConfig describes the inbound address scheme.
type InboxConfig struct {
	DomainSuffix string `yaml:"domain_suffix"`
	ProjectSplit string `yaml:"project_split"` // "last" (default) or "first"

	// RequireRoutingAddress rejects mail with no recipient on the inbox
	// domain. When false such mail is only classified.
	RequireRoutingAddress *bool `yaml:"require_routing_address"`
}

// Split returns the configured project address split.
func (c InboxConfig) Split() address.Split {
	s, err := address.ParseSplit(c.ProjectSplit)
	if err != nil {
		return address.SplitLast
	}
	return s
}

// RequireAddress reports the effective RequireRoutingAddress value.
func (c InboxConfig) RequireAddress() bool {
	return c.RequireRoutingAddress == nil || *c.RequireRoutingAddress
}

// OrganizationConfig is one tenant allowed to post to the webhook.
type OrganizationConfig struct {
	ID            string `yaml:"id"`
	Alias         string `yaml:"alias"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// MatcherConfig holds matcher and result cache settings.
type MatcherConfig struct {
	Cache            string        `yaml:"cache"`
	CacheSize        int           `yaml:"cache_size"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CompanyScanLimit int           `yaml:"company_scan_limit"`
}

// PostgresConfig holds the CRM database settings.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Queues struct {
		Decisions string `yaml:"decisions"`
	} `yaml:"queues"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	WebhookPort    int           `yaml:"webhook_port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second per organization
	RateBurst      int           `yaml:"rate_burst"`
}

// Config holds all configuration for the routing service.
type Config struct {
	Inbox         InboxConfig          `yaml:"inbox"`
	Organizations []OrganizationConfig `yaml:"organizations"`
	Matcher       MatcherConfig        `yaml:"matcher"`
	Postgres      PostgresConfig       `yaml:"postgres"`
	Redis         RedisConfig          `yaml:"redis"`
	Server        ServerConfig         `yaml:"server"`
	Log           logger.Config        `yaml:"log"`

	// Fixtures is a YAML CRM snapshot served from memory when no
	// Postgres URL is configured.
	Fixtures string `yaml:"fixtures"`
}

// overrides are environment variables that take precedence over the file.
type overrides struct {
	DomainSuffix   string        `env:"INBOX_DOMAIN_SUFFIX"`
	ProjectSplit   string        `env:"INBOX_PROJECT_SPLIT"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	DecisionsQueue string        `env:"DECISIONS_QUEUE"`
	MatchCache     string        `env:"MATCH_CACHE"`
	Port           int           `env:"PORT"`
	WebhookPort    int           `env:"WEBHOOK_PORT"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	LogLevel       string        `env:"LOG_LEVEL"`
	LogFile        string        `env:"LOG_FILE"`
	Fixtures       string        `env:"CRM_FIXTURES"`
}

// Load reads configuration from CONFIG_PATH (default
// /app/config/config.yaml). A .env file in the working directory is
// loaded into the environment first; variables already set win.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(envOrDefault("CONFIG_PATH", "/app/config/config.yaml"))
}

// LoadFile reads configuration from path, expanding ${VAR} references
// and applying environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and environment
// overrides, and validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	var o overrides
	if err := env.Parse(&o); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.apply(o)
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) apply(o overrides) {
	c.Inbox.DomainSuffix = firstNonEmpty(o.DomainSuffix, c.Inbox.DomainSuffix)
	c.Inbox.ProjectSplit = firstNonEmpty(o.ProjectSplit, c.Inbox.ProjectSplit)
	c.Postgres.URL = firstNonEmpty(o.DatabaseURL, c.Postgres.URL)
	c.Redis.URL = firstNonEmpty(o.RedisURL, c.Redis.URL)
	c.Redis.Queues.Decisions = firstNonEmpty(o.DecisionsQueue, c.Redis.Queues.Decisions)
	c.Matcher.Cache = firstNonEmpty(o.MatchCache, c.Matcher.Cache)
	c.Log.Level = firstNonEmpty(o.LogLevel, c.Log.Level)
	c.Log.File = firstNonEmpty(o.LogFile, c.Log.File)
	c.Fixtures = firstNonEmpty(o.Fixtures, c.Fixtures)
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.WebhookPort != 0 {
		c.Server.WebhookPort = o.WebhookPort
	}
	if o.RequestTimeout != 0 {
		c.Server.RequestTimeout = o.RequestTimeout
	}
}

func (c *Config) setDefaults() {
	c.Inbox.DomainSuffix = strings.ToLower(strings.TrimSpace(c.Inbox.DomainSuffix))
	c.Inbox.ProjectSplit = firstNonEmpty(c.Inbox.ProjectSplit, "last")
	c.Matcher.Cache = firstNonEmpty(c.Matcher.Cache, CacheMemory)
	c.Redis.URL = firstNonEmpty(c.Redis.URL, "redis://localhost:6379/0")
	c.Redis.Queues.Decisions = firstNonEmpty(c.Redis.Queues.Decisions, "inbound:decisions")
	c.Log.Level = firstNonEmpty(c.Log.Level, "info")

	if c.Matcher.CacheSize <= 0 {
		c.Matcher.CacheSize = 10000
	}
	if c.Matcher.CacheTTL <= 0 {
		c.Matcher.CacheTTL = 15 * time.Minute
	}
	if c.Matcher.CompanyScanLimit <= 0 {
		c.Matcher.CompanyScanLimit = 100
	}
	if c.Redis.DedupTTL <= 0 {
		c.Redis.DedupTTL = 24 * time.Hour
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.WebhookPort == 0 {
		c.Server.WebhookPort = 8081
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}

	// Skip organizations with empty secrets (commented out in YAML)
	orgs := c.Organizations[:0]
	for _, o := range c.Organizations {
		if strings.TrimSpace(o.WebhookSecret) == "" {
			continue
		}
		if o.Alias == "" {
			o.Alias = o.ID
		}
		orgs = append(orgs, o)
	}
	c.Organizations = orgs
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Inbox.DomainSuffix == "" {
		errs = append(errs, errors.New("inbox.domain_suffix is required"))
	}
	if _, err := address.ParseSplit(c.Inbox.ProjectSplit); err != nil {
		errs = append(errs, fmt.Errorf("inbox.project_split: %w", err))
	}
	switch c.Matcher.Cache {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		errs = append(errs, fmt.Errorf("matcher.cache: unknown backend %q", c.Matcher.Cache))
	}
	if c.Postgres.URL == "" && c.Fixtures == "" {
		errs = append(errs, errors.New("no CRM store configured: set postgres.url or fixtures"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}

	seen := make(map[string]bool)
	for i, o := range c.Organizations {
		switch {
		case o.ID == "":
			errs = append(errs, fmt.Errorf("organizations[%d]: id is required", i))
		case seen[o.ID]:
			errs = append(errs, fmt.Errorf("organizations[%d]: duplicate id %q", i, o.ID))
		}
		seen[o.ID] = true
	}
	return errors.Join(errs...)
}

// Secrets maps organization ids to webhook secrets.
func (c *Config) Secrets() map[string]string {
	out := make(map[string]string, len(c.Organizations))
	for _, o := range c.Organizations {
		out[o.ID] = o.WebhookSecret
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
