/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tomoncle/quarry/utils"
	"gopkg.in/yaml.v3"
)

// DefaultBind names the connection used by entities without a bind tag.
const DefaultBind = "default"

// Pagination modes accepted by EngineConfig.PaginationMode.
const (
	PaginationStandard   = "standard"
	PaginationIntegrated = "integrated"
)

// HealthStatus holds the result of a health check against one bind.
type HealthStatus struct {
	Bind          string        `json:"bind"`
	Healthy       bool          `json:"healthy"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type            string        `json:"type" yaml:"type"` // postgres、mysql、sqlite
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	DBName          string        `json:"dbname" yaml:"dbname"`
	SSLMode         string        `json:"sslmode" yaml:"sslmode"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	EnableQueryLog  bool          `json:"enable_query_log" yaml:"enable_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
}

// EngineConfig tunes retry, pagination and schema caching behavior.
type EngineConfig struct {
	MaxRetries         int           `json:"max_retries" yaml:"max_retries"` // total attempts per statement
	RetryDelay         time.Duration `json:"retry_delay" yaml:"retry_delay"`
	PaginationMode     string        `json:"pagination_mode" yaml:"pagination_mode"`
	DefaultPerPage     int           `json:"default_per_page" yaml:"default_per_page"`
	SchemaSingleFlight bool          `json:"schema_single_flight" yaml:"schema_single_flight"`
}

// Config aggregates every bind and the engine settings.
type Config struct {
	Binds  map[string]ConnectionConfig `json:"binds" yaml:"binds"`
	Engine EngineConfig                `json:"engine" yaml:"engine"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		ReadTimeout:     time.Second * 30,
		WriteTimeout:    time.Second * 30,
		SlowQueryTime:   time.Second * 2,
	}
}

// DefaultEngineConfig returns three attempts five seconds apart and standard
// pagination.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		PaginationMode: PaginationStandard,
		DefaultPerPage: 10,
	}
}

// LoadConfig reads a YAML file, fills defaults and applies environment
// overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig over an in-memory document.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{Engine: DefaultEngineConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	cfg.overrideFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Binds == nil {
		c.Binds = map[string]ConnectionConfig{}
	}
	def := DefaultConnectionConfig()
	for name, b := range c.Binds {
		if b.MaxIdleConns == 0 {
			b.MaxIdleConns = def.MaxIdleConns
		}
		if b.MaxOpenConns == 0 {
			b.MaxOpenConns = def.MaxOpenConns
		}
		if b.ConnMaxLifetime == 0 {
			b.ConnMaxLifetime = def.ConnMaxLifetime
		}
		if b.ConnMaxIdleTime == 0 {
			b.ConnMaxIdleTime = def.ConnMaxIdleTime
		}
		if b.ConnectTimeout == 0 {
			b.ConnectTimeout = def.ConnectTimeout
		}
		c.Binds[name] = b
	}
	if c.Engine.MaxRetries < 1 {
		c.Engine.MaxRetries = 1
	}
	if c.Engine.RetryDelay <= 0 {
		c.Engine.RetryDelay = DefaultEngineConfig().RetryDelay
	}
	if c.Engine.PaginationMode == "" {
		c.Engine.PaginationMode = PaginationStandard
	}
	if c.Engine.DefaultPerPage < 1 {
		c.Engine.DefaultPerPage = DefaultEngineConfig().DefaultPerPage
	}
}

// overrideFromEnv overrides the default bind and engine settings from
// environment variables.
func (c *Config) overrideFromEnv() {
	cfg, ok := c.Binds[DefaultBind]
	if !ok {
		cfg = *DefaultConnectionConfig()
	}
	changed := false
	set := func(key string, apply func(v string)) {
		if v := os.Getenv(key); v != "" {
			apply(v)
			changed = true
		}
	}
	set("DB_TYPE", func(v string) { cfg.Type = v })
	set("DB_HOST", func(v string) { cfg.Host = v })
	set("DB_PORT", func(v string) {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	})
	set("DB_USERNAME", func(v string) { cfg.Username = v })
	set("DB_PASSWORD", func(v string) { cfg.Password = v })
	set("DB_NAME", func(v string) { cfg.DBName = v })
	set("DB_SSLMODE", func(v string) { cfg.SSLMode = v })
	set("DB_ENABLE_QUERY_LOG", func(v string) { cfg.EnableQueryLog = v == "true" })
	if changed {
		c.Binds[DefaultBind] = cfg
	}

	c.Engine.MaxRetries = utils.EnvDefaultInt("QUARRY_MAX_RETRIES", c.Engine.MaxRetries)
	c.Engine.RetryDelay = utils.EnvDefaultDuration("QUARRY_RETRY_DELAY", c.Engine.RetryDelay)
	c.Engine.PaginationMode = utils.EnvDefaultString("QUARRY_PAGINATION_MODE", c.Engine.PaginationMode)
}

// Validate checks bind types and the pagination mode.
func (c *Config) Validate() error {
	supportedTypes := []string{"mysql", "postgres", "postgresql", "sqlite", "sqlite3"}
	for name, b := range c.Binds {
		supported := false
		for _, t := range supportedTypes {
			if strings.EqualFold(b.Type, t) {
				supported = true
				break
			}
		}
		if !supported {
			return NewConfigurationError("", name, "unsupported database type %q, supported types: %v", b.Type, supportedTypes)
		}
	}
	switch c.Engine.PaginationMode {
	case PaginationStandard, PaginationIntegrated:
	default:
		return NewConfigurationError("", "pagination_mode", "unsupported pagination mode %q", c.Engine.PaginationMode)
	}
	return nil
}
