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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
binds:
  default:
    type: sqlite
    dbname: ":memory:"
  reports:
    type: postgres
    host: db.internal
    port: 5432
    max_open_conns: 8
    slow_query_time: 500ms
engine:
  max_retries: 4
  retry_delay: 250ms
  pagination_mode: integrated
  schema_single_flight: true
`

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"DB_TYPE", "DB_HOST", "DB_PORT", "DB_USERNAME", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "DB_ENABLE_QUERY_LOG",
		"QUARRY_MAX_RETRIES", "QUARRY_RETRY_DELAY", "QUARRY_PAGINATION_MODE",
	} {
		t.Setenv(key, "")
	}
}

func TestParseConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Binds, 2)
	reports := cfg.Binds["reports"]
	assert.Equal(t, "db.internal", reports.Host)
	assert.Equal(t, 8, reports.MaxOpenConns)
	assert.Equal(t, 10, reports.MaxIdleConns)
	assert.Equal(t, time.Hour, reports.ConnMaxLifetime)
	assert.Equal(t, 500*time.Millisecond, reports.SlowQueryTime)
	assert.Equal(t, ":memory:", cfg.Binds[DefaultBind].DBName)

	assert.Equal(t, EngineConfig{
		MaxRetries:         4,
		RetryDelay:         250 * time.Millisecond,
		PaginationMode:     PaginationIntegrated,
		DefaultPerPage:     10,
		SchemaSingleFlight: true,
	}, cfg.Engine)
}

func TestParseConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := ParseConfig([]byte("engine:\n  max_retries: 0\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Binds)
	assert.Equal(t, 1, cfg.Engine.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Engine.RetryDelay)
	assert.Equal(t, PaginationStandard, cfg.Engine.PaginationMode)
}

func TestParseConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("QUARRY_MAX_RETRIES", "6")
	t.Setenv("QUARRY_RETRY_DELAY", "1s")
	t.Setenv("QUARRY_PAGINATION_MODE", "integrated")

	cfg, err := ParseConfig([]byte("binds:\n  default:\n    type: sqlite\n    dbname: app\n"))
	require.NoError(t, err)
	def := cfg.Binds[DefaultBind]
	assert.Equal(t, "mysql", def.Type)
	assert.Equal(t, "10.0.0.5", def.Host)
	assert.Equal(t, 3307, def.Port)
	assert.Equal(t, "app", def.DBName)
	assert.Equal(t, 6, cfg.Engine.MaxRetries)
	assert.Equal(t, time.Second, cfg.Engine.RetryDelay)
	assert.Equal(t, PaginationIntegrated, cfg.Engine.PaginationMode)
}

func TestParseConfigRejects(t *testing.T) {
	clearEnv(t)
	_, err := ParseConfig([]byte("binds:\n  default:\n    type: oracle\n"))
	assert.True(t, IsConfigurationError(err))

	_, err = ParseConfig([]byte("engine:\n  pagination_mode: cursor\n"))
	assert.True(t, IsConfigurationError(err))

	_, err = ParseConfig([]byte("binds: [unclosed"))
	assert.Error(t, err)
	assert.False(t, IsConfigurationError(err))
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, PaginationIntegrated, cfg.Engine.PaginationMode)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
