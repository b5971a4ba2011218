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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// Manager owns one pooled connection per bind and implements Driver over
// them. Every statement acquires a connection from the pool and releases it
// before returning.
type Manager struct {
	mu     sync.RWMutex
	binds  map[string]*bun.DB
	logger Logger
}

// NewManager returns a Manager without binds; use Open or Attach to add them.
func NewManager(logger Logger) *Manager {
	if logger == nil {
		logger = GetLogger()
	}
	return &Manager{binds: map[string]*bun.DB{}, logger: logger}
}

// Open connects every bind in cfg and pings it.
func Open(ctx context.Context, cfg *Config, logger Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	m := NewManager(logger)
	names := make([]string, 0, len(cfg.Binds))
	for name := range cfg.Binds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		conn := cfg.Binds[name]
		if err := m.connect(ctx, name, &conn); err != nil {
			_ = m.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) connect(ctx context.Context, name string, cfg *ConnectionConfig) error {
	db, err := m.createConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to create database connection for bind %s: %w", name, err)
	}
	configureConnectionPool(db.DB, cfg)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctxTimeout); err != nil {
		_ = db.Close()
		return fmt.Errorf("database connection test failed for bind %s: %w", name, err)
	}

	m.Attach(name, db)
	m.logger.Info("Database connected successfully", "bind", name, "type", cfg.Type, "host", cfg.Host)
	return nil
}

func (m *Manager) createConnection(cfg *ConnectionConfig) (*bun.DB, error) {
	var db *bun.DB
	var err error
	switch strings.ToLower(cfg.Type) {
	case "mysql":
		db, err = createMySQLConnection(cfg)
	case "postgres", "postgresql":
		db, err = createPostgreSQLConnection(cfg)
	case "sqlite", "sqlite3":
		db, err = createSQLiteConnection(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	db.AddQueryHook(NewQueryHook(m.logger, false))
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(m.logger, cfg.SlowQueryTime))
	}
	return db, nil
}

func createMySQLConnection(cfg *ConnectionConfig) (*bun.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.ConnectTimeout,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
	)
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, mysqldialect.New()), nil
}

func createPostgreSQLConnection(cfg *ConnectionConfig) (*bun.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		sslMode,
		int(cfg.ConnectTimeout.Seconds()),
	)
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

func createSQLiteConnection(cfg *ConnectionConfig) (*bun.DB, error) {
	dsn := cfg.DBName
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		dsn = fmt.Sprintf("%s.db", cfg.DBName)
	}
	sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

func configureConnectionPool(sqlDB *sql.DB, cfg *ConnectionConfig) {
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// Attach registers an already opened database under a bind name, replacing
// any previous one.
func (m *Manager) Attach(name string, db *bun.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binds[bindName(name)] = db
}

// DB returns the database of a bind; the empty name is the default bind.
func (m *Manager) DB(bind string) (*bun.DB, error) {
	m.mu.RLock()
	db, ok := m.binds[bindName(bind)]
	m.mu.RUnlock()
	if !ok {
		return nil, NewConfigurationError("", bindName(bind), "bind is not configured")
	}
	return db, nil
}

// Dialect returns the dialect name of a bind.
func (m *Manager) Dialect(bind string) (dialect.Name, error) {
	db, err := m.DB(bind)
	if err != nil {
		return dialect.Invalid, err
	}
	return db.Dialect().Name(), nil
}

// Binds lists the configured bind names in order.
func (m *Manager) Binds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.binds))
	for name := range m.binds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query runs one statement and scans every row into a column map.
func (m *Manager) Query(ctx context.Context, bind string, query string, args ...interface{}) ([]map[string]interface{}, error) {
	db, err := m.DB(bind)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]map[string]interface{}, 0)
	if err := db.ScanRows(ctx, rows, &result); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return result, nil
}

// Exec runs one statement and returns the number of affected rows.
func (m *Manager) Exec(ctx context.Context, bind string, query string, args ...interface{}) (int64, error) {
	db, err := m.DB(bind)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RunInTx begins a transaction on the bind, commits when fn succeeds and
// rolls back otherwise.
func (m *Manager) RunInTx(ctx context.Context, bind string, fn func(ctx context.Context, tx bun.Tx) error) error {
	db, err := m.DB(bind)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var committed bool
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				m.logger.Error("Failed to rollback transaction", "bind", bindName(bind), "error", rollbackErr)
			}
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// HealthCheck pings one bind and reports its pool statistics.
func (m *Manager) HealthCheck(ctx context.Context, bind string) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{Bind: bindName(bind), LastCheckTime: start}
	db, err := m.DB(bind)
	if err != nil {
		status.LastError = err.Error()
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	err = db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
	}

	stats := db.DB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

// Ping checks that a bind answers.
func (m *Manager) Ping(ctx context.Context, bind string) error {
	db, err := m.DB(bind)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Stats returns the pool statistics of a bind.
func (m *Manager) Stats(bind string) (sql.DBStats, error) {
	db, err := m.DB(bind)
	if err != nil {
		return sql.DBStats{}, err
	}
	return db.DB.Stats(), nil
}

// Close closes every bind and reports all failures together.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result *multierror.Error
	for name, db := range m.binds {
		if err := db.Close(); err != nil {
			m.logger.Error("Failed to close database connection", "bind", name, "error", err)
			result = multierror.Append(result, fmt.Errorf("close bind %s: %w", name, err))
			continue
		}
		m.logger.Info("Database connection closed", "bind", name)
	}
	m.binds = map[string]*bun.DB{}
	return result.ErrorOrNil()
}
