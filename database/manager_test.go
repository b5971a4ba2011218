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
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	m := NewManager(nil)
	m.Attach("", bun.NewDB(sqldb, pgdialect.New()))
	return m, mock
}

func TestManagerQueryAndExec(t *testing.T) {
	m, mock := newMockManager(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name FROM widgets`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alpha").AddRow(int64(2), "beta"))
	rows, err := m.Query(ctx, DefaultBind, `SELECT id, name FROM widgets`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "beta", rows[1]["name"])

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM widgets WHERE 1 = 0`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	rows, err = m.Query(ctx, "", `SELECT id FROM widgets WHERE 1 = 0`)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE widgets SET status = 'retired'`)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := m.Exec(ctx, "", `UPDATE widgets SET status = 'retired'`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = m.Query(ctx, "reports", `SELECT 1`)
	assert.True(t, IsConfigurationError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerWithRetryExecutor(t *testing.T) {
	m, mock := newMockManager(t)
	mock.ExpectQuery(`SELECT 1`).WillReturnError(&pq.Error{Code: "08006"})
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(int64(1)))

	rows, err := NewRetryExecutor(m, WithMaxRetries(2), WithRetryDelay(time.Millisecond)).
		Query(context.Background(), "", `SELECT 1`)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerRunInTx(t *testing.T) {
	m, mock := newMockManager(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO widgets`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	err := m.RunInTx(ctx, "", func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO widgets (name) VALUES ('alpha')`)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = m.RunInTx(ctx, "", func(context.Context, bun.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerLifecycle(t *testing.T) {
	m, mock := newMockManager(t)
	ctx := context.Background()

	assert.Equal(t, []string{DefaultBind}, m.Binds())
	name, err := m.Dialect("")
	require.NoError(t, err)
	assert.Equal(t, dialect.PG, name)

	require.NoError(t, m.Ping(ctx, ""))
	assert.True(t, IsConfigurationError(m.Ping(ctx, "reports")))
	_, err = m.Stats("")
	require.NoError(t, err)
	status := m.HealthCheck(ctx, "")
	assert.True(t, status.Healthy)
	assert.Equal(t, DefaultBind, status.Bind)

	mock.ExpectClose()
	require.NoError(t, m.Close())
	_, err = m.DB("")
	assert.True(t, IsConfigurationError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerCloseAggregatesErrors(t *testing.T) {
	m, mock := newMockManager(t)
	mock.ExpectClose().WillReturnError(errors.New("socket stuck"))
	err := m.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close bind default")
}

type bootstrapWidget struct {
	bun.BaseModel `bun:"table:bootstrap_widgets"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

func TestOpenSQLiteAndCreateTables(t *testing.T) {
	ctx := context.Background()
	m, err := Open(ctx, &Config{Binds: map[string]ConnectionConfig{
		DefaultBind: {Type: "sqlite", DBName: "file:" + uuid.NewString() + "?mode=memory&cache=shared", MaxOpenConns: 1},
	}}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.CreateTables(ctx, "", (*bootstrapWidget)(nil)))
	n, err := m.Exec(ctx, "", `INSERT INTO bootstrap_widgets (name) VALUES ('alpha'), ('beta')`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := m.Query(ctx, "", `SELECT name FROM bootstrap_widgets ORDER BY id`)
	require.NoError(t, err)
	assert.Equal(t, []map[string]interface{}{{"name": "alpha"}, {"name": "beta"}}, rows)

	require.NoError(t, m.DropTables(ctx, "", (*bootstrapWidget)(nil)))
	_, err = m.Query(ctx, "", `SELECT name FROM bootstrap_widgets`)
	assert.Error(t, err)
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(context.Background(), &Config{Binds: map[string]ConnectionConfig{"x": {Type: "oracle"}}}, nil)
	assert.Error(t, err)
	_, err = Open(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	m, err := Open(ctx, &Config{Binds: map[string]ConnectionConfig{
		DefaultBind: {Type: "sqlite", DBName: "file:" + uuid.NewString() + "?mode=memory&cache=shared", MaxOpenConns: 1},
	}}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.CreateTables(ctx, "", (*bootstrapWidget)(nil)))

	script := `
-- fixtures
INSERT INTO bootstrap_widgets (name)
VALUES ('alpha');

INSERT INTO bootstrap_widgets (name) VALUES ('beta'), ('gamma');
`
	res, err := m.Seed(ctx, "", strings.NewReader(script))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Statements)
	assert.Equal(t, int64(3), res.RowsAffected)

	_, err = m.Seed(ctx, "", strings.NewReader("INSERT INTO bootstrap_widgets (name) VALUES ('delta');\nINSERT INTO missing VALUES (1);"))
	assert.Error(t, err)
	rows, err := m.Query(ctx, "", `SELECT count(*) AS n FROM bootstrap_widgets`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows[0]["n"], "failed scripts roll back")

	path := filepath.Join(t.TempDir(), "seed.sql")
	require.NoError(t, os.WriteFile(path, []byte("DELETE FROM bootstrap_widgets;"), 0o600))
	res, err = m.SeedFile(ctx, "", path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RowsAffected)
}
