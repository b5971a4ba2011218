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
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDriver fails with the scripted errors in order, then succeeds.
type scriptedDriver struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	always error
}

func (d *scriptedDriver) next() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.always != nil {
		return d.always
	}
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	d.errs = d.errs[1:]
	return err
}

func (d *scriptedDriver) Query(context.Context, string, string, ...interface{}) ([]map[string]interface{}, error) {
	if err := d.next(); err != nil {
		return nil, err
	}
	return []map[string]interface{}{{"id": int64(1)}}, nil
}

func (d *scriptedDriver) Exec(context.Context, string, string, ...interface{}) (int64, error) {
	if err := d.next(); err != nil {
		return 0, err
	}
	return 7, nil
}

type delays struct {
	mu       sync.Mutex
	attempts []int
}

func (d *delays) observe(attempt int, _ time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, attempt)
}

func newTestExecutor(drv Driver, observed *delays, opts ...ExecutorOption) *RetryExecutor {
	opts = append([]ExecutorOption{
		WithRetryDelay(time.Millisecond),
		WithDelayObserver(observed.observe),
	}, opts...)
	return NewRetryExecutor(drv, opts...)
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	drv := &scriptedDriver{errs: []error{driver.ErrBadConn, mysql.ErrInvalidConn}}
	observed := &delays{}
	rows, err := newTestExecutor(drv, observed, WithMaxRetries(3)).Query(context.Background(), "", "SELECT 1")

	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 3, drv.calls)
	assert.Equal(t, []int{1, 2}, observed.attempts)
}

func TestRetryExhaustion(t *testing.T) {
	drv := &scriptedDriver{always: driver.ErrBadConn}
	observed := &delays{}
	_, err := newTestExecutor(drv, observed, WithMaxRetries(3)).Exec(context.Background(), "reports", "DELETE FROM t")

	require.Error(t, err)
	assert.True(t, IsTransientError(err))
	assert.ErrorIs(t, err, driver.ErrBadConn)
	var transient *TransientDatabaseError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 3, transient.Attempts)
	assert.Equal(t, "reports", transient.Bind)
	assert.Equal(t, ClassConnectionLost, transient.Class)
	assert.Equal(t, 3, drv.calls)
	assert.Len(t, observed.attempts, 2)
}

func TestSingleAttemptIsNotRetried(t *testing.T) {
	drv := &scriptedDriver{always: &mysql.MySQLError{Number: 2013, Message: "Lost connection"}}
	observed := &delays{}
	_, err := newTestExecutor(drv, observed, WithMaxRetries(1)).Query(context.Background(), "", "SELECT 1")

	var transient *TransientDatabaseError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 1, transient.Attempts)
	assert.Equal(t, 1, drv.calls)
	assert.Empty(t, observed.attempts)
}

func TestFatalErrorIsNotRetried(t *testing.T) {
	drv := &scriptedDriver{always: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}}
	observed := &delays{}
	n, err := newTestExecutor(drv, observed).Exec(context.Background(), "", "INSERT INTO t VALUES (1)")

	assert.Zero(t, n)
	assert.True(t, IsFatalError(err))
	assert.False(t, IsTransientError(err))
	var fatal *FatalDatabaseError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, DuplicateKeyErr, fatal.Kind)
	assert.Equal(t, "INSERT INTO t VALUES (1)", fatal.SQL)
	assert.Equal(t, 1, drv.calls)
	assert.Empty(t, observed.attempts)
}

func TestConfigurationErrorPassesThrough(t *testing.T) {
	observed := &delays{}
	_, err := newTestExecutor(NewManager(nil), observed).Query(context.Background(), "missing", "SELECT 1")

	assert.True(t, IsConfigurationError(err))
	assert.False(t, IsFatalError(err))
	assert.Empty(t, observed.attempts)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	drv := &scriptedDriver{}
	_, err := newTestExecutor(drv, &delays{}).Query(ctx, "", "SELECT 1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, drv.calls)
}

func TestCancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	drv := &scriptedDriver{always: driver.ErrBadConn}
	exec := NewRetryExecutor(drv,
		WithRetryDelay(time.Hour),
		WithDelayObserver(func(int, time.Duration) { cancel() }),
	)

	done := make(chan error, 1)
	go func() {
		_, err := exec.Query(ctx, "", "SELECT 1")
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, drv.calls)
	case <-time.After(5 * time.Second):
		t.Fatal("executor kept waiting after cancellation")
	}
}

type panickyLogger struct{ *DefaultLogger }

func (panickyLogger) Debug(string, ...interface{}) { panic("debug") }
func (panickyLogger) Warn(string, ...interface{})  { panic("warn") }

func TestLoggerPanicDoesNotEscape(t *testing.T) {
	drv := &scriptedDriver{errs: []error{driver.ErrBadConn}}
	exec := newTestExecutor(drv, &delays{}, WithExecutorLogger(panickyLogger{NewDefaultLogger("TEST")}))

	n, err := exec.Exec(context.Background(), "", "UPDATE t SET a = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestExecutorDefaults(t *testing.T) {
	exec := NewRetryExecutor(&scriptedDriver{}, WithMaxRetries(0), WithRetryDelay(-time.Second))
	assert.Equal(t, 3, exec.maxAttempts)
	assert.Equal(t, 5*time.Second, exec.delay)
	assert.Equal(t, 3, exec.MaxAttempts())
	assert.Equal(t, 5*time.Second, exec.RetryDelay())
	assert.NotNil(t, exec.logger)
	assert.NotNil(t, exec.classifier)
}

func TestCustomClassifier(t *testing.T) {
	flaky := errors.New("flaky")
	drv := &scriptedDriver{errs: []error{flaky}}
	classifier := ClassifierFunc(func(err error) ErrorClass {
		if errors.Is(err, flaky) {
			return ClassTimeout
		}
		return ClassFatal
	})
	_, err := newTestExecutor(drv, &delays{}, WithClassifier(classifier)).Query(context.Background(), "", "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, 2, drv.calls)
}
