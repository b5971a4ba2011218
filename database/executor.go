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
	"time"

	"github.com/sethvargo/go-retry"
)

// Driver runs one fully rendered statement against a bind.
type Driver interface {
	Query(ctx context.Context, bind string, query string, args ...interface{}) ([]map[string]interface{}, error)
	Exec(ctx context.Context, bind string, query string, args ...interface{}) (int64, error)
}

var _ Driver = (*Manager)(nil)

// RetryExecutor runs statements through a Driver and repeats those failing
// with a transient error class, waiting a fixed delay between attempts.
type RetryExecutor struct {
	driver      Driver
	classifier  Classifier
	maxAttempts int
	delay       time.Duration
	logger      Logger
	onDelay     func(attempt int, delay time.Duration)
}

type ExecutorOption func(*RetryExecutor)

func WithClassifier(c Classifier) ExecutorOption {
	return func(e *RetryExecutor) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithMaxRetries sets the total number of attempts, the first one included.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *RetryExecutor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) ExecutorOption {
	return func(e *RetryExecutor) {
		if d > 0 {
			e.delay = d
		}
	}
}

func WithExecutorLogger(l Logger) ExecutorOption {
	return func(e *RetryExecutor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDelayObserver registers fn to be called before every retry delay.
func WithDelayObserver(fn func(attempt int, delay time.Duration)) ExecutorOption {
	return func(e *RetryExecutor) { e.onDelay = fn }
}

// NewRetryExecutor defaults to three attempts five seconds apart.
func NewRetryExecutor(driver Driver, opts ...ExecutorOption) *RetryExecutor {
	engine := DefaultEngineConfig()
	e := &RetryExecutor{
		driver:      driver,
		classifier:  DefaultClassifier,
		maxAttempts: engine.MaxRetries,
		delay:       engine.RetryDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = GetLogger()
	}
	return e
}

// MaxAttempts reports the effective attempt limit after defaults.
func (e *RetryExecutor) MaxAttempts() int { return e.maxAttempts }

// RetryDelay reports the effective delay between attempts.
func (e *RetryExecutor) RetryDelay() time.Duration { return e.delay }

// Query runs a row-returning statement.
func (e *RetryExecutor) Query(ctx context.Context, bind string, query string, args ...interface{}) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	err := e.do(ctx, bind, "query", query, func(ctx context.Context) error {
		r, err := e.driver.Query(ctx, bind, query, args...)
		if err == nil {
			rows = r
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Exec runs a statement and returns the affected row count.
func (e *RetryExecutor) Exec(ctx context.Context, bind string, query string, args ...interface{}) (int64, error) {
	var affected int64
	err := e.do(ctx, bind, "exec", query, func(ctx context.Context) error {
		n, err := e.driver.Exec(ctx, bind, query, args...)
		if err == nil {
			affected = n
		}
		return err
	})
	return affected, err
}

func (e *RetryExecutor) do(ctx context.Context, bind string, operation string, query string, attempt func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		StatementDuration.WithLabelValues(bindName(bind), operation).Observe(time.Since(start).Seconds())
	}()
	var (
		attempts  int
		lastClass = ClassFatal
	)
	limited := retry.WithMaxRetries(uint64(e.maxAttempts-1), retry.NewConstant(e.delay))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := limited.Next()
		if !stop {
			StatementRetries.WithLabelValues(bindName(bind)).Inc()
			if e.onDelay != nil {
				e.onDelay(attempts, d)
			}
		}
		return d, stop
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++
		err := attempt(ctx)
		if err == nil {
			StatementAttempts.WithLabelValues(bindName(bind), "ok").Inc()
			e.logAttempt("Statement succeeded", bind, attempts, nil)
			return nil
		}
		if IsConfigurationError(err) {
			return err
		}
		lastClass = e.classifier.Classify(err)
		StatementAttempts.WithLabelValues(bindName(bind), lastClass.String()).Inc()
		e.logAttempt("Statement failed", bind, attempts, err, "class", lastClass)
		if lastClass.Transient() {
			return retry.RetryableError(err)
		}
		return &FatalDatabaseError{Bind: bind, SQL: query, Kind: SQLErrorKind(err), Err: err}
	})
	switch {
	case err == nil:
		return nil
	case IsFatalError(err), IsConfigurationError(err):
		return err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	case lastClass.Transient():
		e.logAttempt("Retries exhausted", bind, attempts, err, "class", lastClass)
		return &TransientDatabaseError{Bind: bind, SQL: query, Attempts: attempts, Class: lastClass, Err: err}
	default:
		return err
	}
}

// logAttempt never lets a misbehaving logger interfere with the statement.
func (e *RetryExecutor) logAttempt(msg string, bind string, attempt int, err error, fields ...interface{}) {
	defer func() { _ = recover() }()
	fields = append([]interface{}{"bind", bindName(bind), "attempt", attempt, "max_attempts", e.maxAttempts}, fields...)
	if err != nil {
		e.logger.Warn(msg, append(fields, "error", err)...)
		return
	}
	e.logger.Debug(msg, fields...)
}
