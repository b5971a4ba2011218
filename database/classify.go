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
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ErrorClass is the closed set of outcomes a Classifier may assign.
type ErrorClass int

const (
	ClassFatal ErrorClass = iota
	ClassConnectionLost
	ClassConnectionRefused
	ClassTimeout
	ClassServerShutdown
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConnectionLost:
		return "connection_lost"
	case ClassConnectionRefused:
		return "connection_refused"
	case ClassTimeout:
		return "timeout"
	case ClassServerShutdown:
		return "server_shutdown"
	default:
		return "fatal"
	}
}

// Transient reports whether the class is eligible for retry.
func (c ErrorClass) Transient() bool {
	return c != ClassFatal
}

// Classifier decides whether a driver error is worth another attempt.
type Classifier interface {
	Classify(err error) ErrorClass
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) ErrorClass

func (f ClassifierFunc) Classify(err error) ErrorClass { return f(err) }

// DefaultClassifier recognizes connection failures of the bundled drivers by
// their types and codes.
var DefaultClassifier Classifier = ClassifierFunc(classifyDriverError)

func classifyDriverError(err error) ErrorClass {
	if err == nil {
		return ClassFatal
	}
	// caller cancellation is never a server-side condition
	if errors.Is(err, context.Canceled) {
		return ClassFatal
	}
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return ClassConnectionLost
	case errors.Is(err, syscall.ECONNREFUSED):
		return ClassConnectionRefused
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 2006, 2013, 2055:
			// server has gone away, lost connection during query
			return ClassConnectionLost
		case 1053:
			return ClassServerShutdown
		case 1205:
			return ClassTimeout
		}
		return ClassFatal
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08":
			return ClassConnectionLost
		case pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
			return ClassServerShutdown
		}
		return ClassFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassConnectionLost
	}
	return ClassFatal
}
