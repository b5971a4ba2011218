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
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrConfiguration = errors.New("quarry: configuration error")
	ErrValidation    = errors.New("quarry: validation error")
	ErrTransient     = errors.New("quarry: transient database error")
	ErrFatal         = errors.New("quarry: fatal database error")
)

// ConfigurationError reports a request the engine cannot compile: unknown
// operator, unresolvable path, unregistered entity. It is raised before any
// SQL reaches a driver and is never retried.
type ConfigurationError struct {
	Entity string
	Target string
	Reason string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("quarry: configuration error")
	if e.Entity != "" {
		b.WriteString(" on " + e.Entity)
	}
	if e.Target != "" {
		b.WriteString(" (" + e.Target + ")")
	}
	b.WriteString(": " + e.Reason)
	return b.String()
}

func (e *ConfigurationError) Is(err error) bool { return err == ErrConfiguration }

// NewConfigurationError formats the reason like fmt.Sprintf.
func NewConfigurationError(entity, target, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Entity: entity, Target: target, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError reports caller misuse such as an unfiltered delete.
type ValidationError struct {
	Entity    string
	Operation string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("quarry: invalid %s on %s: %s", e.Operation, e.Entity, e.Reason)
}

func (e *ValidationError) Is(err error) bool { return err == ErrValidation }

// TransientDatabaseError is the last connection-class failure after every
// attempt was used.
type TransientDatabaseError struct {
	Bind     string
	SQL      string
	Attempts int
	Class    ErrorClass
	Err      error
}

func (e *TransientDatabaseError) Error() string {
	return fmt.Sprintf("quarry: transient %s error on bind %q after %d attempt(s): %v", e.Class, bindName(e.Bind), e.Attempts, e.Err)
}

func (e *TransientDatabaseError) Unwrap() error { return e.Err }

func (e *TransientDatabaseError) Is(err error) bool { return err == ErrTransient }

// FatalDatabaseError wraps any non-transient driver failure.
type FatalDatabaseError struct {
	Bind string
	SQL  string
	Kind SQLError
	Err  error
}

func (e *FatalDatabaseError) Error() string {
	return fmt.Sprintf("quarry: database error on bind %q (%s): %v", bindName(e.Bind), e.Kind, e.Err)
}

func (e *FatalDatabaseError) Unwrap() error { return e.Err }

func (e *FatalDatabaseError) Is(err error) bool { return err == ErrFatal }

func IsConfigurationError(err error) bool { return errors.Is(err, ErrConfiguration) }

func IsValidationError(err error) bool { return errors.Is(err, ErrValidation) }

func IsTransientError(err error) bool { return errors.Is(err, ErrTransient) }

func IsFatalError(err error) bool { return errors.Is(err, ErrFatal) }

func bindName(bind string) string {
	if bind == "" {
		return DefaultBind
	}
	return bind
}

// SQLError names the constraint or schema failure behind a fatal error.
type SQLError int

const (
	UnknownErr SQLError = iota
	NoColumnErr
	NoTableErr
	SyntaxErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
)

func (s SQLError) String() string {
	switch s {
	case NoColumnErr:
		return "no column"
	case NoTableErr:
		return "no table"
	case SyntaxErr:
		return "syntax"
	case DuplicateKeyErr:
		return "duplicate key"
	case NotNullViolationErr:
		return "not null violation"
	case ForeignKeyViolationErr:
		return "foreign key violation"
	case CheckConstraintViolationErr:
		return "check constraint violation"
	case DataTruncatedErr:
		return "data truncated"
	case InvalidTypeCastErr:
		return "invalid type cast"
	default:
		return "unknown"
	}
}

// SQLErrorKind inspects typed driver errors; unrecognized errors are UnknownErr.
func SQLErrorKind(err error) SQLError {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1054:
			return NoColumnErr
		case 1146:
			return NoTableErr
		case 1064:
			return SyntaxErr
		case 1062:
			return DuplicateKeyErr
		case 1048:
			return NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return ForeignKeyViolationErr
		case 3819:
			return CheckConstraintViolationErr
		case 1265, 1406:
			return DataTruncatedErr
		default:
			return UnknownErr
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42703":
			return NoColumnErr
		case "42P01":
			return NoTableErr
		case "42601":
			return SyntaxErr
		case "23505":
			return DuplicateKeyErr
		case "23502":
			return NotNullViolationErr
		case "23503":
			return ForeignKeyViolationErr
		case "23514":
			return CheckConstraintViolationErr
		case "22001":
			return DataTruncatedErr
		case "42804":
			return InvalidTypeCastErr
		default:
			return UnknownErr
		}
	}
	return UnknownErr
}
