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

package filter

import (
	"strings"

	"github.com/tomoncle/quarry/database"
)

// Operator is the closed set of comparisons a Term can express.
type Operator int

const (
	Equal Operator = iota
	NotEqual
	Like
	NotLike
	ILike
	NotILike
	Greater
	Less
	GreaterOrEqual
	LessOrEqual
	In
	NotIn
	Between
	BetweenOrEqual
	Has
	Any

	operatorCount
)

var operatorNames = [operatorCount]string{
	Equal:          "EQUAL",
	NotEqual:       "NOT_EQUAL",
	Like:           "LIKE",
	NotLike:        "NOT_LIKE",
	ILike:          "ILIKE",
	NotILike:       "NOT_ILIKE",
	Greater:        "GREATER",
	Less:           "LESS",
	GreaterOrEqual: "GREATER_OR_EQUAL",
	LessOrEqual:    "LESS_OR_EQUAL",
	In:             "IN",
	NotIn:          "NOT_IN",
	Between:        "BETWEEN",
	BetweenOrEqual: "BETWEEN_OR_EQUAL",
	Has:            "HAS",
	Any:            "ANY",
}

// short forms accepted from request parameters
var operatorAliases = map[string]Operator{
	"eq":      Equal,
	"=":       Equal,
	"==":      Equal,
	"ne":      NotEqual,
	"neq":     NotEqual,
	"!=":      NotEqual,
	"<>":      NotEqual,
	"gt":      Greater,
	">":       Greater,
	"lt":      Less,
	"<":       Less,
	"gte":     GreaterOrEqual,
	"ge":      GreaterOrEqual,
	">=":      GreaterOrEqual,
	"lte":     LessOrEqual,
	"le":      LessOrEqual,
	"<=":      LessOrEqual,
	"nin":     NotIn,
	"between": Between,
	"range":   BetweenOrEqual,
}

var operatorTokens = func() map[string]Operator {
	m := make(map[string]Operator, int(operatorCount)+len(operatorAliases))
	for op, name := range operatorNames {
		m[strings.ToLower(name)] = Operator(op)
	}
	for alias, op := range operatorAliases {
		m[alias] = op
	}
	return m
}()

func (o Operator) String() string {
	if !o.Valid() {
		return "UNKNOWN"
	}
	return operatorNames[o]
}

func (o Operator) Valid() bool {
	return o >= 0 && o < operatorCount
}

// Relational reports whether the operand is a nested term list evaluated
// against a related entity.
func (o Operator) Relational() bool {
	return o == Has || o == Any
}

// Operators lists every operator in declaration order.
func Operators() []Operator {
	ops := make([]Operator, operatorCount)
	for i := range ops {
		ops[i] = Operator(i)
	}
	return ops
}

// ParseOperator maps an external token to an Operator. Matching ignores case
// and surrounding space; target names the term for the error message.
func ParseOperator(token, target string) (Operator, error) {
	normalized := strings.ToLower(strings.TrimSpace(token))
	if op, ok := operatorTokens[normalized]; ok {
		return op, nil
	}
	if op, ok := operatorTokens[strings.ReplaceAll(normalized, "-", "_")]; ok {
		return op, nil
	}
	return Equal, database.NewConfigurationError("", target, "unknown filter operator %q", token)
}

func (o Operator) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, database.NewConfigurationError("", "", "unknown filter operator %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *Operator) UnmarshalText(text []byte) error {
	op, err := ParseOperator(string(text), "")
	if err != nil {
		return err
	}
	*o = op
	return nil
}
