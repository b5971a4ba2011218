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
	"reflect"

	"github.com/tomoncle/quarry/database"
)

type null struct{}

func (null) String() string { return "NULL" }

// Null is an explicit null operand. It compiles to IS NULL for EQUAL and is
// skipped like nil for optional terms.
var Null = null{}

// Term is one condition. For HAS and ANY the Value is the nested []Term
// evaluated against the related entity; a dotted Path such as
// "author.name" walks relationships implicitly.
type Term struct {
	Path     string
	Operator Operator
	Value    any
	Optional bool
}

func Where(path string, op Operator, value any) Term {
	return Term{Path: path, Operator: op, Value: value}
}

// Maybe builds a term that is dropped when value is null.
func Maybe(path string, op Operator, value any) Term {
	return Term{Path: path, Operator: op, Value: value, Optional: true}
}

// IsNull reports nil, typed nil pointers and the Null sentinel.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	if _, ok := v.(null); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map:
		return rv.IsNil()
	}
	return false
}

// Condition is the wire form of a Term with the operator still a token.
type Condition struct {
	Path     string `json:"path" yaml:"path"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value" yaml:"value"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Parse resolves operator tokens of decoded conditions. Nested operands of
// HAS and ANY may be []Condition or generic decoded maps.
func Parse(conditions []Condition) ([]Term, error) {
	terms := make([]Term, 0, len(conditions))
	for _, c := range conditions {
		op, err := ParseOperator(c.Operator, c.Path)
		if err != nil {
			return nil, err
		}
		term := Term{Path: c.Path, Operator: op, Value: c.Value, Optional: c.Optional}
		if op.Relational() && !IsNull(c.Value) {
			nested, err := nestedConditions(c.Path, c.Value)
			if err != nil {
				return nil, err
			}
			if term.Value, err = Parse(nested); err != nil {
				return nil, err
			}
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func nestedConditions(path string, value any) ([]Condition, error) {
	switch v := value.(type) {
	case []Condition:
		return v, nil
	case Condition:
		return []Condition{v}, nil
	case map[string]any:
		c, err := conditionFromMap(path, v)
		if err != nil {
			return nil, err
		}
		return []Condition{c}, nil
	case []any:
		out := make([]Condition, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, database.NewConfigurationError("", path, "nested condition must be an object, got %T", item)
			}
			c, err := conditionFromMap(path, m)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	default:
		return nil, database.NewConfigurationError("", path, "relationship operand must be a condition list, got %T", value)
	}
}

func conditionFromMap(path string, m map[string]any) (Condition, error) {
	var c Condition
	var ok bool
	if c.Path, ok = m["path"].(string); !ok {
		return c, database.NewConfigurationError("", path, "nested condition has no path")
	}
	if c.Operator, ok = m["operator"].(string); !ok {
		return c, database.NewConfigurationError("", c.Path, "nested condition has no operator")
	}
	c.Value = m["value"]
	c.Optional, _ = m["optional"].(bool)
	return c, nil
}
