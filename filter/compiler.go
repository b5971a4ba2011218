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
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/entity"
	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Resolver finds the entity on the far side of a relationship.
type Resolver interface {
	Target(d *entity.Descriptor, relationship string) (entity.Relationship, *entity.Descriptor, error)
}

// Compiler turns terms into predicates for one SQL dialect.
type Compiler struct {
	resolver Resolver
	dialect  dialect.Name
}

func NewCompiler(resolver Resolver, name dialect.Name) *Compiler {
	return &Compiler{resolver: resolver, dialect: name}
}

// Compile returns one predicate per term, in order. Terms that are optional,
// either individually or because optional is set, contribute nothing when
// their operand is null. alias qualifies every column of desc.
func (c *Compiler) Compile(desc *entity.Descriptor, alias string, terms []Term, optional bool) ([]Predicate, error) {
	return c.compile(desc, alias, 0, terms, optional)
}

func (c *Compiler) compile(desc *entity.Descriptor, alias string, depth int, terms []Term, optional bool) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(terms))
	for _, t := range terms {
		p, ok, err := c.term(desc, alias, depth, t, optional || t.Optional)
		if err != nil {
			return nil, err
		}
		if ok {
			preds = append(preds, p)
		}
	}
	return preds, nil
}

func (c *Compiler) term(desc *entity.Descriptor, alias string, depth int, t Term, optional bool) (Predicate, bool, error) {
	if !t.Operator.Valid() {
		return Predicate{}, false, database.NewConfigurationError(desc.Name, t.Path, "unknown filter operator %d", int(t.Operator))
	}
	if optional && IsNull(t.Value) {
		return Predicate{}, false, nil
	}
	if head, rest, dotted := strings.Cut(t.Path, "."); dotted {
		rel, target, err := c.resolver.Target(desc, head)
		if err != nil {
			return Predicate{}, false, err
		}
		nested := Term{Path: rest, Operator: t.Operator, Value: t.Value}
		inner, ok, err := c.term(target, subAlias(depth), depth+1, nested, optional)
		if err != nil || !ok {
			return Predicate{}, ok, err
		}
		return exists(alias, depth, rel, target, []Predicate{inner}), true, nil
	}
	if t.Operator.Relational() {
		p, err := c.related(desc, alias, depth, t, optional)
		return p, err == nil, err
	}
	if !desc.HasColumn(t.Path) {
		return Predicate{}, false, database.NewConfigurationError(desc.Name, t.Path, "unknown column")
	}
	p, err := c.leaf(desc, alias, t)
	return p, err == nil, err
}

func (c *Compiler) related(desc *entity.Descriptor, alias string, depth int, t Term, optional bool) (Predicate, error) {
	rel, target, err := c.resolver.Target(desc, t.Path)
	if err != nil {
		return Predicate{}, err
	}
	switch {
	case t.Operator == Has && rel.Cardinality != entity.One:
		return Predicate{}, database.NewConfigurationError(desc.Name, t.Path, "HAS needs a to-one relationship, use ANY")
	case t.Operator == Any && rel.Cardinality != entity.Many:
		return Predicate{}, database.NewConfigurationError(desc.Name, t.Path, "ANY needs a to-many relationship, use HAS")
	}
	var nested []Term
	switch v := t.Value.(type) {
	case nil, null:
	case []Term:
		nested = v
	case Term:
		nested = []Term{v}
	default:
		return Predicate{}, database.NewConfigurationError(desc.Name, t.Path, "%s operand must be []filter.Term, got %T", t.Operator, t.Value)
	}
	inner, err := c.compile(target, subAlias(depth), depth+1, nested, optional)
	if err != nil {
		return Predicate{}, err
	}
	return exists(alias, depth, rel, target, inner), nil
}

func subAlias(depth int) string {
	return fmt.Sprintf("t%d", depth+1)
}

// exists correlates a subquery over target with the row of alias.
func exists(alias string, depth int, rel entity.Relationship, target *entity.Descriptor, inner []Predicate) Predicate {
	sub := subAlias(depth)
	var b strings.Builder
	b.WriteString("EXISTS (SELECT 1 FROM ? AS ? WHERE ?.? = ?.?")
	args := []any{bun.Ident(target.Table), bun.Ident(sub)}
	args = append(args, column(sub, rel.RemoteColumn)...)
	args = append(args, column(alias, rel.LocalColumn)...)
	for _, p := range inner {
		b.WriteString(" AND (" + p.SQL + ")")
		args = append(args, p.Args...)
	}
	b.WriteString(")")
	return Predicate{SQL: b.String(), Args: args}
}

func (c *Compiler) leaf(desc *entity.Descriptor, alias string, t Term) (Predicate, error) {
	col := column(alias, t.Path)
	var value any
	if !IsNull(t.Value) {
		value = types.Scalar(t.Value)
	}

	binary := func(op string) (Predicate, error) {
		if value == nil {
			return Predicate{}, database.NewConfigurationError(desc.Name, t.Path, "%s needs a non-null operand", t.Operator)
		}
		return Predicate{SQL: "?.? " + op + " ?", Args: append(col, value)}, nil
	}
	insensitive := func(not string) (Predicate, error) {
		if c.dialect == dialect.PG {
			return binary(not + "ILIKE")
		}
		if value == nil {
			return Predicate{}, database.NewConfigurationError(desc.Name, t.Path, "%s needs a non-null operand", t.Operator)
		}
		return Predicate{SQL: "LOWER(?.?) " + not + "LIKE LOWER(?)", Args: append(col, value)}, nil
	}

	switch t.Operator {
	case Equal:
		if value == nil {
			return Predicate{SQL: "?.? IS NULL", Args: col}, nil
		}
		return binary("=")
	case NotEqual:
		if value == nil {
			return Predicate{SQL: "?.? IS NOT NULL", Args: col}, nil
		}
		return binary("<>")
	case Like:
		return binary("LIKE")
	case NotLike:
		return binary("NOT LIKE")
	case ILike:
		return insensitive("")
	case NotILike:
		return insensitive("NOT ")
	case Greater:
		return binary(">")
	case Less:
		return binary("<")
	case GreaterOrEqual:
		return binary(">=")
	case LessOrEqual:
		return binary("<=")
	case In, NotIn:
		list, err := operandList(desc, t)
		if err != nil {
			return Predicate{}, err
		}
		// NULL never matches inside IN (...), so null elements become an
		// explicit IS NULL test next to the remaining values.
		values := list[:0:0]
		for _, item := range list {
			if item != nil {
				values = append(values, item)
			}
		}
		hasNull := len(values) < len(list)
		if t.Operator == In {
			switch {
			case len(values) == 0 && hasNull:
				return Predicate{SQL: "?.? IS NULL", Args: col}, nil
			case len(values) == 0:
				return never, nil
			case hasNull:
				args := append(append([]any{}, col...), bun.In(values))
				return Predicate{SQL: "(?.? IN (?) OR ?.? IS NULL)", Args: append(args, col...)}, nil
			}
			return Predicate{SQL: "?.? IN (?)", Args: append(col, bun.In(values))}, nil
		}
		switch {
		case len(values) == 0 && hasNull:
			return Predicate{SQL: "?.? IS NOT NULL", Args: col}, nil
		case len(values) == 0:
			return always, nil
		case hasNull:
			args := append(append([]any{}, col...), bun.In(values))
			return Predicate{SQL: "(?.? NOT IN (?) AND ?.? IS NOT NULL)", Args: append(args, col...)}, nil
		}
		return Predicate{SQL: "?.? NOT IN (?)", Args: append(col, bun.In(values))}, nil
	case Between, BetweenOrEqual:
		bounds, err := operandList(desc, t)
		if err != nil {
			return Predicate{}, err
		}
		if len(bounds) != 2 || bounds[0] == nil || bounds[1] == nil {
			return Predicate{}, database.NewConfigurationError(desc.Name, t.Path, "%s needs exactly two non-null bounds", t.Operator)
		}
		if t.Operator == BetweenOrEqual {
			return Predicate{SQL: "?.? BETWEEN ? AND ?", Args: append(col, bounds[0], bounds[1])}, nil
		}
		args := append(append([]any{}, col...), bounds[0])
		args = append(args, col...)
		return Predicate{SQL: "(?.? > ? AND ?.? < ?)", Args: append(args, bounds[1])}, nil
	default:
		// HAS and ANY are handled by related
		return Predicate{}, database.NewConfigurationError(desc.Name, t.Path, "operator %s does not apply to a column", t.Operator)
	}
}

// operandList flattens a slice or array operand, normalizing every element.
func operandList(desc *entity.Descriptor, t Term) ([]any, error) {
	if IsNull(t.Value) {
		return nil, nil
	}
	rv := reflect.ValueOf(t.Value)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, database.NewConfigurationError(desc.Name, t.Path, "%s needs a list operand, got %T", t.Operator, t.Value)
	}
	list := make([]any, rv.Len())
	for i := range list {
		item := rv.Index(i).Interface()
		if IsNull(item) {
			continue
		}
		list[i] = types.Scalar(item)
	}
	return list, nil
}
