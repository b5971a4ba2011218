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

package repository

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/entity"
	"github.com/tomoncle/quarry/filter"
	"github.com/tomoncle/quarry/schema"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	bunschema "github.com/uptrace/bun/schema"
)

// totalColumn carries counts, including the window count of integrated
// pagination, which is removed before rows are returned.
const totalColumn = "quarry_total"

type clause struct {
	sql  string
	args []interface{}
}

// plan is a QuerySpec resolved against one entity. Everything that can fail
// without a database round trip fails while building it.
type plan struct {
	spec   *QuerySpec
	desc   *entity.Descriptor
	db     *bun.DB
	alias  string
	preds  []filter.Predicate
	joins  []clause
	orders []clause
	node   *schema.Node
}

func (p *plan) pg() bool {
	return p.db.Dialect().Name() == dialect.PG
}

func (e *Executor) prepare(entityName string, spec *QuerySpec) (*plan, error) {
	if spec == nil {
		spec = &QuerySpec{}
	}
	desc, err := e.catalog.Describe(entityName)
	if err != nil {
		return nil, err
	}
	switch {
	case spec.Page != nil && (spec.Limit != 0 || spec.Offset != 0):
		return nil, &database.ValidationError{Entity: desc.Name, Operation: "query", Reason: "page and limit/offset are exclusive"}
	case spec.Limit < 0 || spec.Offset < 0:
		return nil, &database.ValidationError{Entity: desc.Name, Operation: "query", Reason: "limit and offset cannot be negative"}
	}
	db, err := e.binder.DB(desc.Bind)
	if err != nil {
		return nil, err
	}
	p := &plan{spec: spec, desc: desc, db: db, alias: desc.Table}

	compiler := filter.NewCompiler(e.catalog, db.Dialect().Name())
	required, err := compiler.Compile(desc, p.alias, spec.Filters, false)
	if err != nil {
		return nil, err
	}
	optional, err := compiler.Compile(desc, p.alias, spec.OptionalFilters, true)
	if err != nil {
		return nil, err
	}
	p.preds = append(required, optional...)

	for _, group := range [][]string{spec.Columns, spec.Distinct, spec.GroupBy} {
		for _, name := range group {
			if !desc.HasColumn(name) {
				return nil, database.NewConfigurationError(desc.Name, name, "unknown column")
			}
		}
	}
	joined := map[string]bool{}
	for _, order := range spec.OrderBy {
		if err := e.resolveOrder(p, order, joined); err != nil {
			return nil, err
		}
	}
	if spec.Serialize && len(spec.Columns) == 0 && len(spec.GroupBy) == 0 && !spec.Count {
		if p.node, err = e.generator.Generate(desc.Name, spec.Disabled, nil); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// resolveOrder walks the belongs-to relationships of a dotted path, joining
// each once, and orders by the final column. A has-one join is refused: its
// remote column is not known to be unique and could repeat root rows.
func (e *Executor) resolveOrder(p *plan, order Order, joined map[string]bool) error {
	direction, err := order.direction()
	if err != nil {
		return err
	}
	parts := strings.Split(order.Path, ".")
	current, currentAlias := p.desc, p.alias
	for i, part := range parts[:len(parts)-1] {
		rel, target, err := e.catalog.Target(current, part)
		if err != nil {
			return err
		}
		if rel.Cardinality != entity.One {
			return database.NewConfigurationError(current.Name, order.Path, "cannot order by to-many relationship %s", part)
		}
		if rel.Kind != "belongs-to" {
			return database.NewConfigurationError(current.Name, order.Path, "cannot order by %s relationship %s", rel.Kind, part)
		}
		alias := "ob_" + strings.Join(parts[:i+1], "_")
		if !joined[alias] {
			joined[alias] = true
			p.joins = append(p.joins, clause{
				sql: "LEFT JOIN ? AS ? ON ?.? = ?.?",
				args: []interface{}{
					bun.Ident(target.Table), bun.Ident(alias),
					bun.Ident(alias), bun.Ident(rel.RemoteColumn),
					bun.Ident(currentAlias), bun.Ident(rel.LocalColumn),
				},
			})
		}
		current, currentAlias = target, alias
	}
	column := parts[len(parts)-1]
	if !current.HasColumn(column) {
		return database.NewConfigurationError(current.Name, order.Path, "unknown order column")
	}
	p.orders = append(p.orders, clause{
		sql:  "?.? " + string(direction),
		args: []interface{}{bun.Ident(currentAlias), bun.Ident(column)},
	})
	return nil
}

// selectQuery applies projection, filters, distinct, group-by and, when
// ordered is set, order-by.
func (p *plan) selectQuery(ordered bool) *bun.SelectQuery {
	q := p.db.NewSelect().TableExpr("? AS ?", bun.Ident(p.desc.Table), bun.Ident(p.alias))
	switch {
	case len(p.spec.Columns) > 0:
		for _, name := range p.spec.Columns {
			q = q.ColumnExpr("?.?", bun.Ident(p.alias), bun.Ident(name))
		}
	case len(p.spec.GroupBy) > 0:
		for _, name := range p.spec.GroupBy {
			q = q.ColumnExpr("?.?", bun.Ident(p.alias), bun.Ident(name))
		}
	case len(p.spec.Distinct) > 0 && !p.pg():
		for _, name := range p.spec.Distinct {
			q = q.ColumnExpr("?.?", bun.Ident(p.alias), bun.Ident(name))
		}
	default:
		q = q.ColumnExpr("?.*", bun.Ident(p.alias))
	}
	q = filter.Apply(q, p.preds)
	if len(p.spec.Distinct) > 0 {
		if p.pg() {
			for _, name := range p.spec.Distinct {
				q = q.DistinctOn("?.?", bun.Ident(p.alias), bun.Ident(name))
			}
		} else {
			q = q.Distinct()
		}
	}
	for _, name := range p.spec.GroupBy {
		q = q.GroupExpr("?.?", bun.Ident(p.alias), bun.Ident(name))
	}
	if ordered {
		for _, j := range p.joins {
			q = q.Join(j.sql, j.args...)
		}
		for _, o := range p.orderClauses() {
			q = q.OrderExpr(o.sql, o.args...)
		}
	}
	return q
}

// orderClauses returns the ORDER BY list. Postgres requires DISTINCT ON
// expressions to lead it, so on pg the distinct columns come first, keeping
// the direction of a matching requested order.
func (p *plan) orderClauses() []clause {
	if !p.pg() || len(p.spec.Distinct) == 0 || len(p.orders) == 0 {
		return p.orders
	}
	used := make([]bool, len(p.orders))
	out := make([]clause, 0, len(p.spec.Distinct)+len(p.orders))
	for _, name := range p.spec.Distinct {
		c := clause{sql: "?.? " + string(Asc), args: []interface{}{bun.Ident(p.alias), bun.Ident(name)}}
		for i, o := range p.orders {
			if !used[i] && o.args[0] == bun.Ident(p.alias) && o.args[1] == bun.Ident(name) {
				c, used[i] = o, true
				break
			}
		}
		out = append(out, c)
	}
	for i, o := range p.orders {
		if !used[i] {
			out = append(out, o)
		}
	}
	return out
}

// countQuery counts matching rows, or matching groups and distinct rows
// through a subquery.
func (p *plan) countQuery() *bun.SelectQuery {
	if len(p.spec.GroupBy) > 0 || len(p.spec.Distinct) > 0 {
		return p.db.NewSelect().
			TableExpr("(?) AS ?", p.selectQuery(false), bun.Ident("counted")).
			ColumnExpr("count(*) AS ?", bun.Ident(totalColumn))
	}
	q := p.db.NewSelect().
		TableExpr("? AS ?", bun.Ident(p.desc.Table), bun.Ident(p.alias)).
		ColumnExpr("count(*) AS ?", bun.Ident(totalColumn))
	return filter.Apply(q, p.preds)
}

func render(db *bun.DB, q bunschema.QueryAppender) (string, error) {
	b, err := q.AppendQuery(db.Formatter(), nil)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case []byte:
		return strconv.Atoi(string(n))
	case string:
		return strconv.Atoi(n)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected count value %T", v)
	}
}
