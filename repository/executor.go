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
	"context"
	"sort"

	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/entity"
	"github.com/tomoncle/quarry/filter"
	"github.com/tomoncle/quarry/schema"
	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun"
)

// Executor runs QuerySpecs. It is safe for concurrent use; the schema cache
// of its generator is the only state shared between calls.
type Executor struct {
	catalog   schema.Catalog
	binder    Binder
	raw       database.Driver
	generator *schema.Generator
	strategy  Strategy
	perPage   int
	logger    database.Logger
}

type Option func(*Executor)

func WithStrategy(s Strategy) Option {
	return func(e *Executor) {
		if s != nil {
			e.strategy = s
		}
	}
}

func WithGenerator(g *schema.Generator) Option {
	return func(e *Executor) {
		if g != nil {
			e.generator = g
		}
	}
}

// WithDefaultPerPage sets the page size used when a page request has none.
func WithDefaultPerPage(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.perPage = n
		}
	}
}

func WithLogger(l database.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor builds queries with the databases of binder and runs them
// through raw, normally a database.RetryExecutor.
func NewExecutor(catalog schema.Catalog, binder Binder, raw database.Driver, opts ...Option) *Executor {
	e := &Executor{
		catalog:  catalog,
		binder:   binder,
		raw:      raw,
		strategy: Standard{},
		perPage:  types.DefaultPerPage,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = database.GetLogger()
	}
	if e.generator == nil {
		e.generator = schema.NewGenerator(catalog, nil, e.logger)
	}
	return e
}

// Run executes a QuerySpec against entity. The Result kind is a count, a page,
// a first row or a list depending on Count, Page and First.
func (e *Executor) Run(ctx context.Context, entityName string, spec *QuerySpec) (*Result, error) {
	p, err := e.prepare(entityName, spec)
	if err != nil {
		return nil, err
	}
	switch {
	case p.spec.Count:
		n, err := e.count(ctx, p)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindCount, Count: n}, nil
	case p.spec.Page != nil:
		page, err := e.page(ctx, p)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindPage, Page: page}, nil
	}

	q := p.selectQuery(true)
	switch {
	case p.spec.Limit > 0:
		q = q.Limit(p.spec.Limit)
	case p.spec.First:
		q = q.Limit(1)
	}
	if p.spec.Offset > 0 {
		q = q.Offset(p.spec.Offset)
	}
	rows, err := e.query(ctx, p, q)
	if err != nil {
		return nil, err
	}
	items, err := e.objects(ctx, p, rows)
	if err != nil {
		return nil, err
	}
	if p.spec.First {
		res := &Result{Kind: KindItem}
		if len(items) > 0 {
			res.Item = items[0]
		}
		return res, nil
	}
	return &Result{Kind: KindList, Items: items}, nil
}

func (e *Executor) Find(ctx context.Context, entityName string, spec *QuerySpec) ([]types.JsonObject, error) {
	s := copySpec(spec)
	s.First, s.Count, s.Page = false, false, nil
	res, err := e.Run(ctx, entityName, s)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// First returns nil without error when nothing matches.
func (e *Executor) First(ctx context.Context, entityName string, spec *QuerySpec) (types.JsonObject, error) {
	s := copySpec(spec)
	s.First, s.Count, s.Page = true, false, nil
	res, err := e.Run(ctx, entityName, s)
	if err != nil {
		return nil, err
	}
	return res.Item, nil
}

func (e *Executor) Page(ctx context.Context, entityName string, spec *QuerySpec, page *types.PageRequest) (*types.Pagination, error) {
	s := copySpec(spec)
	if page == nil {
		page = types.NewPageRequest(0, e.perPage)
	}
	s.First, s.Count, s.Page = false, false, page
	res, err := e.Run(ctx, entityName, s)
	if err != nil {
		return nil, err
	}
	return res.Page, nil
}

func (e *Executor) Count(ctx context.Context, entityName string, spec *QuerySpec) (int, error) {
	s := copySpec(spec)
	s.Count = true
	res, err := e.Run(ctx, entityName, s)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

func copySpec(spec *QuerySpec) *QuerySpec {
	if spec == nil {
		return &QuerySpec{}
	}
	s := *spec
	return &s
}

func (e *Executor) page(ctx context.Context, p *plan) (*types.Pagination, error) {
	req := *p.spec.Page
	if req.PerPage < 1 {
		req.PerPage = e.perPage
	}
	strategy := e.strategy
	if _, integrated := strategy.(Integrated); integrated && len(p.spec.Distinct) > 0 {
		// the window count would see rows before DISTINCT removes them
		strategy = Standard{}
	}
	database.PaginatedQueries.WithLabelValues(strategy.Mode()).Inc()

	rows, total, err := strategy.Paginate(ctx, &planSource{e: e, p: p}, &req)
	if err != nil {
		return nil, err
	}
	items, err := e.objects(ctx, p, rows)
	if err != nil {
		return nil, err
	}
	return types.NewPagination(items, total, req.GetPage(), req.GetPerPage()), nil
}

func (e *Executor) count(ctx context.Context, p *plan) (int, error) {
	rows, err := e.query(ctx, p, p.countQuery())
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt(rows[0][totalColumn])
}

func (e *Executor) query(ctx context.Context, p *plan, q *bun.SelectQuery) ([]map[string]interface{}, error) {
	sql, err := render(p.db, q)
	if err != nil {
		return nil, database.NewConfigurationError(p.desc.Name, "", "cannot render query: %v", err)
	}
	e.logger.Debug("Running query", "entity", p.desc.Name, "bind", p.desc.Bind, "sql", sql)
	return e.raw.Query(ctx, p.desc.Bind, sql)
}

func (e *Executor) objects(ctx context.Context, p *plan, rows []map[string]interface{}) ([]types.JsonObject, error) {
	for _, row := range rows {
		delete(row, totalColumn)
	}
	if p.node == nil {
		items := make([]types.JsonObject, len(rows))
		for i, row := range rows {
			items[i] = schema.Plain(p.desc, row)
		}
		return items, nil
	}
	return schema.NewSerializer(e).Serialize(ctx, p.node, rows)
}

// LoadRelated reads every row of target whose column is one of keys, in
// primary key order.
func (e *Executor) LoadRelated(ctx context.Context, target *entity.Descriptor, column string, keys []interface{}) ([]map[string]interface{}, error) {
	db, err := e.binder.DB(target.Bind)
	if err != nil {
		return nil, err
	}
	q := db.NewSelect().
		TableExpr("? AS ?", bun.Ident(target.Table), bun.Ident(target.Table)).
		ColumnExpr("?.*", bun.Ident(target.Table)).
		Where("?.? IN (?)", bun.Ident(target.Table), bun.Ident(column), bun.In(keys))
	for _, pk := range target.PrimaryKeys() {
		q = q.OrderExpr("?.? ASC", bun.Ident(target.Table), bun.Ident(pk))
	}
	sql, err := render(db, q)
	if err != nil {
		return nil, err
	}
	return e.raw.Query(ctx, target.Bind, sql)
}

// Delete removes matching rows. Without predicates it refuses to run unless
// force is set.
func (e *Executor) Delete(ctx context.Context, entityName string, filters []filter.Term, force bool) (int64, error) {
	desc, db, preds, err := e.mutation(entityName, "delete", filters, force)
	if err != nil {
		return 0, err
	}
	q := db.NewDelete().TableExpr("?", bun.Ident(desc.Table))
	for _, p := range preds {
		q = q.Where(p.SQL, p.Args...)
	}
	if len(preds) == 0 {
		q = q.Where("1 = 1")
	}
	sql, err := render(db, q)
	if err != nil {
		return 0, err
	}
	return e.raw.Exec(ctx, desc.Bind, sql)
}

// Update sets values on matching rows, with the same guard as Delete.
func (e *Executor) Update(ctx context.Context, entityName string, filters []filter.Term, values map[string]interface{}, force bool) (int64, error) {
	desc, db, preds, err := e.mutation(entityName, "update", filters, force)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, &database.ValidationError{Entity: desc.Name, Operation: "update", Reason: "no values to set"}
	}
	columns := make([]string, 0, len(values))
	for name := range values {
		if !desc.HasColumn(name) {
			return 0, database.NewConfigurationError(desc.Name, name, "unknown column")
		}
		columns = append(columns, name)
	}
	sort.Strings(columns)

	q := db.NewUpdate().TableExpr("?", bun.Ident(desc.Table))
	for _, name := range columns {
		var v interface{}
		if !filter.IsNull(values[name]) {
			v = types.Scalar(values[name])
		}
		q = q.Set("? = ?", bun.Ident(name), v)
	}
	for _, p := range preds {
		q = q.Where(p.SQL, p.Args...)
	}
	if len(preds) == 0 {
		q = q.Where("1 = 1")
	}
	sql, err := render(db, q)
	if err != nil {
		return 0, err
	}
	return e.raw.Exec(ctx, desc.Bind, sql)
}

func (e *Executor) mutation(entityName, operation string, filters []filter.Term, force bool) (*entity.Descriptor, *bun.DB, []filter.Predicate, error) {
	desc, err := e.catalog.Describe(entityName)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := e.binder.DB(desc.Bind)
	if err != nil {
		return nil, nil, nil, err
	}
	preds, err := filter.NewCompiler(e.catalog, db.Dialect().Name()).Compile(desc, desc.Table, filters, false)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(preds) == 0 && !force {
		return nil, nil, nil, &database.ValidationError{Entity: desc.Name, Operation: operation, Reason: "refusing to touch every row without force"}
	}
	return desc, db, preds, nil
}

// planSource slices a plan for pagination strategies.
type planSource struct {
	e *Executor
	p *plan
}

func (s *planSource) Count(ctx context.Context) (int, error) {
	return s.e.count(ctx, s.p)
}

func (s *planSource) Slice(ctx context.Context, offset, limit int) ([]map[string]interface{}, error) {
	return s.e.query(ctx, s.p, s.p.selectQuery(true).Limit(limit).Offset(offset))
}

func (s *planSource) SliceWithCount(ctx context.Context, offset, limit int) ([]map[string]interface{}, int, error) {
	q := s.p.selectQuery(true).
		ColumnExpr("COUNT(*) OVER () AS ?", bun.Ident(totalColumn)).
		Limit(limit).
		Offset(offset)
	rows, err := s.e.query(ctx, s.p, q)
	if err != nil || len(rows) == 0 {
		return rows, 0, err
	}
	total, err := toInt(rows[0][totalColumn])
	return rows, total, err
}
