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

// Package quarry wires the engine packages into one Engine: connections per
// bind, the entity registry, the retrying raw executor, the memoized schema
// generator and the query executor.
//
//	engine, err := quarry.Open(ctx, cfg, &Author{}, &Book{})
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	books := quarry.MustService[Book](engine)
//	page, err := books.Page(ctx, &repository.QuerySpec{
//		Filters:   []filter.Term{filter.Where("author.name", filter.ILike, "%le guin%")},
//		Serialize: true,
//	}, types.NewPageRequest(0, 20))
package quarry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/entity"
	"github.com/tomoncle/quarry/filter"
	"github.com/tomoncle/quarry/repository"
	"github.com/tomoncle/quarry/schema"
	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun"
)

// Engine is safe for concurrent use.
type Engine struct {
	manager  *database.Manager
	registry *entity.Registry
	raw      *database.RetryExecutor
	cache    *schema.MapCache
	executor *repository.Executor
	logger   database.Logger
}

// Open connects every bind of cfg, registers models and builds the engine.
func Open(ctx context.Context, cfg *database.Config, models ...interface{}) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	registry := entity.NewRegistry(nil)
	for _, model := range models {
		if _, err := registry.Register(model); err != nil {
			return nil, err
		}
	}
	manager, err := database.Open(ctx, cfg, database.GetLogger())
	if err != nil {
		return nil, err
	}
	engine, err := New(manager, registry, cfg.Engine)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}
	return engine, nil
}

// New builds an engine over an existing manager and registry. The registry
// must be complete: relationship targets are checked here.
func New(manager *database.Manager, registry *entity.Registry, cfg database.EngineConfig) (*Engine, error) {
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	strategy, err := repository.StrategyFor(cfg.PaginationMode)
	if err != nil {
		return nil, err
	}
	logger := database.GetLogger()
	raw := database.NewRetryExecutor(manager,
		database.WithMaxRetries(cfg.MaxRetries),
		database.WithRetryDelay(cfg.RetryDelay),
		database.WithExecutorLogger(logger),
	)
	cache := schema.NewCache(cfg.SchemaSingleFlight)
	executor := repository.NewExecutor(registry, manager, raw,
		repository.WithStrategy(strategy),
		repository.WithGenerator(schema.NewGenerator(registry, cache, logger)),
		repository.WithDefaultPerPage(cfg.DefaultPerPage),
		repository.WithLogger(logger),
	)
	logger.Info("Query engine ready",
		"entities", len(registry.Descriptors()),
		"binds", manager.Binds(),
		"pagination", strategy.Mode(),
		"max_attempts", raw.MaxAttempts(),
		"retry_delay", raw.RetryDelay(),
	)
	return &Engine{
		manager:  manager,
		registry: registry,
		raw:      raw,
		cache:    cache,
		executor: executor,
		logger:   logger,
	}, nil
}

func (e *Engine) Manager() *database.Manager { return e.manager }

func (e *Engine) Registry() *entity.Registry { return e.registry }

func (e *Engine) Executor() *repository.Executor { return e.executor }

// Raw returns the retrying executor for hand-written statements.
func (e *Engine) Raw() database.Driver { return e.raw }

// SchemaCacheSize reports how many schema nodes have been memoized.
func (e *Engine) SchemaCacheSize() int { return e.cache.Len() }

func (e *Engine) Run(ctx context.Context, entityName string, spec *repository.QuerySpec) (*repository.Result, error) {
	return e.executor.Run(ctx, entityName, spec)
}

func (e *Engine) Find(ctx context.Context, entityName string, spec *repository.QuerySpec) ([]types.JsonObject, error) {
	return e.executor.Find(ctx, entityName, spec)
}

func (e *Engine) First(ctx context.Context, entityName string, spec *repository.QuerySpec) (types.JsonObject, error) {
	return e.executor.First(ctx, entityName, spec)
}

func (e *Engine) Page(ctx context.Context, entityName string, spec *repository.QuerySpec, page *types.PageRequest) (*types.Pagination, error) {
	return e.executor.Page(ctx, entityName, spec, page)
}

func (e *Engine) Count(ctx context.Context, entityName string, spec *repository.QuerySpec) (int, error) {
	return e.executor.Count(ctx, entityName, spec)
}

func (e *Engine) Delete(ctx context.Context, entityName string, filters []filter.Term, force bool) (int64, error) {
	return e.executor.Delete(ctx, entityName, filters, force)
}

func (e *Engine) Update(ctx context.Context, entityName string, filters []filter.Term, values map[string]interface{}, force bool) (int64, error) {
	return e.executor.Update(ctx, entityName, filters, values, force)
}

func (e *Engine) DB(bind string) (*bun.DB, error) { return e.manager.DB(bind) }

func (e *Engine) RunInTx(ctx context.Context, bind string, fn func(ctx context.Context, tx bun.Tx) error) error {
	return e.manager.RunInTx(ctx, bind, fn)
}

// Ping checks every bind.
func (e *Engine) Ping(ctx context.Context) error {
	for _, bind := range e.manager.Binds() {
		if err := e.manager.Ping(ctx, bind); err != nil {
			return fmt.Errorf("ping bind %s: %w", bind, err)
		}
	}
	return nil
}

func (e *Engine) Stats(bind string) (sql.DBStats, error) { return e.manager.Stats(bind) }

// CreateTables creates the tables of every registered entity on its own
// bind, in registration order.
func (e *Engine) CreateTables(ctx context.Context) error {
	byBind := map[string][]interface{}{}
	for _, model := range e.registry.Models() {
		desc, err := e.registry.DescribeModel(model)
		if err != nil {
			return err
		}
		byBind[desc.Bind] = append(byBind[desc.Bind], model)
	}
	binds := make([]string, 0, len(byBind))
	for bind := range byBind {
		binds = append(binds, bind)
	}
	sort.Strings(binds)
	for _, bind := range binds {
		if err := e.manager.CreateTables(ctx, bind, byBind[bind]...); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Close() error { return e.manager.Close() }

// Service reads and writes one registered model type.
type Service[T any] interface {
	// Entity returns the descriptor T was registered under.
	Entity() *entity.Descriptor

	// Find returns every matching row.
	Find(ctx context.Context, spec *repository.QuerySpec) ([]types.JsonObject, error)

	// First returns the first matching row, or nil.
	First(ctx context.Context, spec *repository.QuerySpec) (types.JsonObject, error)

	// Page returns one page of matching rows with totals.
	Page(ctx context.Context, spec *repository.QuerySpec, page *types.PageRequest) (*types.Pagination, error)

	// Count returns the number of matching rows.
	Count(ctx context.Context, spec *repository.QuerySpec) (int, error)

	// Delete removes matching rows; force allows an unfiltered delete.
	Delete(ctx context.Context, filters []filter.Term, force bool) (int64, error)

	// Update sets values on matching rows; force allows an unfiltered update.
	Update(ctx context.Context, filters []filter.Term, values map[string]interface{}, force bool) (int64, error)

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities based on fields and duplicate keys.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	// SaveWithTx inserts entities within an existing transaction.
	SaveWithTx(ctx context.Context, tx *bun.Tx, model ...*T) error

	// SaveOrUpdateWithTx upserts entities within a transaction.
	SaveOrUpdateWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, model ...*T) error

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery
}

type baseServiceImpl[T any] struct {
	engine *Engine
	desc   *entity.Descriptor
	db     *bun.DB
	writer *repository.Writer[T]
}

// NewService returns the Service of T, which must be registered with the
// engine.
func NewService[T any](e *Engine) (Service[T], error) {
	desc, err := e.registry.DescribeModel((*T)(nil))
	if err != nil {
		return nil, err
	}
	db, err := e.manager.DB(desc.Bind)
	if err != nil {
		return nil, err
	}
	return &baseServiceImpl[T]{engine: e, desc: desc, db: db, writer: repository.NewWriter[T](db)}, nil
}

// MustService is NewService for wiring code; it panics on error.
func MustService[T any](e *Engine) Service[T] {
	s, err := NewService[T](e)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *baseServiceImpl[T]) Entity() *entity.Descriptor { return s.desc }

func (s *baseServiceImpl[T]) Find(ctx context.Context, spec *repository.QuerySpec) ([]types.JsonObject, error) {
	return s.engine.executor.Find(ctx, s.desc.Name, spec)
}

func (s *baseServiceImpl[T]) First(ctx context.Context, spec *repository.QuerySpec) (types.JsonObject, error) {
	return s.engine.executor.First(ctx, s.desc.Name, spec)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, spec *repository.QuerySpec, page *types.PageRequest) (*types.Pagination, error) {
	return s.engine.executor.Page(ctx, s.desc.Name, spec, page)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, spec *repository.QuerySpec) (int, error) {
	return s.engine.executor.Count(ctx, s.desc.Name, spec)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, filters []filter.Term, force bool) (int64, error) {
	return s.engine.executor.Delete(ctx, s.desc.Name, filters, force)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, filters []filter.Term, values map[string]interface{}, force bool) (int64, error) {
	return s.engine.executor.Update(ctx, s.desc.Name, filters, values, force)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.writer.Create(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	return s.writer.Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) SaveWithTx(ctx context.Context, tx *bun.Tx, model ...*T) error {
	return s.writer.CreateWithTx(ctx, tx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdateWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, model ...*T) error {
	return s.writer.UpsertWithTx(ctx, tx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.db.NewSelect().Model((*T)(nil))
}
