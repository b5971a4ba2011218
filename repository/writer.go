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
	"fmt"
	"strings"

	"github.com/tomoncle/quarry/database"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

// Writer inserts and upserts models of type T. Reads go through Executor so
// that every read honors the same filter and retry rules.
type Writer[T any] struct {
	db *bun.DB
}

// NewWriter returns a Writer over the database of the model's bind.
func NewWriter[T any](db *bun.DB) *Writer[T] {
	return &Writer[T]{db: db}
}

func (w *Writer[T]) Create(ctx context.Context, models ...*T) error {
	return w.CreateWithTx(ctx, nil, models...)
}

// CreateWithTx inserts within tx, or outside any transaction when tx is nil.
func (w *Writer[T]) CreateWithTx(ctx context.Context, tx *bun.Tx, models ...*T) error {
	if len(models) == 0 {
		return nil
	}
	entities := append([]*T(nil), models...)
	_, err := w.insert(tx).Model(&entities).Exec(ctx)
	return err
}

// Upsert inserts models and on a conflict over duplicateKeys updates fields.
func (w *Writer[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, models ...*T) error {
	return w.UpsertWithTx(ctx, nil, fields, duplicateKeys, models...)
}

func (w *Writer[T]) UpsertWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, models ...*T) error {
	if len(fields) == 0 {
		return &database.ValidationError{Entity: fmt.Sprintf("%T", *new(T)), Operation: "upsert", Reason: "fields cannot be empty"}
	}
	if len(models) == 0 {
		return nil
	}
	entities := append([]*T(nil), models...)
	switch {
	case w.db.HasFeature(feature.InsertOnConflict):
		return w.upsertOnConflict(ctx, w.insert(tx), fields, duplicateKeys, entities)
	case w.db.HasFeature(feature.InsertOnDuplicateKey):
		return w.upsertOnDuplicateKey(ctx, w.insert(tx), fields, entities)
	default:
		return w.upsertFallback(ctx, tx, entities)
	}
}

func (w *Writer[T]) insert(tx *bun.Tx) *bun.InsertQuery {
	if tx != nil {
		return tx.NewInsert()
	}
	return w.db.NewInsert()
}

func (w *Writer[T]) upsertOnDuplicateKey(ctx context.Context, q *bun.InsertQuery, fields []string, entities []*T) error {
	sets := make([]string, 0, len(fields))
	args := make([]interface{}, 0, 2*len(fields))
	for _, field := range fields {
		sets = append(sets, "? = VALUES(?)")
		args = append(args, bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Model(&entities).
		On("DUPLICATE KEY UPDATE "+strings.Join(sets, ", "), args...).
		Exec(ctx)
	return err
}

func (w *Writer[T]) upsertOnConflict(ctx context.Context, q *bun.InsertQuery, fields []string, duplicateKeys []string, entities []*T) error {
	if len(duplicateKeys) == 0 {
		duplicateKeys = []string{"id"}
	}
	keys := make([]string, len(duplicateKeys))
	keyArgs := make([]interface{}, len(duplicateKeys))
	for i, k := range duplicateKeys {
		keys[i] = "?"
		keyArgs[i] = bun.Ident(k)
	}
	q = q.Model(&entities).On("CONFLICT ("+strings.Join(keys, ", ")+") DO UPDATE", keyArgs...)
	for _, field := range fields {
		q = q.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

// upsertFallback tries an insert per model and updates by primary key when
// the insert fails.
func (w *Writer[T]) upsertFallback(ctx context.Context, tx *bun.Tx, entities []*T) error {
	var idb bun.IDB = w.db
	if tx != nil {
		idb = tx
	}
	for _, entity := range entities {
		if _, err := idb.NewInsert().Model(entity).Exec(ctx); err != nil {
			if _, updateErr := idb.NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %w", err, updateErr)
			}
		}
	}
	return nil
}
