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
	"fmt"

	"github.com/uptrace/bun"
)

// CreateTables creates the tables of the given bun models on one bind inside
// a single transaction.
func (m *Manager) CreateTables(ctx context.Context, bind string, models ...interface{}) error {
	return m.RunInTx(ctx, bind, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range models {
			_, err := tx.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %T: %w", model, err)
			}
		}
		m.logger.Info("Tables created", "bind", bindName(bind), "count", len(models))
		return nil
	})
}

// DropTables drops the tables of the given bun models in reverse order.
func (m *Manager) DropTables(ctx context.Context, bind string, models ...interface{}) error {
	return m.RunInTx(ctx, bind, func(ctx context.Context, tx bun.Tx) error {
		for i := len(models) - 1; i >= 0; i-- {
			_, err := tx.NewDropTable().
				Model(models[i]).
				IfExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %T: %w", models[i], err)
			}
		}
		return nil
	})
}
