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

/*
Package repository runs declarative queries against registered entities.

A QuerySpec describes filters, ordering, grouping, distinct, projection and
pagination. The Executor compiles it against the entity descriptor, renders
one statement per round trip and sends it through the retrying executor:

	exec := repository.NewExecutor(registry, manager, database.NewRetryExecutor(manager))
	res, err := exec.Run(ctx, "Book", &repository.QuerySpec{
		Filters: []filter.Term{filter.Where("status", filter.Equal, "active")},
		OrderBy: []repository.Order{{Path: "author.name"}},
		Page:    types.NewPageRequest(0, 20),
	})

Writer keeps the typed insert and upsert helpers for models.
*/
package repository
