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
Package filter compiles declarative filter terms into bun where fragments.

A Term names a column path, an Operator and an operand:

	terms := []filter.Term{
		filter.Where("status", filter.Equal, "active"),
		filter.Where("price", filter.Between, []float64{10, 20}),
		filter.Where("author", filter.Has, []filter.Term{
			filter.Where("name", filter.ILike, "%smith%"),
		}),
	}
	preds, err := compiler.Compile(desc, desc.Table, terms, false)

Every predicate is a bun formatted fragment and can be passed straight to
SelectQuery.Where. Relationship terms become correlated EXISTS subqueries.
*/
package filter
