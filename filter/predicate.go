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

	"github.com/uptrace/bun"
)

// Predicate is a compiled where fragment in bun placeholder syntax.
type Predicate struct {
	SQL  string
	Args []any
}

var (
	never  = Predicate{SQL: "1 = 0"}
	always = Predicate{SQL: "1 = 1"}
)

// Apply adds every predicate to q as an AND-ed where clause.
func Apply(q *bun.SelectQuery, preds []Predicate) *bun.SelectQuery {
	for _, p := range preds {
		q = q.Where(p.SQL, p.Args...)
	}
	return q
}

// And joins predicates into one; an empty list matches every row.
func And(preds ...Predicate) Predicate {
	switch len(preds) {
	case 0:
		return always
	case 1:
		return preds[0]
	}
	var b strings.Builder
	var args []any
	for i, p := range preds {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("(" + p.SQL + ")")
		args = append(args, p.Args...)
	}
	return Predicate{SQL: b.String(), Args: args}
}

func column(alias, name string) []any {
	return []any{bun.Ident(alias), bun.Ident(name)}
}
