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
	"strings"

	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/filter"
	"github.com/tomoncle/quarry/schema"
	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun"
)

type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order sorts by a column path; a dotted path orders by a column of a to-one
// relationship. An empty Direction sorts ascending.
type Order struct {
	Path      string    `json:"path" yaml:"path"`
	Direction Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
}

func (o Order) direction() (Direction, error) {
	switch Direction(strings.ToUpper(string(o.Direction))) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	default:
		return "", database.NewConfigurationError("", o.Path, "unknown sort direction %q", o.Direction)
	}
}

// QuerySpec is one declarative read. Page and Limit/Offset are exclusive.
type QuerySpec struct {
	Filters         []filter.Term
	OptionalFilters []filter.Term
	OrderBy         []Order
	GroupBy         []string
	Distinct        []string
	// Columns restricts the projection. Projected and grouped rows are
	// returned as read and never serialized.
	Columns []string
	Page    *types.PageRequest
	Limit   int
	Offset  int
	// First returns the first row only, limiting to one row unless Limit
	// is set.
	First bool
	// Count returns the matching row count and reads no rows.
	Count bool
	// Serialize renders rows, and their related rows, along the entity
	// schema with Disabled relationships left out.
	Serialize bool
	Disabled  schema.DisableTree
}

type ResultKind int

const (
	KindList ResultKind = iota
	KindItem
	KindPage
	KindCount
)

func (k ResultKind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindPage:
		return "page"
	case KindCount:
		return "count"
	default:
		return "list"
	}
}

// Result holds the one field matching Kind: Items for a list, Item for a
// first-row read (nil when nothing matched), Page for a paginated read and
// Count for a count.
type Result struct {
	Kind  ResultKind
	Items []types.JsonObject
	Item  types.JsonObject
	Page  *types.Pagination
	Count int
}

// QueryRepository is the read and bulk write surface of an Executor.
type QueryRepository interface {
	Run(ctx context.Context, entity string, spec *QuerySpec) (*Result, error)
	Find(ctx context.Context, entity string, spec *QuerySpec) ([]types.JsonObject, error)
	First(ctx context.Context, entity string, spec *QuerySpec) (types.JsonObject, error)
	Page(ctx context.Context, entity string, spec *QuerySpec, page *types.PageRequest) (*types.Pagination, error)
	Count(ctx context.Context, entity string, spec *QuerySpec) (int, error)
	Delete(ctx context.Context, entity string, filters []filter.Term, force bool) (int64, error)
	Update(ctx context.Context, entity string, filters []filter.Term, values map[string]interface{}, force bool) (int64, error)
}

// Binder hands out the database of a bind. database.Manager implements it.
type Binder interface {
	DB(bind string) (*bun.DB, error)
}

var (
	_ Binder          = (*database.Manager)(nil)
	_ QueryRepository = (*Executor)(nil)
	_ schema.Loader   = (*Executor)(nil)
)
