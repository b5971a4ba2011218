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

	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/types"
)

// Source is the data a pagination strategy slices.
type Source interface {
	Count(ctx context.Context) (int, error)
	Slice(ctx context.Context, offset, limit int) ([]map[string]interface{}, error)
	// SliceWithCount returns the slice and the unsliced total from one
	// round trip. The total is only known when the slice is not empty.
	SliceWithCount(ctx context.Context, offset, limit int) ([]map[string]interface{}, int, error)
}

// Strategy reads one page of a Source.
type Strategy interface {
	Mode() string
	Paginate(ctx context.Context, src Source, page *types.PageRequest) ([]map[string]interface{}, int, error)
}

// StrategyFor maps a configured pagination mode to its strategy.
func StrategyFor(mode string) (Strategy, error) {
	switch mode {
	case "", database.PaginationStandard:
		return Standard{}, nil
	case database.PaginationIntegrated:
		return Integrated{}, nil
	default:
		return nil, database.NewConfigurationError("", mode, "unknown pagination mode")
	}
}

type pageState int

const (
	stateUnset pageState = iota
	stateCounting
	stateSliced
	stateSlicedWithCount
	stateDone
)

func (s pageState) String() string {
	return [...]string{"unset", "counting", "sliced", "sliced_with_count", "done"}[s]
}

var pageTransitions = map[pageState][]pageState{
	stateUnset:           {stateCounting, stateSlicedWithCount},
	stateCounting:        {stateSliced, stateDone},
	stateSliced:          {stateDone},
	stateSlicedWithCount: {stateCounting, stateDone},
}

// pageTracker rejects any transition outside pageTransitions, so no state is
// entered twice during one call.
type pageTracker struct {
	state   pageState
	visited map[pageState]bool
}

func (t *pageTracker) advance(to pageState) error {
	for _, allowed := range pageTransitions[t.state] {
		if allowed == to && !t.visited[to] {
			if t.visited == nil {
				t.visited = map[pageState]bool{}
			}
			t.visited[to] = true
			t.state = to
			return nil
		}
	}
	return fmt.Errorf("pagination: illegal transition from %s to %s", t.state, to)
}

// Standard counts first and slices only when rows exist.
type Standard struct{}

func (Standard) Mode() string { return database.PaginationStandard }

func (Standard) Paginate(ctx context.Context, src Source, page *types.PageRequest) ([]map[string]interface{}, int, error) {
	var tracker pageTracker
	if err := tracker.advance(stateCounting); err != nil {
		return nil, 0, err
	}
	total, err := src.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 || page.GetOffset() >= total {
		return nil, total, tracker.advance(stateDone)
	}
	if err := tracker.advance(stateSliced); err != nil {
		return nil, 0, err
	}
	rows, err := src.Slice(ctx, page.GetOffset(), page.GetPerPage())
	if err != nil {
		return nil, 0, err
	}
	return rows, total, tracker.advance(stateDone)
}

// Integrated reads the slice and the total together. A page past the end
// returns no row to carry the total, which is then counted separately.
type Integrated struct{}

func (Integrated) Mode() string { return database.PaginationIntegrated }

func (Integrated) Paginate(ctx context.Context, src Source, page *types.PageRequest) ([]map[string]interface{}, int, error) {
	var tracker pageTracker
	if err := tracker.advance(stateSlicedWithCount); err != nil {
		return nil, 0, err
	}
	rows, total, err := src.SliceWithCount(ctx, page.GetOffset(), page.GetPerPage())
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 && page.GetOffset() > 0 {
		if err := tracker.advance(stateCounting); err != nil {
			return nil, 0, err
		}
		if total, err = src.Count(ctx); err != nil {
			return nil, 0, err
		}
	}
	return rows, total, tracker.advance(stateDone)
}
