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

package schema

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tomoncle/quarry/database"
	"golang.org/x/sync/singleflight"
)

// CacheKey identifies a generated node.
type CacheKey struct {
	Entity string
	Tree   uint64
	Chain  uint64
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s/%x/%x", k.Entity, k.Tree, k.Chain)
}

// Cache memoizes generated nodes. compute is deterministic, so an
// implementation may run it more than once for the same key; the stored
// nodes are equal either way.
type Cache interface {
	GetOrCompute(key CacheKey, compute func() (*Node, error)) (*Node, error)
	Len() int
}

// MapCache keeps nodes for the process lifetime in a concurrent map. Errors
// are never cached.
type MapCache struct {
	nodes *xsync.MapOf[CacheKey, *Node]
	group *singleflight.Group
}

// NewCache returns an empty cache. With singleFlight set, concurrent misses
// on one key share a single computation; otherwise each computes and the
// first stored node wins.
func NewCache(singleFlight bool) *MapCache {
	c := &MapCache{nodes: xsync.NewMapOf[CacheKey, *Node]()}
	if singleFlight {
		c.group = &singleflight.Group{}
	}
	return c
}

func (c *MapCache) GetOrCompute(key CacheKey, compute func() (*Node, error)) (*Node, error) {
	if node, ok := c.nodes.Load(key); ok {
		database.SchemaCacheLookups.WithLabelValues("hit").Inc()
		return node, nil
	}
	database.SchemaCacheLookups.WithLabelValues("miss").Inc()
	if c.group == nil {
		return c.store(key, compute)
	}
	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		return c.store(key, compute)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Node), nil
}

func (c *MapCache) store(key CacheKey, compute func() (*Node, error)) (*Node, error) {
	node, err := compute()
	if err != nil {
		return nil, err
	}
	actual, _ := c.nodes.LoadOrStore(key, node)
	return actual, nil
}

func (c *MapCache) Len() int {
	return c.nodes.Size()
}

// Reset drops every cached node.
func (c *MapCache) Reset() {
	c.nodes.Clear()
}
