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
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Wildcard matches a relationship name on any entity.
const Wildcard = "*"

// RelKey addresses a relationship of an entity, or of every entity when
// Entity is Wildcard.
type RelKey struct {
	Entity       string
	Relationship string
}

// DisableTree marks relationships to leave out of a shape. A nil value
// excludes the relationship; a non-nil value keeps it and applies the nested
// entries inside it. Top level entries apply at every depth.
type DisableTree map[RelKey]DisableTree

// Exclude marks entity.relationship as excluded and returns t.
func (t DisableTree) Exclude(entity, relationship string) DisableTree {
	t[RelKey{Entity: entity, Relationship: relationship}] = nil
	return t
}

// Nest applies sub within entity.relationship and returns t.
func (t DisableTree) Nest(entity, relationship string, sub DisableTree) DisableTree {
	if sub == nil {
		sub = DisableTree{}
	}
	t[RelKey{Entity: entity, Relationship: relationship}] = sub
	return t
}

// lookup prefers an entry naming the entity over a wildcard one.
func (t DisableTree) lookup(entity, relationship string) (DisableTree, bool) {
	if sub, ok := t[RelKey{Entity: entity, Relationship: relationship}]; ok {
		return sub, true
	}
	sub, ok := t[RelKey{Entity: Wildcard, Relationship: relationship}]
	return sub, ok
}

// merge returns a copy of t overridden by entries of over.
func (t DisableTree) merge(over DisableTree) DisableTree {
	if len(over) == 0 {
		return t
	}
	out := make(DisableTree, len(t)+len(over))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func (t DisableTree) flatten(prefix string, out []string) []string {
	for k, v := range t {
		path := prefix + k.Entity + "." + k.Relationship
		if v == nil {
			out = append(out, path+"!")
			continue
		}
		out = v.flatten(path+"/", out)
	}
	return out
}

// Fingerprint is stable across map iteration order; trees with equal
// entries have equal fingerprints.
func (t DisableTree) Fingerprint() uint64 {
	paths := t.flatten("", nil)
	sort.Strings(paths)
	return xxhash.Sum64String(strings.Join(paths, "\n"))
}

func (t DisableTree) keys() []RelKey {
	keys := make([]RelKey, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Entity != keys[j].Entity {
			return keys[i].Entity < keys[j].Entity
		}
		return keys[i].Relationship < keys[j].Relationship
	})
	return keys
}
