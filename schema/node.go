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
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/tomoncle/quarry/entity"
)

// Fingerprint identifies an (entity, disable tree) pair on a generation path.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return strconv.FormatUint(uint64(f), 16)
}

func nodeFingerprint(entityName string, tree DisableTree) Fingerprint {
	d := xxhash.New()
	_, _ = d.WriteString(entityName)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatUint(tree.Fingerprint(), 16))
	return Fingerprint(d.Sum64())
}

func chainFingerprint(chain []Fingerprint) uint64 {
	d := xxhash.New()
	for _, fp := range chain {
		_, _ = d.WriteString(fp.String())
		_, _ = d.WriteString("/")
	}
	return d.Sum64()
}

// Node is the shape of one entity at one position of the graph. Relations
// holds every relationship of the entity; a nil value marks it excluded.
// Nodes are shared through the cache and must not be modified.
type Node struct {
	Entity      *entity.Descriptor
	Columns     []string
	Relations   map[string]*Node
	Fingerprint Fingerprint
	Chain       []Fingerprint
}

// Included lists the relationships kept in the shape, in declaration order.
func (n *Node) Included() []string {
	var names []string
	for _, rel := range n.Entity.Relationships {
		if child, ok := n.Relations[rel.Name]; ok && child != nil {
			names = append(names, rel.Name)
		}
	}
	return names
}

// Excluded reports whether a relationship of the entity is left out.
func (n *Node) Excluded(relationship string) bool {
	child, ok := n.Relations[relationship]
	return !ok || child == nil
}

// Depth is the number of nodes on the longest path from n to a leaf.
func (n *Node) Depth() int {
	depth := 0
	for _, child := range n.Relations {
		if child == nil {
			continue
		}
		if d := child.Depth(); d > depth {
			depth = d
		}
	}
	return depth + 1
}

// Shape describes the serialized keys: a column maps to its column type, a
// to-one relationship to a nested shape and a to-many one to a one element
// list holding the nested shape.
func (n *Node) Shape() map[string]interface{} {
	shape := make(map[string]interface{}, len(n.Columns)+len(n.Relations))
	for _, name := range n.Columns {
		col, _ := n.Entity.Column(name)
		shape[name] = string(col.Type)
	}
	for _, name := range n.Included() {
		rel, _ := n.Entity.Relationship(name)
		child := n.Relations[name].Shape()
		if rel.Cardinality == entity.Many {
			shape[name] = []interface{}{child}
			continue
		}
		shape[name] = child
	}
	return shape
}
