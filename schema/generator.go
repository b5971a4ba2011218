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
	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/entity"
)

// Catalog is the part of the entity registry the generator reads.
type Catalog interface {
	Describe(name string) (*entity.Descriptor, error)
	Target(d *entity.Descriptor, relationship string) (entity.Relationship, *entity.Descriptor, error)
	Descriptors() []*entity.Descriptor
}

type Generator struct {
	catalog Catalog
	cache   Cache
	logger  database.Logger
}

// NewGenerator uses a fresh MapCache when cache is nil.
func NewGenerator(catalog Catalog, cache Cache, logger database.Logger) *Generator {
	if cache == nil {
		cache = NewCache(false)
	}
	if logger == nil {
		logger = database.GetLogger()
	}
	return &Generator{catalog: catalog, cache: cache, logger: logger}
}

func (g *Generator) Cache() Cache {
	return g.cache
}

// Generate returns the shape of entityName. chain holds the fingerprints of
// the nodes above it, usually none. Every relationship named in disabled
// must exist, otherwise a ConfigurationError is returned.
func (g *Generator) Generate(entityName string, disabled DisableTree, chain []Fingerprint) (*Node, error) {
	if err := g.validate(disabled); err != nil {
		return nil, err
	}
	desc, err := g.catalog.Describe(entityName)
	if err != nil {
		return nil, err
	}
	if disabled == nil {
		disabled = DisableTree{}
	}
	return g.build(desc, disabled, disabled, chain)
}

func (g *Generator) build(desc *entity.Descriptor, root, tree DisableTree, chain []Fingerprint) (*Node, error) {
	fp := nodeFingerprint(desc.Name, tree)
	key := CacheKey{
		Entity: desc.Name,
		Tree:   root.Fingerprint() ^ uint64(fp),
		Chain:  chainFingerprint(chain),
	}
	return g.cache.GetOrCompute(key, func() (*Node, error) {
		node := &Node{
			Entity:      desc,
			Columns:     desc.VisibleColumns(),
			Relations:   make(map[string]*Node, len(desc.Relationships)),
			Fingerprint: fp,
			Chain:       append([]Fingerprint(nil), chain...),
		}
		path := append(append([]Fingerprint(nil), chain...), fp)
		for _, rel := range desc.Relationships {
			sub, found := tree.lookup(desc.Name, rel.Name)
			if found && sub == nil {
				node.Relations[rel.Name] = nil
				continue
			}
			_, target, err := g.catalog.Target(desc, rel.Name)
			if err != nil {
				return nil, err
			}
			childTree := root
			if found {
				childTree = root.merge(sub)
			}
			if contains(path, nodeFingerprint(target.Name, childTree)) {
				g.logger.Debug("Relationship reaches an ancestor, excluded",
					"entity", desc.Name, "relationship", rel.Name, "depth", len(path))
				node.Relations[rel.Name] = nil
				continue
			}
			child, err := g.build(target, root, childTree, path)
			if err != nil {
				return nil, err
			}
			node.Relations[rel.Name] = child
		}
		return node, nil
	})
}

func contains(chain []Fingerprint, fp Fingerprint) bool {
	for _, c := range chain {
		if c == fp {
			return true
		}
	}
	return false
}

func (g *Generator) validate(tree DisableTree) error {
	for _, key := range tree.keys() {
		if key.Entity == Wildcard {
			if !g.anyHas(key.Relationship) {
				return database.NewConfigurationError(Wildcard, key.Relationship, "no registered entity has this relationship")
			}
		} else {
			desc, err := g.catalog.Describe(key.Entity)
			if err != nil {
				return err
			}
			if _, ok := desc.Relationship(key.Relationship); !ok {
				return database.NewConfigurationError(key.Entity, key.Relationship, "disabled relationship does not exist")
			}
		}
		if err := g.validate(tree[key]); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) anyHas(relationship string) bool {
	for _, d := range g.catalog.Descriptors() {
		if _, ok := d.Relationship(relationship); ok {
			return true
		}
	}
	return false
}
