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

package entity

import (
	"reflect"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/tomoncle/quarry/database"
)

var defaultRegistry = NewRegistry(nil)

// Registry holds the descriptor of every registered model, keyed by entity
// name. Lookups take a read lock; registration happens at startup.
type Registry struct {
	mutex        sync.RWMutex
	introspector Introspector
	byName       map[string]*Descriptor
	byType       map[reflect.Type]*Descriptor
	order        []string
	models       []interface{}
}

// NewRegistry builds an empty registry. A nil introspector reads bun tags.
func NewRegistry(introspector Introspector) *Registry {
	if introspector == nil {
		introspector = TagIntrospector{}
	}
	return &Registry{
		introspector: introspector,
		byName:       map[string]*Descriptor{},
		byType:       map[reflect.Type]*Descriptor{},
	}
}

// Register introspects model and stores its descriptor. Registering two
// models under the same entity name is a configuration error.
func (r *Registry) Register(model interface{}) (*Descriptor, error) {
	d, err := r.introspector.Inspect(model)
	if err != nil {
		return nil, err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.byName[d.Name]; exists {
		return nil, database.NewConfigurationError(d.Name, "", "entity is already registered")
	}
	r.byName[d.Name] = d
	r.byType[d.Type] = d
	r.order = append(r.order, d.Name)
	r.models = append(r.models, reflect.New(d.Type).Interface())
	return d, nil
}

// MustRegister panics when a model cannot be registered.
func (r *Registry) MustRegister(models ...interface{}) *Registry {
	for _, model := range models {
		if _, err := r.Register(model); err != nil {
			panic(err)
		}
	}
	return r
}

// Describe returns the descriptor registered under name.
func (r *Registry) Describe(name string) (*Descriptor, error) {
	r.mutex.RLock()
	d, ok := r.byName[name]
	r.mutex.RUnlock()
	if !ok {
		return nil, database.NewConfigurationError(name, "", "entity is not registered")
	}
	return d, nil
}

// DescribeModel looks a descriptor up by the Go type of model.
func (r *Registry) DescribeModel(model interface{}) (*Descriptor, error) {
	t := reflect.TypeOf(model)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	r.mutex.RLock()
	d, ok := r.byType[t]
	r.mutex.RUnlock()
	if !ok {
		name := "<nil>"
		if t != nil {
			name = t.String()
		}
		return nil, database.NewConfigurationError(name, "", "model is not registered")
	}
	return d, nil
}

// Target resolves the descriptor on the far side of a relationship.
func (r *Registry) Target(d *Descriptor, relationship string) (Relationship, *Descriptor, error) {
	rel, ok := d.Relationship(relationship)
	if !ok {
		return Relationship{}, nil, database.NewConfigurationError(d.Name, relationship, "unknown relationship")
	}
	target, err := r.Describe(rel.Target)
	if err != nil {
		return Relationship{}, nil, database.NewConfigurationError(d.Name, relationship, "relationship target %s is not registered", rel.Target)
	}
	return rel, target, nil
}

// Validate checks that every relationship points at a registered entity and
// joins columns that exist on both sides. Every problem found is reported.
func (r *Registry) Validate() error {
	var result *multierror.Error
	for _, d := range r.Descriptors() {
		for _, rel := range d.Relationships {
			_, target, err := r.Target(d, rel.Name)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			if !d.HasColumn(rel.LocalColumn) {
				result = multierror.Append(result, database.NewConfigurationError(d.Name, rel.Name, "join column %s does not exist", rel.LocalColumn))
			}
			if !target.HasColumn(rel.RemoteColumn) {
				result = multierror.Append(result, database.NewConfigurationError(d.Name, rel.Name, "join column %s.%s does not exist", target.Name, rel.RemoteColumn))
			}
		}
	}
	return result.ErrorOrNil()
}

// Descriptors returns every descriptor in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	result := make([]*Descriptor, len(r.order))
	for i, name := range r.order {
		result[i] = r.byName[name]
	}
	return result
}

// Models returns a fresh pointer instance of every registered model in
// registration order, suitable for table bootstrap.
func (r *Registry) Models() []interface{} {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	result := make([]interface{}, len(r.models))
	copy(result, r.models)
	return result
}

// Default returns the process wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a model to the default registry.
func Register(model interface{}) (*Descriptor, error) {
	return defaultRegistry.Register(model)
}

// Describe looks an entity up in the default registry.
func Describe(name string) (*Descriptor, error) {
	return defaultRegistry.Describe(name)
}
