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
	"context"
	"encoding/json"
	"fmt"

	"github.com/tomoncle/quarry/entity"
	"github.com/tomoncle/quarry/types"
)

// Loader fetches the rows of target whose column holds one of keys.
type Loader interface {
	LoadRelated(ctx context.Context, target *entity.Descriptor, column string, keys []interface{}) ([]map[string]interface{}, error)
}

// Serializer renders rows along a Node. Each included relationship costs one
// Loader call per level, whatever the number of rows.
type Serializer struct {
	loader Loader
}

func NewSerializer(loader Loader) *Serializer {
	return &Serializer{loader: loader}
}

// Serialize keeps row order. Rows must carry the join columns of every
// included relationship.
func (s *Serializer) Serialize(ctx context.Context, node *Node, rows []map[string]interface{}) ([]types.JsonObject, error) {
	objects := make([]types.JsonObject, len(rows))
	for i, row := range rows {
		objects[i] = columns(node, row)
	}
	for _, name := range node.Included() {
		rel, _ := node.Entity.Relationship(name)
		child := node.Relations[name]

		keys, seen := make([]interface{}, 0, len(rows)), map[string]struct{}{}
		for _, row := range rows {
			v := plain(row[rel.LocalColumn])
			if v == nil {
				continue
			}
			if _, dup := seen[keyOf(v)]; dup {
				continue
			}
			seen[keyOf(v)] = struct{}{}
			keys = append(keys, v)
		}

		groups := map[string]types.JsonArray{}
		if len(keys) > 0 {
			related, err := s.loader.LoadRelated(ctx, child.Entity, rel.RemoteColumn, keys)
			if err != nil {
				return nil, err
			}
			nested, err := s.Serialize(ctx, child, related)
			if err != nil {
				return nil, err
			}
			for i, r := range related {
				k := keyOf(plain(r[rel.RemoteColumn]))
				groups[k] = append(groups[k], nested[i])
			}
		}

		for i, row := range rows {
			matches := groups[keyOf(plain(row[rel.LocalColumn]))]
			if row[rel.LocalColumn] == nil {
				matches = nil
			}
			if rel.Cardinality == entity.Many {
				if matches == nil {
					matches = types.JsonArray{}
				}
				objects[i][name] = matches
				continue
			}
			if len(matches) > 0 {
				objects[i][name] = matches[0]
			} else {
				objects[i][name] = nil
			}
		}
	}
	return objects, nil
}

func columns(node *Node, row map[string]interface{}) types.JsonObject {
	obj := make(types.JsonObject, len(node.Columns)+len(node.Relations))
	for _, name := range node.Columns {
		v, ok := row[name]
		if !ok {
			continue
		}
		col, _ := node.Entity.Column(name)
		obj[name] = convert(col.Type, v)
	}
	return obj
}

// Plain converts a raw row without following relationships. Keys that are
// not columns of desc, such as computed projections, are kept as reported.
func Plain(desc *entity.Descriptor, row map[string]interface{}) types.JsonObject {
	obj := make(types.JsonObject, len(row))
	for k, v := range row {
		if col, ok := desc.Column(k); ok {
			obj[k] = convert(col.Type, v)
			continue
		}
		obj[k] = plain(v)
	}
	return obj
}

// convert undoes driver quirks such as text returned as []byte.
func convert(t entity.ColumnType, v interface{}) interface{} {
	switch t {
	case entity.TypeBytes:
		return v
	case entity.TypeJSON:
		switch raw := v.(type) {
		case []byte:
			return json.RawMessage(raw)
		case string:
			return json.RawMessage(raw)
		}
		return v
	case entity.TypeBool:
		switch b := v.(type) {
		case int64:
			return b != 0
		case []byte:
			return string(b) == "1" || string(b) == "true"
		}
		return v
	}
	return plain(v)
}

func plain(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// keyOf compares join values across drivers that report integers with
// different widths.
func keyOf(v interface{}) string {
	switch n := v.(type) {
	case int:
		return fmt.Sprint(int64(n))
	case int32:
		return fmt.Sprint(int64(n))
	case uint64:
		return fmt.Sprint(n)
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprint(int64(n))
		}
	}
	return fmt.Sprint(v)
}
