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

package schema_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/entity"
	"github.com/tomoncle/quarry/schema"
	"github.com/tomoncle/quarry/types"
)

type memoryLoader struct {
	tables map[string][]map[string]interface{}
	calls  []string
	err    error
}

func (l *memoryLoader) LoadRelated(_ context.Context, target *entity.Descriptor, column string, keys []interface{}) ([]map[string]interface{}, error) {
	l.calls = append(l.calls, target.Table+"."+column)
	if l.err != nil {
		return nil, l.err
	}
	var rows []map[string]interface{}
	for _, row := range l.tables[target.Table] {
		for _, k := range keys {
			if row[column] == k {
				rows = append(rows, row)
				break
			}
		}
	}
	return rows, nil
}

func TestSerializeBatchesRelationships(t *testing.T) {
	g := schema.NewGenerator(newCatalog(t), nil, nil)
	node, err := g.Generate("Owner", nil, nil)
	require.NoError(t, err)

	loader := &memoryLoader{tables: map[string][]map[string]interface{}{
		"nodes": {
			{"id": int64(1), "label": []byte("root"), "parent_id": nil, "owner_id": int64(10)},
			{"id": int64(2), "label": "leaf", "parent_id": int64(1), "owner_id": int64(10)},
			{"id": int64(3), "label": "other", "parent_id": nil, "owner_id": int64(11)},
		},
	}}
	rows := []map[string]interface{}{
		{"id": int64(10), "name": "ann", "password": "x"},
		{"id": int64(11), "name": "bob", "password": "y"},
		{"id": int64(12), "name": "cid", "password": "z"},
	}
	objects, err := schema.NewSerializer(loader).Serialize(context.Background(), node, rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"nodes.owner_id"}, loader.calls)
	require.Len(t, objects, 3)
	assert.Equal(t, "ann", objects[0]["name"])
	assert.NotContains(t, objects[0], "password")

	nodes := objects[0]["nodes"].(types.JsonArray)
	require.Len(t, nodes, 2)
	assert.Equal(t, "root", nodes[0]["label"])
	assert.Equal(t, types.JsonArray{}, objects[2]["nodes"])
	assert.Len(t, objects[1]["nodes"], 1)
}

func TestSerializeToOne(t *testing.T) {
	g := schema.NewGenerator(newCatalog(t), nil, nil)
	disabled := schema.DisableTree{}.Nest("Node", "parent", schema.DisableTree{}.Exclude("Node", "owner"))
	node, err := g.Generate("Node", disabled, nil)
	require.NoError(t, err)

	loader := &memoryLoader{tables: map[string][]map[string]interface{}{
		"nodes":  {{"id": int64(1), "label": "root", "parent_id": nil, "owner_id": int64(10)}},
		"owners": {{"id": int64(10), "name": "ann", "password": "x"}},
	}}
	rows := []map[string]interface{}{
		{"id": int64(2), "label": "leaf", "parent_id": int64(1), "owner_id": int64(10)},
		{"id": int64(1), "label": "root", "parent_id": nil, "owner_id": int64(10)},
	}
	objects, err := schema.NewSerializer(loader).Serialize(context.Background(), node, rows)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"nodes.id", "owners.id"}, loader.calls)
	parent := objects[0]["parent"].(types.JsonObject)
	assert.Equal(t, "root", parent["label"])
	assert.NotContains(t, parent, "owner")
	assert.Nil(t, objects[1]["parent"])
	assert.Equal(t, "ann", objects[1]["owner"].(types.JsonObject)["name"])
}

func TestSerializeLoaderError(t *testing.T) {
	g := schema.NewGenerator(newCatalog(t), nil, nil)
	node, err := g.Generate("Owner", nil, nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = schema.NewSerializer(&memoryLoader{err: boom}).Serialize(context.Background(), node,
		[]map[string]interface{}{{"id": int64(10), "name": "ann"}})
	assert.ErrorIs(t, err, boom)
}
