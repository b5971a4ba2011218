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

import "reflect"

// ColumnType is the semantic type of a column as seen by serializers.
type ColumnType string

const (
	TypeUnknown ColumnType = "unknown"
	TypeString  ColumnType = "string"
	TypeInt     ColumnType = "int"
	TypeFloat   ColumnType = "float"
	TypeBool    ColumnType = "bool"
	TypeTime    ColumnType = "time"
	TypeBytes   ColumnType = "bytes"
	TypeJSON    ColumnType = "json"
)

type Column struct {
	Name       string
	GoName     string
	Type       ColumnType
	PrimaryKey bool
	Visible    bool
}

// Cardinality tells whether a relationship yields one row or a collection.
type Cardinality int

const (
	One Cardinality = iota
	Many
)

func (c Cardinality) String() string {
	if c == Many {
		return "many"
	}
	return "one"
}

// Relationship joins LocalColumn of the owning table to RemoteColumn of the
// target table. For belongs-to the foreign key is local; for has-one and
// has-many it is remote.
type Relationship struct {
	Name         string
	GoName       string
	Kind         string
	Target       string
	Cardinality  Cardinality
	LocalColumn  string
	RemoteColumn string
}

type UniqueConstraint struct {
	Name    string
	Columns []string
}

// Descriptor is the static metadata of one registered entity. It is never
// mutated after registration.
type Descriptor struct {
	Name          string
	Bind          string
	Table         string
	Type          reflect.Type
	Columns       []Column
	Relationships []Relationship
	Uniques       []UniqueConstraint

	columnIndex map[string]int
	relIndex    map[string]int
}

func (d *Descriptor) index() {
	d.columnIndex = make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		d.columnIndex[c.Name] = i
	}
	d.relIndex = make(map[string]int, len(d.Relationships))
	for i, r := range d.Relationships {
		d.relIndex[r.Name] = i
	}
}

func (d *Descriptor) Column(name string) (Column, bool) {
	i, ok := d.columnIndex[name]
	if !ok {
		return Column{}, false
	}
	return d.Columns[i], true
}

func (d *Descriptor) HasColumn(name string) bool {
	_, ok := d.columnIndex[name]
	return ok
}

func (d *Descriptor) Relationship(name string) (Relationship, bool) {
	i, ok := d.relIndex[name]
	if !ok {
		return Relationship{}, false
	}
	return d.Relationships[i], true
}

func (d *Descriptor) PrimaryKeys() []string {
	var pks []string
	for _, c := range d.Columns {
		if c.PrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	return pks
}

// VisibleColumns lists serializable column names in declaration order.
func (d *Descriptor) VisibleColumns() []string {
	cols := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c.Visible {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

func (d *Descriptor) ColumnNames() []string {
	cols := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		cols[i] = c.Name
	}
	return cols
}
