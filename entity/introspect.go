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
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/jinzhu/inflection"
	"github.com/tomoncle/quarry/database"
)

// Introspector turns a model into its descriptor. It runs once per model at
// registration time.
type Introspector interface {
	Inspect(model interface{}) (*Descriptor, error)
}

// TagIntrospector reads bun struct tags, plus a `quarry` tag carrying
// "bind:<name>" on bun.BaseModel and "hidden" on columns.
type TagIntrospector struct{}

var (
	timeType       = reflect.TypeOf(time.Time{})
	bytesType      = reflect.TypeOf([]byte(nil))
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
)

func (TagIntrospector) Inspect(model interface{}) (*Descriptor, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return nil, database.NewConfigurationError("", "", "cannot register a nil model")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, database.NewConfigurationError(t.String(), "", "model must be a struct, got %s", t.Kind())
	}

	d := &Descriptor{
		Name:  t.Name(),
		Bind:  database.DefaultBind,
		Table: inflection.Plural(underscore(t.Name())),
		Type:  t,
	}
	uniques := map[string][]string{}
	var uniqueOrder []string
	if err := collectFields(d, t, uniques, &uniqueOrder); err != nil {
		return nil, err
	}
	if len(d.PrimaryKeys()) == 0 {
		// bun falls back to the id column as primary key
		for i := range d.Columns {
			if d.Columns[i].Name == "id" {
				d.Columns[i].PrimaryKey = true
			}
		}
	}
	for _, name := range uniqueOrder {
		d.Uniques = append(d.Uniques, UniqueConstraint{Name: name, Columns: uniques[name]})
	}
	d.index()
	return d, nil
}

func isBaseModel(f reflect.StructField) bool {
	return f.Type.Name() == "BaseModel" && strings.Contains(f.Type.PkgPath(), "uptrace/bun")
}

func collectFields(d *Descriptor, t reflect.Type, uniques map[string][]string, order *[]string) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if isBaseModel(f) {
			applyModelTag(d, f)
			continue
		}
		tag := f.Tag.Get("bun")
		if tag == "-" {
			continue
		}
		if f.Anonymous && tag == "" {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := collectFields(d, ft, uniques, order); err != nil {
					return err
				}
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		if strings.Contains(tag, "rel:") {
			rel, ok, err := parseRelationship(d, f, tag)
			if err != nil {
				return err
			}
			if ok {
				d.Relationships = append(d.Relationships, rel)
			}
			continue
		}
		if strings.Contains(tag, "m2m:") {
			continue
		}
		col := parseColumn(d.Name, f, tag, uniques, order)
		d.Columns = append(d.Columns, col)
	}
	return nil
}

func applyModelTag(d *Descriptor, f reflect.StructField) {
	for _, part := range strings.Split(f.Tag.Get("bun"), ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "table:") {
			d.Table = strings.TrimPrefix(part, "table:")
		}
	}
	for _, part := range strings.Split(f.Tag.Get("quarry"), ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "bind:") {
			d.Bind = strings.TrimPrefix(part, "bind:")
		}
	}
}

func parseColumn(entity string, f reflect.StructField, tag string, uniques map[string][]string, order *[]string) Column {
	parts := strings.Split(tag, ",")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		name = underscore(f.Name)
	}
	col := Column{Name: name, GoName: f.Name, Type: inferColumnType(f.Type), Visible: true}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case p == "pk":
			col.PrimaryKey = true
		case p == "unique" || strings.HasPrefix(p, "unique:"):
			group := strings.TrimPrefix(p, "unique:")
			if p == "unique" {
				group = fmt.Sprintf("uk_%s_%s", underscore(entity), name)
			}
			if _, seen := uniques[group]; !seen {
				*order = append(*order, group)
			}
			uniques[group] = append(uniques[group], name)
		}
	}
	if f.Tag.Get("json") == "-" {
		col.Visible = false
	}
	for _, p := range strings.Split(f.Tag.Get("quarry"), ",") {
		if strings.TrimSpace(p) == "hidden" {
			col.Visible = false
		}
	}
	return col
}

func parseRelationship(d *Descriptor, f reflect.StructField, tag string) (Relationship, bool, error) {
	rel := Relationship{Name: relationshipName(f), GoName: f.Name}
	var join string
	for _, p := range strings.Split(tag, ",") {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(p, "rel:"):
			rel.Kind = strings.TrimPrefix(p, "rel:")
		case strings.HasPrefix(p, "join:"):
			if join != "" {
				return rel, false, database.NewConfigurationError(d.Name, rel.Name, "composite joins are not supported")
			}
			join = strings.TrimPrefix(p, "join:")
		}
	}

	target := f.Type
	for target.Kind() == reflect.Ptr || target.Kind() == reflect.Slice {
		target = target.Elem()
	}
	if target.Kind() != reflect.Struct {
		return rel, false, database.NewConfigurationError(d.Name, rel.Name, "relationship field must reference a struct, got %s", f.Type)
	}
	rel.Target = target.Name()

	switch rel.Kind {
	case "belongs-to":
		rel.Cardinality = One
		rel.LocalColumn, rel.RemoteColumn = rel.Name+"_id", "id"
	case "has-one":
		rel.Cardinality = One
		rel.LocalColumn, rel.RemoteColumn = "id", underscore(d.Name)+"_id"
	case "has-many":
		if f.Type.Kind() != reflect.Slice {
			return rel, false, database.NewConfigurationError(d.Name, rel.Name, "has-many relationship must be a slice")
		}
		rel.Cardinality = Many
		rel.LocalColumn, rel.RemoteColumn = "id", underscore(d.Name)+"_id"
	case "many-to-many":
		// resolved through a join table; not addressable by filters or schemas
		return rel, false, nil
	default:
		return rel, false, database.NewConfigurationError(d.Name, rel.Name, "unknown relationship kind %q", rel.Kind)
	}
	if join != "" {
		local, remote, ok := strings.Cut(join, "=")
		if !ok || local == "" || remote == "" {
			return rel, false, database.NewConfigurationError(d.Name, rel.Name, "malformed join %q", join)
		}
		rel.LocalColumn, rel.RemoteColumn = strings.TrimSpace(local), strings.TrimSpace(remote)
	}
	return rel, true, nil
}

func relationshipName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return underscore(f.Name)
}

func inferColumnType(rt reflect.Type) ColumnType {
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	switch {
	case rt == timeType || rt.ConvertibleTo(timeType) && rt.Kind() == reflect.Struct:
		return TypeTime
	case rt == rawMessageType:
		return TypeJSON
	case rt == bytesType || rt.Kind() == reflect.Slice && rt.Elem().Kind() == reflect.Uint8:
		return TypeBytes
	}
	switch rt.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Bool:
		return TypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInt
	case reflect.Float32, reflect.Float64:
		return TypeFloat
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return TypeJSON
	default:
		return TypeUnknown
	}
}

// underscore converts a Go identifier to snake case the way bun names
// columns: ParentID -> parent_id.
func underscore(s string) string {
	r := []rune(s)
	var b strings.Builder
	for i, c := range r {
		if unicode.IsUpper(c) {
			if i > 0 && (unicode.IsLower(r[i-1]) || i+1 < len(r) && unicode.IsLower(r[i+1]) && unicode.IsUpper(r[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
