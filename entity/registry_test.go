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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry/database"
	"github.com/uptrace/bun"
)

type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c" quarry:"bind:catalog"`

	ID       int64       `bun:"id,pk,autoincrement" json:"id"`
	Name     string      `bun:"name,notnull,unique" json:"name"`
	ParentID *int64      `bun:"parent_id" json:"parent_id"`
	Secret   string      `bun:"secret" json:"-"`
	Parent   *Category   `bun:"rel:belongs-to,join:parent_id=id" json:"parent"`
	Children []*Category `bun:"rel:has-many,join:id=parent_id" json:"children"`
}

type Author struct {
	bun.BaseModel

	ID        int64
	FullName  string
	Email     string `bun:",unique:uk_author_contact"`
	Phone     string `bun:",unique:uk_author_contact"`
	Token     string `quarry:"hidden"`
	Profile   json.RawMessage
	CreatedAt time.Time
	Books     []Book `bun:"rel:has-many"`
}

type Book struct {
	bun.BaseModel `bun:"table:books"`

	ID       int64   `bun:"id,pk"`
	Title    string  `bun:"title"`
	Price    float64 `bun:"price"`
	AuthorID int64   `bun:"author_id"`
	Author   *Author `bun:"rel:belongs-to"`
}

func TestRegisterReadsTags(t *testing.T) {
	r := NewRegistry(nil)
	d, err := r.Register((*Category)(nil))
	require.NoError(t, err)

	assert.Equal(t, "Category", d.Name)
	assert.Equal(t, "categories", d.Table)
	assert.Equal(t, "catalog", d.Bind)
	assert.Equal(t, []string{"id", "name", "parent_id", "secret"}, d.ColumnNames())
	assert.Equal(t, []string{"id", "name", "parent_id"}, d.VisibleColumns())
	assert.Equal(t, []string{"id"}, d.PrimaryKeys())
	assert.Equal(t, []UniqueConstraint{{Name: "uk_category_name", Columns: []string{"name"}}}, d.Uniques)

	parent, ok := d.Relationship("parent")
	require.True(t, ok)
	assert.Equal(t, Relationship{Name: "parent", GoName: "Parent", Kind: "belongs-to", Target: "Category", Cardinality: One, LocalColumn: "parent_id", RemoteColumn: "id"}, parent)

	children, ok := d.Relationship("children")
	require.True(t, ok)
	assert.Equal(t, Many, children.Cardinality)
	assert.Equal(t, "id", children.LocalColumn)
	assert.Equal(t, "parent_id", children.RemoteColumn)
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry(nil)
	d, err := r.Register(Author{})
	require.NoError(t, err)

	assert.Equal(t, "authors", d.Table)
	assert.Equal(t, database.DefaultBind, d.Bind)
	assert.Equal(t, []string{"id", "full_name", "email", "phone", "token", "profile", "created_at"}, d.ColumnNames())
	assert.NotContains(t, d.VisibleColumns(), "token")
	assert.Equal(t, []UniqueConstraint{{Name: "uk_author_contact", Columns: []string{"email", "phone"}}}, d.Uniques)

	col, ok := d.Column("profile")
	require.True(t, ok)
	assert.Equal(t, TypeJSON, col.Type)
	col, _ = d.Column("created_at")
	assert.Equal(t, TypeTime, col.Type)

	books, ok := d.Relationship("books")
	require.True(t, ok)
	assert.Equal(t, "Book", books.Target)
	assert.Equal(t, "author_id", books.RemoteColumn)
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Register(&Book{})
	require.NoError(t, err)
	_, err = r.Register(&Book{})
	assert.True(t, database.IsConfigurationError(err))
}

func TestRegisterRejectsNonStruct(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Register(42)
	assert.True(t, database.IsConfigurationError(err))
	_, err = r.Register(nil)
	assert.True(t, database.IsConfigurationError(err))
}

func TestDescribe(t *testing.T) {
	r := NewRegistry(nil).MustRegister(&Author{}, &Book{})

	d, err := r.Describe("Book")
	require.NoError(t, err)
	assert.Equal(t, "books", d.Table)

	byModel, err := r.DescribeModel([]*Book{})
	require.NoError(t, err)
	assert.Same(t, d, byModel)

	_, err = r.Describe("Publisher")
	var cfgErr *database.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Publisher", cfgErr.Entity)
}

func TestTargetAndValidate(t *testing.T) {
	r := NewRegistry(nil).MustRegister(&Book{})
	book, _ := r.Describe("Book")

	_, _, err := r.Target(book, "author")
	assert.True(t, database.IsConfigurationError(err))
	assert.True(t, database.IsConfigurationError(r.Validate()))

	r.MustRegister(&Author{})
	rel, author, err := r.Target(book, "author")
	require.NoError(t, err)
	assert.Equal(t, "Author", author.Name)
	assert.Equal(t, "author_id", rel.LocalColumn)
	assert.NoError(t, r.Validate())

	_, _, err = r.Target(book, "publisher")
	assert.True(t, database.IsConfigurationError(err))
}

func TestModelsKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry(nil).MustRegister(&Book{}, &Author{}, &Category{})
	models := r.Models()
	require.Len(t, models, 3)
	assert.IsType(t, &Book{}, models[0])
	assert.IsType(t, &Author{}, models[1])
	assert.IsType(t, &Category{}, models[2])

	names := make([]string, 0, 3)
	for _, d := range r.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Book", "Author", "Category"}, names)
}

func TestUnderscore(t *testing.T) {
	cases := map[string]string{
		"ID":          "id",
		"ParentID":    "parent_id",
		"FullName":    "full_name",
		"HTTPServer":  "http_server",
		"CreatedAt":   "created_at",
		"OrderItem":   "order_item",
		"already_low": "already_low",
	}
	for in, want := range cases {
		assert.Equal(t, want, underscore(in), in)
	}
}
