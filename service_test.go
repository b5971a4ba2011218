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

package quarry_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/quarry"
	"github.com/tomoncle/quarry/database"
	"github.com/tomoncle/quarry/filter"
	"github.com/tomoncle/quarry/repository"
	"github.com/tomoncle/quarry/types"
	"github.com/uptrace/bun"
)

type Shelf struct {
	bun.BaseModel `bun:"table:shelves"`

	ID      int64     `bun:"id,pk"`
	Label   string    `bun:"label,unique"`
	Volumes []*Volume `bun:"rel:has-many,join:id=shelf_id" json:"volumes"`
}

type Volume struct {
	bun.BaseModel `bun:"table:volumes"`

	ID      int64  `bun:"id,pk"`
	Title   string `bun:"title"`
	ShelfID int64  `bun:"shelf_id"`
	Shelf   *Shelf `bun:"rel:belongs-to,join:shelf_id=id" json:"shelf"`
}

type Loose struct {
	ID int64 `bun:"id,pk"`
}

func openEngine(t *testing.T, mode string) *quarry.Engine {
	t.Helper()
	ctx := context.Background()
	cfg := &database.Config{
		Binds: map[string]database.ConnectionConfig{
			database.DefaultBind: {
				Type:         "sqlite",
				DBName:       "file:" + uuid.NewString() + "?mode=memory&cache=shared",
				MaxOpenConns: 1,
			},
		},
		Engine: database.EngineConfig{
			MaxRetries:         2,
			RetryDelay:         time.Millisecond,
			PaginationMode:     mode,
			DefaultPerPage:     2,
			SchemaSingleFlight: true,
		},
	}
	engine, err := quarry.Open(ctx, cfg, &Shelf{}, &Volume{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	require.NoError(t, engine.CreateTables(ctx))
	return engine
}

func seed(t *testing.T, engine *quarry.Engine) (quarry.Service[Shelf], quarry.Service[Volume]) {
	t.Helper()
	ctx := context.Background()
	shelves := quarry.MustService[Shelf](engine)
	volumes := quarry.MustService[Volume](engine)
	require.NoError(t, shelves.Save(ctx, &Shelf{ID: 1, Label: "fiction"}, &Shelf{ID: 2, Label: "poetry"}))
	require.NoError(t, volumes.Save(ctx,
		&Volume{ID: 1, Title: "The Dispossessed", ShelfID: 1},
		&Volume{ID: 2, Title: "The Lathe of Heaven", ShelfID: 1},
		&Volume{ID: 3, Title: "Ariel", ShelfID: 2},
	))
	return shelves, volumes
}

func TestEngineServices(t *testing.T) {
	for _, mode := range []string{database.PaginationStandard, database.PaginationIntegrated} {
		t.Run(mode, func(t *testing.T) {
			engine := openEngine(t, mode)
			shelves, volumes := seed(t, engine)
			ctx := context.Background()
			assert.Equal(t, "Volume", volumes.Entity().Name)
			require.NoError(t, engine.Ping(ctx))

			page, err := volumes.Page(ctx, &repository.QuerySpec{
				Filters:   []filter.Term{filter.Where("shelf.label", filter.Equal, "fiction")},
				OrderBy:   []repository.Order{{Path: "title", Direction: repository.Desc}},
				Serialize: true,
			}, types.NewPageRequest(0, 0))
			require.NoError(t, err)
			assert.Equal(t, 2, page.Total)
			assert.Equal(t, 1, page.TotalPages)
			require.Len(t, page.Items, 2)
			assert.Equal(t, "The Lathe of Heaven", page.Items[0]["title"])
			assert.Equal(t, "fiction", page.Items[0]["shelf"].(types.JsonObject)["label"])

			n, err := shelves.Count(ctx, &repository.QuerySpec{
				Filters: []filter.Term{filter.Where("volumes", filter.Any, []filter.Term{
					filter.Where("title", filter.Like, "A%"),
				})},
			})
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Positive(t, engine.SchemaCacheSize())
		})
	}
}

func TestEngineWritesThroughServices(t *testing.T) {
	engine := openEngine(t, "")
	shelves, volumes := seed(t, engine)
	ctx := context.Background()

	require.NoError(t, shelves.SaveOrUpdate(ctx, []string{"label"}, []string{"id"}, &Shelf{ID: 2, Label: "verse"}))
	first, err := shelves.First(ctx, &repository.QuerySpec{Filters: []filter.Term{filter.Where("id", filter.Equal, 2)}})
	require.NoError(t, err)
	assert.Equal(t, "verse", first["label"])

	err = engine.RunInTx(ctx, "", func(ctx context.Context, tx bun.Tx) error {
		return volumes.SaveWithTx(ctx, &tx, &Volume{ID: 4, Title: "Leaves of Grass", ShelfID: 2})
	})
	require.NoError(t, err)

	var titles []string
	require.NoError(t, volumes.SelectBuilder().Column("title").Where("shelf_id = ?", 2).Order("id").Scan(ctx, &titles))
	assert.Equal(t, []string{"Ariel", "Leaves of Grass"}, titles)

	updated, err := volumes.Update(ctx, []filter.Term{filter.Where("shelf_id", filter.Equal, 2)}, map[string]interface{}{"shelf_id": 1}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	_, err = volumes.Delete(ctx, nil, false)
	assert.True(t, database.IsValidationError(err))
	deleted, err := volumes.Delete(ctx, nil, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	stats, err := engine.Stats("")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
}

func TestEngineRejects(t *testing.T) {
	engine := openEngine(t, "")

	_, err := quarry.NewService[Loose](engine)
	assert.True(t, database.IsConfigurationError(err))
	assert.Panics(t, func() { quarry.MustService[Loose](engine) })

	_, err = engine.Find(context.Background(), "Lamp", nil)
	assert.True(t, database.IsConfigurationError(err))

	_, err = quarry.Open(context.Background(), &database.Config{}, &Volume{})
	assert.True(t, database.IsConfigurationError(err), "Volume.shelf targets an unregistered entity")

	_, err = quarry.New(engine.Manager(), engine.Registry(), database.EngineConfig{PaginationMode: "cursor"})
	assert.True(t, database.IsConfigurationError(err))
}

func TestEngineRetryLimits(t *testing.T) {
	engine := openEngine(t, "")
	raw, ok := engine.Raw().(*database.RetryExecutor)
	require.True(t, ok)
	assert.Equal(t, 2, raw.MaxAttempts())
	assert.Equal(t, time.Millisecond, raw.RetryDelay())

	bare, err := quarry.New(engine.Manager(), engine.Registry(), database.EngineConfig{})
	require.NoError(t, err)
	raw, ok = bare.Raw().(*database.RetryExecutor)
	require.True(t, ok)
	assert.Equal(t, 3, raw.MaxAttempts())
	assert.Equal(t, 5*time.Second, raw.RetryDelay())
}
