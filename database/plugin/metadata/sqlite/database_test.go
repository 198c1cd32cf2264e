// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlite_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/almoner/database/models"
	"github.com/blinklabs-io/almoner/database/plugin/metadata/gormstore"
	"github.com/blinklabs-io/almoner/database/plugin/metadata/sqlite"
)

func TestInMemoryStoreMigratesAndRegistersPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	db := sqlite.New("", gormstore.Config{PromRegistry: reg})
	require.NoError(t, db.Start())

	for _, model := range models.MigrateModels {
		assert.True(t, db.DB().Migrator().HasTable(model), "%T", model)
	}
	count, err := testutil.GatherAndCount(reg, "go_sql_max_open_connections")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	count, err = testutil.GatherAndCount(reg, "go_sql_max_open_connections")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestInMemoryStoresAreIsolated(t *testing.T) {
	a := sqlite.New("", gormstore.Config{})
	require.NoError(t, a.Start())
	defer a.Close()
	b := sqlite.New("", gormstore.Config{})
	require.NoError(t, b.Start())
	defer b.Close()

	require.NoError(t, a.EnsureUser("0x00000000000000000000000000000000000000aa", nil))
	user, err := b.GetUser("0x00000000000000000000000000000000000000aa", nil)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestOnDiskStore(t *testing.T) {
	dir := t.TempDir()
	db := sqlite.New(dir, gormstore.Config{})
	require.NoError(t, db.Start())
	require.NoError(t, db.EnsureUser("0x00000000000000000000000000000000000000aa", nil))
	require.NoError(t, db.Close())

	db = sqlite.New(dir, gormstore.Config{})
	require.NoError(t, db.Start())
	defer db.Close()
	user, err := db.GetUser("0x00000000000000000000000000000000000000aa", nil)
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", user.Address)
}
