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

package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/almoner/database/plugin/metadata/gormstore"
)

func TestNewAppliesServerPool(t *testing.T) {
	db := New("  user:pass@tcp(localhost:3306)/almoner ", gormstore.Config{})
	assert.Equal(t, "user:pass@tcp(localhost:3306)/almoner", db.dsn)
	assert.Equal(t, "mysql", db.config.Dialect)
	assert.Equal(t, gormstore.ServerPool, db.config.Pool)
	assert.True(t, db.config.PrepareStmt)
}

func TestParseDsnEnablesParseTime(t *testing.T) {
	db := New("user:pass@tcp(localhost:3306)/almoner", gormstore.Config{})
	cfg, err := db.parseDsn()
	require.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "almoner", cfg.DBName)
}

func TestStartErrors(t *testing.T) {
	assert.ErrorIs(t, New("", gormstore.Config{}).Start(), ErrMissingDsn)
	assert.Error(t, New("not a dsn", gormstore.Config{}).Start())
	// Close on an unstarted store is a no-op
	assert.NoError(t, New("", gormstore.Config{}).Stop())
}
