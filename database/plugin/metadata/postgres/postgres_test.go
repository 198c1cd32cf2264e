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

package postgres_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blinklabs-io/almoner/database/plugin"
	"github.com/blinklabs-io/almoner/database/plugin/metadata/gormstore"
	"github.com/blinklabs-io/almoner/database/plugin/metadata/postgres"
)

func TestStartWithoutDsn(t *testing.T) {
	db := postgres.New("   ", gormstore.Config{})
	assert.ErrorIs(t, db.Start(), postgres.ErrMissingDsn)
	// Close on an unstarted store is a no-op
	assert.NoError(t, db.Stop())
}

func TestPluginRegistered(t *testing.T) {
	found := false
	for _, entry := range plugin.GetPlugins(plugin.PluginTypeMetadata) {
		if entry.Name == "postgres" {
			found = true
		}
	}
	assert.True(t, found)
}
