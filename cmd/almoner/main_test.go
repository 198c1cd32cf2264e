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

package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/blinklabs-io/almoner/database/plugin"
	_ "github.com/blinklabs-io/almoner/database/plugin/blob"
	_ "github.com/blinklabs-io/almoner/database/plugin/metadata"
)

func TestListPlugins(t *testing.T) {
	out := listPlugins(plugin.PluginTypeBlob, plugin.PluginTypeMetadata)
	assert.Contains(t, out, "Available blob plugins:\n  badger: ")
	assert.Contains(t, out, "Available metadata plugins:\n")
	for _, name := range []string{"sqlite", "postgres", "mysql"} {
		assert.Contains(t, out, "  "+name+": ")
	}

	out = listPlugins(plugin.PluginTypeMetadata)
	assert.NotContains(t, out, "badger")
}

func TestReleaseCommandRequiresFlags(t *testing.T) {
	cmd := releaseCommand()
	for _, name := range []string{"campaign", "tx", "caller"} {
		flag := cmd.Flags().Lookup(name)
		if assert.NotNil(t, flag, name) {
			assert.Contains(t, flag.Annotations, cobra.BashCompOneRequiredFlag)
		}
	}
	assert.NotNil(t, cmd.Flags().Lookup("milestone"))
}
