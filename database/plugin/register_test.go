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

package plugin_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/almoner/database/plugin"
)

type stubStore struct {
	opts    plugin.Options
	started bool
}

func (s *stubStore) Start() error {
	s.started = true
	return nil
}

func (s *stubStore) Stop() error { return nil }

func register(t *testing.T, pluginType plugin.PluginType, newFunc func(plugin.Options) plugin.Plugin) string {
	t.Helper()
	name := "stub-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               pluginType,
		Name:               name,
		Description:        "stub store",
		NewFromOptionsFunc: newFunc,
	})
	return name
}

func names(entries []plugin.PluginEntry) []string {
	ret := make([]string, 0, len(entries))
	for _, e := range entries {
		ret = append(ret, e.Name)
	}
	return ret
}

func TestRegisterIsScopedByType(t *testing.T) {
	newStub := func(opts plugin.Options) plugin.Plugin { return &stubStore{opts: opts} }
	name := register(t, plugin.PluginTypeBlob, newStub)

	assert.Contains(t, names(plugin.GetPlugins(plugin.PluginTypeBlob)), name)
	assert.NotContains(t, names(plugin.GetPlugins(plugin.PluginTypeMetadata)), name)
	assert.Nil(t, plugin.GetPlugin(plugin.PluginTypeMetadata, name, plugin.Options{}))
}

func TestStartPluginPassesOptions(t *testing.T) {
	newStub := func(opts plugin.Options) plugin.Plugin { return &stubStore{opts: opts} }
	name := register(t, plugin.PluginTypeMetadata, newStub)

	p, err := plugin.StartPlugin(
		plugin.PluginTypeMetadata,
		name,
		plugin.Options{Dsn: "host=db", DataDir: "/var/lib/almoner"},
	)
	require.NoError(t, err)
	stub, ok := p.(*stubStore)
	require.True(t, ok, "unexpected plugin type %T", p)
	assert.True(t, stub.started)
	assert.Equal(t, "host=db", stub.opts.Dsn)
	assert.Equal(t, "/var/lib/almoner", stub.opts.DataDir)
}

func TestStartPluginErrors(t *testing.T) {
	openErr := errors.New("open failed")
	name := register(t, plugin.PluginTypeMetadata, func(plugin.Options) plugin.Plugin {
		return plugin.NewErrorPlugin(openErr)
	})

	_, err := plugin.StartPlugin(plugin.PluginTypeMetadata, name, plugin.Options{})
	require.ErrorIs(t, err, openErr)
	assert.Contains(t, err.Error(), "metadata plugin")

	_, err = plugin.StartPlugin(plugin.PluginTypeBlob, "missing-"+t.Name(), plugin.Options{})
	assert.ErrorContains(t, err, "not found")
}

func TestPluginTypeName(t *testing.T) {
	assert.Equal(t, "metadata", plugin.PluginTypeName(plugin.PluginTypeMetadata))
	assert.Equal(t, "blob", plugin.PluginTypeName(plugin.PluginTypeBlob))
	assert.Equal(t, "unknown", plugin.PluginTypeName(plugin.PluginType(99)))
}
