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

package postgres

import (
	"errors"
	"strings"

	"github.com/blinklabs-io/almoner/database/plugin/metadata/gormstore"
	"gorm.io/driver/postgres"
)

var ErrMissingDsn = errors.New("postgres metadata store requires a DSN")

// MetadataStorePostgres stores metadata in Postgres
type MetadataStorePostgres struct {
	gormstore.Store
	config gormstore.Config
	dsn    string
}

// New creates an unstarted Postgres metadata store. The connection is
// established by Start.
func New(dsn string, config gormstore.Config) *MetadataStorePostgres {
	config.Dialect = "postgres"
	config.Pool = gormstore.ServerPool
	config.PrepareStmt = true
	return &MetadataStorePostgres{
		config: config,
		dsn:    strings.TrimSpace(dsn),
	}
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	if d.dsn == "" {
		return ErrMissingDsn
	}
	store, err := gormstore.Open(postgres.Open(d.dsn), d.config)
	if err != nil {
		return err
	}
	if d.config.Logger != nil {
		d.config.Logger.Info("connected to postgres metadata store")
	}
	d.Store = store
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}
