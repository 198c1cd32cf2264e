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

package database

import (
	"errors"
	"io"
	"log/slog"

	"github.com/blinklabs-io/almoner/database/plugin"
	"github.com/blinklabs-io/almoner/database/plugin/blob"
	"github.com/blinklabs-io/almoner/database/plugin/metadata"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultMetadataPlugin = "sqlite"
	DefaultBlobPlugin     = "badger"
	// BlobPluginNone disables the blob archive
	BlobPluginNone = "none"
)

type Config struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	DataDir        string
	MetadataPlugin string
	BlobPlugin     string
	Dsn            string
}

type Database struct {
	logger   *slog.Logger
	blob     blob.BlobStore
	metadata metadata.MetadataStore
	config   *Config
}

// Blob returns the underling blob store instance, or nil when the archive is disabled
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.config.DataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// New creates a new database instance with optional persistence using the provided data directory
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		config.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if config.MetadataPlugin == "" {
		config.MetadataPlugin = DefaultMetadataPlugin
	}
	if config.BlobPlugin == "" {
		config.BlobPlugin = DefaultBlobPlugin
	}
	logger := config.Logger.With("component", "database")
	pluginOpts := plugin.Options{
		Logger:       logger,
		PromRegistry: config.PromRegistry,
		DataDir:      config.DataDir,
		Dsn:          config.Dsn,
	}
	metadataDb, err := metadata.New(config.MetadataPlugin, pluginOpts)
	if err != nil {
		return nil, err
	}
	db := &Database{
		logger:   logger,
		metadata: metadataDb,
		config:   config,
	}
	if config.BlobPlugin != BlobPluginNone {
		blobDb, err := blob.New(config.BlobPlugin, pluginOpts)
		if err != nil {
			_ = metadataDb.Close()
			return nil, err
		}
		db.blob = blobDb
	}
	return db, nil
}
