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

package sqlite

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/almoner/database/plugin/metadata/gormstore"
	"github.com/glebarez/sqlite"
)

const DefaultVacuumInterval = 24 * time.Hour

// memoryDbCounter gives each in-memory store its own shared-cache database
var memoryDbCounter atomic.Uint64

// MetadataStoreSqlite keeps metadata in a SQLite file under the data dir, or
// in memory when no data dir is set
type MetadataStoreSqlite struct {
	gormstore.Store
	config         gormstore.Config
	vacuumTimer    *time.Timer
	dataDir        string
	vacuumInterval time.Duration
	vacuumWg       sync.WaitGroup
	mu             sync.Mutex
	closed         bool
}

// New creates an unstarted SQLite metadata store
func New(dataDir string, config gormstore.Config) *MetadataStoreSqlite {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	config.Dialect = "sqlite"
	// SQLite allows a single writer, so access goes through one connection.
	// Callers must not query outside a transaction they hold open.
	config.Pool = gormstore.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
	return &MetadataStoreSqlite{
		config:         config,
		dataDir:        dataDir,
		vacuumInterval: DefaultVacuumInterval,
	}
}

func (d *MetadataStoreSqlite) dsn() (string, error) {
	if d.dataDir == "" {
		return fmt.Sprintf(
			"file:almoner-%d?mode=memory&cache=shared",
			memoryDbCounter.Add(1),
		), nil
	}
	if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	// WAL journal mode, wait up to 5s on locks
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		filepath.Join(d.dataDir, "metadata.sqlite"),
	), nil
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Start() error {
	dsn, err := d.dsn()
	if err != nil {
		return err
	}
	store, err := gormstore.Open(sqlite.Open(dsn), d.config)
	if err != nil {
		return err
	}
	d.Store = store
	if d.dataDir != "" {
		d.scheduleVacuum()
	}
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Stop() error {
	return d.Close()
}

func (d *MetadataStoreSqlite) scheduleVacuum() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.vacuumTimer = time.AfterFunc(d.vacuumInterval, d.vacuum)
}

func (d *MetadataStoreSqlite) vacuum() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.vacuumWg.Add(1)
	d.mu.Unlock()
	defer d.scheduleVacuum()
	defer d.vacuumWg.Done()
	d.config.Logger.Debug("running vacuum on sqlite metadata database")
	if err := d.DB().Exec("VACUUM").Error; err != nil {
		d.config.Logger.Error(
			"failed to free unused space in metadata store",
			"error", err,
		)
	}
}

// Close stops the vacuum timer, waits for a running vacuum and closes the database
func (d *MetadataStoreSqlite) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	if d.vacuumTimer != nil {
		d.vacuumTimer.Stop()
	}
	d.mu.Unlock()
	d.vacuumWg.Wait()
	return d.Store.Close()
}
