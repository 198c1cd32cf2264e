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

// Package gormstore implements the metadata queries shared by every
// gorm-backed metadata plugin. Dialect specific setup lives in the plugins.
package gormstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/almoner/database/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Config holds the settings shared by every gorm backed metadata plugin
type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// Dialect is reported in the db_name label of the pool metrics
	Dialect     string
	Pool        PoolConfig
	PrepareStmt bool
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerPool is the pool used for networked database servers
var ServerPool = PoolConfig{
	MaxOpenConns:    100,
	MaxIdleConns:    10,
	ConnMaxLifetime: time.Hour,
}

type Store struct {
	db           *gorm.DB
	promRegistry prometheus.Registerer
	statsCol     prometheus.Collector
}

// Open connects with the given dialector, applies the pool settings,
// registers pool metrics, installs tracing and creates table schemas
func Open(dialector gorm.Dialector, cfg Config) (Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		PrepareStmt:            cfg.PrepareStmt,
	})
	if err != nil {
		return Store{}, err
	}
	sqlDb, err := db.DB()
	if err != nil {
		return Store{}, fmt.Errorf("get database handle: %w", err)
	}
	sqlDb.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	sqlDb.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	sqlDb.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
	s := Store{db: db}
	if cfg.PromRegistry != nil {
		col := collectors.NewDBStatsCollector(sqlDb, "almoner_metadata_"+cfg.Dialect)
		if err := cfg.PromRegistry.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				_ = sqlDb.Close()
				return Store{}, err
			}
			cfg.Logger.Warn("metadata pool metrics already registered", "dialect", cfg.Dialect)
		} else {
			s.promRegistry = cfg.PromRegistry
			s.statsCol = col
		}
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return Store{}, errors.Join(err, s.Close())
	}
	for _, model := range models.MigrateModels {
		cfg.Logger.Debug(fmt.Sprintf("creating table: %T", model))
		if err := db.AutoMigrate(model); err != nil {
			return Store{}, errors.Join(err, s.Close())
		}
	}
	return s, nil
}

// DB returns the underlying gorm database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close unregisters pool metrics and closes the connection pool
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.statsCol != nil {
		s.promRegistry.Unregister(s.statsCol)
		s.statsCol = nil
	}
	sqlDb, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDb.Close()
}

func (s *Store) conn(txn *gorm.DB) *gorm.DB {
	if txn == nil {
		return s.db
	}
	return txn
}
