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
	"errors"
	"fmt"
	"strings"

	"github.com/blinklabs-io/almoner/database/plugin/metadata/gormstore"
	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var ErrMissingDsn = errors.New("mysql metadata store requires a DSN")

// mysqlErrUnknownDatabase is returned by the server when the schema is missing
const mysqlErrUnknownDatabase = 1049

// MetadataStoreMysql stores metadata in MySQL
type MetadataStoreMysql struct {
	gormstore.Store
	config gormstore.Config
	dsn    string
}

// New creates an unstarted MySQL metadata store
func New(dsn string, config gormstore.Config) *MetadataStoreMysql {
	config.Dialect = "mysql"
	config.Pool = gormstore.ServerPool
	config.PrepareStmt = true
	return &MetadataStoreMysql{
		config: config,
		dsn:    strings.TrimSpace(dsn),
	}
}

// parseDsn validates the DSN and enables time parsing, which the models need
func (d *MetadataStoreMysql) parseDsn() (*mysql.Config, error) {
	if d.dsn == "" {
		return nil, ErrMissingDsn
	}
	cfg, err := mysql.ParseDSN(d.dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg, nil
}

// Start implements the plugin.Plugin interface. A missing schema is created.
func (d *MetadataStoreMysql) Start() error {
	cfg, err := d.parseDsn()
	if err != nil {
		return err
	}
	store, err := gormstore.Open(gormmysql.Open(cfg.FormatDSN()), d.config)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) || mysqlErr.Number != mysqlErrUnknownDatabase {
			return err
		}
		if err := createDatabase(cfg); err != nil {
			return err
		}
		store, err = gormstore.Open(gormmysql.Open(cfg.FormatDSN()), d.config)
		if err != nil {
			return err
		}
	}
	if d.config.Logger != nil {
		d.config.Logger.Info(
			"connected to mysql metadata store",
			"database", cfg.DBName,
		)
	}
	d.Store = store
	return nil
}

func createDatabase(cfg *mysql.Config) error {
	if cfg.DBName == "" {
		return errors.New("mysql dsn does not name a database")
	}
	adminCfg := cfg.Clone()
	adminCfg.DBName = ""
	adminDb, err := gorm.Open(gormmysql.Open(adminCfg.FormatDSN()), &gorm.Config{})
	if err != nil {
		return err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return err
	}
	defer sqlAdminDb.Close()
	return adminDb.Exec(
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.DBName),
	).Error
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}
