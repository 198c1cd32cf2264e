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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/almoner/database/plugin"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "almoner.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin      = "badger"
	DefaultMetadataPlugin  = "sqlite"
	DefaultShutdownTimeout = 30 * time.Second
	EnvPrefix              = "almoner"
)

// RunMode represents the operational mode of the engine
type RunMode string

const (
	RunModeServe RunMode = "serve" // Connect to a ledger RPC endpoint (default)
	RunModeDev   RunMode = "dev"   // In-memory ledger, no RPC endpoint
)

// Valid returns true if the RunMode is a known valid mode
func (m RunMode) Valid() bool {
	switch m {
	case RunModeServe, RunModeDev, "":
		return true
	default:
		return false
	}
}

func (m RunMode) IsDevMode() bool {
	return m == RunModeDev
}

type Config struct {
	DatabasePath      string        `yaml:"databasePath"      split_words:"true"`
	MetadataPlugin    string        `yaml:"metadataPlugin"    split_words:"true"`
	BlobPlugin        string        `yaml:"blobPlugin"        split_words:"true"`
	DatabaseDsn       string        `yaml:"databaseDsn"       split_words:"true"`
	LedgerRpcUrl      string        `yaml:"ledgerRpcUrl"      split_words:"true"`
	ContractAddress   string        `yaml:"contractAddress"   split_words:"true"`
	BindAddr          string        `yaml:"bindAddr"          split_words:"true"`
	RunMode           RunMode       `yaml:"runMode"           split_words:"true"`
	Operators         []string      `yaml:"operators"`
	LedgerTimeout     time.Duration `yaml:"ledgerTimeout"     split_words:"true"`
	PollInterval      time.Duration `yaml:"pollInterval"      split_words:"true"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"   split_words:"true"`
	LedgerMaxAttempts uint64        `yaml:"ledgerMaxAttempts" split_words:"true"`
	Confirmations     uint64        `yaml:"confirmations"`
	StartBlock        uint64        `yaml:"startBlock"        split_words:"true"`
	RealtimePort      uint          `yaml:"realtimePort"      split_words:"true"`
	MetricsPort       uint          `yaml:"metricsPort"       split_words:"true"`
	Tracing           bool          `yaml:"tracing"`
	TracingStdout     bool          `yaml:"tracingStdout"     split_words:"true"`
	Debug             bool          `yaml:"debug"`
}

// Validate checks values that cannot be checked by the yaml and env decoders
func (c *Config) Validate() error {
	if !c.RunMode.Valid() {
		return fmt.Errorf(
			"invalid runMode: %q (must be 'serve' or 'dev')",
			c.RunMode,
		)
	}
	if !pluginKnown(plugin.PluginTypeMetadata, c.MetadataPlugin) {
		return fmt.Errorf("unknown metadata plugin: %q", c.MetadataPlugin)
	}
	if c.BlobPlugin != "none" && !pluginKnown(plugin.PluginTypeBlob, c.BlobPlugin) {
		return fmt.Errorf("unknown blob plugin: %q", c.BlobPlugin)
	}
	if !c.RunMode.IsDevMode() {
		if c.LedgerRpcUrl == "" {
			return errors.New("ledgerRpcUrl is required unless runMode is 'dev'")
		}
		if c.ContractAddress == "" {
			return errors.New("contractAddress is required unless runMode is 'dev'")
		}
	}
	return nil
}

// pluginKnown reports whether name is a registered plugin. Names are not
// checked when no plugin of the type has been registered.
func pluginKnown(pluginType plugin.PluginType, name string) bool {
	plugins := plugin.GetPlugins(pluginType)
	if len(plugins) == 0 {
		return true
	}
	for _, p := range plugins {
		if p.Name == name {
			return true
		}
	}
	return false
}

func defaultConfig() *Config {
	return &Config{
		DatabasePath:      ".almoner",
		MetadataPlugin:    DefaultMetadataPlugin,
		BlobPlugin:        DefaultBlobPlugin,
		BindAddr:          "0.0.0.0",
		RunMode:           RunModeServe,
		LedgerTimeout:     5 * time.Second,
		LedgerMaxAttempts: 4,
		PollInterval:      15 * time.Second,
		ShutdownTimeout:   DefaultShutdownTimeout,
		Confirmations:     12,
		RealtimePort:      8081,
		MetricsPort:       12799,
	}
}

var globalConfig = defaultConfig()

// LoadConfig builds the configuration from defaults, the config file and the
// environment, in that order. Without an explicit file ~/.almoner/almoner.yaml
// and /etc/almoner/almoner.yaml are tried.
func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		// Check for config file in this path: ~/.almoner/almoner.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".almoner", "almoner.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		// Try to check for /etc/almoner/almoner.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/almoner/almoner.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		buf, err = decryptIfNeeded(buf)
		if err != nil {
			return nil, fmt.Errorf("error decrypting config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	if err := envconfig.Process(EnvPrefix, globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if globalConfig.RunMode == "" {
		globalConfig.RunMode = RunModeServe
	}
	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
