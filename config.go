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

package almoner

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/blinklabs-io/almoner/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	RunModeServe = "serve"
	RunModeDev   = "dev"
)

type Config struct {
	promRegistry      prometheus.Registerer
	logger            *slog.Logger
	ledgerReader      ledger.Reader
	logSource         ledger.LogSource
	dataDir           string
	blobPlugin        string
	metadataPlugin    string
	databaseDsn       string
	ledgerRpcUrl      string
	contractAddress   string
	runMode           string
	operators         []string
	ledgerTimeout     time.Duration
	ledgerMaxAttempts uint64
	confirmations     uint64
	pollInterval      time.Duration
	startBlock        uint64
	shutdownTimeout   time.Duration
	watcher           bool
	tracing           bool
	tracingStdout     bool
}

// isDevMode returns true if running in development mode
func (c *Config) isDevMode() bool {
	return c.runMode == RunModeDev
}

func (c *Config) validate() error {
	switch c.runMode {
	case "", RunModeServe, RunModeDev:
	default:
		return fmt.Errorf("unknown run mode: %s", c.runMode)
	}
	if c.ledgerReader == nil && !c.isDevMode() {
		if c.ledgerRpcUrl == "" {
			return errors.New("ledger RPC URL is required outside of dev mode")
		}
	}
	if c.contractAddress != "" && !common.IsHexAddress(c.contractAddress) {
		return fmt.Errorf("invalid contract address: %q", c.contractAddress)
	}
	if c.ledgerReader == nil && !c.isDevMode() && c.contractAddress == "" {
		return errors.New("contract address is required outside of dev mode")
	}
	for _, op := range c.operators {
		if _, err := campaign.NormalizeAddress(op); err != nil {
			return fmt.Errorf("operator: %w", err)
		}
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the engine config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new engine config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		runMode: RunModeServe,
		watcher: true,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin used for the ledger log archive
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithDatabaseDsn specifies the connection string for network metadata plugins
func WithDatabaseDsn(dsn string) ConfigOptionFunc {
	return func(c *Config) {
		c.databaseDsn = dsn
	}
}

// WithLedgerRpcUrl specifies the JSON-RPC endpoint of the ledger
func WithLedgerRpcUrl(url string) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerRpcUrl = url
	}
}

// WithContractAddress specifies the campaign contract address
func WithContractAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.contractAddress = addr
	}
}

// WithLedger uses the provided ledger reader and log source instead of
// dialing an RPC endpoint. The source may be nil to run without a watcher.
func WithLedger(reader ledger.Reader, source ledger.LogSource) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerReader = reader
		c.logSource = source
	}
}

// WithLedgerTimeout specifies the timeout for a single ledger read attempt
func WithLedgerTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerTimeout = timeout
	}
}

// WithLedgerMaxAttempts specifies how many times a ledger read is attempted
func WithLedgerMaxAttempts(attempts uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerMaxAttempts = attempts
	}
}

// WithConfirmations specifies how many blocks the watcher stays behind the ledger head
func WithConfirmations(confirmations uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.confirmations = confirmations
	}
}

// WithPollInterval specifies how often the watcher polls the ledger
func WithPollInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

// WithStartBlock specifies the block the watcher starts from when no cursor is stored
func WithStartBlock(block uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.startBlock = block
	}
}

// WithWatcher enables or disables the ledger watcher
func WithWatcher(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.watcher = enabled
	}
}

// WithOperators specifies the addresses allowed to record late withdrawal confirmations
func WithOperators(operators ...string) ConfigOptionFunc {
	return func(c *Config) {
		c.operators = operators
	}
}

// WithRunMode sets the run mode. Dev mode uses an in-memory ledger when no other ledger is provided
func WithRunMode(mode string) ConfigOptionFunc {
	return func(c *Config) {
		c.runMode = mode
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout sets the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
