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

// Package almoner reconciles a campaign funding ledger with the off-chain
// campaign store. The Engine ties the ledger reader, the store, the
// donation reconciler, the withdrawal coordinator and the event fanout
// together behind a single API.
package almoner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/almoner/database"
	"github.com/blinklabs-io/almoner/event"
	"github.com/blinklabs-io/almoner/internal/keylock"
	"github.com/blinklabs-io/almoner/ledger"
	"github.com/blinklabs-io/almoner/realtime"
	"github.com/blinklabs-io/almoner/reconcile"
	"github.com/blinklabs-io/almoner/withdrawal"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEngineNotStarted = errors.New("engine not started")
	ErrEngineStarted    = errors.New("engine already started")
)

type Engine struct {
	config        Config
	logger        *slog.Logger
	db            *database.Database
	eventBus      *event.EventBus
	ledger        ledger.Reader
	memLedger     *ledger.MemoryLedger
	locks         *keylock.KeyLock[uint64]
	reconciler    *reconcile.Reconciler
	coordinator   *withdrawal.Coordinator
	hub           *realtime.Hub
	watcher       *ledger.Watcher
	shutdownFuncs []func(context.Context) error
	mu            sync.RWMutex
	started       bool
	stopped       bool
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &Engine{
		config:   cfg,
		logger:   cfg.logger.With("component", "engine"),
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		locks:    keylock.New[uint64](),
	}
	return e, nil
}

// Start opens the store, connects to the ledger and starts the background
// components. It does not block.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return ErrEngineStarted
	}
	// Configure tracing
	if e.config.tracing {
		if err := e.setupTracing(ctx); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:        e.config.dataDir,
		Logger:         e.config.logger,
		PromRegistry:   e.config.promRegistry,
		MetadataPlugin: e.config.metadataPlugin,
		BlobPlugin:     e.config.blobPlugin,
		Dsn:            e.config.databaseDsn,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	e.db = db
	// Connect to ledger
	base, source, contract, err := e.openLedger(ctx)
	if err != nil {
		return err
	}
	retryOpts := []ledger.RetryReaderOptionFunc{
		ledger.WithLogger(e.config.logger),
		ledger.WithPromRegistry(e.config.promRegistry),
	}
	if e.config.ledgerTimeout > 0 {
		retryOpts = append(retryOpts, ledger.WithTimeout(e.config.ledgerTimeout))
	}
	if e.config.ledgerMaxAttempts > 0 {
		retryOpts = append(retryOpts, ledger.WithMaxAttempts(e.config.ledgerMaxAttempts))
	}
	e.ledger = ledger.NewRetryReader(base, retryOpts...)
	// Load reconciler and withdrawal coordinator
	e.reconciler, err = reconcile.New(reconcile.Config{
		Logger:       e.config.logger,
		PromRegistry: e.config.promRegistry,
		Database:     e.db,
		Ledger:       e.ledger,
		EventBus:     e.eventBus,
		Locks:        e.locks,
	})
	if err != nil {
		return err
	}
	e.coordinator, err = withdrawal.New(withdrawal.Config{
		Logger:       e.config.logger,
		PromRegistry: e.config.promRegistry,
		Database:     e.db,
		Ledger:       e.ledger,
		Reconciler:   e.reconciler,
		EventBus:     e.eventBus,
		Locks:        e.locks,
		Operators:    e.config.operators,
	})
	if err != nil {
		return err
	}
	// Start real-time hub
	e.hub = realtime.NewHub(realtime.HubConfig{
		Logger:       e.config.logger,
		PromRegistry: e.config.promRegistry,
		EventBus:     e.eventBus,
	})
	if err := e.hub.Start(); err != nil {
		return err
	}
	// Start ledger watcher
	if e.config.watcher && source != nil && contract != "" {
		e.watcher, err = ledger.NewWatcher(ledger.WatcherConfig{
			Logger:        e.config.logger,
			PromRegistry:  e.config.promRegistry,
			Database:      e.db,
			Source:        source,
			OnDonation:    e.watchDonation,
			OnWithdrawal:  e.coordinator.ReconcileTransfer,
			Contract:      contract,
			Confirmations: e.config.confirmations,
			PollInterval:  e.config.pollInterval,
			StartBlock:    e.config.startBlock,
		})
		if err != nil {
			return err
		}
		if err := e.watcher.Start(); err != nil {
			return err
		}
	}
	e.started = true
	e.logger.Info(
		"engine started",
		"run_mode", e.config.runMode,
		"contract", contract,
	)
	return nil
}

// openLedger returns the base ledger reader, the log source for the watcher
// and the contract address the watcher filters on
func (e *Engine) openLedger(ctx context.Context) (ledger.Reader, ledger.LogSource, string, error) {
	contract := e.config.contractAddress
	if e.config.ledgerReader != nil {
		if contract == "" {
			if c, ok := e.config.ledgerReader.(interface{ Contract() common.Address }); ok {
				contract = c.Contract().Hex()
			}
		}
		if mem, ok := e.config.ledgerReader.(*ledger.MemoryLedger); ok {
			e.memLedger = mem
		}
		return e.config.ledgerReader, e.config.logSource, contract, nil
	}
	if e.config.isDevMode() {
		mem := ledger.NewMemoryLedger()
		e.memLedger = mem
		if contract == "" {
			contract = mem.Contract().Hex()
		}
		e.logger.Warn(
			"dev mode: using in-memory ledger",
			)
		return mem, mem, contract, nil
	}
	eth, err := ledger.Dial(ctx, e.config.ledgerRpcUrl, contract)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to connect to ledger: %w", err)
	}
	e.shutdownFuncs = append(e.shutdownFuncs, func(context.Context) error {
		eth.Close()
		return nil
	})
	return eth, eth, contract, nil
}

// watchDonation applies a donation seen by the ledger watcher. Donations
// to campaigns without registered metadata are skipped.
func (e *Engine) watchDonation(ctx context.Context, t ledger.Transfer) error {
	_, err := e.reconciler.Reconcile(ctx, reconcile.Donation{
		CampaignID:  t.CampaignID,
		Donor:       t.Account,
		Amount:      t.Amount,
		TxHash:      t.TxHash,
		BlockNumber: t.BlockNumber,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCampaignNotRegistered) {
		e.logger.Warn(
			"skipping donation for unregistered campaign",
				"campaign_id", t.CampaignID,
			"tx_hash", t.TxHash,
		)
		return nil
	}
	return err
}

// Stop shuts the engine down. It is safe to call more than once.
func (e *Engine) Stop() error {
	var err error
	e.shutdownOnce.Do(func() {
		err = e.shutdown()
	})
	return err
}

func (e *Engine) shutdown() error {
	shutdownTimeout := 30 * time.Second
	if e.config.shutdownTimeout > 0 {
		shutdownTimeout = e.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	e.mu.Lock()
	e.stopped = true
	e.started = false
	e.mu.Unlock()

	var err error
	e.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	e.logger.Debug("shutdown phase 1: stopping ledger watcher")
	if e.watcher != nil {
		e.watcher.Stop()
	}

	// Phase 2: Disconnect observers
	e.logger.Debug("shutdown phase 2: disconnecting observers")
	if e.hub != nil {
		e.hub.Stop()
	}
	if e.eventBus != nil {
		e.eventBus.Stop()
	}

	// Phase 3: Close database
	e.logger.Debug("shutdown phase 3: closing database")
	if e.db != nil {
		if closeErr := e.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	e.logger.Debug("shutdown phase 4: cleanup resources")
	for _, fn := range e.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	e.shutdownFuncs = nil

	e.logger.Debug("graceful shutdown complete")
	return err
}

func (e *Engine) ready() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started {
		return ErrEngineNotStarted
	}
	return nil
}

// Hub returns the real-time websocket hub
func (e *Engine) Hub() *realtime.Hub {
	return e.hub
}

// EventBus returns the engine event bus
func (e *Engine) EventBus() *event.EventBus {
	return e.eventBus
}

// MemoryLedger returns the in-memory ledger in dev mode, or nil
func (e *Engine) MemoryLedger() *ledger.MemoryLedger {
	return e.memLedger
}

// PollLedger runs a single watcher poll and returns the block processed up to
func (e *Engine) PollLedger(ctx context.Context) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if e.watcher == nil {
		return 0, errors.New("ledger watcher disabled")
	}
	return e.watcher.Poll(ctx)
}
