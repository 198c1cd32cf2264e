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

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/blinklabs-io/almoner/database"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultConfirmations = 12
	DefaultPollInterval  = 5 * time.Second

	initialStep      = uint64(200)
	minStep          = uint64(10)
	maxStep          = uint64(2000)
	successThreshold = 5
)

var ErrWatcherRunning = errors.New("watcher already running")

// TransferHandlerFunc applies a confirmed ledger transfer to the store. A
// returned error stops the current range and it is retried on the next poll.
type TransferHandlerFunc func(context.Context, Transfer) error

type WatcherConfig struct {
	Logger        *slog.Logger
	PromRegistry  prometheus.Registerer
	Database      *database.Database
	Source        LogSource
	OnDonation    TransferHandlerFunc
	OnWithdrawal  TransferHandlerFunc
	Contract      string
	Confirmations uint64
	PollInterval  time.Duration
	StartBlock    uint64
}

type watcherMetrics struct {
	cursor    prometheus.Gauge
	transfers *prometheus.CounterVec
	failures  prometheus.Counter
}

func (m *watcherMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.cursor = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "almoner_watcher_block_number",
		Help: "last ledger block fully processed by the watcher",
	})
	m.transfers = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "almoner_watcher_transfers_total",
			Help: "total number of ledger transfers applied by the watcher",
		},
		[]string{"kind"},
	)
	m.failures = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "almoner_watcher_poll_failures_total",
		Help: "total number of failed watcher polls",
	})
}

// Watcher polls the ledger for contract transfers behind a confirmation
// depth and feeds them to the reconciliation handlers. The cursor only
// advances once every transfer in a range has been applied.
type Watcher struct {
	config       WatcherConfig
	logger       *slog.Logger
	metrics      *watcherMetrics
	contract     common.Address
	cursorKey    string
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
	pollMu       sync.Mutex
	step         uint64
	successCount int
}

func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Database == nil {
		return nil, errors.New("watcher: database is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("watcher: log source is required")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("watcher: invalid contract address: %q", cfg.Contract)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	contract := common.HexToAddress(cfg.Contract)
	w := &Watcher{
		config:    cfg,
		logger:    cfg.Logger.With("component", "watcher"),
		contract:  contract,
		cursorKey: contract.Hex(),
		step:      initialStep,
	}
	if cfg.PromRegistry != nil {
		w.metrics = &watcherMetrics{}
		w.metrics.init(cfg.PromRegistry)
	}
	return w, nil
}

// Start begins polling in the background
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrWatcherRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info(
		"ledger watcher started",
		"contract", w.cursorKey,
		"confirmations", w.config.Confirmations,
	)
	return nil
}

// Stop halts polling and waits for an in-flight poll to finish
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn(
				"ledger poll failed",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll processes the next confirmed block range and returns the new cursor
func (w *Watcher) Poll(ctx context.Context) (uint64, error) {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()
	cursor, err := w.poll(ctx)
	if err != nil {
		w.adjustStepOnFailure()
		if w.metrics != nil {
			w.metrics.failures.Inc()
		}
		return cursor, err
	}
	return cursor, nil
}

func (w *Watcher) poll(ctx context.Context) (uint64, error) {
	db := w.config.Database
	cursor, found, err := db.GetLedgerCursor(w.cursorKey, nil)
	if err != nil {
		return 0, fmt.Errorf("read ledger cursor: %w", err)
	}
	start := w.config.StartBlock
	if found {
		start = cursor + 1
	}
	latest, err := w.config.Source.BlockNumber(ctx)
	if err != nil {
		return cursor, err
	}
	if latest < w.config.Confirmations {
		return cursor, nil
	}
	safe := latest - w.config.Confirmations
	if start > safe {
		return cursor, nil
	}
	end := min(start+w.step-1, safe)
	logs, err := w.config.Source.FilterLogs(
		ctx,
		ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{w.contract},
			Topics:    [][]common.Hash{EventTopics()},
		},
	)
	if err != nil {
		return cursor, err
	}
	slices.SortFunc(logs, func(a, b types.Log) int {
		if a.BlockNumber != b.BlockNumber {
			if a.BlockNumber < b.BlockNumber {
				return -1
			}
			return 1
		}
		return int(a.Index) - int(b.Index) //nolint:gosec
	})
	w.logger.Debug(
		"scanning ledger range",
		"from", start,
		"to", end,
		"logs", len(logs),
	)
	for _, log := range logs {
		if log.Removed {
			continue
		}
		if err := w.handleLog(ctx, log); err != nil {
			return cursor, err
		}
	}
	if err := db.SetLedgerCursor(w.cursorKey, end, nil); err != nil {
		return cursor, fmt.Errorf("store ledger cursor: %w", err)
	}
	w.adjustStepOnSuccess()
	if w.metrics != nil {
		w.metrics.cursor.Set(float64(end))
	}
	return end, nil
}

func (w *Watcher) handleLog(ctx context.Context, log types.Log) error {
	raw, err := json.Marshal(log)
	if err != nil {
		return err
	}
	if err := w.config.Database.ArchiveLedgerLog(log.TxHash.Hex(), log.Index, raw, nil); err != nil {
		return fmt.Errorf("archive ledger log: %w", err)
	}
	transfer, err := DecodeLog(log)
	if err != nil {
		w.logger.Debug(
			"skipping undecodable ledger log",
			"tx_hash", log.TxHash.Hex(),
			"error", err,
		)
		return nil
	}
	var handler TransferHandlerFunc
	switch transfer.Kind {
	case TransferKindDonation:
		handler = w.config.OnDonation
	case TransferKindWithdrawal:
		handler = w.config.OnWithdrawal
	}
	if handler == nil {
		return nil
	}
	if err := handler(ctx, *transfer); err != nil {
		return fmt.Errorf(
			"apply %s %s: %w",
			transfer.Kind,
			transfer.TxHash,
			err,
		)
	}
	if w.metrics != nil {
		w.metrics.transfers.WithLabelValues(transfer.Kind.String()).Inc()
	}
	return nil
}

func (w *Watcher) adjustStepOnSuccess() {
	w.successCount++
	if w.successCount < successThreshold {
		return
	}
	w.successCount = 0
	newStep := min(w.step*3/2, maxStep)
	if newStep > w.step {
		w.logger.Debug("increasing scan step", "from", w.step, "to", newStep)
		w.step = newStep
	}
}

func (w *Watcher) adjustStepOnFailure() {
	w.successCount = 0
	newStep := max(w.step/2, minStep)
	if newStep < w.step {
		w.logger.Debug("decreasing scan step", "from", w.step, "to", newStep)
		w.step = newStep
	}
}

// DecodeArchivedLog decodes a raw log stored by the watcher
func DecodeArchivedLog(raw []byte) (*Transfer, error) {
	var log types.Log
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, err
	}
	return DecodeLog(log)
}
