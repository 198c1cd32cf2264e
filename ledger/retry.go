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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultMaxAttempts     = 4
	DefaultInitialInterval = 200 * time.Millisecond
)

type retryMetrics struct {
	retries     *prometheus.CounterVec
	unavailable *prometheus.CounterVec
}

func (m *retryMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.retries = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "almoner_ledger_retries_total",
			Help: "total number of retried ledger reads",
		},
		[]string{"method"},
	)
	m.unavailable = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "almoner_ledger_unavailable_total",
			Help: "total number of ledger reads that failed after all attempts",
		},
		[]string{"method"},
	)
}

// RetryReader wraps a Reader with a per-attempt timeout and bounded
// exponential backoff. Only ErrLedgerUnavailable failures are retried.
type RetryReader struct {
	reader          Reader
	logger          *slog.Logger
	metrics         *retryMetrics
	timeout         time.Duration
	initialInterval time.Duration
	maxAttempts     uint64
}

type RetryReaderOptionFunc func(*RetryReader)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) RetryReaderOptionFunc {
	return func(r *RetryReader) {
		r.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(registry prometheus.Registerer) RetryReaderOptionFunc {
	return func(r *RetryReader) {
		if registry != nil {
			r.metrics = &retryMetrics{}
			r.metrics.init(registry)
		}
	}
}

// WithTimeout specifies the timeout of a single ledger read attempt
func WithTimeout(timeout time.Duration) RetryReaderOptionFunc {
	return func(r *RetryReader) {
		r.timeout = timeout
	}
}

// WithMaxAttempts specifies how many times a read is attempted in total
func WithMaxAttempts(attempts uint64) RetryReaderOptionFunc {
	return func(r *RetryReader) {
		r.maxAttempts = attempts
	}
}

// WithInitialInterval specifies the delay before the first retry
func WithInitialInterval(interval time.Duration) RetryReaderOptionFunc {
	return func(r *RetryReader) {
		r.initialInterval = interval
	}
}

func NewRetryReader(reader Reader, opts ...RetryReaderOptionFunc) *RetryReader {
	r := &RetryReader{
		reader:          reader,
		timeout:         DefaultTimeout,
		maxAttempts:     DefaultMaxAttempts,
		initialInterval: DefaultInitialInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	r.logger = r.logger.With("component", "ledger")
	if r.maxAttempts == 0 {
		r.maxAttempts = 1
	}
	return r
}

func (r *RetryReader) backOff(ctx context.Context) backoff.BackOff {
	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = r.initialInterval
	expBackOff.MaxElapsedTime = 0
	return backoff.WithContext(
		backoff.WithMaxRetries(expBackOff, r.maxAttempts-1),
		ctx,
	)
}

func retryRead[T any](
	ctx context.Context,
	r *RetryReader,
	method string,
	fn func(context.Context) (T, error),
) (T, error) {
	var ret T
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		val, err := fn(attemptCtx)
		if err != nil {
			if !errors.Is(err, ErrLedgerUnavailable) {
				return backoff.Permanent(err)
			}
			return err
		}
		ret = val
		return nil
	}
	notify := func(err error, delay time.Duration) {
		if r.metrics != nil {
			r.metrics.retries.WithLabelValues(method).Inc()
		}
		r.logger.Debug(
			"ledger read failed, retrying",
			"method", method,
			"delay", delay,
			"error", err,
		)
	}
	err := backoff.RetryNotify(operation, r.backOff(ctx), notify)
	if err == nil {
		return ret, nil
	}
	var zero T
	if ctx.Err() != nil && !errors.Is(err, ErrLedgerUnavailable) {
		err = fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	if !errors.Is(err, ErrLedgerUnavailable) {
		return zero, err
	}
	if r.metrics != nil {
		r.metrics.unavailable.WithLabelValues(method).Inc()
	}
	r.logger.Warn(
		"ledger unavailable",
		"method", method,
		"error", err,
	)
	return zero, err
}

func (r *RetryReader) Balance(ctx context.Context, campaignID uint64) (*big.Int, error) {
	return retryRead(ctx, r, "getBalance", func(ctx context.Context) (*big.Int, error) {
		return r.reader.Balance(ctx, campaignID)
	})
}

func (r *RetryReader) Exists(ctx context.Context, campaignID uint64) (bool, error) {
	return retryRead(ctx, r, "exists", func(ctx context.Context) (bool, error) {
		return r.reader.Exists(ctx, campaignID)
	})
}

func (r *RetryReader) Goal(ctx context.Context, campaignID uint64) (*big.Int, error) {
	return retryRead(ctx, r, "getGoal", func(ctx context.Context) (*big.Int, error) {
		return r.reader.Goal(ctx, campaignID)
	})
}

func (r *RetryReader) NextCampaignID(ctx context.Context) (uint64, error) {
	return retryRead(ctx, r, "nextCampaignId", func(ctx context.Context) (uint64, error) {
		return r.reader.NextCampaignID(ctx)
	})
}

func (r *RetryReader) LookupTransfer(ctx context.Context, txHash string) (*Transfer, error) {
	return retryRead(ctx, r, "lookupTransfer", func(ctx context.Context) (*Transfer, error) {
		return r.reader.LookupTransfer(ctx, txHash)
	})
}
