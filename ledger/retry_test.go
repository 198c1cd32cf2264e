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

package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blinklabs-io/almoner/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyReader fails a fixed number of calls before delegating
type flakyReader struct {
	ledger.Reader
	failures atomic.Int32
	calls    atomic.Int32
	err      error
}

func (f *flakyReader) Balance(ctx context.Context, id uint64) (*big.Int, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return nil, f.err
	}
	return f.Reader.Balance(ctx, id)
}

func (f *flakyReader) LookupTransfer(ctx context.Context, txHash string) (*ledger.Transfer, error) {
	f.calls.Add(1)
	return f.Reader.LookupTransfer(ctx, txHash)
}

func newFlaky(failures int32, err error) (*flakyReader, uint64) {
	mem := ledger.NewMemoryLedger()
	id := mem.CreateCampaign(big.NewInt(1000))
	_, _ = mem.Donate(id, "0x1111111111111111111111111111111111111111", big.NewInt(250))
	f := &flakyReader{Reader: mem, err: err}
	f.failures.Store(failures)
	return f, id
}

func TestRetryReaderRecovers(t *testing.T) {
	reg := prometheus.NewRegistry()
	flaky, id := newFlaky(2, ledger.ErrLedgerUnavailable)
	r := ledger.NewRetryReader(
		flaky,
		ledger.WithMaxAttempts(4),
		ledger.WithInitialInterval(time.Millisecond),
		ledger.WithPromRegistry(reg),
	)
	balance, err := r.Balance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "250", balance.String())
	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.InDelta(t, 2, counterTotal(t, reg, "almoner_ledger_retries_total"), 0)
}

func TestRetryReaderGivesUp(t *testing.T) {
	flaky, id := newFlaky(100, ledger.ErrLedgerUnavailable)
	r := ledger.NewRetryReader(
		flaky,
		ledger.WithMaxAttempts(3),
		ledger.WithInitialInterval(time.Millisecond),
	)
	balance, err := r.Balance(context.Background(), id)
	require.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
	assert.Nil(t, balance)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestRetryReaderPermanentError(t *testing.T) {
	flaky, _ := newFlaky(0, nil)
	r := ledger.NewRetryReader(
		flaky,
		ledger.WithMaxAttempts(5),
		ledger.WithInitialInterval(time.Millisecond),
	)
	_, err := r.LookupTransfer(context.Background(), "0x1234")
	require.ErrorIs(t, err, ledger.ErrTransferNotFound)
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestRetryReaderOtherErrorNotRetried(t *testing.T) {
	boom := errors.New("boom")
	flaky, id := newFlaky(10, boom)
	r := ledger.NewRetryReader(
		flaky,
		ledger.WithMaxAttempts(5),
		ledger.WithInitialInterval(time.Millisecond),
	)
	_, err := r.Balance(context.Background(), id)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestRetryReaderCancelled(t *testing.T) {
	flaky, id := newFlaky(100, ledger.ErrLedgerUnavailable)
	r := ledger.NewRetryReader(
		flaky,
		ledger.WithMaxAttempts(100),
		ledger.WithInitialInterval(time.Hour),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Balance(ctx, id)
	require.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
}

func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
