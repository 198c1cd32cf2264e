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

package badger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/almoner/database/types"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Store archives raw ledger data in badger. Without a data directory the
// store is kept in memory only.
type Store struct {
	db             *badger.DB
	logger         *slog.Logger
	gcStop         chan struct{}
	gcDone         chan struct{}
	dataDir        string
	gcInterval     time.Duration
	blockCacheSize uint64
	indexCacheSize uint64
}

type storeTxn struct {
	store *Store
	tx    *badger.Txn
	done  bool
}

func (t *storeTxn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Commit()
}

func (t *storeTxn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.tx.Discard()
	return nil
}

// New opens the badger store and starts value log GC for disk-backed stores
func New(opts ...StoreOptionFunc) (*Store, error) {
	s := &Store{
		gcInterval:     DefaultGcInterval,
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var badgerOpts badger.Options
	if s.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		blobDir := filepath.Join(s.dataDir, "blob")
		if err := os.MkdirAll(blobDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create blob dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(blobDir).
			WithBlockCacheSize(int64(s.blockCacheSize)). //nolint:gosec
			WithIndexCacheSize(int64(s.indexCacheSize)). //nolint:gosec
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger(s.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	s.db = db
	if s.dataDir != "" && s.gcInterval > 0 {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.valueLogGc()
	}
	return s, nil
}

func (s *Store) valueLogGc() {
	defer close(s.gcDone)
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
		}
		// Keep collecting while each pass rewrites a file
		for {
			err := s.db.RunValueLogGC(0.5)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("blob value log GC failed", "error", err)
			}
			break
		}
	}
}

// Start implements the plugin.Plugin interface. The store is opened by New.
func (s *Store) Start() error {
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *Store) Stop() error {
	return s.Close()
}

func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

func (s *Store) NewTransaction(update bool) types.Txn {
	return &storeTxn{store: s, tx: s.db.NewTransaction(update)}
}

func (s *Store) txn(txn types.Txn) (*storeTxn, error) {
	if txn == nil {
		return nil, types.ErrNilTxn
	}
	t, ok := txn.(*storeTxn)
	if !ok || t.store != s {
		return nil, types.ErrTxnWrongType
	}
	if t.done {
		return nil, errors.New("transaction already finished")
	}
	return t, nil
}

func (s *Store) Get(txn types.Txn, key []byte) ([]byte, error) {
	t, err := s.txn(txn)
	if err != nil {
		return nil, err
	}
	item, err := t.tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *Store) Set(txn types.Txn, key []byte, val []byte) error {
	t, err := s.txn(txn)
	if err != nil {
		return err
	}
	return t.tx.Set(key, val)
}

// Scan calls fn with a copy of every key and value under prefix, in key
// order. A non-nil error from fn stops the scan and is returned.
func (s *Store) Scan(
	txn types.Txn,
	prefix []byte,
	fn func(key []byte, val []byte) error,
) error {
	t, err := s.txn(txn)
	if err != nil {
		return err
	}
	iter := t.tx.NewIterator(badger.IteratorOptions{
		Prefix:         prefix,
		PrefetchValues: true,
		PrefetchSize:   16,
	})
	defer iter.Close()
	for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
		item := iter.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}
