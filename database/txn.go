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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blinklabs-io/almoner/database/types"
	"gorm.io/gorm"
)

type txnScope uint8

const (
	scopeMetadata txnScope = 1 << iota
	scopeBlob
)

// Txn spans the metadata and blob stores. On commit the blob side goes
// first, so archived ledger data never goes missing behind committed rows.
type Txn struct {
	db        *Database
	blobTxn   types.Txn
	metadata  *gorm.DB
	readWrite bool
	done      bool
}

// Update runs fn in a read-write transaction over both stores. The
// transaction commits when fn returns nil and is rolled back otherwise.
// Cancelling ctx aborts the metadata transaction.
func (d *Database) Update(ctx context.Context, fn func(*Txn) error) error {
	return d.run(ctx, true, scopeMetadata|scopeBlob, fn)
}

// View runs fn in a read-only transaction over both stores
func (d *Database) View(ctx context.Context, fn func(*Txn) error) error {
	return d.run(ctx, false, scopeMetadata|scopeBlob, fn)
}

func (d *Database) run(
	ctx context.Context,
	readWrite bool,
	scope txnScope,
	fn func(*Txn) error,
) error {
	t, err := d.begin(ctx, readWrite, scope)
	if err != nil {
		d.logger.Error("failed to begin transaction", "error", err)
		return err
	}
	if err := fn(t); err != nil {
		if rbErr := t.rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w: original error: %w", rbErr, err)
		}
		return err
	}
	if !readWrite {
		return t.rollback()
	}
	if err := t.commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (d *Database) begin(ctx context.Context, readWrite bool, scope txnScope) (*Txn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &Txn{db: d, readWrite: readWrite}
	if scope&scopeMetadata != 0 && d.metadata != nil {
		tx := d.metadata.DB().WithContext(ctx).Begin()
		if tx.Error != nil {
			return nil, fmt.Errorf("begin metadata transaction: %w", tx.Error)
		}
		t.metadata = tx
	}
	if scope&scopeBlob != 0 && d.blob != nil {
		t.blobTxn = d.blob.NewTransaction(readWrite)
	}
	if t.metadata == nil && t.blobTxn == nil {
		return nil, types.ErrNoStoreAvailable
	}
	return t, nil
}

// Metadata returns the metadata transaction handle. It is safe to call on a
// nil Txn, in which case queries run outside a transaction.
func (t *Txn) Metadata() *gorm.DB {
	if t == nil {
		return nil
	}
	return t.metadata
}

// Blob returns the blob transaction handle
func (t *Txn) Blob() types.Txn {
	if t == nil {
		return nil
	}
	return t.blobTxn
}

func (t *Txn) commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.blobTxn != nil {
		if err := t.blobTxn.Commit(); err != nil {
			if t.metadata != nil {
				t.metadata.Rollback()
			}
			return fmt.Errorf("blob commit failed: %w", err)
		}
	}
	if t.metadata != nil {
		if err := t.metadata.Commit().Error; err != nil {
			t.db.logger.Error(
				"partial commit: blob committed, metadata failed",
				"error", err,
			)
			return fmt.Errorf("metadata commit failed after blob commit: %w", err)
		}
	}
	return nil
}

func (t *Txn) rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	var errs []error
	if t.blobTxn != nil {
		if err := t.blobTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("blob rollback: %w", err))
		}
	}
	if t.metadata != nil {
		if err := t.metadata.Rollback().Error; err != nil &&
			!errors.Is(err, gorm.ErrInvalidTransaction) &&
			!errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("metadata rollback: %w", err))
		}
	}
	return errors.Join(errs...)
}
