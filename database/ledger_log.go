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
	"encoding/binary"
	"strings"

	"github.com/blinklabs-io/almoner/database/types"
)

const ledgerLogKeyPrefix = "ll_"

// LedgerLogKey returns the blob key for a ledger log entry. Keys for the
// same transaction sort by log index.
func LedgerLogKey(txHash string, logIndex uint) []byte {
	prefix := ledgerLogTxPrefix(txHash)
	key := make([]byte, len(prefix), len(prefix)+4)
	copy(key, prefix)
	return binary.BigEndian.AppendUint32(key, uint32(logIndex)) //nolint:gosec
}

func ledgerLogTxPrefix(txHash string) []byte {
	return []byte(ledgerLogKeyPrefix + strings.ToLower(txHash) + "_")
}

// ArchiveLedgerLog stores a raw ledger log in the blob store. It is a no-op
// when the blob store is disabled.
func (d *Database) ArchiveLedgerLog(
	txHash string,
	logIndex uint,
	data []byte,
	txn *Txn,
) error {
	if d.blob == nil {
		return nil
	}
	set := func(txn *Txn) error {
		return d.blob.Set(txn.Blob(), LedgerLogKey(txHash, logIndex), data)
	}
	if txn == nil {
		return d.run(context.Background(), true, scopeBlob, set)
	}
	return set(txn)
}

// LedgerLogs returns the archived raw logs of a transaction ordered by log index
func (d *Database) LedgerLogs(txHash string, txn *Txn) ([][]byte, error) {
	if d.blob == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	var ret [][]byte
	scan := func(txn *Txn) error {
		return d.blob.Scan(
			txn.Blob(),
			ledgerLogTxPrefix(txHash),
			func(_ []byte, val []byte) error {
				ret = append(ret, val)
				return nil
			},
		)
	}
	var err error
	if txn == nil {
		err = d.run(context.Background(), false, scopeBlob, scan)
	} else {
		err = scan(txn)
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}
