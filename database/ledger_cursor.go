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

// GetLedgerCursor returns the last processed block for a contract. The
// second return value is false when no cursor has been stored yet.
func (d *Database) GetLedgerCursor(
	contract string,
	txn *Txn,
) (uint64, bool, error) {
	cursor, err := d.metadata.GetLedgerCursor(contract, txn.Metadata())
	if err != nil {
		return 0, false, err
	}
	if cursor == nil {
		return 0, false, nil
	}
	return cursor.BlockNumber, true, nil
}

func (d *Database) SetLedgerCursor(
	contract string,
	blockNumber uint64,
	txn *Txn,
) error {
	return d.metadata.SetLedgerCursor(contract, blockNumber, txn.Metadata())
}
