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

package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math/big"
)

// Amount is an arbitrary precision ledger amount stored as a decimal string.
// A nil Amount maps to SQL NULL.
//
//nolint:recvcheck
type Amount struct {
	*big.Int
}

// NewAmount returns an Amount holding a copy of v
func NewAmount(v *big.Int) Amount {
	if v == nil {
		return Amount{}
	}
	return Amount{Int: new(big.Int).Set(v)}
}

// Valid reports whether the amount has a value
func (a Amount) Valid() bool {
	return a.Int != nil
}

// Big returns a copy of the amount, or zero when unset
func (a Amount) Big() *big.Int {
	if a.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.Int)
}

// String returns the decimal representation, or "0" when unset
func (a Amount) String() string {
	if a.Int == nil {
		return "0"
	}
	return a.Int.String()
}

func (Amount) GormDataType() string {
	return "string"
}

func (a Amount) Value() (driver.Value, error) {
	if a.Int == nil {
		return nil, nil
	}
	return a.Int.String(), nil
}

func (a *Amount) Scan(val any) error {
	var v string
	switch tmpVal := val.(type) {
	case nil:
		a.Int = nil
		return nil
	case string:
		v = tmpVal
	case []byte:
		v = string(tmpVal)
	case int64:
		a.Int = big.NewInt(tmpVal)
		return nil
	default:
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	tmpInt, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return fmt.Errorf("failed to set big.Int value from string: %s", v)
	}
	a.Int = tmpInt
	return nil
}

// ErrBlobKeyNotFound is returned by blob operations when a key is missing
var ErrBlobKeyNotFound = errors.New("blob key not found")

// ErrTxnWrongType is returned when a transaction has the wrong type
var ErrTxnWrongType = errors.New("invalid transaction type")

// ErrNilTxn is returned when a nil transaction is provided where a valid transaction is required
var ErrNilTxn = errors.New("nil transaction")

// ErrNoStoreAvailable is returned when no blob or metadata store is available
var ErrNoStoreAvailable = errors.New("no store available")

// ErrBlobStoreUnavailable is returned when blob store cannot be accessed
var ErrBlobStoreUnavailable = errors.New("blob store unavailable")

// Txn is a simple transaction handle for commit/rollback only.
// Database layer (Txn) coordinates metadata and blob operations separately.
type Txn interface {
	Commit() error
	Rollback() error
}
