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
	"errors"

	"github.com/blinklabs-io/almoner/database/models"
)

var ErrUserNotFound = errors.New("user not found")

// EnsureUser lazily creates a user record for an address
func (d *Database) EnsureUser(address string, txn *Txn) error {
	return d.metadata.EnsureUser(address, txn.Metadata())
}

func (d *Database) GetUser(address string, txn *Txn) (*models.User, error) {
	ret, err := d.metadata.GetUser(address, txn.Metadata())
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, ErrUserNotFound
	}
	return ret, nil
}

func (d *Database) SetUserDisplayName(
	address string,
	displayName string,
	txn *Txn,
) error {
	if err := d.metadata.EnsureUser(address, txn.Metadata()); err != nil {
		return err
	}
	return d.metadata.SetUserDisplayName(address, displayName, txn.Metadata())
}
