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

var (
	ErrCommentNotFound    = errors.New("comment not found")
	ErrCommentNestedReply = errors.New("replies to replies are not allowed")
)

// AddComment stores a comment. Replies may only target a top-level comment
// of the same campaign.
func (d *Database) AddComment(comment *models.Comment, txn *Txn) error {
	if comment.ParentID != nil {
		parent, err := d.metadata.GetComment(*comment.ParentID, txn.Metadata())
		if err != nil {
			return err
		}
		if parent == nil || parent.CampaignID != comment.CampaignID {
			return ErrCommentNotFound
		}
		if parent.ParentID != nil {
			return ErrCommentNestedReply
		}
	}
	return d.metadata.AddComment(comment, txn.Metadata())
}

func (d *Database) GetComments(
	campaignID uint64,
	txn *Txn,
) ([]models.Comment, error) {
	return d.metadata.GetComments(campaignID, txn.Metadata())
}
