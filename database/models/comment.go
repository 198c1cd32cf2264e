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

package models

import "time"

type Comment struct {
	CreatedAt  time.Time
	ParentID   *uint  `gorm:"index"`
	Author     string `gorm:"size:42;not null"`
	Body       string `gorm:"not null"`
	ID         uint   `gorm:"primarykey"`
	CampaignID uint64 `gorm:"index;not null"`
}

func (Comment) TableName() string {
	return "comment"
}
