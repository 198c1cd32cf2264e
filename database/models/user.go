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

type User struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Address     string `gorm:"uniqueIndex;size:42;not null"`
	DisplayName string `gorm:"size:255"`
	ID          uint   `gorm:"primarykey"`
	TrustScore  int    `gorm:"not null;default:0"`
}

func (User) TableName() string {
	return "app_user"
}
