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

package types_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/almoner/database/types"
)

func TestAmountScanValue(t *testing.T) {
	large, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	testDefs := []struct {
		origValue     types.Amount
		expectedValue any
	}{
		{origValue: types.NewAmount(big.NewInt(123)), expectedValue: "123"},
		{origValue: types.NewAmount(large), expectedValue: "123456789012345678901234567890"},
		{origValue: types.Amount{}, expectedValue: nil},
	}
	for _, testDef := range testDefs {
		valueOut, err := testDef.origValue.Value()
		require.NoError(t, err)
		assert.Equal(t, testDef.expectedValue, valueOut)
		var tmpAmount types.Amount
		require.NoError(t, tmpAmount.Scan(valueOut))
		if testDef.expectedValue == nil {
			assert.False(t, tmpAmount.Valid())
			continue
		}
		assert.Equal(t, 0, tmpAmount.Cmp(testDef.origValue.Int))
	}
}

func TestAmountScanBytes(t *testing.T) {
	var a types.Amount
	require.NoError(t, a.Scan([]byte("42")))
	assert.Equal(t, int64(42), a.Int64())
	require.NoError(t, a.Scan(int64(7)))
	assert.Equal(t, int64(7), a.Int64())
	assert.Error(t, a.Scan("not-a-number"))
	assert.Error(t, a.Scan(3.5))
}

func TestAmountCopies(t *testing.T) {
	src := big.NewInt(10)
	a := types.NewAmount(src)
	src.SetInt64(11)
	assert.Equal(t, "10", a.String())
	b := a.Big()
	b.SetInt64(12)
	assert.Equal(t, "10", a.String())
	assert.Equal(t, "0", types.Amount{}.String())
}
