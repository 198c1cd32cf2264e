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

package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	eventDonationReceived = "DonationReceived"
	eventFundsWithdrawn   = "FundsWithdrawn"
)

// ContractABI is the subset of the campaign contract used by the engine
const ContractABI = `[
{"type":"function","name":"getBalance","stateMutability":"view","inputs":[{"name":"campaignId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"exists","stateMutability":"view","inputs":[{"name":"campaignId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"getGoal","stateMutability":"view","inputs":[{"name":"campaignId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"nextCampaignId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"DonationReceived","anonymous":false,"inputs":[{"indexed":true,"name":"campaignId","type":"uint256"},{"indexed":true,"name":"donor","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}]},
{"type":"event","name":"FundsWithdrawn","anonymous":false,"inputs":[{"indexed":true,"name":"campaignId","type":"uint256"},{"indexed":true,"name":"recipient","type":"address"},{"indexed":false,"name":"milestoneIdx","type":"uint8"},{"indexed":false,"name":"amount","type":"uint256"}]}
]`

var ErrUnknownEvent = errors.New("unknown contract event")

var contractABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		panic(fmt.Sprintf("parse contract ABI: %s", err))
	}
	contractABI = parsed
}

// EventTopics returns the topic IDs of the contract events the engine consumes
func EventTopics() []common.Hash {
	return []common.Hash{
		contractABI.Events[eventDonationReceived].ID,
		contractABI.Events[eventFundsWithdrawn].ID,
	}
}

// DecodeLog converts a contract log into a Transfer
func DecodeLog(log types.Log) (*Transfer, error) {
	if len(log.Topics) < 3 {
		return nil, ErrUnknownEvent
	}
	var eventName string
	var kind TransferKind
	switch log.Topics[0] {
	case contractABI.Events[eventDonationReceived].ID:
		eventName = eventDonationReceived
		kind = TransferKindDonation
	case contractABI.Events[eventFundsWithdrawn].ID:
		eventName = eventFundsWithdrawn
		kind = TransferKindWithdrawal
	default:
		return nil, ErrUnknownEvent
	}
	values, err := contractABI.Events[eventName].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventName, err)
	}
	campaignID := new(big.Int).SetBytes(log.Topics[1].Bytes())
	if !campaignID.IsUint64() {
		return nil, fmt.Errorf("decode %s: campaign ID out of range", eventName)
	}
	ret := &Transfer{
		Kind:        kind,
		CampaignID:  campaignID.Uint64(),
		Account:     common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		TxHash:      log.TxHash.Hex(),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}
	switch kind {
	case TransferKindDonation:
		if len(values) != 1 {
			return nil, fmt.Errorf("decode %s: unexpected field count %d", eventName, len(values))
		}
		amount, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("decode %s: unexpected amount type %T", eventName, values[0])
		}
		ret.Amount = amount
	case TransferKindWithdrawal:
		if len(values) != 2 {
			return nil, fmt.Errorf("decode %s: unexpected field count %d", eventName, len(values))
		}
		idx, ok := values[0].(uint8)
		if !ok {
			return nil, fmt.Errorf("decode %s: unexpected milestone type %T", eventName, values[0])
		}
		amount, ok := values[1].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("decode %s: unexpected amount type %T", eventName, values[1])
		}
		ret.MilestoneIdx = idx
		ret.Amount = amount
	}
	return ret, nil
}

// encodeTransferLog builds the contract log a transfer would produce
func encodeTransferLog(t Transfer) (types.Log, error) {
	var eventName string
	var args []any
	switch t.Kind {
	case TransferKindDonation:
		eventName = eventDonationReceived
		args = []any{t.Amount}
	case TransferKindWithdrawal:
		eventName = eventFundsWithdrawn
		args = []any{t.MilestoneIdx, t.Amount}
	default:
		return types.Log{}, ErrUnknownEvent
	}
	event := contractABI.Events[eventName]
	data, err := event.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return types.Log{}, fmt.Errorf("encode %s: %w", eventName, err)
	}
	return types.Log{
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(new(big.Int).SetUint64(t.CampaignID)),
			common.BytesToHash(common.HexToAddress(t.Account).Bytes()),
		},
		Data:        data,
		TxHash:      common.HexToHash(t.TxHash),
		BlockNumber: t.BlockNumber,
		Index:       t.LogIndex,
	}, nil
}
