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
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// LogSource provides contract logs to the watcher
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Backend is the subset of an Ethereum client used by EthReader. It is
// satisfied by *ethclient.Client.
type Backend interface {
	LogSource
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EthReader reads campaign state from the campaign contract
type EthReader struct {
	backend  Backend
	client   *ethclient.Client
	contract common.Address
}

func NewEthReader(backend Backend, contract common.Address) *EthReader {
	return &EthReader{
		backend:  backend,
		contract: contract,
	}
}

// Dial connects to a JSON-RPC endpoint and returns a reader for the contract
func Dial(ctx context.Context, rpcURL string, contract string) (*EthReader, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address: %q", contract)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger RPC: %w", err)
	}
	r := NewEthReader(client, common.HexToAddress(contract))
	r.client = client
	return r, nil
}

// Contract returns the address of the campaign contract
func (r *EthReader) Contract() common.Address {
	return r.contract
}

// Close releases the RPC client created by Dial
func (r *EthReader) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

func (r *EthReader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	output, err := r.backend.CallContract(
		ctx,
		ethereum.CallMsg{
			To:   &r.contract,
			Data: input,
		},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %w", ErrLedgerUnavailable, method, err)
	}
	values, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %w", ErrLedgerUnavailable, method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: unpack %s: unexpected output count %d", ErrLedgerUnavailable, method, len(values))
	}
	return values, nil
}

func (r *EthReader) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	values, err := r.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	ret, ok := abi.ConvertType(values[0], new(big.Int)).(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s output type %T", ErrLedgerUnavailable, method, values[0])
	}
	return ret, nil
}

func (r *EthReader) Balance(ctx context.Context, campaignID uint64) (*big.Int, error) {
	return r.callBig(ctx, "getBalance", new(big.Int).SetUint64(campaignID))
}

func (r *EthReader) Goal(ctx context.Context, campaignID uint64) (*big.Int, error) {
	return r.callBig(ctx, "getGoal", new(big.Int).SetUint64(campaignID))
}

func (r *EthReader) Exists(ctx context.Context, campaignID uint64) (bool, error) {
	values, err := r.call(ctx, "exists", new(big.Int).SetUint64(campaignID))
	if err != nil {
		return false, err
	}
	ret, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: unexpected exists output type %T", ErrLedgerUnavailable, values[0])
	}
	return ret, nil
}

func (r *EthReader) NextCampaignID(ctx context.Context) (uint64, error) {
	ret, err := r.callBig(ctx, "nextCampaignId")
	if err != nil {
		return 0, err
	}
	if !ret.IsUint64() {
		return 0, fmt.Errorf("%w: next campaign ID out of range", ErrLedgerUnavailable)
	}
	return ret.Uint64(), nil
}

// LookupTransfer finds the contract event emitted by a transaction. Failed
// and unknown transactions return ErrTransferNotFound.
func (r *EthReader) LookupTransfer(ctx context.Context, txHash string) (*Transfer, error) {
	receipt, err := r.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, txHash)
		}
		return nil, fmt.Errorf("%w: receipt %s: %w", ErrLedgerUnavailable, txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s: transaction failed", ErrTransferNotFound, txHash)
	}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != r.contract {
			continue
		}
		transfer, err := DecodeLog(*log)
		if err != nil {
			continue
		}
		return transfer, nil
	}
	return nil, fmt.Errorf("%w: %s: no contract transfer", ErrTransferNotFound, txHash)
}

func (r *EthReader) BlockNumber(ctx context.Context) (uint64, error) {
	ret, err := r.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: block number: %w", ErrLedgerUnavailable, err)
	}
	return ret, nil
}

// FilterLogs returns the consumed contract events in the query range. The
// query addresses and topics are replaced with the contract's.
func (r *EthReader) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	q.Addresses = []common.Address{r.contract}
	q.Topics = [][]common.Hash{EventTopics()}
	ret, err := r.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: filter logs: %w", ErrLedgerUnavailable, err)
	}
	return ret, nil
}
