// Package logdecoder recognizes known events in a contract's logs (C5),
// primarily the ERC-20 Transfer event, and extracts typed fields. Topic
// access is bounds-checked throughout: the source's older variants index
// topics[1..3] unconditionally and panic on short topic lists; this port
// always takes the guarded form per SPEC_FULL.md §9.
package logdecoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferSignatureHash is keccak256("Transfer(address,address,uint256)").
var TransferSignatureHash = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Transfer is the decoded form of an ERC-20 Transfer event.
type Transfer struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// IsTransfer reports whether log's first topic matches the canonical
// ERC-20 Transfer signature. Unknown signatures are not errors; the caller
// ignores them silently per spec.md §4.5.
func IsTransfer(log *types.Log) bool {
	return len(log.Topics) > 0 && log.Topics[0] == TransferSignatureHash
}

// DecodeTransfer extracts (from, to, value) from an ERC-20 Transfer log.
// from/to are the low 20 bytes of topics[1]/topics[2]; a log with fewer
// than three topics is a decode error, never a panic (IP5).
func DecodeTransfer(log *types.Log) (*Transfer, error) {
	if !IsTransfer(log) {
		return nil, fmt.Errorf("log at index %d is not a Transfer event", log.Index)
	}
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("transfer log at index %d has %d topics, need at least 3", log.Index, len(log.Topics))
	}

	return &Transfer{
		From:  common.HexToAddress(log.Topics[1].Hex()),
		To:    common.HexToAddress(log.Topics[2].Hex()),
		Value: new(big.Int).SetBytes(log.Data),
	}, nil
}
