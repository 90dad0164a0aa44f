package logdecoder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransfer_S4(t *testing.T) {
	// S4: topics[1] = ...0A, topics[2] = ...0B, data = 100 decimal.
	from := common.HexToHash("0x000000000000000000000000000000000000000000000000000000000000000A")
	to := common.HexToHash("0x000000000000000000000000000000000000000000000000000000000000000B")

	log := &types.Log{
		Topics: []common.Hash{TransferSignatureHash, from, to},
		Data:   new(big.Int).SetInt64(100).Bytes(),
	}

	transfer, err := DecodeTransfer(log)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x0A"), transfer.From)
	assert.Equal(t, common.HexToAddress("0x0B"), transfer.To)
	assert.Equal(t, big.NewInt(100), transfer.Value)
}

func TestIsTransfer_UnknownSignatureIgnoredSilently(t *testing.T) {
	log := &types.Log{Topics: []common.Hash{common.HexToHash("0xdeadbeef")}}
	assert.False(t, IsTransfer(log))
}

func TestDecodeTransfer_TooFewTopicsIsDecodeErrorNotPanic(t *testing.T) {
	log := &types.Log{
		Topics: []common.Hash{TransferSignatureHash},
		Data:   []byte{},
	}
	assert.NotPanics(t, func() {
		_, err := DecodeTransfer(log)
		assert.Error(t, err)
	})
}

func TestDecodeTransfer_EmptyTopicsNeverPanics(t *testing.T) {
	log := &types.Log{}
	assert.False(t, IsTransfer(log))
	_, err := DecodeTransfer(log)
	assert.Error(t, err)
}
