package workflow

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedLegacyTx(t *testing.T, chainID *big.Int, to *common.Address, value int64) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       to,
		Value:    big.NewInt(value),
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
	})

	signer := types.NewEIP155Signer(chainID)
	signed, err := types.SignTx(tx, signer, key)
	require.NoError(t, err)

	return signed, crypto.PubkeyToAddress(key.PublicKey)
}

func TestSenderOf_RecoversFromSignature(t *testing.T) {
	chainID := big.NewInt(1)
	tx, expected := signedLegacyTx(t, chainID, nil, 0)

	from, err := senderOf(tx)
	require.NoError(t, err)
	assert.Equal(t, expected, from)
}

func TestTransactionFromGeth_PopulatesBlockContext(t *testing.T) {
	chainID := big.NewInt(1)
	to := common.HexToAddress("0x00000000000000000000000000000000000001")
	tx, from := signedLegacyTx(t, chainID, &to, 42)

	blockHash := common.HexToHash("0xbb")
	domainTx, err := transactionFromGeth(tx, from, blockHash, 100, 3)
	require.NoError(t, err)

	assert.Equal(t, tx.Hash().Hex(), domainTx.Hash)
	assert.Equal(t, from.Hex(), domainTx.From)
	require.NotNil(t, domainTx.To)
	assert.Equal(t, to.Hex(), *domainTx.To)
	assert.Equal(t, uint64(100), domainTx.BlockNumber)
	assert.Equal(t, blockHash.Hex(), domainTx.BlockHash)
	assert.Equal(t, uint(3), domainTx.TransactionIndex)
	assert.Equal(t, big.NewInt(42), domainTx.Value)
}

func TestTransactionFromGeth_ContractCreationHasNilTo(t *testing.T) {
	chainID := big.NewInt(1)
	tx, from := signedLegacyTx(t, chainID, nil, 0)

	domainTx, err := transactionFromGeth(tx, from, common.Hash{}, 1, 0)
	require.NoError(t, err)
	assert.Nil(t, domainTx.To)
}

func TestReceiptFromGeth_ContractCreationAddressIsNonNil(t *testing.T) {
	created := common.HexToAddress("0xC0FFEE0000000000000000000000000000C0FE")
	receipt := &types.Receipt{
		TxHash:            common.HexToHash("0xaa"),
		BlockHash:         common.HexToHash("0xbb"),
		BlockNumber:       big.NewInt(7),
		ContractAddress:   created,
		Status:            types.ReceiptStatusSuccessful,
		EffectiveGasPrice: big.NewInt(1),
	}

	domainReceipt, err := receiptFromGeth(receipt, common.HexToAddress("0x01"), nil)
	require.NoError(t, err)
	require.NotNil(t, domainReceipt.ContractAddress)
	assert.Equal(t, created.Hex(), *domainReceipt.ContractAddress)
	assert.True(t, domainReceipt.Status)
}

func TestReceiptFromGeth_NonCreationHasNilContractAddress(t *testing.T) {
	receipt := &types.Receipt{
		TxHash:            common.HexToHash("0xaa"),
		BlockHash:         common.HexToHash("0xbb"),
		BlockNumber:       big.NewInt(7),
		Status:            0,
		EffectiveGasPrice: big.NewInt(1),
	}

	domainReceipt, err := receiptFromGeth(receipt, common.HexToAddress("0x01"), nil)
	require.NoError(t, err)
	assert.Nil(t, domainReceipt.ContractAddress)
	assert.False(t, domainReceipt.Status)
}

func TestReceiptFromGeth_NilEffectiveGasPriceDefaultsToZero(t *testing.T) {
	// Pre-London and non-geth receipts can omit effectiveGasPrice entirely
	// (types.Receipt.EffectiveGasPrice is `omitempty`); this must not panic.
	receipt := &types.Receipt{
		TxHash:            common.HexToHash("0xaa"),
		BlockHash:         common.HexToHash("0xbb"),
		BlockNumber:       big.NewInt(7),
		Status:            types.ReceiptStatusSuccessful,
		EffectiveGasPrice: nil,
	}

	domainReceipt, err := receiptFromGeth(receipt, common.HexToAddress("0x01"), nil)
	require.NoError(t, err)
	require.NotNil(t, domainReceipt.EffectiveGasPrice)
	assert.Equal(t, big.NewInt(0), domainReceipt.EffectiveGasPrice)
}

func TestLogFromGeth_MissingTopicsStoredAsEmptyStrings(t *testing.T) {
	log := &types.Log{
		Address: common.HexToAddress("0x02"),
		Topics:  []common.Hash{common.HexToHash("0x01")},
		Data:    []byte{1, 2, 3},
		Index:   5,
	}

	domainLog := logFromGeth(log)
	assert.Equal(t, common.HexToHash("0x01").Hex(), domainLog.FirstTopic)
	assert.Empty(t, domainLog.SecondTopic)
	assert.Empty(t, domainLog.ThirdTopic)
	assert.Empty(t, domainLog.FourthTopic)
	assert.Equal(t, 5, domainLog.Index)
}
