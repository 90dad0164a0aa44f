package workflow

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/csic/platform/blockchain/indexer/internal/chain"
)

// senderOf recovers the transaction's from address using the signer implied
// by its chain id, matching the node's own signature-recovery rules.
func senderOf(tx *types.Transaction) (common.Address, error) {
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover sender for %s: %w", tx.Hash().Hex(), err)
	}
	return from, nil
}

// blockFromGeth maps an ethclient block into the store's Block shape per
// spec.md §3. TotalDifficulty is approximated by the block's own difficulty
// since eth_getBlockByNumber's totalDifficulty field is not exposed by
// go-ethereum's *types.Block (it is a chain-wide accumulator, not part of
// the consensus header) — acceptable because post-merge chains report zero
// for both fields anyway.
func blockFromGeth(b *types.Block) *chain.Block {
	hashes := make([]string, len(b.Transactions()))
	for i, tx := range b.Transactions() {
		hashes[i] = tx.Hash().Hex()
	}
	uncles := make([]string, len(b.Uncles()))
	for i, u := range b.Uncles() {
		uncles[i] = u.Hash().Hex()
	}

	return &chain.Block{
		Number:            b.NumberU64(),
		Hash:              b.Hash().Hex(),
		ParentHash:        b.ParentHash().Hex(),
		Nonce:             fmt.Sprintf("0x%016x", b.Nonce()),
		UnclesHash:        b.UncleHash().Hex(),
		LogsBloom:         hexutil.Encode(b.Bloom().Bytes()),
		TransactionsRoot:  b.TxHash().Hex(),
		StateRoot:         b.Root().Hex(),
		Miner:             b.Coinbase().Hex(),
		Difficulty:        new(big.Int).Set(b.Difficulty()),
		TotalDifficulty:   new(big.Int).Set(b.Difficulty()),
		Size:              uint64(b.Size()),
		ExtraData:         hexutil.Encode(b.Extra()),
		GasLimit:          new(big.Int).SetUint64(b.GasLimit()),
		GasUsed:           new(big.Int).SetUint64(b.GasUsed()),
		Timestamp:         uint32(b.Time()),
		TransactionCount:  len(hashes),
		TransactionHashes: hashes,
		Uncles:            uncles,
	}
}

// transactionFromGeth maps an ethclient transaction into the store's
// Transaction shape. blockHash/blockNumber/index are supplied by the block
// workflow, which already knows them from the enclosing block — the
// transaction itself carries none of them once detached from its block.
func transactionFromGeth(tx *types.Transaction, from common.Address, blockHash common.Hash, blockNumber uint64, index uint) (*chain.Transaction, error) {
	v, r, s := tx.RawSignatureValues()

	var to *string
	if tx.To() != nil {
		hex := tx.To().Hex()
		to = &hex
	}

	accessList, err := json.Marshal(tx.AccessList())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal access list for %s: %w", tx.Hash().Hex(), err)
	}

	chainID := "0"
	if tx.ChainId() != nil {
		chainID = tx.ChainId().String()
	}

	var maxFee, maxPriority *big.Int
	if tx.Type() != types.LegacyTxType {
		maxFee = new(big.Int).Set(tx.GasFeeCap())
		maxPriority = new(big.Int).Set(tx.GasTipCap())
	}

	return &chain.Transaction{
		Hash:                 tx.Hash().Hex(),
		R:                    hexutil.EncodeBig(r),
		S:                    hexutil.EncodeBig(s),
		V:                    hexutil.EncodeBig(v),
		To:                   to,
		From:                 from.Hex(),
		Gas:                  tx.Gas(),
		Type:                 int(tx.Type()),
		Input:                hexutil.Encode(tx.Data()),
		Nonce:                tx.Nonce(),
		Value:                new(big.Int).Set(tx.Value()),
		ChainID:              chainID,
		GasPrice:             new(big.Int).Set(tx.GasPrice()),
		BlockHash:            blockHash.Hex(),
		AccessList:           accessList,
		BlockNumber:          blockNumber,
		MaxFeePerGas:         maxFee,
		TransactionIndex:     index,
		MaxPriorityFeePerGas: maxPriority,
	}, nil
}

// receiptFromGeth maps an ethclient receipt into the store's Receipt shape.
// from/to come from the already-indexed transaction since *types.Receipt
// carries neither.
func receiptFromGeth(r *types.Receipt, from common.Address, to *string) (*chain.Receipt, error) {
	logs, err := json.Marshal(r.Logs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal logs for receipt %s: %w", r.TxHash.Hex(), err)
	}

	var contractAddress *string
	if r.ContractAddress != (common.Address{}) {
		hex := r.ContractAddress.Hex()
		contractAddress = &hex
	}

	// Pre-London and non-geth receipts may omit effectiveGasPrice entirely
	// (types.Receipt.EffectiveGasPrice is `omitempty`); default to zero
	// instead of dereferencing a possibly-nil *big.Int.
	effectiveGasPrice := big.NewInt(0)
	if r.EffectiveGasPrice != nil {
		effectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}

	return &chain.Receipt{
		TransactionHash:   r.TxHash.Hex(),
		TransactionIndex:  r.TransactionIndex,
		BlockHash:         r.BlockHash.Hex(),
		From:              from.Hex(),
		To:                to,
		BlockNumber:       r.BlockNumber.Uint64(),
		CumulativeGasUsed: r.CumulativeGasUsed,
		GasUsed:           r.GasUsed,
		ContractAddress:   contractAddress,
		Logs:              logs,
		LogsBloom:         hexutil.Encode(r.Bloom.Bytes()),
		Status:            r.Status == types.ReceiptStatusSuccessful,
		EffectiveGasPrice: effectiveGasPrice,
		Type:              int(r.Type),
	}, nil
}

// logFromGeth maps an ethclient log into the store's Log shape. Missing
// topics are stored as empty strings per spec.md §3's invariant, never left
// absent.
func logFromGeth(l *types.Log) *chain.Log {
	var topics [4]string
	for i := 0; i < len(l.Topics) && i < 4; i++ {
		topics[i] = l.Topics[i].Hex()
	}
	return &chain.Log{
		TransactionHash: l.TxHash.Hex(),
		BlockHash:       l.BlockHash.Hex(),
		Index:           int(l.Index),
		Data:            l.Data,
		FirstTopic:      topics[0],
		SecondTopic:     topics[1],
		ThirdTopic:      topics[2],
		FourthTopic:     topics[3],
		Address:         l.Address.Hex(),
		BlockNumber:     l.BlockNumber,
	}
}
