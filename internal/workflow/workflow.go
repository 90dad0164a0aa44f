// Package workflow drives the per-block and per-transaction indexing
// protocol (C6/C7): block → transactions → receipts → addresses →
// contracts → logs → token transfers, against the RPC gateway, store,
// explorer client, and event notifier. Grounded on
// original_source/src/indexer/mod.rs's index_block/index_transaction/
// index_address/index_smart_contract functions, translated into Go methods
// on a Workflow that holds references to its collaborators rather than
// re-capturing them per call.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/csic/platform/blockchain/indexer/internal/chain"
	"github.com/csic/platform/blockchain/indexer/internal/classifier"
	"github.com/csic/platform/blockchain/indexer/internal/explorer"
	"github.com/csic/platform/blockchain/indexer/internal/logdecoder"
	"github.com/csic/platform/blockchain/indexer/internal/notifier"
	"github.com/csic/platform/blockchain/indexer/internal/observability"
	"github.com/csic/platform/blockchain/indexer/internal/rpcgateway"
	"github.com/csic/platform/blockchain/indexer/internal/store"
)

// Workflow owns references to the collaborators one block task needs: one
// RPC session, one DB pool slot, the (shared) explorer client, and the
// (shared) event notifier. The scheduler constructs a fresh Workflow per
// task with the session/pool selected for that block number, replacing the
// source's pattern of cloning large capture objects per task.
type Workflow struct {
	rpc      *rpcgateway.Session
	store    *store.Store
	explorer *explorer.Client
	notifier *notifier.Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// New builds a Workflow bound to one RPC session and one DB pool slot.
func New(rpc *rpcgateway.Session, db *store.Store, explorerClient *explorer.Client, n *notifier.Notifier, metrics *observability.Metrics, logger *zap.Logger) *Workflow {
	return &Workflow{
		rpc:      rpc,
		store:    db,
		explorer: explorerClient,
		notifier: n,
		metrics:  metrics,
		logger:   logger,
	}
}

// transactionOutcome accumulates the per-transaction counts the block
// workflow needs to populate the IndexerEvent it publishes on completion.
type transactionOutcome struct {
	logsIndexed     int
	transfersIndexed int
}

// IndexBlock is C6: fetch the block, persist it, then drive the transaction
// sub-workflow for each of its transactions. A missing block is a benign
// empty task (step 1); a block store error is fatal (step 2); per-
// transaction errors are logged but never abort the block (step 3).
func (w *Workflow) IndexBlock(ctx context.Context, number uint64) error {
	start := time.Now()

	// One correlation ID per block task ties every log line this task emits
	// (and its descendants' warnings) together across the transaction, log,
	// contract and token sub-workflows, mirroring
	// report_repository.go's per-record uuid.New().String() correlation key.
	logger := w.logger.With(zap.String("correlation_id", uuid.New().String()), zap.Uint64("block_number", number))

	block, err := w.rpc.Block(ctx, number)
	if err != nil {
		return fmt.Errorf("block workflow: %w", err)
	}
	if block == nil {
		logger.Info("block not found, skipping")
		return nil
	}

	if err := w.store.InsertBlock(ctx, blockFromGeth(block)); err != nil {
		return fmt.Errorf("block workflow: %w", err)
	}

	var logsIndexed, transfersIndexed int
	for index, tx := range block.Transactions() {
		outcome, err := w.indexTransaction(ctx, logger, tx.Hash(), number, block.Hash(), uint(index))
		if err != nil {
			logger.Warn("transaction workflow failed", zap.String("tx_hash", tx.Hash().Hex()), zap.Error(err))
			if w.metrics != nil {
				w.metrics.TaskErrorsTotal.WithLabelValues("transaction").Inc()
			}
			continue
		}
		logsIndexed += outcome.logsIndexed
		transfersIndexed += outcome.transfersIndexed
	}

	if w.notifier != nil {
		event := chain.BlockIndexedEvent{
			BlockNumber:           number,
			TransactionsIndexed:   len(block.Transactions()),
			LogsIndexed:           logsIndexed,
			TokenTransfersIndexed: transfersIndexed,
			DurationMS:            time.Since(start).Milliseconds(),
			EmittedAt:             time.Now().UTC(),
		}
		if err := w.notifier.PublishBlockIndexed(ctx, event); err != nil {
			logger.Warn("failed to publish block indexed event", zap.Error(err))
		}
	}

	if w.metrics != nil {
		w.metrics.BlocksProcessedTotal.Inc()
	}
	return nil
}

// indexTransaction is C7. blockNumber/blockHash/index come from the
// enclosing block, which already knows them; a detached *types.Transaction
// carries none of them.
func (w *Workflow) indexTransaction(ctx context.Context, logger *zap.Logger, hash common.Hash, blockNumber uint64, blockHash common.Hash, index uint) (transactionOutcome, error) {
	var outcome transactionOutcome

	tx, _, err := w.rpc.Transaction(ctx, hash)
	if err != nil {
		return outcome, fmt.Errorf("transaction workflow: %w", err)
	}
	if tx == nil {
		logger.Info("transaction not found, skipping", zap.String("tx_hash", hash.Hex()))
		return outcome, nil
	}

	from, err := senderOf(tx)
	if err != nil {
		return outcome, fmt.Errorf("transaction workflow: %w", err)
	}

	domainTx, err := transactionFromGeth(tx, from, blockHash, blockNumber, index)
	if err != nil {
		return outcome, fmt.Errorf("transaction workflow: %w", err)
	}
	if err := w.store.InsertTransaction(ctx, domainTx); err != nil {
		return outcome, fmt.Errorf("transaction workflow: %w", err)
	}

	if err := w.indexAddress(ctx, from, blockNumber); err != nil {
		return outcome, fmt.Errorf("transaction workflow: %w", err)
	}
	if tx.To() != nil && *tx.To() != (common.Address{}) {
		if err := w.indexAddress(ctx, *tx.To(), blockNumber); err != nil {
			logger.Warn("failed to index recipient address",
				zap.String("address", tx.To().Hex()), zap.Error(err))
		}
	}

	receipt, err := w.rpc.TransactionReceipt(ctx, hash)
	if err != nil {
		return outcome, fmt.Errorf("transaction workflow: %w", err)
	}
	if receipt == nil {
		logger.Info("receipt not found, stopping at transaction", zap.String("tx_hash", hash.Hex()))
		return outcome, nil
	}

	domainReceipt, err := receiptFromGeth(receipt, from, domainTx.To)
	if err != nil {
		return outcome, fmt.Errorf("transaction workflow: %w", err)
	}
	if err := w.store.InsertReceipt(ctx, domainReceipt); err != nil {
		return outcome, fmt.Errorf("transaction workflow: %w", err)
	}

	if domainReceipt.ContractAddress != nil {
		contractAddress := common.HexToAddress(*domainReceipt.ContractAddress)
		if err := w.indexAddress(ctx, contractAddress, blockNumber); err != nil {
			logger.Warn("failed to index created contract address",
				zap.String("address", contractAddress.Hex()), zap.Error(err))
		}
		if err := w.indexContract(ctx, logger, contractAddress, from, hash, blockNumber); err != nil {
			logger.Warn("contract sub-workflow failed",
				zap.String("address", contractAddress.Hex()), zap.Error(err))
		}
	}

	for _, log := range receipt.Logs {
		logged, transferred, err := w.indexLog(ctx, logger, log)
		if err != nil {
			logger.Warn("log sub-workflow failed",
				zap.String("tx_hash", hash.Hex()), zap.Uint("log_index", log.Index), zap.Error(err))
			if w.metrics != nil {
				w.metrics.TaskErrorsTotal.WithLabelValues("log").Inc()
			}
			continue
		}
		if logged {
			outcome.logsIndexed++
		}
		if transferred {
			outcome.transfersIndexed++
		}
	}

	return outcome, nil
}

// indexAddress is 4.7.1: sample balance/code/storage/nonce at blockNumber
// and upsert under the monotone block_number rule (IP1). get_code and
// get_storage_at failures fall back to empty defaults at the rpcgateway
// layer already; this method only propagates balance/nonce failures, which
// are not semantically safe to default.
func (w *Workflow) indexAddress(ctx context.Context, address common.Address, blockNumber uint64) error {
	balance, err := w.rpc.Balance(ctx, address, blockNumber)
	if err != nil {
		return fmt.Errorf("address workflow: %w", err)
	}
	nonce, err := w.rpc.TransactionCount(ctx, address, blockNumber)
	if err != nil {
		return fmt.Errorf("address workflow: %w", err)
	}
	code := w.rpc.Code(ctx, address, blockNumber)
	storage := w.rpc.StorageAt(ctx, address, common.Hash{}, blockNumber)

	domainAddress := &chain.Address{
		Address:          address.Hex(),
		Balance:          balance,
		Nonce:            nonce,
		TransactionCount: nonce,
		BlockNumber:      blockNumber,
		ContractCode:     hexutil.Encode(code),
		Storage:          storage.Hex(),
	}
	if err := w.store.InsertAddress(ctx, domainAddress); err != nil {
		return fmt.Errorf("address workflow: %w", err)
	}
	return nil
}

// indexContract is 4.7.2. Explorer failure is never fatal (IP7): the
// contract row is always inserted, with empty metadata/contract_type when
// the explorer has nothing to report.
func (w *Workflow) indexContract(ctx context.Context, logger *zap.Logger, address, creator common.Address, txHash common.Hash, creationBlock uint64) error {
	latest, err := w.rpc.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("contract workflow: %w", err)
	}
	code := w.rpc.Code(ctx, address, latest)

	domainContract := &chain.Contract{
		Address:         address.Hex(),
		Bytecode:        hexutil.Encode(code),
		BlockNumber:     creationBlock,
		TransactionHash: txHash.Hex(),
		CreatorAddress:  creator.Hex(),
	}

	var parsedABI *abi.ABI
	if info := w.explorer.GetVerifiedContract(ctx, address.Hex()); info != nil {
		domainContract.ABI = info.ABI
		domainContract.SourceCode = info.SourceCode
		domainContract.AdditionalSources = info.AdditionalSources
		domainContract.CompilerSettings = info.CompilerSettings
		domainContract.ConstructorArguments = info.ConstructorArguments
		domainContract.EVMVersion = info.EVMVersion
		domainContract.FileName = info.FileName
		domainContract.IsProxy = info.IsProxy
		domainContract.ContractName = info.ContractName
		domainContract.CompilerVersion = info.CompilerVersion
		domainContract.OptimizationUsed = info.OptimizationUsed

		if len(info.ABI) > 0 {
			parsed, err := abi.JSON(bytes.NewReader(info.ABI))
			if err != nil {
				logger.Warn("failed to parse explorer abi", zap.String("address", address.Hex()), zap.Error(err))
			} else {
				parsedABI = &parsed
				domainContract.ContractType = classifier.Classify(parsedABI)
			}
		}
	}

	if err := w.store.InsertContract(ctx, domainContract); err != nil {
		return fmt.Errorf("contract workflow: %w", err)
	}

	if domainContract.ContractType != chain.ContractTypeERC20 || parsedABI == nil {
		return nil
	}

	if err := w.indexToken(ctx, logger, address, parsedABI, creationBlock); err != nil {
		logger.Warn("token sub-workflow failed", zap.String("address", address.Hex()), zap.Error(err))
	}

	// Compensation for constructor-emitted events some nodes omit from the
	// receipt: backfill by filtering logs from the creation block.
	logs, err := w.rpc.LogsFrom(ctx, address, creationBlock)
	if err != nil {
		logger.Warn("failed to backfill constructor logs", zap.String("address", address.Hex()), zap.Error(err))
		return nil
	}
	for i := range logs {
		if _, _, err := w.indexLog(ctx, logger, &logs[i]); err != nil {
			logger.Warn("constructor log backfill failed", zap.String("address", address.Hex()), zap.Error(err))
		}
	}
	return nil
}

// indexToken is 4.7.4. Each on-chain call degrades independently to its
// documented zero-value default; no single call failure aborts the
// sub-workflow.
func (w *Workflow) indexToken(ctx context.Context, logger *zap.Logger, address common.Address, parsedABI *abi.ABI, creationBlock uint64) error {
	token := &chain.Token{
		Address:                   address.Hex(),
		Type:                      chain.ContractTypeERC20,
		TotalSupplyUpdatedAtBlock: creationBlock,
	}

	if supply, err := w.callUint256(ctx, address, parsedABI, creationBlock, "totalSupply"); err != nil {
		logger.Warn("totalSupply call failed, defaulting to zero", zap.String("address", address.Hex()), zap.Error(err))
		token.TotalSupply = big.NewInt(0)
	} else {
		token.TotalSupply = supply
	}

	if name, err := w.callString(ctx, address, parsedABI, creationBlock, "name"); err != nil {
		logger.Warn("name call failed, defaulting to empty", zap.String("address", address.Hex()), zap.Error(err))
	} else {
		token.Name = name
	}

	if symbol, err := w.callString(ctx, address, parsedABI, creationBlock, "symbol"); err != nil {
		logger.Warn("symbol call failed, defaulting to empty", zap.String("address", address.Hex()), zap.Error(err))
	} else {
		token.Symbol = symbol
	}

	if decimals, err := w.callUint8(ctx, address, parsedABI, creationBlock, "decimals"); err != nil {
		logger.Warn("decimals call failed, defaulting to zero", zap.String("address", address.Hex()), zap.Error(err))
	} else {
		token.Decimals = decimals
	}

	if err := w.store.InsertToken(ctx, token); err != nil {
		return fmt.Errorf("token workflow: %w", err)
	}
	return nil
}

func (w *Workflow) callUint256(ctx context.Context, address common.Address, parsedABI *abi.ABI, blockNumber uint64, method string) (*big.Int, error) {
	out, err := w.callMethod(ctx, address, parsedABI, blockNumber, method)
	if err != nil {
		return nil, err
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected output type for %s", method)
	}
	return value, nil
}

func (w *Workflow) callString(ctx context.Context, address common.Address, parsedABI *abi.ABI, blockNumber uint64, method string) (string, error) {
	out, err := w.callMethod(ctx, address, parsedABI, blockNumber, method)
	if err != nil {
		return "", err
	}
	value, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected output type for %s", method)
	}
	return value, nil
}

func (w *Workflow) callUint8(ctx context.Context, address common.Address, parsedABI *abi.ABI, blockNumber uint64, method string) (uint8, error) {
	out, err := w.callMethod(ctx, address, parsedABI, blockNumber, method)
	if err != nil {
		return 0, err
	}
	value, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected output type for %s", method)
	}
	return value, nil
}

func (w *Workflow) callMethod(ctx context.Context, address common.Address, parsedABI *abi.ABI, blockNumber uint64, method string) ([]interface{}, error) {
	if _, ok := parsedABI.Methods[method]; !ok {
		return nil, fmt.Errorf("method %q not present in abi", method)
	}
	var out []interface{}
	if err := w.rpc.CallABIMethod(ctx, address, blockNumber, parsedABI, method, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no output returned for %s", method)
	}
	return out, nil
}

// indexLog is 4.7.3. Returns whether the log row was persisted and whether
// it decoded to a token transfer, so the block workflow can populate its
// IndexerEvent counts.
func (w *Workflow) indexLog(ctx context.Context, logger *zap.Logger, log *types.Log) (logged bool, transferred bool, err error) {
	domainLog := logFromGeth(log)
	if err := w.store.InsertLog(ctx, domainLog); err != nil {
		return false, false, fmt.Errorf("log workflow: %w", err)
	}
	logged = true

	rawABI, err := w.store.GetABIByAddress(ctx, domainLog.Address)
	if err != nil {
		if errors.Is(err, store.ErrNoABI) {
			return logged, false, nil
		}
		return logged, false, fmt.Errorf("log workflow: %w", err)
	}

	parsedABI, err := abi.JSON(bytes.NewReader(rawABI))
	if err != nil {
		return logged, false, fmt.Errorf("log workflow: failed to parse stored abi for %s: %w", domainLog.Address, err)
	}

	contractType := classifier.Classify(&parsedABI)
	if contractType != chain.ContractTypeERC20 {
		if contractType != chain.ContractTypeUnknown {
			logger.Warn("contract type not decoded, skipping log",
				zap.String("address", domainLog.Address), zap.String("contract_type", string(contractType)))
		}
		return logged, false, nil
	}
	if !logdecoder.IsTransfer(log) {
		return logged, false, nil
	}

	transfer, err := logdecoder.DecodeTransfer(log)
	if err != nil {
		return logged, false, fmt.Errorf("log workflow: %w", err)
	}

	domainTransfer := &chain.TokenTransfer{
		TransactionHash: domainLog.TransactionHash,
		BlockHash:       domainLog.BlockHash,
		LogIndex:        domainLog.Index,
		ContractAddress: domainLog.Address,
		FromAddress:     transfer.From.Hex(),
		ToAddress:       transfer.To.Hex(),
		BlockNumber:     domainLog.BlockNumber,
		Amount:          transfer.Value,
	}
	if err := w.store.InsertTokenTransfer(ctx, domainTransfer); err != nil {
		return logged, false, fmt.Errorf("log workflow: %w", err)
	}

	if w.notifier != nil {
		event := chain.TokenTransferEvent{
			ContractAddress: domainTransfer.ContractAddress,
			FromAddress:     domainTransfer.FromAddress,
			ToAddress:       domainTransfer.ToAddress,
			Amount:          domainTransfer.Amount,
			BlockNumber:     domainTransfer.BlockNumber,
			TransactionHash: domainTransfer.TransactionHash,
			EmittedAt:       time.Now().UTC(),
		}
		if err := w.notifier.PublishTokenTransfer(ctx, event); err != nil {
			logger.Warn("failed to publish token transfer event",
				zap.String("tx_hash", domainTransfer.TransactionHash), zap.Error(err))
		}
	}

	return logged, true, nil
}
