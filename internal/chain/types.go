// Package chain defines the entities persisted by the indexer, independent
// of both the RPC wire format and the storage layer.
package chain

import (
	"math/big"
	"time"
)

// Block mirrors the columns of the blocks table.
type Block struct {
	Number           uint64
	Hash             string
	ParentHash       string
	Nonce            string
	UnclesHash       string
	LogsBloom        string
	TransactionsRoot string
	StateRoot        string
	Miner            string
	Difficulty       *big.Int
	TotalDifficulty  *big.Int
	Size             uint64
	ExtraData        string
	GasLimit         *big.Int
	GasUsed          *big.Int
	Timestamp        uint32
	TransactionCount  int
	TransactionHashes []string
	Uncles            []string
	InsertedAt        time.Time
}

// Transaction mirrors the columns of the transactions table.
type Transaction struct {
	Hash                 string
	R, S, V              string
	To                   *string
	From                 string
	Gas                  uint64
	Type                 int
	Input                string
	Nonce                uint64
	Value                *big.Int
	ChainID              string
	GasPrice             *big.Int
	BlockHash            string
	AccessList           []byte // raw JSON, opaque to the workflow
	BlockNumber          uint64
	MaxFeePerGas         *big.Int
	TransactionIndex     uint
	MaxPriorityFeePerGas *big.Int
}

// Receipt mirrors the columns of the transaction_receipts table.
type Receipt struct {
	TransactionHash   string
	TransactionIndex  uint
	BlockHash         string
	From              string
	To                *string
	BlockNumber       uint64
	CumulativeGasUsed uint64
	GasUsed           uint64
	ContractAddress   *string
	Logs              []byte // raw JSON as received from the node
	LogsBloom         string
	Status            bool
	EffectiveGasPrice *big.Int
	Type              int
}

// Address mirrors the columns of the addresses table. BlockNumber is the
// sample point the conditional upsert in the store compares against.
type Address struct {
	Address          string
	Balance          *big.Int
	Nonce            uint64
	TransactionCount uint64
	BlockNumber      uint64
	ContractCode     string
	Storage          string
	Tokens           []byte // reserved, unused by the core
}

// ContractType is a closed tagged variant, classified by internal/classifier.
type ContractType string

const (
	ContractTypeUnknown ContractType = ""
	ContractTypeERC20   ContractType = "ERC20"
	ContractTypeERC721  ContractType = "ERC721"
	ContractTypeERC777  ContractType = "ERC777"
	ContractTypeERC1155 ContractType = "ERC1155"
)

// Contract mirrors the columns of the contracts table.
type Contract struct {
	Address              string
	Bytecode             string
	BlockNumber          uint64
	TransactionHash      string
	CreatorAddress       string
	ContractType         ContractType
	ABI                  []byte
	SourceCode           string
	AdditionalSources    []byte
	CompilerSettings     []byte
	ConstructorArguments string
	EVMVersion           string
	FileName             string
	IsProxy              bool
	ContractName         string
	CompilerVersion      string
	OptimizationUsed     bool
}

// ContractInfo is the explorer's view of a contract. A nil *ContractInfo
// represents "Missing" (the explorer had nothing to report); this replaces
// the source's is_null()-on-empty-fields sentinel with an idiomatic option.
type ContractInfo struct {
	ContractType         ContractType
	ABI                  []byte
	AdditionalSources    []byte
	CompilerSettings     []byte
	CompilerVersion      string
	ConstructorArguments string
	ContractName         string
	EVMVersion           string
	FileName             string
	IsProxy              bool
	OptimizationUsed     bool
	SourceCode           string
}

// Token mirrors the columns of the tokens table.
type Token struct {
	Address                   string
	Type                      ContractType
	Name                      string
	Symbol                    string
	TotalSupply               *big.Int
	Decimals                  uint8
	HolderCount               *int
	TotalSupplyUpdatedAtBlock uint64
}

// Log mirrors the columns of the logs table. Missing topics are stored as
// empty strings, never as absent/null, per the data model's invariant.
type Log struct {
	TransactionHash string
	BlockHash       string
	Index           int
	Data            []byte
	Type            string
	FirstTopic      string
	SecondTopic     string
	ThirdTopic      string
	FourthTopic     string
	Address         string
	BlockNumber     uint64
}

// TokenTransfer mirrors the columns of the token_transfers table, derived
// from a Log whose topics[0] matches the ERC-20 Transfer signature.
type TokenTransfer struct {
	TransactionHash string
	BlockHash       string
	LogIndex        int
	ContractAddress string
	FromAddress     string
	ToAddress       string
	BlockNumber     uint64
	Amount          *big.Int
}

// BlockIndexedEvent is published through the event notifier (C12) once a
// block task finishes, per SPEC_FULL.md §3's IndexerEvent shape. It is
// wire-only: never persisted to the relational store.
type BlockIndexedEvent struct {
	BlockNumber            uint64    `json:"block_number"`
	TransactionsIndexed    int       `json:"transactions_indexed"`
	LogsIndexed            int       `json:"logs_indexed"`
	TokenTransfersIndexed  int       `json:"token_transfers_indexed"`
	DurationMS             int64     `json:"duration_ms"`
	EmittedAt              time.Time `json:"emitted_at"`
}

// TokenTransferEvent is published through the event notifier for every
// decoded ERC-20 Transfer, alongside the persisted TokenTransfer row.
type TokenTransferEvent struct {
	ContractAddress string    `json:"contract_address"`
	FromAddress     string    `json:"from_address"`
	ToAddress       string    `json:"to_address"`
	Amount          *big.Int  `json:"amount"`
	BlockNumber     uint64    `json:"block_number"`
	TransactionHash string    `json:"transaction_hash"`
	EmittedAt       time.Time `json:"emitted_at"`
}
