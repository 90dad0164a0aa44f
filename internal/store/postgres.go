// Package store is the connection-pooled relational store (C2) and schema
// bootstrapper (C13). It follows the database/sql + lib/pq repository
// idiom used throughout the teacher monorepo (service/reporting/regulatory's
// database.go/report_repository.go, compliance's postgres.go): a thin
// struct wrapping *sql.DB and fmt.Errorf wrapping at every boundary.
// sql.ErrNoRows is handled at the lookup site: GetABIByAddress maps it to
// the ErrNoABI sentinel, and Bootstrap treats it as an absent version row.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	_ "github.com/lib/pq"

	"github.com/csic/platform/blockchain/indexer/internal/chain"
	"github.com/csic/platform/blockchain/indexer/internal/config"
)

// Pools is the set of M independent connection pools named in spec.md §4.2;
// the scheduler selects pool block_number mod M.
type Pools struct {
	stores []*Store
}

// OpenPools opens m independent *sql.DB handles against the same database,
// matching spec's "M independent pools" requirement. Each *sql.DB manages
// its own internal connection pool via SetMaxOpenConns/SetMaxIdleConns, the
// pattern in service/reporting/regulatory/internal/repository/database.go.
func OpenPools(ctx context.Context, cfg config.PostgresConfig, m int) (*Pools, error) {
	if m < 1 {
		return nil, fmt.Errorf("db pool size must be at least 1, got %d", m)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	stores := make([]*Store, 0, m)
	for i := 0; i < m; i++ {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			closeAll(stores)
			return nil, fmt.Errorf("failed to open database pool %d: %w", i, err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)

		if err := db.PingContext(ctx); err != nil {
			closeAll(stores)
			return nil, fmt.Errorf("failed to ping database pool %d: %w", i, err)
		}
		stores = append(stores, &Store{db: db})
	}

	return &Pools{stores: stores}, nil
}

func closeAll(stores []*Store) {
	for _, s := range stores {
		s.db.Close()
	}
}

// Size returns the number of pools.
func (p *Pools) Size() int { return len(p.stores) }

// Pool returns the store responsible for blockNumber under the round-robin
// scheme, mirroring rpcgateway.Pool.Session.
func (p *Pools) Pool(blockNumber uint64) *Store {
	return p.stores[blockNumber%uint64(len(p.stores))]
}

// Bootstrap runs schema initialization against the first pool only —
// DDL is idempotent (IF NOT EXISTS) so running it once is sufficient even
// though every pool shares the same underlying database.
func (p *Pools) Bootstrap(ctx context.Context, version string, order []string) error {
	return p.stores[0].Bootstrap(ctx, version, order)
}

// Close closes every pool.
func (p *Pools) Close() {
	closeAll(p.stores)
}

// Store wraps one *sql.DB with the typed upsert operations from spec.md §4.2.
type Store struct {
	db *sql.DB
}

// ddlGroups maps each POSTGRES_CREATE_TABLE_ORDER stem to its DDL
// statements. The original reads ./model/<stem>.sql files at runtime; this
// port registers the same ordered groups in-process (see DESIGN.md Open
// Question) so the module's tests can exercise bootstrap deterministically.
var ddlGroups = map[string][]string{
	"configuration": {
		`CREATE TABLE IF NOT EXISTS configuration (
			config_name VARCHAR(64) PRIMARY KEY,
			value VARCHAR(255) NOT NULL
		)`,
	},
	"blocks": {
		`CREATE TABLE IF NOT EXISTS blocks (
			number BIGINT PRIMARY KEY,
			hash VARCHAR(66) NOT NULL,
			parent_hash VARCHAR(66),
			nonce VARCHAR(18),
			uncles_hash VARCHAR(66),
			logs_bloom TEXT,
			transactions_root VARCHAR(66),
			state_root VARCHAR(66),
			miner VARCHAR(42),
			difficulty NUMERIC(80),
			total_difficulty NUMERIC(80),
			size BIGINT,
			extra_data TEXT,
			gas_limit NUMERIC(100),
			gas_used NUMERIC(100),
			timestamp BIGINT,
			transactions_count INT,
			transaction_ids JSONB,
			uncles JSONB,
			inserted_at TIMESTAMP DEFAULT NOW()
		)`,
	},
	"transactions": {
		`CREATE TABLE IF NOT EXISTS transactions (
			hash VARCHAR(66) PRIMARY KEY,
			r VARCHAR(66),
			s VARCHAR(66),
			v VARCHAR(66),
			"to" VARCHAR(42),
			"from" VARCHAR(42) NOT NULL,
			gas BIGINT,
			type INT,
			input TEXT,
			nonce BIGINT,
			value NUMERIC(100),
			chain_id VARCHAR(32),
			gas_price NUMERIC(100),
			block_hash VARCHAR(66),
			access_list JSONB,
			block_number BIGINT NOT NULL REFERENCES blocks(number) ON DELETE CASCADE,
			max_fee_per_gas NUMERIC(100),
			transaction_index INT,
			max_priority_fee_per_gas NUMERIC(100)
		)`,
	},
	"receipts": {
		`CREATE TABLE IF NOT EXISTS transaction_receipts (
			transaction_hash VARCHAR(66) PRIMARY KEY REFERENCES transactions(hash) ON DELETE CASCADE,
			transaction_index INT,
			block_hash VARCHAR(66),
			"from" VARCHAR(42),
			"to" VARCHAR(42),
			block_number BIGINT NOT NULL REFERENCES blocks(number) ON DELETE CASCADE,
			cumulative_gas_used BIGINT,
			gas_used BIGINT,
			contract_address VARCHAR(42),
			logs JSONB,
			logs_bloom TEXT,
			status BOOLEAN,
			effective_gas_price NUMERIC(100),
			type INT
		)`,
	},
	"addresses": {
		`CREATE TABLE IF NOT EXISTS addresses (
			address VARCHAR(42) PRIMARY KEY,
			balance NUMERIC(100),
			nonce BIGINT,
			transaction_count BIGINT,
			block_number BIGINT NOT NULL,
			contract_code TEXT,
			storage VARCHAR(66),
			tokens JSONB,
			last_updated TIMESTAMP DEFAULT NOW()
		)`,
	},
	"contracts": {
		`CREATE TABLE IF NOT EXISTS contracts (
			address VARCHAR(42) PRIMARY KEY,
			bytecode TEXT,
			block_number BIGINT,
			transaction_hash VARCHAR(66),
			creator_address VARCHAR(42),
			contract_type VARCHAR(16) NOT NULL DEFAULT '',
			abi JSONB,
			source_code TEXT,
			additional_sources JSONB,
			compiler_settings JSONB,
			constructor_arguments TEXT,
			evm_version VARCHAR(32),
			file_name TEXT,
			is_proxy BOOLEAN DEFAULT FALSE,
			contract_name TEXT,
			compiler_version VARCHAR(64),
			optimization_used BOOLEAN DEFAULT FALSE
		)`,
	},
	"tokens": {
		`CREATE TABLE IF NOT EXISTS tokens (
			address VARCHAR(42) PRIMARY KEY REFERENCES contracts(address) ON DELETE CASCADE,
			type VARCHAR(16) NOT NULL,
			name TEXT,
			symbol TEXT,
			total_supply NUMERIC(100),
			decimals INT,
			holder_count INT,
			total_supply_updated_at_block BIGINT
		)`,
	},
	"logs": {
		`CREATE TABLE IF NOT EXISTS logs (
			transaction_hash VARCHAR(66) NOT NULL,
			block_hash VARCHAR(66) NOT NULL,
			index INT NOT NULL,
			data BYTEA,
			type VARCHAR(255),
			first_topic VARCHAR(66),
			second_topic VARCHAR(66),
			third_topic VARCHAR(66),
			fourth_topic VARCHAR(66),
			address VARCHAR(42) NOT NULL,
			block_number BIGINT NOT NULL,
			inserted_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW(),
			PRIMARY KEY (transaction_hash, block_hash, index)
		)`,
	},
	"token_transfers": {
		`CREATE TABLE IF NOT EXISTS token_transfers (
			transaction_hash VARCHAR(66) NOT NULL,
			block_hash VARCHAR(66) NOT NULL,
			log_index INT NOT NULL,
			contract_address VARCHAR(42) NOT NULL,
			from_address VARCHAR(42) NOT NULL,
			to_address VARCHAR(42) NOT NULL,
			block_number BIGINT NOT NULL,
			amount NUMERIC(100),
			PRIMARY KEY (transaction_hash, block_hash, log_index)
		)`,
	},
}

// Bootstrap reads the configuration.version row and, if absent or stale,
// executes the DDL groups named in order, then writes the new version.
// A bootstrap failure is logged by the caller and is non-fatal to the run
// per spec.md §7 (Bootstrap-failure).
func (s *Store) Bootstrap(ctx context.Context, version string, order []string) error {
	if _, err := s.db.ExecContext(ctx, ddlGroups["configuration"][0]); err != nil {
		return fmt.Errorf("failed to ensure configuration table: %w", err)
	}

	var current string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM configuration WHERE config_name = 'version'`).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if err == nil && current == version {
		return nil
	}

	for _, stem := range order {
		statements, ok := ddlGroups[stem]
		if !ok {
			return fmt.Errorf("no ddl group registered for table order stem %q", stem)
		}
		for _, statement := range statements {
			if _, err := s.db.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("failed to execute ddl for %q: %w", stem, err)
			}
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO configuration (config_name, value) VALUES ('version', $1)
		ON CONFLICT (config_name) DO UPDATE SET value = excluded.value
	`, version)
	if err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}

// InsertBlock is on-conflict do nothing: re-insertion of the same number is
// a no-op (IP2).
func (s *Store) InsertBlock(ctx context.Context, b *chain.Block) error {
	transactionIDs, err := json.Marshal(b.TransactionHashes)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction ids for block %d: %w", b.Number, err)
	}
	uncles, err := json.Marshal(b.Uncles)
	if err != nil {
		return fmt.Errorf("failed to marshal uncles for block %d: %w", b.Number, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blocks (
			number, hash, parent_hash, nonce, uncles_hash, logs_bloom, transactions_root,
			state_root, miner, difficulty, total_difficulty, size, extra_data, gas_limit,
			gas_used, timestamp, transactions_count, transaction_ids, uncles
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (number) DO NOTHING
	`,
		b.Number, b.Hash, b.ParentHash, b.Nonce, b.UnclesHash, b.LogsBloom, b.TransactionsRoot,
		b.StateRoot, b.Miner, numericString(b.Difficulty), numericString(b.TotalDifficulty), b.Size, b.ExtraData,
		numericString(b.GasLimit), numericString(b.GasUsed), b.Timestamp, b.TransactionCount, transactionIDs, uncles,
	)
	if err != nil {
		return fmt.Errorf("failed to insert block %d: %w", b.Number, err)
	}
	return nil
}

// InsertTransaction is on-conflict do nothing.
func (s *Store) InsertTransaction(ctx context.Context, tx *chain.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			hash, r, s, v, "to", "from", gas, type, input, nonce, value, chain_id,
			gas_price, block_hash, access_list, block_number, max_fee_per_gas,
			transaction_index, max_priority_fee_per_gas
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (hash) DO NOTHING
	`,
		tx.Hash, tx.R, tx.S, tx.V, tx.To, tx.From, tx.Gas, tx.Type, tx.Input, tx.Nonce,
		numericString(tx.Value), tx.ChainID, numericString(tx.GasPrice), tx.BlockHash, nullableJSON(tx.AccessList),
		tx.BlockNumber, numericString(tx.MaxFeePerGas), tx.TransactionIndex, numericString(tx.MaxPriorityFeePerGas),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.Hash, err)
	}
	return nil
}

// InsertReceipt is on-conflict do nothing.
func (s *Store) InsertReceipt(ctx context.Context, r *chain.Receipt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_receipts (
			transaction_hash, transaction_index, block_hash, "from", "to", block_number,
			cumulative_gas_used, gas_used, contract_address, logs, logs_bloom, status,
			effective_gas_price, type
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (transaction_hash) DO NOTHING
	`,
		r.TransactionHash, r.TransactionIndex, r.BlockHash, r.From, r.To, r.BlockNumber,
		r.CumulativeGasUsed, r.GasUsed, r.ContractAddress, nullableJSON(r.Logs), r.LogsBloom, r.Status,
		numericString(r.EffectiveGasPrice), r.Type,
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt %s: %w", r.TransactionHash, err)
	}
	return nil
}

// InsertAddress performs the monotone conditional upsert from spec.md §3:
// every scalar field is overwritten only when the incoming block_number is
// strictly greater than the stored one, in a single statement to avoid a
// read-modify-write race, exactly as original_source/src/db/addresses.rs
// encodes it — minus that file's balance.low_u32() truncation bug, which
// this port does not replicate (IP1).
func (s *Store) InsertAddress(ctx context.Context, a *chain.Address) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addresses (address, balance, nonce, transaction_count, block_number, contract_code, storage)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (address) DO UPDATE SET
			balance = CASE WHEN excluded.block_number > addresses.block_number THEN excluded.balance ELSE addresses.balance END,
			nonce = CASE WHEN excluded.block_number > addresses.block_number THEN excluded.nonce ELSE addresses.nonce END,
			transaction_count = CASE WHEN excluded.block_number > addresses.block_number THEN excluded.transaction_count ELSE addresses.transaction_count END,
			contract_code = CASE WHEN excluded.block_number > addresses.block_number THEN excluded.contract_code ELSE addresses.contract_code END,
			storage = CASE WHEN excluded.block_number > addresses.block_number THEN excluded.storage ELSE addresses.storage END,
			block_number = CASE WHEN excluded.block_number > addresses.block_number THEN excluded.block_number ELSE addresses.block_number END,
			last_updated = NOW()
		WHERE excluded.block_number > addresses.block_number
	`,
		a.Address, numericString(a.Balance), a.Nonce, a.TransactionCount, a.BlockNumber, a.ContractCode, a.Storage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert/update address %s: %w", a.Address, err)
	}
	return nil
}

// InsertContract is on-conflict do update all fields (last-write-wins).
func (s *Store) InsertContract(ctx context.Context, c *chain.Contract) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (
			address, bytecode, block_number, transaction_hash, creator_address, contract_type,
			abi, source_code, additional_sources, compiler_settings, constructor_arguments,
			evm_version, file_name, is_proxy, contract_name, compiler_version, optimization_used
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (address) DO UPDATE SET
			bytecode = excluded.bytecode,
			block_number = excluded.block_number,
			transaction_hash = excluded.transaction_hash,
			creator_address = excluded.creator_address,
			contract_type = excluded.contract_type,
			abi = excluded.abi,
			source_code = excluded.source_code,
			additional_sources = excluded.additional_sources,
			compiler_settings = excluded.compiler_settings,
			constructor_arguments = excluded.constructor_arguments,
			evm_version = excluded.evm_version,
			file_name = excluded.file_name,
			is_proxy = excluded.is_proxy,
			contract_name = excluded.contract_name,
			compiler_version = excluded.compiler_version,
			optimization_used = excluded.optimization_used
	`,
		c.Address, c.Bytecode, c.BlockNumber, c.TransactionHash, c.CreatorAddress, string(c.ContractType),
		nullableJSON(c.ABI), c.SourceCode, nullableJSON(c.AdditionalSources), nullableJSON(c.CompilerSettings),
		c.ConstructorArguments, c.EVMVersion, c.FileName, c.IsProxy, c.ContractName, c.CompilerVersion, c.OptimizationUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert/update contract %s: %w", c.Address, err)
	}
	return nil
}

// InsertToken is on-conflict do update mutable fields; holder_count is left
// untouched because it is reserved and never populated by the core.
func (s *Store) InsertToken(ctx context.Context, t *chain.Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (address, type, name, symbol, total_supply, decimals, total_supply_updated_at_block)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (address) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			symbol = excluded.symbol,
			total_supply = excluded.total_supply,
			decimals = excluded.decimals,
			total_supply_updated_at_block = excluded.total_supply_updated_at_block
	`,
		t.Address, string(t.Type), t.Name, t.Symbol, numericString(t.TotalSupply), t.Decimals, t.TotalSupplyUpdatedAtBlock,
	)
	if err != nil {
		return fmt.Errorf("failed to insert/update token %s: %w", t.Address, err)
	}
	return nil
}

// InsertLog is on-conflict do update of all mutable fields, preserving the
// (transaction_hash, block_hash, index) primary key (IP3).
func (s *Store) InsertLog(ctx context.Context, l *chain.Log) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (
			transaction_hash, block_hash, index, data, type, first_topic, second_topic,
			third_topic, fourth_topic, address, block_number, inserted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
		ON CONFLICT (transaction_hash, block_hash, index) DO UPDATE SET
			data = excluded.data,
			type = excluded.type,
			first_topic = excluded.first_topic,
			second_topic = excluded.second_topic,
			third_topic = excluded.third_topic,
			fourth_topic = excluded.fourth_topic,
			address = excluded.address,
			block_number = excluded.block_number,
			updated_at = NOW()
	`,
		l.TransactionHash, l.BlockHash, l.Index, l.Data, l.Type, l.FirstTopic, l.SecondTopic,
		l.ThirdTopic, l.FourthTopic, l.Address, l.BlockNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to insert/update log %s/%s/%d: %w", l.TransactionHash, l.BlockHash, l.Index, err)
	}
	return nil
}

// InsertTokenTransfer is on-conflict do update mutable fields.
func (s *Store) InsertTokenTransfer(ctx context.Context, t *chain.TokenTransfer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_transfers (
			transaction_hash, block_hash, log_index, contract_address, from_address, to_address,
			block_number, amount
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (transaction_hash, block_hash, log_index) DO UPDATE SET
			contract_address = excluded.contract_address,
			from_address = excluded.from_address,
			to_address = excluded.to_address,
			block_number = excluded.block_number,
			amount = excluded.amount
	`,
		t.TransactionHash, t.BlockHash, t.LogIndex, t.ContractAddress, t.FromAddress, t.ToAddress,
		t.BlockNumber, numericString(t.Amount),
	)
	if err != nil {
		return fmt.Errorf("failed to insert/update token transfer %s/%s/%d: %w", t.TransactionHash, t.BlockHash, t.LogIndex, err)
	}
	return nil
}

// ErrNoABI is the control-flow sentinel from spec.md §4.2: a normal outcome
// of ABI lookup, not an error, signaling that the log should be persisted
// without token-transfer derivation.
var ErrNoABI = fmt.Errorf("abi is null")

// GetABIByAddress returns the stored ABI JSON for address, or ErrNoABI if
// the row is absent or its abi column is null.
func (s *Store) GetABIByAddress(ctx context.Context, address string) ([]byte, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT abi FROM contracts WHERE address = $1`, address).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNoABI
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up abi for %s: %w", address, err)
	}
	if !raw.Valid || strings.TrimSpace(raw.String) == "" || raw.String == "null" {
		return nil, ErrNoABI
	}
	return []byte(raw.String), nil
}

func numericString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
