// Package classifier decides a contract's ContractType from its parsed ABI
// (C4), modeled as a single tagged-variant classification function rather
// than the original's string-dispatched ContractType, per SPEC_FULL.md §9.
package classifier

import (
	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/csic/platform/blockchain/indexer/internal/chain"
)

// Classify applies the first-match-wins rule set from spec.md §4.4. An ABI
// with no methods, or a nil contractABI, classifies as Unknown without
// error.
func Classify(contractABI *abi.ABI) chain.ContractType {
	if contractABI == nil {
		return chain.ContractTypeUnknown
	}

	switch {
	case hasMethods(contractABI, "totalSupply", "balanceOf", "transfer"):
		return chain.ContractTypeERC20
	case hasMethods(contractABI, "ownerOf", "safeTransferFrom", "transferFrom"):
		return chain.ContractTypeERC721
	case hasMethods(contractABI, "granularity", "defaultOperators", "send"):
		return chain.ContractTypeERC777
	case hasMethods(contractABI, "safeTransferFrom", "safeBatchTransferFrom", "balanceOf", "balanceOfBatch"):
		return chain.ContractTypeERC1155
	default:
		return chain.ContractTypeUnknown
	}
}

// hasMethods reports whether every named function is present in the ABI,
// regardless of ordering or additional entries (IP4).
func hasMethods(contractABI *abi.ABI, names ...string) bool {
	for _, name := range names {
		if _, ok := contractABI.Methods[name]; !ok {
			return false
		}
	}
	return true
}
