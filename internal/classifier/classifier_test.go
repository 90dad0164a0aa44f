package classifier

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csic/platform/blockchain/indexer/internal/chain"
)

func parseABI(t *testing.T, functionNames ...string) *abi.ABI {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("[")
	for i, name := range functionNames {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"type":"function","name":"` + name + `","inputs":[],"outputs":[]}`)
	}
	sb.WriteString("]")

	parsed, err := abi.JSON(strings.NewReader(sb.String()))
	require.NoError(t, err)
	return &parsed
}

func TestClassify_ERC20(t *testing.T) {
	// S3: extra entries and non-canonical ordering must not change the result.
	contractABI := parseABI(t, "approve", "transfer", "totalSupply", "balanceOf")
	assert.Equal(t, chain.ContractTypeERC20, Classify(contractABI))
}

func TestClassify_ERC721(t *testing.T) {
	contractABI := parseABI(t, "ownerOf", "safeTransferFrom", "transferFrom")
	assert.Equal(t, chain.ContractTypeERC721, Classify(contractABI))
}

func TestClassify_ERC777(t *testing.T) {
	contractABI := parseABI(t, "granularity", "defaultOperators", "send")
	assert.Equal(t, chain.ContractTypeERC777, Classify(contractABI))
}

func TestClassify_ERC1155(t *testing.T) {
	contractABI := parseABI(t, "safeTransferFrom", "safeBatchTransferFrom", "balanceOf", "balanceOfBatch")
	assert.Equal(t, chain.ContractTypeERC1155, Classify(contractABI))
}

func TestClassify_UnknownOnEmptyOrNilABI(t *testing.T) {
	contractABI := parseABI(t)
	assert.Equal(t, chain.ContractTypeUnknown, Classify(contractABI))
	assert.Equal(t, chain.ContractTypeUnknown, Classify(nil))
}

func TestClassify_UnrelatedMethodsAreUnknown(t *testing.T) {
	contractABI := parseABI(t, "mint", "burn")
	assert.Equal(t, chain.ContractTypeUnknown, Classify(contractABI))
}
