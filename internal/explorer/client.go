// Package explorer fetches verified contract metadata for an address from
// an external REST explorer (C3). No third-party HTTP client library
// appears anywhere in the retrieved corpus for an outbound REST call (the
// corpus's HTTP library usage is all server-side, via gin); net/http is the
// justified, grounded-in-absence choice here.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/csic/platform/blockchain/indexer/internal/chain"
)

// Client talks to a Blockscout-compatible explorer API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	logger     *zap.Logger
}

// New builds a Client with the 60s timeout spec.md §4.3 requires.
func New(endpoint, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

type smartContractResponse struct {
	ABI                  json.RawMessage `json:"abi"`
	AdditionalSources    json.RawMessage `json:"additional_sources"`
	CompilerSettings     json.RawMessage `json:"compiler_settings"`
	CompilerVersion      string          `json:"compiler_version"`
	ConstructorArguments string          `json:"constructor_args"`
	Name                 string          `json:"name"`
	EVMVersion           string          `json:"evm_version"`
	FileName             string          `json:"file_path"`
	IsProxy              bool            `json:"is_proxy"`
	OptimizationEnabled  bool            `json:"optimization_enabled"`
	SourceCode           string          `json:"source_code"`
}

// GetVerifiedContract fetches metadata for address. A nil result (Missing)
// is returned — never an error — for 404s, other 4xx/5xx, and JSON parse
// failures, matching spec.md §4.3's "never fatal to the enclosing tx
// workflow" policy (IP7).
func (c *Client) GetVerifiedContract(ctx context.Context, address string) *chain.ContractInfo {
	url := fmt.Sprintf("%s/api/v2/smart-contracts/%s", c.endpoint, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error("failed to build explorer request", zap.String("address", address), zap.Error(err))
		return nil
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("explorer request failed", zap.String("address", address), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("explorer returned non-2xx status",
			zap.String("address", address), zap.Int("status", resp.StatusCode))
		return nil
	}

	var payload smartContractResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn("failed to parse explorer response", zap.String("address", address), zap.Error(err))
		return nil
	}

	return &chain.ContractInfo{
		ABI:                  payload.ABI,
		AdditionalSources:    payload.AdditionalSources,
		CompilerSettings:     payload.CompilerSettings,
		CompilerVersion:      payload.CompilerVersion,
		ConstructorArguments: payload.ConstructorArguments,
		ContractName:         payload.Name,
		EVMVersion:           payload.EVMVersion,
		FileName:             payload.FileName,
		IsProxy:              payload.IsProxy,
		OptimizationUsed:     payload.OptimizationEnabled,
		SourceCode:           payload.SourceCode,
	}
}
