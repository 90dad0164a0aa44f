package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetVerifiedContract_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"abi":[{"type":"function","name":"totalSupply"}],"name":"MyToken","source_code":"contract MyToken {}"}`))
	}))
	defer server.Close()

	client := New(server.URL, "", zap.NewNop())
	info := client.GetVerifiedContract(context.Background(), "0xabc")

	require.NotNil(t, info)
	assert.Equal(t, "MyToken", info.ContractName)
	assert.Equal(t, "contract MyToken {}", info.SourceCode)
}

func TestGetVerifiedContract_404IsMissingNotError(t *testing.T) {
	// S6: a 404 must never be surfaced as an error, only as Missing (nil).
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "", zap.NewNop())
	info := client.GetVerifiedContract(context.Background(), "0xC000000000000000000000000000000000000C")

	assert.Nil(t, info)
}

func TestGetVerifiedContract_5xxIsMissingNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "", zap.NewNop())
	info := client.GetVerifiedContract(context.Background(), "0xabc")

	assert.Nil(t, info)
}

func TestGetVerifiedContract_MalformedJSONIsMissingNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := New(server.URL, "", zap.NewNop())
	info := client.GetVerifiedContract(context.Background(), "0xabc")

	assert.Nil(t, info)
}
