package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithPrefix_EmptyPrefixReturnsBareTopic(t *testing.T) {
	assert.Equal(t, "indexer.blocks", withPrefix("", "indexer.blocks"))
}

func TestWithPrefix_NonEmptyPrefixIsJoined(t *testing.T) {
	assert.Equal(t, "staging.indexer.blocks", withPrefix("staging", "indexer.blocks"))
}

func TestNew_RegistersOneWriterPerKnownTopic(t *testing.T) {
	n := New([]string{"localhost:9092"}, "", nil)
	assert.Len(t, n.writers, 2)
	assert.Contains(t, n.writers, blocksTopic)
	assert.Contains(t, n.writers, tokenTransfersTopic)
}
