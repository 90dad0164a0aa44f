// Package notifier publishes IndexerEvent and token-transfer-event messages
// to a message bus after each block/log completes (C12), for downstream
// consumers that prefer push notification over polling the store. Publish
// failures are logged, never propagated to the block/log workflow, matching
// the "never fatal" ambient-concern rule in SPEC_FULL.md §4.12.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/csic/platform/blockchain/indexer/internal/chain"
)

const (
	blocksTopic         = "indexer.blocks"
	tokenTransfersTopic = "indexer.token_transfers"
)

// Notifier owns one *kafka.Writer per topic, grounded on
// services/audit-log/internal/adapter/messaging/kafka_producer.go and
// compliance/internal/messaging/kafka.go's map[string]*kafka.Writer shape.
type Notifier struct {
	writers map[string]*kafka.Writer
	logger  *zap.Logger
}

// New builds a Notifier with one writer per known topic, addressed against
// brokers. topicPrefix, if set, is the producer-side convention for
// namespacing topics across environments.
func New(brokers []string, topicPrefix string, logger *zap.Logger) *Notifier {
	n := &Notifier{writers: make(map[string]*kafka.Writer), logger: logger}
	for _, topic := range []string{blocksTopic, tokenTransfersTopic} {
		n.writers[topic] = newWriter(brokers, withPrefix(topicPrefix, topic))
	}
	return n
}

func withPrefix(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return fmt.Sprintf("%s.%s", prefix, topic)
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

// PublishBlockIndexed publishes one BlockIndexedEvent. A publish error is
// logged by the caller's choice; this method returns the error so callers
// that want to log with additional fields (block number, task id) can do so
// at the call site, matching the workflow package's error-wrapping style.
func (n *Notifier) PublishBlockIndexed(ctx context.Context, event chain.BlockIndexedEvent) error {
	return n.publish(ctx, blocksTopic, fmt.Sprintf("%d", event.BlockNumber), event)
}

// PublishTokenTransfer publishes one TokenTransferEvent.
func (n *Notifier) PublishTokenTransfer(ctx context.Context, event chain.TokenTransferEvent) error {
	return n.publish(ctx, tokenTransfersTopic, event.TransactionHash, event)
}

func (n *Notifier) publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for topic %q: %w", topic, err)
	}

	writer, ok := n.writers[topic]
	if !ok {
		return fmt.Errorf("no writer registered for topic %q", topic)
	}

	if err := writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("failed to publish to topic %q: %w", topic, err)
	}
	return nil
}

// Close flushes and closes every writer.
func (n *Notifier) Close() error {
	var firstErr error
	for topic, writer := range n.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for topic %q: %w", topic, err)
		}
	}
	return firstErr
}
