package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrClosed is returned by Pop after Close.
var ErrClosed = errors.New("kafka consumer closed")

// Config configures the Kafka consumer.
type Config struct {
	Brokers []string
	Topic   string
	// Group enables consumer-group offset tracking. Without it the topic is
	// read from the end by a standalone consumer.
	Group          string
	MaxPollRecords int
}

// Consumer reads access events from a Kafka topic. Pop is not safe for
// concurrent use; the pipeline calls it from a single read loop.
type Consumer struct {
	client  *kgo.Client
	maxPoll int
	pending []*kgo.Record
}

// NewConsumer creates a Kafka consumer.
func NewConsumer(cfg Config) (*Consumer, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	maxPoll := cfg.MaxPollRecords
	if maxPoll <= 0 {
		maxPoll = 500
	}
	return &Consumer{client: client, maxPoll: maxPoll}, nil
}

func clientOptions(cfg Config) ([]kgo.Opt, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
	}
	if cfg.Group != "" {
		opts = append(opts, kgo.ConsumerGroup(cfg.Group))
	}
	return opts, nil
}

// Pop returns the next record value, polling the brokers when the local
// buffer is empty. It returns nil, nil when a poll yields nothing.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	if len(c.pending) == 0 {
		fetches := c.client.PollRecords(ctx, c.maxPoll)
		if fetches.IsClientClosed() {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var firstErr error
		fetches.EachError(func(topic string, partition int32, err error) {
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch %s[%d]: %w", topic, partition, err)
			}
		})
		c.pending = fetches.Records()
		if len(c.pending) == 0 {
			return nil, firstErr
		}
	}

	rec := c.pending[0]
	c.pending[0] = nil
	c.pending = c.pending[1:]
	return rec.Value, nil
}

// Close leaves the group (if any) and closes the client.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}
