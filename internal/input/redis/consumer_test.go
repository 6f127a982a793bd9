package redis

import (
	"context"
	"testing"
	"time"
)

func TestNewConsumerRequiresKey(t *testing.T) {
	if _, err := NewConsumer(Config{}); err == nil {
		t.Fatalf("expected error without key")
	}
}

func TestNewConsumerDefaults(t *testing.T) {
	c, err := NewConsumer(Config{Key: "auth_events"})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	defer c.Close()
	if c.blockTimeout != 5*time.Second {
		t.Fatalf("expected default block timeout, got %s", c.blockTimeout)
	}
	if c.client.Options().Addr != "127.0.0.1:6379" {
		t.Fatalf("expected default addr, got %s", c.client.Options().Addr)
	}
}

func TestPushWithoutPayloadsIsNoop(t *testing.T) {
	c, err := NewConsumer(Config{Addr: "127.0.0.1:1", Key: "k"})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	defer c.Close()
	if err := c.Push(context.Background()); err != nil {
		t.Fatalf("expected no error for empty push, got %v", err)
	}
}
