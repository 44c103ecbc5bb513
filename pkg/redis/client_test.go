package redis

import (
	"testing"

	"github.com/bazaarly/bazaarly-backend/pkg/config"
)

func configRedis(url string) config.RedisConfig {
	return config.RedisConfig{URL: url}
}

func TestBuildKeyNamespacesAndSkipsEmptyParts(t *testing.T) {
	c := &Client{}

	if got := c.IdempotencyKey("gateway", "evt_123"); got != "bz:idempotency:gateway:evt_123" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := c.IdempotencyKey("", "evt_123"); got != "bz:idempotency:evt_123" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := c.LockKey("cron:subscription-billing"); got != "bz:lock:cron:subscription-billing" {
		t.Fatalf("unexpected lock key: %s", got)
	}
}

func TestOptionsFromConfigRequiresURLOrAddress(t *testing.T) {
	if _, err := optionsFromConfig(configRedis("")); err == nil {
		t.Fatal("expected error when url and address are empty")
	}
	opts, err := optionsFromConfig(configRedis("redis://localhost:6379/2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" {
		t.Fatalf("unexpected addr: %s", opts.Addr)
	}
	if opts.DB != 2 {
		t.Fatalf("db from url should win, got %d", opts.DB)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	c := &Client{}
	if err := c.Ping(nil); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
}
