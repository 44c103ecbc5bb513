package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})

	ctx := log.WithWalletID(context.Background(), "w-123")
	ctx = log.WithField(ctx, "op", "debit")
	log.Info(ctx, "debited wallet")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if line["wallet_id"] != "w-123" {
		t.Fatalf("expected wallet_id field, got %v", line["wallet_id"])
	}
	if line["op"] != "debit" {
		t.Fatalf("expected op field, got %v", line["op"])
	}
	if line["service"] != "test" {
		t.Fatalf("expected service field, got %v", line["service"])
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})

	log.Error(context.Background(), "boom", errors.New("disk full"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if line["error"] != "disk full" {
		t.Fatalf("expected error field, got %v", line["error"])
	}
	if _, ok := line["stack"]; !ok {
		t.Fatal("expected stack field on error log")
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := ParseLevel("nonsense"); got != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
	if got := ParseLevel("debug"); got != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %s", got)
	}
}
