package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bazaarly/bazaarly-backend/pkg/config"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox"
)

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	fetchErr  error
}

func (f *fakeRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakePinger struct{}

func (fakePinger) Ping(context.Context) error { return nil }

type fakePublisher struct {
	messages []*gcppubsub.Message
	errs     []error
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	return fakePublishResult{err: err}
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "msg-1", f.err
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
		DB:         fakePinger{},
		PubSub:     fakePinger{},
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func envelopePayload(t *testing.T, eventID string) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

func pendingEvent(t *testing.T, eventID string) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventWalletToppedUp,
		AggregateType: enums.AggregateWallet,
		AggregateID:   uuid.NewString(),
		Payload:       envelopePayload(t, eventID),
		CreatedAt:     time.Now().UTC(),
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	first := pendingEvent(t, "evt-1")
	second := pendingEvent(t, "evt-2")
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{}

	svc := newTestService(t, repo, pub)
	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report work done")
	}
	if len(repo.published) != 2 || len(repo.failed) != 0 {
		t.Fatalf("expected 2 published and 0 failed, got %d/%d", len(repo.published), len(repo.failed))
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(pub.messages))
	}
	if got := pub.messages[0].Attributes["event_id"]; got != "evt-1" {
		t.Fatalf("expected event_id attribute evt-1, got %q", got)
	}
	if got := pub.messages[0].Attributes["event_type"]; got != string(enums.EventWalletToppedUp) {
		t.Fatalf("unexpected event_type attribute %q", got)
	}
}

func TestProcessBatchFailureDoesNotBlockRest(t *testing.T) {
	failing := pendingEvent(t, "evt-bad")
	ok := pendingEvent(t, "evt-ok")
	repo := &fakeRepo{events: []models.OutboxEvent{failing, ok}}
	pub := &fakePublisher{errs: []error{errors.New("broker unavailable")}}

	svc := newTestService(t, repo, pub)
	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report work done")
	}
	if len(repo.failed) != 1 || repo.failed[0] != failing.ID {
		t.Fatalf("expected failing event marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != ok.ID {
		t.Fatalf("expected second event published, got %v", repo.published)
	}
}

func TestProcessBatchMalformedPayloadMarkedFailed(t *testing.T) {
	broken := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrderGroup,
		AggregateID:   "ORD-AB12CD34EF",
		Payload:       json.RawMessage(`not-json`),
		CreatedAt:     time.Now().UTC(),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{broken}}
	pub := &fakePublisher{}

	svc := newTestService(t, repo, pub)
	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected malformed event marked failed, got %v", repo.failed)
	}
	if len(pub.messages) != 0 {
		t.Fatal("malformed payload must not be published")
	}
}

func TestProcessBatchEmptyQueueReportsIdle(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{})
	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatal("expected idle batch")
	}
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	base := 500 * time.Millisecond
	current := nextBackoff(base, base, maxBackoff)
	if current != time.Second {
		t.Fatalf("expected 1s, got %v", current)
	}
	for i := 0; i < 10; i++ {
		current = nextBackoff(current, base, maxBackoff)
	}
	if current != maxBackoff {
		t.Fatalf("expected cap %v, got %v", maxBackoff, current)
	}
}
