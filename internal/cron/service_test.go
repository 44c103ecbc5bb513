package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

type stubLock struct {
	held     bool
	acquires int
	releases int
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	l.acquires++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *stubLock) Release(context.Context) error {
	l.releases++
	l.held = false
	return nil
}

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
}

func TestRunCycleExecutesAllJobsEvenAfterFailure(t *testing.T) {
	good := &stubJob{name: "good"}
	bad := &stubJob{name: "bad", err: errors.New("boom")}
	tail := &stubJob{name: "tail"}
	lock := &stubLock{}

	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(good, bad, tail),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	for _, job := range []*stubJob{good, bad, tail} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times, expected 1", job.name, job.runs)
		}
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released once, got %d", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &stubJob{name: "job"}
	lock := &stubLock{held: true}

	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no runs while lock held, got %d", job.runs)
	}
	if lock.releases != 0 {
		t.Fatal("skipped cycle must not release a lock it does not own")
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without lock")
	}
}

func TestRegistryIgnoresNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &stubJob{name: "only"})
	registry.Register(nil)
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("expected 1 job, got %d", got)
	}
}
