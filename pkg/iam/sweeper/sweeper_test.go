package sweeper_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/custodia/pkg/iam/sweeper"
)

type countingTarget struct {
	deleted int
	calls   atomic.Int32
	err     error
}

func (t *countingTarget) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	t.calls.Add(1)
	return t.deleted, t.err
}

func TestSweep_AllTargets(t *testing.T) {
	a := &countingTarget{deleted: 3}
	b := &countingTarget{deleted: 0}

	s := sweeper.New(time.Minute).
		Register("access_tokens", a).
		Register("challenges", b)

	s.Sweep(context.Background())

	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Fatalf("every target must be swept once: a=%d b=%d", a.calls.Load(), b.calls.Load())
	}
}

func TestSweep_FailureDoesNotBlockOthers(t *testing.T) {
	bad := &countingTarget{err: errors.New("db down")}
	good := &countingTarget{deleted: 1}

	s := sweeper.New(time.Minute).
		Register("auth_codes", bad).
		Register("refresh_tokens", good)

	s.Sweep(context.Background())

	if good.calls.Load() != 1 {
		t.Fatal("healthy target must still be swept")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	target := &countingTarget{}
	s := sweeper.New(5 * time.Millisecond).Register("tokens", target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if target.calls.Load() == 0 {
		t.Fatal("expected at least one sweep before cancel")
	}
}
