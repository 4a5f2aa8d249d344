package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitForListCalls(t *testing.T, f *engineFixture, want int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for f.venue.listCallCount() < want {
		select {
		case <-deadline:
			t.Fatalf("expected at least %d cycle attempts, got %d", want, f.venue.listCallCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunSurvivesFailingCyclesUntilCanceled(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "20ms")

	f := newEngineFixture(t)
	f.venue.listErr = errors.New("venue down")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.Run(ctx, nil)
		close(done)
	}()

	// The initial pass plus at least two ticks, every one of them failing.
	waitForListCalls(t, f, 3)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestRunNudgeTriggersCycle(t *testing.T) {
	// Park the ticker so only the initial pass and nudges can fire.
	t.Setenv("RECONCILE_INTERVAL", "1h")

	f := newEngineFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	nudges := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		f.engine.Run(ctx, nudges)
		close(done)
	}()

	waitForListCalls(t, f, 1)

	nudges <- struct{}{}
	waitForListCalls(t, f, 2)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}
