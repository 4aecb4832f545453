package periodic

import (
	"context"
	"testing"
	"time"
)

func withFakeClock(t *testing.T) *time.Time {
	t.Helper()
	Reset()
	current := time.Unix(1700000000, 0)
	setClock(func() time.Time { return current })
	t.Cleanup(func() {
		setClock(time.Now)
		Reset()
	})
	return &current
}

func TestSyncFiresOnColdStart(t *testing.T) {
	withFakeClock(t)

	runs := 0
	if ran := Sync(time.Second, func() { runs++ }); !ran {
		t.Fatalf("expected the first call to fire immediately")
	}
	if runs != 1 {
		t.Fatalf("expected 1 run, got %d", runs)
	}
}

func TestSyncRunsFloorOfWindowOverDelayPlusOne(t *testing.T) {
	clock := withFakeClock(t)

	const (
		delay  = 300 * time.Millisecond
		step   = 100 * time.Millisecond
		calls  = 10 // covers a window of 900ms
		expect = 4  // floor(900/300) + 1
	)

	runs := 0
	fn := func() { runs++ }
	for i := 0; i < calls; i++ {
		Sync(delay, fn)
		*clock = clock.Add(step)
	}

	if runs != expect {
		t.Fatalf("expected %d runs over the window, got %d", expect, runs)
	}
}

func TestSyncZeroDelayNeverSuppresses(t *testing.T) {
	withFakeClock(t)

	runs := 0
	fn := func() { runs++ }
	for i := 0; i < 5; i++ {
		if ran := Sync(0, fn); !ran {
			t.Fatalf("expected zero delay to disable suppression")
		}
	}
	if runs != 5 {
		t.Fatalf("expected 5 runs with zero delay, got %d", runs)
	}
}

func TestSyncTracksCallbackIdentitiesIndependently(t *testing.T) {
	withFakeClock(t)

	var aRuns, bRuns int
	a := func() { aRuns++ }
	b := func() { bRuns++ }

	Sync(time.Second, a)
	Sync(time.Second, b)
	Sync(time.Second, a)
	Sync(time.Second, b)

	if aRuns != 1 || bRuns != 1 {
		t.Fatalf("expected each identity to fire once, got a=%d b=%d", aRuns, bRuns)
	}
}

func TestAsyncSuppressedCallReturnsWithoutRunning(t *testing.T) {
	withFakeClock(t)

	runs := 0
	fn := func(context.Context) error {
		runs++
		return nil
	}

	ran, err := Async(context.Background(), time.Second, fn)
	if err != nil || !ran {
		t.Fatalf("expected first async call to run, ran=%v err=%v", ran, err)
	}
	ran, err = Async(context.Background(), time.Second, fn)
	if err != nil {
		t.Fatalf("unexpected error from suppressed call: %v", err)
	}
	if ran {
		t.Fatalf("expected second call within the delay to be suppressed")
	}
	if runs != 1 {
		t.Fatalf("expected exactly 1 run, got %d", runs)
	}
}

func TestAsyncFiresAgainAfterDeadline(t *testing.T) {
	clock := withFakeClock(t)

	runs := 0
	fn := func(context.Context) error {
		runs++
		return nil
	}

	Async(context.Background(), time.Second, fn)
	*clock = clock.Add(time.Second)
	ran, err := Async(context.Background(), time.Second, fn)
	if err != nil || !ran {
		t.Fatalf("expected call after the deadline to run, ran=%v err=%v", ran, err)
	}
	if runs != 2 {
		t.Fatalf("expected 2 runs, got %d", runs)
	}
}
