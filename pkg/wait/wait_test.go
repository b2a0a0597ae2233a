package wait

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUntilImmediateSuccess(t *testing.T) {
	ok, err := Until(context.Background(), func() (bool, error) { return true, nil }, Options{
		Timeout:  time.Second,
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok")
	}
}

func TestUntilEventualSuccess(t *testing.T) {
	start := time.Now()
	calls := 0
	ok, err := Until(context.Background(), func() (bool, error) {
		calls++
		return time.Since(start) >= 60*time.Millisecond, nil
	}, Options{
		Timeout:       time.Second,
		Interval:      10 * time.Millisecond,
		FailOnTimeout: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok")
	}
	if calls < 2 {
		t.Fatalf("expected multiple polls, got %d", calls)
	}
}

func TestUntilTimeoutBounds(t *testing.T) {
	const timeout = 100 * time.Millisecond
	const interval = 20 * time.Millisecond

	start := time.Now()
	_, err := Until(context.Background(), func() (bool, error) { return false, nil }, Options{
		Timeout:       timeout,
		Interval:      interval,
		FailOnTimeout: true,
		What:          "never",
	})
	elapsed := time.Since(start)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.What != "never" {
		t.Errorf("What = %q, want %q", te.What, "never")
	}
	if elapsed < timeout {
		t.Errorf("returned after %s, before the %s deadline", elapsed, timeout)
	}
	// One poll interval of slack past the deadline, plus scheduling noise.
	if elapsed > timeout+interval+50*time.Millisecond {
		t.Errorf("returned after %s, too long past the %s deadline", elapsed, timeout)
	}
}

func TestUntilNoFailSwallowsTimeout(t *testing.T) {
	ok, err := Until(context.Background(), func() (bool, error) { return false, nil }, Options{
		Timeout:  50 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("no-fail wait returned error: %v", err)
	}
	if ok {
		t.Fatal("expected falsy result")
	}
}

func TestUntilConditionErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Until(context.Background(), func() (bool, error) {
		calls++
		return false, boom
	}, Options{Timeout: time.Second, Interval: 10 * time.Millisecond})
	if !errors.Is(err, boom) {
		t.Fatalf("expected condition error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("condition called %d times, want 1", calls)
	}
}

func TestUntilContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := Until(ctx, func() (bool, error) { return false, nil }, Options{
		Timeout:  5 * time.Second,
		Interval: 10 * time.Millisecond,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestForReturnsValue(t *testing.T) {
	start := time.Now()
	v, ok, err := For(context.Background(), func() (string, bool, error) {
		if time.Since(start) < 40*time.Millisecond {
			return "", false, nil
		}
		return "ready", true, nil
	}, Options{Timeout: time.Second, Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || v != "ready" {
		t.Fatalf("got (%q, %v), want (ready, true)", v, ok)
	}
}

func TestRaceFirstWinnerWins(t *testing.T) {
	start := time.Now()
	contenders := []Contender[int]{
		{Name: "slow", Probe: func() (int, bool, error) {
			return 1, time.Since(start) >= 500*time.Millisecond, nil
		}},
		{Name: "fast", Probe: func() (int, bool, error) {
			return 2, time.Since(start) >= 30*time.Millisecond, nil
		}},
	}
	winner, v, err := Race(context.Background(), contenders, Options{
		Timeout:  2 * time.Second,
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winner != 1 || v != 2 {
		t.Fatalf("got winner=%d value=%d, want winner=1 value=2", winner, v)
	}
}

func TestRaceAllLoseNoFail(t *testing.T) {
	contenders := []Contender[int]{
		{Name: "a", Probe: func() (int, bool, error) { return 0, false, nil }},
		{Name: "b", Probe: func() (int, bool, error) { return 0, false, nil }},
	}
	winner, _, err := Race(context.Background(), contenders, Options{
		Timeout:  50 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("no-fail race returned error: %v", err)
	}
	if winner != -1 {
		t.Fatalf("winner = %d, want -1", winner)
	}
}

func TestDeadlineBudget(t *testing.T) {
	var d Deadline
	d.Start(80*time.Millisecond, "two-step action")

	if err := d.Test(); err != nil {
		t.Fatalf("fresh budget reported %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	err := d.Test()
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.What != "two-step action" {
		t.Errorf("What = %q", te.What)
	}
	if !d.Expired() {
		t.Error("Expired() = false after deadline passed")
	}
}

func TestDeadlineTestWithoutStart(t *testing.T) {
	var d Deadline
	if err := d.Test(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if d.Expired() {
		t.Error("unstarted deadline reports expired")
	}
	if d.Remaining() != 0 {
		t.Error("unstarted deadline reports remaining time")
	}
}
