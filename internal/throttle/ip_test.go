package throttle

import (
	"testing"
	"time"
)

func TestIPThrottleBudget(t *testing.T) {
	clock := newFakeClock()
	throttle := NewIPThrottle(5, time.Minute, WithIPClock(clock.Now))
	defer throttle.Close()

	for i := 0; i < 5; i++ {
		if throttle.ShouldBlock("10.0.0.1") {
			t.Fatalf("request %d blocked inside the budget", i+1)
		}
	}
	if !throttle.ShouldBlock("10.0.0.1") {
		t.Fatal("request over budget not blocked")
	}
	// Other IPs keep their own budget.
	if throttle.ShouldBlock("10.0.0.2") {
		t.Fatal("unrelated ip blocked")
	}
}

func TestIPThrottleFixedWindowReset(t *testing.T) {
	clock := newFakeClock()
	throttle := NewIPThrottle(2, time.Minute, WithIPClock(clock.Now))
	defer throttle.Close()

	throttle.ShouldBlock("10.0.0.1")
	throttle.ShouldBlock("10.0.0.1")
	if !throttle.ShouldBlock("10.0.0.1") {
		t.Fatal("third request not blocked")
	}

	clock.Advance(61 * time.Second)
	if throttle.ShouldBlock("10.0.0.1") {
		t.Fatal("budget not reset after the window elapsed")
	}
}

func TestIPThrottleWindowNotExtendedByTraffic(t *testing.T) {
	clock := newFakeClock()
	throttle := NewIPThrottle(100, time.Minute, WithIPClock(clock.Now))
	defer throttle.Close()

	throttle.ShouldBlock("10.0.0.1")
	clock.Advance(59 * time.Second)
	// Mid-window traffic must not slide the window forward.
	throttle.ShouldBlock("10.0.0.1")
	clock.Advance(2 * time.Second)

	// Counter restarted: a fresh window begins at 1.
	for i := 0; i < 99; i++ {
		if throttle.ShouldBlock("10.0.0.1") {
			t.Fatalf("request %d blocked in a fresh window", i+1)
		}
	}
}
