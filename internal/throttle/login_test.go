package throttle

import (
	"testing"
	"time"
)

func TestLoginAttemptThreshold(t *testing.T) {
	clock := newFakeClock()
	svc := NewLoginAttemptService(3, 8*time.Hour, WithLoginClock(clock.Now))
	defer svc.Close()

	// The threshold is strictly greater than maxAttempts: three failures
	// leave both keys unblocked.
	for i := 0; i < 3; i++ {
		svc.OnLoginFailed("alice", "10.0.0.1")
	}
	if svc.IsUsernameBlocked("alice") {
		t.Fatal("username blocked at the threshold")
	}
	if svc.IsIPBlocked("10.0.0.1") {
		t.Fatal("ip blocked at the threshold")
	}

	svc.OnLoginFailed("alice", "10.0.0.1")
	if !svc.IsUsernameBlocked("alice") {
		t.Fatal("username not blocked past the threshold")
	}
	if !svc.IsIPBlocked("10.0.0.1") {
		t.Fatal("ip not blocked past the threshold")
	}

	// Other keys remain unaffected.
	if svc.IsUsernameBlocked("bob") || svc.IsIPBlocked("10.0.0.2") {
		t.Fatal("unrelated keys blocked")
	}
}

func TestLoginAttemptKeyspacesIndependent(t *testing.T) {
	clock := newFakeClock()
	svc := NewLoginAttemptService(2, time.Hour, WithLoginClock(clock.Now))
	defer svc.Close()

	// Same IP, different usernames: only the IP accumulates past the limit.
	svc.OnLoginFailed("alice", "10.0.0.1")
	svc.OnLoginFailed("bob", "10.0.0.1")
	svc.OnLoginFailed("carol", "10.0.0.1")

	if svc.IsUsernameBlocked("alice") || svc.IsUsernameBlocked("bob") || svc.IsUsernameBlocked("carol") {
		t.Fatal("usernames blocked on a single failure each")
	}
	if !svc.IsIPBlocked("10.0.0.1") {
		t.Fatal("shared ip not blocked")
	}
}

func TestLoginAttemptWindowExpiry(t *testing.T) {
	clock := newFakeClock()
	svc := NewLoginAttemptService(1, time.Hour, WithLoginClock(clock.Now))
	defer svc.Close()

	svc.OnLoginFailed("alice", "10.0.0.1")
	svc.OnLoginFailed("alice", "10.0.0.1")
	if !svc.IsUsernameBlocked("alice") {
		t.Fatal("username not blocked")
	}

	clock.Advance(61 * time.Minute)
	if svc.IsUsernameBlocked("alice") {
		t.Fatal("username still blocked after the window elapsed")
	}
	if svc.IsIPBlocked("10.0.0.1") {
		t.Fatal("ip still blocked after the window elapsed")
	}
}

func TestLoginAttemptSlidingWindow(t *testing.T) {
	clock := newFakeClock()
	svc := NewLoginAttemptService(1, time.Hour, WithLoginClock(clock.Now))
	defer svc.Close()

	svc.OnLoginFailed("alice", "10.0.0.1")
	clock.Advance(59 * time.Minute)
	// A fresh failure keeps the streak alive past the original expiry.
	svc.OnLoginFailed("alice", "10.0.0.1")
	clock.Advance(59 * time.Minute)

	if !svc.IsUsernameBlocked("alice") {
		t.Fatal("sliding window did not extend the block")
	}
}

func TestLoginSuccessDoesNotReset(t *testing.T) {
	clock := newFakeClock()
	svc := NewLoginAttemptService(2, time.Hour, WithLoginClock(clock.Now))
	defer svc.Close()

	svc.OnLoginFailed("alice", "10.0.0.1")
	svc.OnLoginFailed("alice", "10.0.0.1")
	svc.OnLoginSucceeded("alice", "10.0.0.1")
	svc.OnLoginFailed("alice", "10.0.0.1")

	if !svc.IsUsernameBlocked("alice") {
		t.Fatal("success reset the failure counter")
	}
}

func TestLoginCheckDoesNotMutate(t *testing.T) {
	clock := newFakeClock()
	svc := NewLoginAttemptService(2, time.Hour, WithLoginClock(clock.Now))
	defer svc.Close()

	svc.OnLoginFailed("alice", "10.0.0.1")
	for i := 0; i < 10; i++ {
		svc.IsUsernameBlocked("alice")
		svc.IsIPBlocked("10.0.0.1")
	}
	if svc.IsUsernameBlocked("alice") || svc.IsIPBlocked("10.0.0.1") {
		t.Fatal("repeated checks counted as failures")
	}
}
