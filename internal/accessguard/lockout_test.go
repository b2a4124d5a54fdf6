package accessguard

import (
	"testing"
	"time"
)

func TestLoginAttemptTracker_LocksAfterMaxAttempts(t *testing.T) {
	tr := NewLoginAttemptTracker(5, 15*time.Minute)

	for i := 0; i < 4; i++ {
		tr.RecordFailure("alice")
		if tr.IsLocked("alice") {
			t.Fatalf("should not be locked after %d failures", i+1)
		}
	}
	tr.RecordFailure("alice")
	if !tr.IsLocked("alice") {
		t.Fatal("expected lockout after 5 failures")
	}
	if remaining := tr.RemainingAttempts("alice"); remaining != 0 {
		t.Errorf("expected 0 remaining attempts while locked, got %d", remaining)
	}
}

func TestLoginAttemptTracker_SuccessClearsState(t *testing.T) {
	tr := NewLoginAttemptTracker(5, 15*time.Minute)

	for i := 0; i < 3; i++ {
		tr.RecordFailure("bob")
	}
	tr.RecordSuccess("bob")

	if tr.IsLocked("bob") {
		t.Fatal("success should clear lockout state")
	}
	if remaining := tr.RemainingAttempts("bob"); remaining != 5 {
		t.Errorf("expected full attempts restored, got %d", remaining)
	}
}

func TestLoginAttemptTracker_LockoutRemaining(t *testing.T) {
	tr := NewLoginAttemptTracker(1, time.Minute)
	tr.RecordFailure("carol")

	remaining, locked := tr.LockoutRemaining("carol")
	if !locked {
		t.Fatal("expected carol to be locked")
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Errorf("unexpected lockout remaining: %v", remaining)
	}

	if _, locked := tr.LockoutRemaining("dave"); locked {
		t.Error("dave was never locked")
	}
}

func TestGenerateAndHashToken(t *testing.T) {
	tok1, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	tok2, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if tok1 == tok2 {
		t.Error("expected distinct tokens")
	}
	if len(tok1) != 64 {
		t.Errorf("expected 64-char hex token, got %d chars", len(tok1))
	}

	h1 := HashToken(tok1)
	h2 := HashToken(tok1)
	if h1 != h2 {
		t.Error("hashing the same token twice should be deterministic")
	}
	if h1 == tok1 {
		t.Error("hash should not equal the raw token")
	}
}
