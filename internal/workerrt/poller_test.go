package workerrt

import "testing"

func TestJobTracker_ClaimIsIdempotent(t *testing.T) {
	tr := newJobTracker(2)

	if !tr.claim("job-1") {
		t.Fatal("expected first claim of job-1 to succeed")
	}
	if tr.claim("job-1") {
		t.Fatal("expected second claim of job-1 to be rejected")
	}
	if tr.active() != 1 {
		t.Fatalf("active = %d, want 1", tr.active())
	}
}

func TestJobTracker_CapacityLimit(t *testing.T) {
	tr := newJobTracker(1)

	if !tr.hasCapacity() {
		t.Fatal("expected capacity before any claim")
	}
	tr.claim("job-1")
	if tr.hasCapacity() {
		t.Fatal("expected no capacity once limit reached")
	}

	tr.release("job-1")
	if !tr.hasCapacity() {
		t.Fatal("expected capacity restored after release")
	}
	if !tr.claim("job-1") {
		t.Fatal("expected job-1 claimable again after release")
	}
}
