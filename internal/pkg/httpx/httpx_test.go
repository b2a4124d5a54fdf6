package httpx

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := map[int]bool{
		200: false,
		400: false,
		404: false,
		408: true,
		429: true,
		500: true,
		503: true,
		599: true,
		600: false,
	}
	for code, want := range cases {
		if got := IsRetryableHTTPStatus(code); got != want {
			t.Errorf("IsRetryableHTTPStatus(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestExponentialBackoff_CapsAtMax(t *testing.T) {
	max := 10 * time.Second
	d := ExponentialBackoff(10, 1*time.Second, max)
	if d > max {
		t.Errorf("ExponentialBackoff exceeded max: got %v, max %v", d, max)
	}
}

func TestExponentialBackoff_Grows(t *testing.T) {
	max := time.Hour
	d0 := ExponentialBackoff(0, 1*time.Second, max)
	d3 := ExponentialBackoff(3, 1*time.Second, max)
	if d3 <= d0 {
		t.Errorf("expected backoff to grow with attempt count: d0=%v d3=%v", d0, d3)
	}
}
