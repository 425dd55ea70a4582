package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{Delays: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}}

	tests := []struct {
		step int
		want time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{10, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.step); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.step, got, tt.want)
		}
	}

	if (Policy{}).Delay(3) != 0 {
		t.Error("empty policy should not wait")
	}
}

func TestPolicyExhausted(t *testing.T) {
	p := Fixed(time.Minute, 3)
	if p.Exhausted(2) {
		t.Error("Exhausted(2) = true, want false")
	}
	if !p.Exhausted(3) {
		t.Error("Exhausted(3) = false, want true")
	}
	if (Policy{}).Exhausted(1000) {
		t.Error("unlimited policy reported exhausted")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Wait(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait() did not return promptly")
	}
}
