package clock

import (
	"testing"
	"time"
)

func TestRealNow(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Fatalf("Real.Now returned %v outside [%v, %v]", got, before, after)
	}
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	if got := fake.Now(); !got.Equal(start) {
		t.Fatalf("expected %v, got %v", start, got)
	}

	fake.Advance(90 * time.Second)
	if got := fake.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("expected advanced time, got %v", got)
	}

	fake.Set(start)
	if got := fake.Now(); !got.Equal(start) {
		t.Fatalf("expected reset time, got %v", got)
	}
}
