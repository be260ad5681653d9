package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	got := c.Now()
	if got.Before(before) {
		t.Errorf("Now() = %v, before %v", got, before)
	}
	if c.Since(before) < 0 {
		t.Error("Since() returned a negative duration")
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Second)
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since() after Advance = %v, want 90s", got)
	}

	later := start.Add(time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", c.Now(), later)
	}
}

func TestMockClock_Step(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewMockClock(start)
	c.SetStep(250 * time.Millisecond)

	first := c.Now()
	second := c.Now()
	if !first.Equal(start) {
		t.Errorf("first Now() = %v, want %v", first, start)
	}
	if got := second.Sub(first); got != 250*time.Millisecond {
		t.Errorf("step = %v, want 250ms", got)
	}
	// Since does not advance the clock
	if c.Since(start) != c.Since(start) {
		t.Error("Since() advanced the clock")
	}
}
