package clock_test

import (
	"testing"
	"time"

	"github.com/artpar/rpcgate/adapters/clock"
)

func TestReal_Now(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestFake_SetAndAdvance(t *testing.T) {
	fixed := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(fixed)

	if !c.Now().Equal(fixed) {
		t.Errorf("Now() = %v, want %v", c.Now(), fixed)
	}

	c.Advance(90 * time.Second)
	if !c.Now().Equal(fixed.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v", c.Now())
	}

	later := fixed.Add(time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Now() after Set = %v", c.Now())
	}
}
