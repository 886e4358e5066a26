package timers

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestResetFiresOnce(t *testing.T) {
	r := New(nil)
	defer r.Stop()

	var fired atomic.Int32
	r.Reset("conv", ClassIdle, 20*time.Millisecond, func() {
		fired.Add(1)
	})

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly one fire, got %d", got)
	}
	if r.Active("conv", ClassIdle) {
		t.Error("fired timer still registered")
	}
}

func TestResetCancelsPrevious(t *testing.T) {
	r := New(nil)
	defer r.Stop()

	var first, second atomic.Int32
	r.Reset("conv", ClassIdle, 30*time.Millisecond, func() { first.Add(1) })
	r.Reset("conv", ClassIdle, 30*time.Millisecond, func() { second.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Error("replaced callback still fired")
	}
	if second.Load() != 1 {
		t.Errorf("expected replacement to fire once, got %d", second.Load())
	}
}

func TestClassesAreIndependent(t *testing.T) {
	r := New(nil)
	defer r.Stop()

	var idle, attendant atomic.Int32
	r.Reset("conv", ClassIdle, 20*time.Millisecond, func() { idle.Add(1) })
	r.Reset("conv", ClassAttendant, 20*time.Millisecond, func() { attendant.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if idle.Load() != 1 || attendant.Load() != 1 {
		t.Errorf("both classes should fire: idle=%d attendant=%d", idle.Load(), attendant.Load())
	}
}

func TestCancel(t *testing.T) {
	r := New(nil)
	defer r.Stop()

	var fired atomic.Int32
	r.Reset("conv", ClassIdle, 20*time.Millisecond, func() { fired.Add(1) })
	r.Cancel("conv", ClassIdle)

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("cancelled timer fired")
	}
	if r.Active("conv", ClassIdle) {
		t.Error("cancelled timer still registered")
	}
}

func TestCancelAll(t *testing.T) {
	r := New(nil)
	defer r.Stop()

	var fired atomic.Int32
	r.Reset("conv", ClassIdle, 20*time.Millisecond, func() { fired.Add(1) })
	r.Reset("conv", ClassAttendant, 20*time.Millisecond, func() { fired.Add(1) })
	r.Reset("other", ClassIdle, 20*time.Millisecond, func() { fired.Add(1) })
	r.CancelAll("conv")

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("only the other conversation's timer should fire, got %d", fired.Load())
	}
}

func TestStopRefusesNewTimers(t *testing.T) {
	r := New(nil)

	var fired atomic.Int32
	r.Reset("conv", ClassIdle, 20*time.Millisecond, func() { fired.Add(1) })
	r.Stop()
	r.Reset("conv", ClassIdle, 20*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("no timer should fire after Stop, got %d", fired.Load())
	}
}
