package clock

import (
	"reflect"
	"testing"
	"time"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var fired []string

	m.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	m.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	m.AfterFunc(5*time.Second, func() { fired = append(fired, "c") })

	m.Advance(3 * time.Second)

	if !reflect.DeepEqual(fired, []string{"a", "b"}) {
		t.Fatalf("unexpected firing order: %v", fired)
	}
	if m.Pending() != 1 {
		t.Fatalf("expected one pending timer, got %d", m.Pending())
	}
	if got := m.Now(); !got.Equal(time.Unix(3, 0)) {
		t.Fatalf("unexpected now: %v", got)
	}
}

func TestManualRunsRescheduledCallbacksWithinWindow(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ticks := 0

	var tick func()
	tick = func() {
		ticks++
		m.AfterFunc(time.Second, tick)
	}
	m.AfterFunc(time.Second, tick)

	m.Advance(4 * time.Second)
	if ticks != 4 {
		t.Fatalf("expected 4 ticks, got %d", ticks)
	}
}

func TestManualStopCancelsCallback(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false

	timer := m.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("expected Stop to report a pending timer")
	}
	if timer.Stop() {
		t.Fatal("second Stop should report false")
	}

	m.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
}
