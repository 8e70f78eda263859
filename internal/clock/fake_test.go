package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(time.Unix(1000, 0))
	ch := c.After(50 * time.Millisecond)

	select {
	case <-ch:
		t.Fatal("timer fired before advance")
	default:
	}

	c.Advance(49 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("timer fired before deadline")
	default:
	}

	c.Advance(1 * time.Millisecond)
	select {
	case got := <-ch:
		want := time.Unix(1000, 0).Add(50 * time.Millisecond)
		if !got.Equal(want) {
			t.Errorf("fire time = %v, want %v", got, want)
		}
	default:
		t.Fatal("timer did not fire at deadline")
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(10*time.Millisecond, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop on pending timer returned false")
	}
	c.Advance(time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatal("second Stop returned true")
	}
}

func TestFakeAfterFuncOrder(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	var order []int
	c.AfterFunc(30*time.Millisecond, func() { order = append(order, 3) })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, 1) })
	c.AfterFunc(20*time.Millisecond, func() { order = append(order, 2) })

	c.Advance(time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("fire order = %v, want [1 2 3]", order)
	}
}

func TestFakeImmediateDelivery(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("zero-duration After did not deliver immediately")
	}

	ran := false
	c.AfterFunc(0, func() { ran = true })
	if !ran {
		t.Fatal("zero-duration AfterFunc did not run synchronously")
	}
}

func TestFakePendingCount(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	c.After(time.Second)
	timer := c.AfterFunc(time.Second, func() {})
	if got := c.PendingCount(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	timer.Stop()
	if got := c.PendingCount(); got != 1 {
		t.Fatalf("pending after stop = %d, want 1", got)
	}
	c.Advance(2 * time.Second)
	if got := c.PendingCount(); got != 0 {
		t.Fatalf("pending after advance = %d, want 0", got)
	}
}
