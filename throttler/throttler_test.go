package throttler

import (
	"testing"
	"time"
)

func TestDisabledThrottlerNeverBlocks(t *testing.T) {
	th := New(0)
	if th.NearlyFull() {
		t.Fatal("disabled throttler should never be nearly full")
	}
	for i := 0; i < 1000; i++ {
		th.AddTask()
	}
	if !th.Throttle() {
		t.Fatal("disabled throttler must always admit")
	}
}

func TestThrottleBlocksAtThreshold(t *testing.T) {
	th := New(2)
	g1 := th.AddTask()
	g2 := th.AddTask()
	if !th.NearlyFull() {
		t.Fatal("expected nearly full at threshold")
	}

	admitted := make(chan bool, 1)
	go func() { admitted <- th.Throttle() }()

	select {
	case <-admitted:
		t.Fatal("throttle admitted before a slot freed")
	case <-time.After(50 * time.Millisecond):
	}

	g1.Done()
	select {
	case ok := <-admitted:
		if !ok {
			t.Fatal("expected admission after release")
		}
	case <-time.After(time.Second):
		t.Fatal("throttle never woke after release")
	}
	g2.Done()
}

func TestCloseUnblocksWaiters(t *testing.T) {
	th := New(1)
	th.AddTask()

	result := make(chan bool, 1)
	go func() { result <- th.Throttle() }()

	time.Sleep(20 * time.Millisecond)
	th.Close()

	select {
	case ok := <-result:
		if ok {
			t.Fatal("expected Throttle to report false after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("throttle never woke after close")
	}
}
