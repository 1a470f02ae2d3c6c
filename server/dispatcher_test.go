package server

import "testing"

func TestRespNotifierDeliversOnce(t *testing.T) {
	ch := make(chan respItem, 4)
	calls := 0
	noti := newRespNotifier(ch, 7, func() { calls++ })

	noti.Success([]byte("a"), nil)
	noti.Posix(1)     // must be a no-op, first call already won
	noti.Remote("no") // same

	if len(ch) != 1 {
		t.Fatalf("expected exactly one item on the channel, got %d", len(ch))
	}
	item := <-ch
	if item.flag != 0 || string(item.msg) != "a" {
		t.Fatalf("expected the first (Success) item to win, got %+v", item)
	}
	if calls != 1 {
		t.Fatalf("done callback must fire exactly once, fired %d times", calls)
	}
}

func TestRespNotifierDecodeFailStillCompletesOnce(t *testing.T) {
	ch := make(chan respItem, 4)
	calls := 0
	noti := newRespNotifier(ch, 3, func() { calls++ })

	noti.decodeFail("bad input")
	noti.Success([]byte("late"), nil)

	item := <-ch
	if item.flag != 2 {
		t.Fatalf("expected a remote-error item, got flag %d", item.flag)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one completion, got %d", calls)
	}
}
