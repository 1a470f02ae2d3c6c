package pending

import (
	"testing"
	"time"

	"corerpc/retrysink"
	"corerpc/rpcerr"
	"corerpc/throttler"
)

type fakeTask struct {
	err       chan error
	forwarded chan struct{}
}

func newFakeTask() *fakeTask {
	return &fakeTask{err: make(chan error, 1), forwarded: make(chan struct{}, 1)}
}

func (f *fakeTask) Fail(err error) {
	f.err <- err
}

func (f *fakeTask) Forwarded() {
	f.forwarded <- struct{}{}
}

func TestRegisterAndTake(t *testing.T) {
	r := New(time.Second, nil)
	task := newFakeTask()
	th := throttler.New(0)
	if err := r.RegTask(1, task, th.AddTask()); err != nil {
		t.Fatalf("reg: %v", err)
	}
	got, ok := r.TakeTask(1)
	if !ok || got != task {
		t.Fatal("expected to take back the same task")
	}
	if _, ok := r.TakeTask(1); ok {
		t.Fatal("second take of the same seq must miss")
	}
}

func TestTakeUnknownSeqMisses(t *testing.T) {
	r := New(time.Second, nil)
	if _, ok := r.TakeTask(999); ok {
		t.Fatal("unknown seq must not be found")
	}
}

func TestAdjustTaskQueueExpiresOldest(t *testing.T) {
	r := New(10 * time.Millisecond, nil)
	th := throttler.New(0)
	old := newFakeTask()
	if err := r.RegTask(1, old, th.AddTask()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	fresh := newFakeTask()
	if err := r.RegTask(2, fresh, th.AddTask()); err != nil {
		t.Fatal(err)
	}

	r.AdjustTaskQueue()

	select {
	case err := <-old.err:
		if err != rpcerr.ErrTimeout {
			t.Fatalf("expected timeout, got %v", err)
		}
	default:
		t.Fatal("expected old task to be expired")
	}
	select {
	case <-fresh.err:
		t.Fatal("fresh task should not be expired yet")
	default:
	}
	if _, ok := r.TakeTask(2); !ok {
		t.Fatal("fresh task should still be pending")
	}
}

func TestStopRegTaskFailsSubsequentRegistrations(t *testing.T) {
	r := New(time.Second, nil)
	r.StopRegTask()
	task := newFakeTask()
	th := throttler.New(0)
	if err := r.RegTask(1, task, th.AddTask()); err != rpcerr.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	select {
	case err := <-task.err:
		if err != rpcerr.ErrClosed {
			t.Fatalf("expected ErrClosed delivered, got %v", err)
		}
	default:
		t.Fatal("expected task to be failed immediately")
	}
}

func TestCleanPendingTasksFailsEverything(t *testing.T) {
	r := New(time.Second, nil)
	th := throttler.New(0)
	tasks := make([]*fakeTask, 5)
	for i := range tasks {
		tasks[i] = newFakeTask()
		if err := r.RegTask(uint64(i+1), tasks[i], th.AddTask()); err != nil {
			t.Fatal(err)
		}
	}
	if r.CheckPendingTasksEmpty() {
		t.Fatal("expected pending tasks before cleanup")
	}
	r.CleanPendingTasks()
	if !r.CheckPendingTasksEmpty() {
		t.Fatal("expected empty registry after cleanup")
	}
	for _, task := range tasks {
		select {
		case err := <-task.err:
			if err != rpcerr.ErrClosed {
				t.Fatalf("expected ErrClosed, got %v", err)
			}
		default:
			t.Fatal("expected task to be failed")
		}
	}
}

func TestRetrySinkReceivesFailures(t *testing.T) {
	sink := retrysink.New(4)
	r := New(10*time.Millisecond, sink)
	th := throttler.New(0)
	task := newFakeTask()
	if err := r.RegTask(1, task, th.AddTask()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	r.AdjustTaskQueue()

	select {
	case f := <-sink.C():
		if f.Task != task {
			t.Fatal("expected sink to receive the same task")
		}
		if f.Err != rpcerr.ErrTimeout {
			t.Fatalf("expected timeout in sink failure, got %v", f.Err)
		}
	default:
		t.Fatal("expected sink to receive a failure")
	}
	select {
	case <-task.err:
		t.Fatal("task must not also be completed directly when sink accepted it")
	default:
	}
	select {
	case <-task.forwarded:
	default:
		t.Fatal("expected Forwarded to be called so the task's accounting is released")
	}
}
