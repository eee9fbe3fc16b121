package training

import (
	"testing"
	"time"
)

func TestControlStopWinsOverPause(t *testing.T) {
	c := NewControl()
	c.RequestPause()
	c.RequestStop()

	if stopped := c.WaitWhilePaused(nil, nil); !stopped {
		t.Fatalf("WaitWhilePaused=false, want stop to win")
	}
}

func TestControlPauseBlocksUntilResume(t *testing.T) {
	c := NewControl()
	c.RequestPause()

	pauseSeen := make(chan struct{})
	resumeSeen := make(chan struct{})
	done := make(chan bool, 1)
	go func() {
		done <- c.WaitWhilePaused(
			func() { close(pauseSeen) },
			func() { close(resumeSeen) },
		)
	}()

	select {
	case <-pauseSeen:
	case <-time.After(2 * time.Second):
		t.Fatalf("onPause never ran")
	}
	select {
	case <-done:
		t.Fatalf("WaitWhilePaused returned before Resume")
	case <-time.After(50 * time.Millisecond):
	}

	c.Resume()
	select {
	case stopped := <-done:
		if stopped {
			t.Fatalf("WaitWhilePaused=true, want false after resume")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Resume did not wake the waiter")
	}
	select {
	case <-resumeSeen:
	case <-time.After(2 * time.Second):
		t.Fatalf("onResume never ran")
	}
}

func TestControlStopWakesPausedWaiter(t *testing.T) {
	c := NewControl()
	c.RequestPause()

	done := make(chan bool, 1)
	go func() {
		done <- c.WaitWhilePaused(nil, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	c.RequestStop()

	select {
	case stopped := <-done:
		if !stopped {
			t.Fatalf("WaitWhilePaused=false, want true after stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RequestStop did not wake the waiter")
	}
}

func TestControlNoPauseIsPassThrough(t *testing.T) {
	c := NewControl()
	if stopped := c.WaitWhilePaused(nil, nil); stopped {
		t.Fatalf("WaitWhilePaused=true on idle control")
	}
	if c.StopRequested() {
		t.Fatalf("StopRequested=true on idle control")
	}
}
