package training

import "sync"

// Control is the signaling handle between API calls and a training loop.
// The loop only observes it at epoch boundaries, so requests take effect
// at the next boundary.
type Control struct {
	mu    sync.Mutex
	cond  *sync.Cond
	stop  bool
	pause bool
}

func NewControl() *Control {
	c := &Control{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// RequestStop asks the loop to stop and wakes it if it is paused. Stop
// wins over pause.
func (c *Control) RequestStop() {
	c.mu.Lock()
	c.stop = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// RequestPause asks the loop to pause after the epoch in flight.
func (c *Control) RequestPause() {
	c.mu.Lock()
	c.pause = true
	c.mu.Unlock()
}

// Resume clears a pause and wakes the loop.
func (c *Control) Resume() {
	c.mu.Lock()
	c.pause = false
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Control) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop
}

// WaitWhilePaused blocks while a pause is in effect. onPause runs once
// before blocking and onResume once after waking without a stop. The
// return value reports whether a stop request ended the wait.
func (c *Control) WaitWhilePaused(onPause, onResume func()) (stopped bool) {
	c.mu.Lock()
	if c.stop || !c.pause {
		defer c.mu.Unlock()
		return c.stop
	}
	c.mu.Unlock()

	if onPause != nil {
		onPause()
	}

	c.mu.Lock()
	for c.pause && !c.stop {
		c.cond.Wait()
	}
	stopped = c.stop
	c.mu.Unlock()

	if !stopped && onResume != nil {
		onResume()
	}
	return stopped
}
