package session

import (
	"sync"
	"time"
)

// Ticker abstracts the one-second tick source so tests can drive the
// countdown deterministically instead of sleeping on the wall clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type NewTickerFunc func(d time.Duration) Ticker

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// countdown runs at most one tick loop at a time. Starting a new loop
// implicitly cancels the previous one.
type countdown struct {
	newTicker NewTickerFunc

	mu   sync.Mutex
	stop chan struct{}
}

func newCountdown(f NewTickerFunc) *countdown {
	if f == nil {
		f = newRealTicker
	}
	return &countdown{newTicker: f}
}

// start begins emitting onTick once per second until cancel is called.
// onTick runs on the countdown goroutine; the session serializes it
// against user input with its own mutex.
func (c *countdown) start(onTick func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	stop := make(chan struct{})
	c.stop = stop

	tk := c.newTicker(time.Second)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-tk.C():
				onTick()
			case <-stop:
				return
			}
		}
	}()
}

// cancel stops the in-flight countdown, if any, without emitting expiry.
func (c *countdown) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
