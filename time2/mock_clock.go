package time2

import (
	"sync"
	"time"
)

// A fake clock useful for testing timing.  The fake time only moves
// when Set or Advance is called.  Timer-style methods (After, Tick,
// Sleep) delegate to the real clock so that code under test does not
// stall forever.
type MockClock struct {
	mutex       sync.Mutex
	currentTime time.Time
}

// Resets the mock clock back to initial state.
func (c *MockClock) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.currentTime = time.Time{}
}

// Set the mock clock to a specific time.
func (c *MockClock) Set(t time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.currentTime = t
}

// Advances the mock clock by the specified duration.
func (c *MockClock) Advance(delta time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.currentTime = c.currentTime.Add(delta)
}

// Returns the fake current time.
func (c *MockClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.currentTime
}

// Returns the time elapsed since the fake current time.
func (c *MockClock) Since(t time.Time) time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.currentTime.Sub(t)
}

// Returns the duration until t relative to the fake current time.
func (c *MockClock) Until(t time.Time) time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return t.Sub(c.currentTime)
}

func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (c *MockClock) Tick(d time.Duration) <-chan time.Time {
	return time.Tick(d)
}

func (c *MockClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
