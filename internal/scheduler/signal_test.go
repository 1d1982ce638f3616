package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalNotifyCoalesces(t *testing.T) {
	s := NewSignal()

	for i := 0; i < 30; i++ {
		s.Notify()
	}

	assert.Len(t, s.ch, 25)
}

func TestSignalDrainAllEmptiesChannel(t *testing.T) {
	s := NewSignal()
	s.Notify()
	s.Notify()

	s.drainAll()
	assert.Len(t, s.ch, 0)
}

func TestWaitForTimerOrSignalFiresOnSignal(t *testing.T) {
	sc := &Scheduler{signal: NewSignal()}
	sc.signal.Notify()

	timerFired, stopped := sc.waitForTimerOrSignal(time.Second, make(chan struct{}))
	assert.False(t, timerFired)
	assert.False(t, stopped)
}

func TestWaitForTimerOrSignalFiresOnTimer(t *testing.T) {
	sc := &Scheduler{signal: NewSignal()}

	timerFired, stopped := sc.waitForTimerOrSignal(5*time.Millisecond, make(chan struct{}))
	assert.True(t, timerFired)
	assert.False(t, stopped)
}

func TestWaitForTimerOrSignalStops(t *testing.T) {
	sc := &Scheduler{signal: NewSignal()}
	stop := make(chan struct{})
	close(stop)

	timerFired, stopped := sc.waitForTimerOrSignal(time.Second, stop)
	assert.False(t, timerFired)
	assert.True(t, stopped)
}
