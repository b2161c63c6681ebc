package selector

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialIsPending(t *testing.T) {
	s := New("tcp://a:5555")

	addr, ok := s.TakeIfPending()
	assert.True(t, ok)
	assert.Equal(t, "tcp://a:5555", addr)

	_, ok = s.TakeIfPending()
	assert.False(t, ok)
}

func TestEmptyInitialIsNotPending(t *testing.T) {
	_, ok := New("").TakeIfPending()
	assert.False(t, ok)
}

func TestRequestsCoalesceToNewest(t *testing.T) {
	s := New("")

	s.RequestChange("tcp://a:5555")
	s.RequestChange("tcp://b:5555")
	s.RequestChange("tcp://a:5555")
	s.RequestChange("tcp://b:5555")

	addr, ok := s.TakeIfPending()
	assert.True(t, ok)
	assert.Equal(t, "tcp://b:5555", addr)

	_, ok = s.TakeIfPending()
	assert.False(t, ok, "a coalesced request is delivered once")
}

func TestSnapshot(t *testing.T) {
	s := New("")
	s.RequestChange("tcp://b:5555")

	assert.Equal(t, Snapshot{Requested: "tcp://b:5555", Pending: true}, s.Snapshot())

	s.TakeIfPending()
	assert.Equal(t, Snapshot{Requested: "tcp://b:5555", Pending: false}, s.Snapshot())
}

func TestNoRequestLostBetweenDrains(t *testing.T) {
	s := New("")

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RequestChange("tcp://b:5555")
			}
		}()
	}

	drained := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		if _, ok := s.TakeIfPending(); ok {
			drained++
		}
	}
	// whatever was set after the last drain above is still there
	if _, ok := s.TakeIfPending(); ok {
		drained++
	}

	assert.GreaterOrEqual(t, drained, 1)
	_, ok := s.TakeIfPending()
	assert.False(t, ok)
}
