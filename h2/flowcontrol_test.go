package h2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlowControllerConsumeBlocksUntilReplenished(t *testing.T) {
	f := newFlowController(0)
	done := make(chan int64, 1)
	go func() {
		grant, ok := f.consume(10)
		if !ok {
			done <- -1
			return
		}
		done <- grant
	}()

	select {
	case <-done:
		t.Fatal("consume returned before any window was available")
	case <-time.After(20 * time.Millisecond):
	}

	f.replenish(5)
	select {
	case grant := <-done:
		assert.Equal(t, int64(5), grant)
	case <-time.After(time.Second):
		t.Fatal("consume never unblocked after replenish")
	}
}

func TestFlowControllerCloseUnblocksWaiters(t *testing.T) {
	f := newFlowController(0)
	done := make(chan bool, 1)
	go func() {
		_, ok := f.consume(10)
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	f.close()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consume never unblocked after close")
	}
}

func TestFlowControllerPartialGrant(t *testing.T) {
	f := newFlowController(5)
	grant, ok := f.consume(10)
	assert.True(t, ok)
	assert.Equal(t, int64(5), grant)
}
