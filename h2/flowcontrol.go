package h2

import "sync"

// DefaultInitialWindowSize is the flow-control window every new stream
// starts with, absent a negotiated SETTINGS_INITIAL_WINDOW_SIZE (RFC 7540
// §6.9.2).
const DefaultInitialWindowSize = 65535

// flowController tracks one direction's flow-control window (either the
// connection-level window or one stream's), per §4.5/§5: "flow control
// windows, one per stream plus one per connection, both replenished by
// WINDOW_UPDATE frames sent by the peer."
type flowController struct {
	mu        sync.Mutex
	available int64
	cond      *sync.Cond
	closed    bool
}

func newFlowController(initial uint32) *flowController {
	f := &flowController{available: int64(initial)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// consume blocks until some window is available (or the controller is
// closed), then deducts up to n bytes and returns the amount granted. Used
// by the writer before emitting a DATA frame.
func (f *flowController) consume(n int64) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.available <= 0 && !f.closed {
		f.cond.Wait()
	}
	if f.closed {
		return 0, false
	}
	grant := n
	if grant > f.available {
		grant = f.available
	}
	f.available -= grant
	return grant, true
}

// replenish adds increment bytes back to the window on receipt of a
// WINDOW_UPDATE frame.
func (f *flowController) replenish(increment uint32) {
	f.mu.Lock()
	f.available += int64(increment)
	f.mu.Unlock()
	f.cond.Broadcast()
}

// debit subtracts n bytes when we receive incoming DATA (our receive
// window shrinking), returning the remaining window.
func (f *flowController) debit(n int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available -= n
	return f.available
}

// close unblocks any waiter permanently (the stream or connection is
// going away).
func (f *flowController) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cond.Broadcast()
}
