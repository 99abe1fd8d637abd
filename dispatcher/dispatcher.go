// Package dispatcher implements the bounded worker pool for enqueued
// (asynchronous) calls, with a per-host concurrency cap layered over a
// global cap, per §4.2.
package dispatcher

import (
	"sync"
	"time"

	"github.com/corehttp/corehttp/call"
)

const (
	// DefaultMaxConcurrentCalls is the global running-call cap.
	DefaultMaxConcurrentCalls = 64
	// DefaultMaxConcurrentPerHost is the per-host running-call cap.
	DefaultMaxConcurrentPerHost = 5
)

// job pairs a Call with the callback waiting on its completion.
type job struct {
	c    *call.Call
	cb   call.Callback
	host string
}

// Dispatcher manages the ready/running queues and hands runnable jobs to a
// bounded set of goroutines.
type Dispatcher struct {
	maxConcurrentCalls   int
	maxConcurrentPerHost int

	mu        sync.Mutex
	ready     []*job
	running   []*job
	hostCount map[string]int

	closed bool
	idle   *sync.Cond
}

// New builds a Dispatcher. maxCalls and maxPerHost fall back to the
// package defaults when zero.
func New(maxCalls, maxPerHost int) *Dispatcher {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxConcurrentCalls
	}
	if maxPerHost <= 0 {
		maxPerHost = DefaultMaxConcurrentPerHost
	}
	d := &Dispatcher{
		maxConcurrentCalls:   maxCalls,
		maxConcurrentPerHost: maxPerHost,
		hostCount:            make(map[string]int),
	}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Enqueue hands c to the dispatcher; cb.OnResponse or cb.OnFailure fires
// when the call completes, from a worker goroutine.
func (d *Dispatcher) Enqueue(c *call.Call, host string, cb call.Callback) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cb.OnFailure(c, errDispatcherClosed())
		return
	}
	j := &job{c: c, cb: cb, host: host}
	if d.canRunLocked(host) {
		d.promoteLocked(j)
		d.mu.Unlock()
		go d.run(j)
		return
	}
	d.ready = append(d.ready, j)
	d.mu.Unlock()
}

func (d *Dispatcher) canRunLocked(host string) bool {
	return len(d.running) < d.maxConcurrentCalls && d.hostCount[host] < d.maxConcurrentPerHost
}

func (d *Dispatcher) promoteLocked(j *job) {
	d.running = append(d.running, j)
	d.hostCount[j.host]++
}

func (d *Dispatcher) run(j *job) {
	resp, err := j.c.Execute()
	d.finish(j)
	if err != nil {
		j.cb.OnFailure(j.c, err)
		return
	}
	j.cb.OnResponse(j.c, resp)
}

// finish removes j from running and promotes the next eligible ready job,
// preserving FIFO order within a host (§5: "Dispatcher FIFO ordering
// within a host; no global FIFO across hosts").
func (d *Dispatcher) finish(j *job) {
	d.mu.Lock()
	for i, r := range d.running {
		if r == j {
			d.running = append(d.running[:i], d.running[i+1:]...)
			break
		}
	}
	d.hostCount[j.host]--
	if d.hostCount[j.host] == 0 {
		delete(d.hostCount, j.host)
	}

	var promoted []*job
	remaining := d.ready[:0]
	for _, candidate := range d.ready {
		if d.canRunLocked(candidate.host) && len(promoted) == 0 {
			d.promoteLocked(candidate)
			promoted = append(promoted, candidate)
			continue
		}
		remaining = append(remaining, candidate)
	}
	d.ready = remaining
	if len(d.running) == 0 && len(d.ready) == 0 {
		d.idle.Broadcast()
	}
	d.mu.Unlock()

	for _, p := range promoted {
		go d.run(p)
	}
}

// RunningCalls returns the number of calls currently executing.
func (d *Dispatcher) RunningCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// QueuedCalls returns the number of calls parked in the ready queue.
func (d *Dispatcher) QueuedCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ready)
}

// Shutdown rejects new Enqueue calls; if wait > 0 it blocks up to that
// duration for currently running calls to finish.
func (d *Dispatcher) Shutdown(wait time.Duration) {
	d.mu.Lock()
	d.closed = true
	if wait <= 0 || len(d.running) == 0 {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.mu.Lock()
		for len(d.running) > 0 {
			d.idle.Wait()
		}
		d.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(wait):
	}
}

type dispatcherClosedError struct{}

func (dispatcherClosedError) Error() string { return "dispatcher: closed, rejecting new calls" }

func errDispatcherClosed() error { return dispatcherClosedError{} }
