package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corehttp/corehttp/route"
)

type fakeCodec struct {
	multiplexed bool
	transmitters int
	protocol     string
	healthy      bool
	closed       bool
}

func (f *fakeCodec) Multiplexed() bool      { return f.multiplexed }
func (f *fakeCodec) TransmitterCount() int  { return f.transmitters }
func (f *fakeCodec) Protocol() string       { return f.protocol }
func (f *fakeCodec) IsHealthy() bool        { return f.healthy && !f.closed }
func (f *fakeCodec) Close() error           { f.closed = true; return nil }

func addr(host string) *route.Address { return &route.Address{Host: host, Port: 443} }

func TestAcquireMultiplexedReuse(t *testing.T) {
	p := New(time.Minute, 5)
	codec := &fakeCodec{multiplexed: true, protocol: "h2", healthy: true}
	c := NewConnection(codec, nil, &route.Route{Address: addr("example.com")})
	p.Put(c)

	got := p.AcquireMultiplexed(addr("example.com").Key())
	assert.Same(t, c, got)
}

func TestAcquireIdleExclusiveSkipsBusy(t *testing.T) {
	p := New(time.Minute, 5)
	busy := &fakeCodec{multiplexed: false, transmitters: 1, protocol: "http/1.1", healthy: true}
	idle := &fakeCodec{multiplexed: false, transmitters: 0, protocol: "http/1.1", healthy: true}
	p.Put(NewConnection(busy, nil, &route.Route{Address: addr("example.com")}))
	c2 := NewConnection(idle, nil, &route.Route{Address: addr("example.com")})
	p.Put(c2)

	got := p.AcquireIdleExclusive(addr("example.com").Key())
	assert.Same(t, c2, got)
}

func TestPruneEvictsOldIdleConnections(t *testing.T) {
	p := New(10*time.Millisecond, 5)
	codec := &fakeCodec{multiplexed: false, transmitters: 0, protocol: "http/1.1", healthy: true}
	c := NewConnection(codec, nil, &route.Route{Address: addr("example.com")})
	p.Put(c)

	now := time.Now()
	p.PruneAndNextEvictionNanos(now) // first pass marks it idle
	assert.Equal(t, 1, p.Size())

	later := now.Add(20 * time.Millisecond)
	p.PruneAndNextEvictionNanos(later)
	assert.Equal(t, 0, p.Size())
	assert.True(t, codec.closed)
}

func TestPruneEnforcesMaxIdleOldestFirst(t *testing.T) {
	p := New(time.Hour, 1)
	c1 := NewConnection(&fakeCodec{protocol: "http/1.1", healthy: true}, nil, &route.Route{Address: addr("a.com")})
	c2 := NewConnection(&fakeCodec{protocol: "http/1.1", healthy: true}, nil, &route.Route{Address: addr("b.com")})
	p.Put(c1)
	now := time.Now()
	p.PruneAndNextEvictionNanos(now)
	p.Put(c2)
	later := now.Add(time.Millisecond)
	p.PruneAndNextEvictionNanos(later)

	assert.Equal(t, 1, p.Size())
	assert.Nil(t, p.AcquireIdleExclusive(addr("a.com").Key()), "the older idle connection must be evicted first")
	assert.Same(t, c2, p.AcquireIdleExclusive(addr("b.com").Key()))
}
