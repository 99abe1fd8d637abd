package route

import (
	"sync/atomic"

	"github.com/corehttp/corehttp/url"
)

// RoundRobinSelector cycles through a fixed list of proxies, one per Select
// call. Grounded on the teacher's roundRobinProxy.
type RoundRobinSelector struct {
	proxies []*Proxy
	index   uint32
}

// NewRoundRobinSelector builds a RoundRobinSelector over proxies. An empty
// list makes every Select return (nil, nil) (direct).
func NewRoundRobinSelector(proxies ...*Proxy) *RoundRobinSelector {
	return &RoundRobinSelector{proxies: proxies}
}

func (r *RoundRobinSelector) Select(*url.URL) (*Proxy, error) {
	if len(r.proxies) == 0 {
		return nil, nil
	}
	i := atomic.AddUint32(&r.index, 1) - 1
	return r.proxies[i%uint32(len(r.proxies))], nil
}
