package dispatcher

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/call"
	"github.com/corehttp/corehttp/headers"
	"github.com/corehttp/corehttp/url"
)

type blockingInterceptor struct {
	release chan struct{}
}

func (b *blockingInterceptor) Intercept(chain *call.Chain) (*call.Response, error) {
	<-b.release
	return &call.Response{Request: chain.Request(), Protocol: "http/1.1", StatusCode: 200, Headers: headers.New()}, nil
}

func TestPerHostCapLimitsConcurrency(t *testing.T) {
	release := make(chan struct{})
	d := New(10, 1)

	u, err := url.Parse("https://example.com/")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var completed int

	for i := 0; i < 3; i++ {
		wg.Add(1)
		bi := &blockingInterceptor{release: release}
		c := call.New(call.NewRequest("GET", u), call.Config{Interceptors: []call.Interceptor{bi}})
		d.Enqueue(c, "example.com", call.CallbackFunc{
			Response: func(*call.Call, *call.Response) {
				mu.Lock()
				completed++
				mu.Unlock()
				wg.Done()
			},
		})
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.RunningCalls(), "per-host cap must serialize same-host calls")
	assert.Equal(t, 2, d.QueuedCalls())

	close(release)
	wg.Wait()
	assert.Equal(t, 3, completed)
}

func TestShutdownRejectsNewEnqueues(t *testing.T) {
	d := New(1, 1)
	d.Shutdown(0)
	u, _ := url.Parse("https://example.com/")
	c := call.New(call.NewRequest("GET", u), call.Config{})
	var gotErr error
	d.Enqueue(c, "example.com", call.CallbackFunc{Failure: func(_ *call.Call, err error) { gotErr = err }})
	require.Error(t, gotErr)
	assert.True(t, strings.Contains(gotErr.Error(), "closed"))
}
