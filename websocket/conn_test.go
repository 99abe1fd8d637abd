package websocket

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu     sync.Mutex
	texts  []string
	closed []int
}

func (l *recordingListener) OnText(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.texts = append(l.texts, message)
}
func (l *recordingListener) OnBinary(message []byte)      {}
func (l *recordingListener) OnClosing(code int, r string) {}
func (l *recordingListener) OnClosed(code int, r string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = append(l.closed, code)
}
func (l *recordingListener) OnFailure(err error) {}

func (l *recordingListener) sawText(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.texts {
		if t == s {
			return true
		}
	}
	return false
}

func TestConnClientServerTextRoundTrip(t *testing.T) {
	clientRW, serverRW := net.Pipe()
	defer clientRW.Close()
	defer serverRW.Close()

	serverListener := &recordingListener{}
	clientListener := &recordingListener{}

	serverConn := NewConn(serverRW, Config{IsClient: false, Listener: serverListener})
	clientConn := NewConn(clientRW, Config{IsClient: true, Listener: clientListener})

	require.True(t, clientConn.SendText("hello from client"))
	require.True(t, serverConn.SendText("hello from server"))

	require.Eventually(t, func() bool { return serverListener.sawText("hello from client") }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return clientListener.sawText("hello from server") }, time.Second, 5*time.Millisecond)
}

func TestConnSendFalseWhenQueueFull(t *testing.T) {
	clientRW, serverRW := net.Pipe()
	defer clientRW.Close()
	defer serverRW.Close()
	_ = NewConn(serverRW, Config{IsClient: false})
	c := NewConn(clientRW, Config{IsClient: true, MaxQueueSize: 4})

	ok := c.SendText("this payload is much longer than four bytes")
	assert.False(t, ok)
}

func TestConnAutomaticPong(t *testing.T) {
	clientRW, serverRW := net.Pipe()
	defer clientRW.Close()
	defer serverRW.Close()
	serverConn := NewConn(serverRW, Config{IsClient: false})
	_ = serverConn
	clientConn := NewConn(clientRW, Config{IsClient: true})

	select {
	case clientConn.sendCh <- outgoingMessage{frame: Frame{Fin: true, Opcode: OpPing}}:
	case <-time.After(time.Second):
		t.Fatal("could not enqueue ping")
	}

	require.Eventually(t, func() bool {
		select {
		case <-clientConn.pongCh:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
