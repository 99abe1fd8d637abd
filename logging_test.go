package corehttp

import (
	"bytes"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlogListenerCallFailedLogsError(t *testing.T) {
	var buf bytes.Buffer
	l := SlogListener{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	l.CallFailed(7, assert.AnError)

	out := buf.String()
	assert.Contains(t, out, "call failed")
	assert.Contains(t, out, "call_id=7")
}

func TestSlogListenerConnectEndLogsSuccessAndFailure(t *testing.T) {
	var buf bytes.Buffer
	l := SlogListener{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 443}

	l.ConnectEnd(1, addr, "h2", nil)
	assert.Contains(t, buf.String(), "connected")

	buf.Reset()
	l.ConnectEnd(2, addr, "", assert.AnError)
	assert.Contains(t, buf.String(), "connect failed")
}

func TestSlogListenerDefaultsToSlogDefault(t *testing.T) {
	l := SlogListener{}
	assert.NotNil(t, l.logger())
}
