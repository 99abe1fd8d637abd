package corehttp

import (
	"log/slog"
	"net"

	"github.com/corehttp/corehttp/listener"
)

// SlogListener logs call lifecycle events through log/slog, the way the
// teacher's proxy resolution logs failures — structured key/value pairs
// rather than formatted strings.
type SlogListener struct {
	listener.NopListener
	Logger *slog.Logger
}

func (l SlogListener) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l SlogListener) CallFailed(callID uint64, err error) {
	l.logger().Error("call failed", "call_id", callID, "error", err)
}

func (l SlogListener) ConnectEnd(callID uint64, addr net.Addr, protocol string, err error) {
	if err != nil {
		l.logger().Warn("connect failed", "call_id", callID, "addr", addr.String(), "error", err)
		return
	}
	l.logger().Debug("connected", "call_id", callID, "addr", addr.String(), "protocol", protocol)
}
