package transport

import "time"

// Transport is the two-variant abstraction of §4.11: TCP and QUIC
// share the same bind/shutdown/kind surface so the rest of the server
// never branches on which one is in use.
type Transport interface {
	Bind(addr string) error
	Shutdown(grace time.Duration) error
	Kind() Kind
}

var (
	_ Transport = (*TCPTransport)(nil)
	_ Transport = (*QUICTransport)(nil)
)
