// SPDX-License-Identifier: MIT
/*
Package transport carries engine output to external consumers: a websocket
broadcaster for debug clients, a UDP binary metric publisher (internal/
transport/udp), and a logging transport for headless runs. Implementations
are thread-safe and never block the analysis loop: a slow consumer loses
events instead of stalling the engine.
*/
package transport

// Transport sends processed results or events to one destination.
// Implementations must be safe for concurrent Send calls.
type Transport interface {
	Send(data any) error
	Close() error
}
