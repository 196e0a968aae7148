// SPDX-License-Identifier: MIT
/*
Package udp streams engine health metrics as compact binary packets to a
fixed target address, for sidecar monitors that want a fixed-rate feed
without a websocket session.
*/
package udp

import (
	"net"
	"sync"

	"beatbox/internal/errs"
	applog "beatbox/internal/log"
)

// Sender transmits raw packets to one UDP target.
type Sender struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool
}

// NewSender dials the target address ("host:port"). UDP is connectionless;
// dialing just binds the destination so Send is a single write.
func NewSender(targetAddress string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStreamOpen, err, "resolve udp target %q", targetAddress)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStreamOpen, err, "dial udp target %q", targetAddress)
	}

	applog.Infof("UDP: sending to %s", conn.RemoteAddr())
	return &Sender{conn: conn}, nil
}

// Send transmits one packet. Safe for concurrent use; the lock also fences
// Send against a concurrent Close.
func (s *Sender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errs.New(errs.CodeStreamFailure, "udp sender closed")
	}
	if _, err := s.conn.Write(data); err != nil {
		return errs.Wrap(errs.CodeStreamFailure, err, "udp send")
	}
	return nil
}

// Close shuts the connection down. Idempotent.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
