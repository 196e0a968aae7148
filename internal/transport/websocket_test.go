// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialBroadcaster(t *testing.T, b *WebsocketBroadcaster) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+b.Addr()+"/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, b *WebsocketBroadcaster, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", b.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebsocketBroadcastsJSON(t *testing.T) {
	b, err := NewWebsocketBroadcaster("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebsocketBroadcaster: %v", err)
	}
	defer b.Close()

	conn := dialBroadcaster(t, b)
	waitForClients(t, b, 1)

	payload := map[string]any{"sound": "kick", "confidence": 0.9}
	if err := b.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Errorf("message type = %d, want text", kind)
	}

	var got map[string]any
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got["sound"] != "kick" {
		t.Errorf("sound = %v, want kick", got["sound"])
	}
}

func TestWebsocketSendWithNoClients(t *testing.T) {
	b, err := NewWebsocketBroadcaster("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebsocketBroadcaster: %v", err)
	}
	defer b.Close()

	if err := b.Send(map[string]int{"n": 1}); err != nil {
		t.Errorf("Send without clients: %v", err)
	}
}

func TestWebsocketCloseDisconnectsClients(t *testing.T) {
	b, err := NewWebsocketBroadcaster("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebsocketBroadcaster: %v", err)
	}

	conn := dialBroadcaster(t, b)
	waitForClients(t, b, 1)

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if b.ClientCount() != 0 {
		t.Errorf("client count after close = %d, want 0", b.ClientCount())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client read should fail after broadcaster close")
	}
}

func TestLoggingTransportNeverFails(t *testing.T) {
	lt := NewLoggingTransport()
	if err := lt.Send(map[string]string{"k": "v"}); err != nil {
		t.Errorf("Send: %v", err)
	}
	if err := lt.Send(make(chan int)); err != nil {
		t.Errorf("Send with unserializable payload: %v", err)
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
