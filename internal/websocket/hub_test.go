package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/zentag/api/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestNotifyMessageTypes(t *testing.T) {
	tests := []struct {
		name     string
		event    model.JobEvent
		expected string
	}{
		{"progress", model.JobEvent{RecordID: "r1", Status: model.JobStatusProcessing, Progress: 40}, model.WSMessageTypeProgress},
		{"complete", model.JobEvent{RecordID: "r1", Status: model.JobStatusCompleted, Result: &model.ResultPayload{VideoURL: "v"}}, model.WSMessageTypeComplete},
		{"failed", model.JobEvent{RecordID: "r1", Status: model.JobStatusFailed, Error: "boom"}, model.WSMessageTypeError},
		{"cancelled", model.JobEvent{RecordID: "r1", Status: model.JobStatusCancelled}, model.WSMessageTypeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startHub(t)
			c := &Client{RecordID: "r1", Send: make(chan []byte, 4)}
			h.Register(c)

			h.Notify(context.Background(), tt.event)

			msg := receive(t, c)
			if msg["type"] != tt.expected {
				t.Errorf("expected type %s, got %v", tt.expected, msg["type"])
			}
			if msg["recordId"] != "r1" {
				t.Errorf("expected recordId r1, got %v", msg["recordId"])
			}
		})
	}
}

func TestNotifyOnlyReachesRecordSubscribers(t *testing.T) {
	h := startHub(t)
	a := &Client{RecordID: "a", Send: make(chan []byte, 4)}
	b := &Client{RecordID: "b", Send: make(chan []byte, 4)}
	h.Register(a)
	h.Register(b)

	h.Notify(context.Background(), model.JobEvent{RecordID: "a", Status: model.JobStatusProcessing, Progress: 10})

	receive(t, a)
	select {
	case <-b.Send:
		t.Error("unexpected message for other record")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := &Client{RecordID: "r1", Send: make(chan []byte, 1)}
	h.Register(c)
	h.Unregister(c)

	select {
	case _, ok := <-c.Send:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close")
	}
	if n := h.Subscribers("r1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestRegisterAfterShutdownDoesNotBlock(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	live := &Client{RecordID: "r1", Send: make(chan []byte, 1)}
	if !h.Register(live) {
		t.Fatal("expected register to succeed while running")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	calls := make(chan bool)
	go func() {
		h.Unregister(live)
		calls <- h.Register(&Client{RecordID: "r2", Send: make(chan []byte, 1)})
	}()

	select {
	case ok := <-calls:
		if ok {
			t.Error("expected register to report shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("register/unregister blocked after shutdown")
	}

	if _, ok := <-live.Send; ok {
		t.Error("expected shutdown to close the live client")
	}
}
