package jrpc

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"
)

type testRole struct{}

// pipe wires two Links together over an in-memory duplex pipe, mimicking
// the stdin/stdout pair a subprocess hop would expose.
func pipe(t *testing.T) (*Link[testRole], *Link[testRole]) {
	t.Helper()
	ar, bw := io.Pipe()
	br, aw := io.Pipe()

	a := NewLink[testRole](NewFramerRW(ar, aw, aw, nil), nil)
	b := NewLink[testRole](NewFramerRW(br, bw, bw, nil), nil)
	a.Connect()
	b.Connect()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestSendRequestRoundTrip(t *testing.T) {
	a, b := pipe(t)

	b.Handle("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		return map[string]string{"echo": req.Value}, nil
	})

	var out struct {
		Echo string `json:"echo"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.SendRequest(ctx, "ping", map[string]string{"value": "hi"}, &out); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if out.Echo != "hi" {
		t.Errorf("echo = %q, want %q", out.Echo, "hi")
	}
}

func TestSendRequestMethodNotFound(t *testing.T) {
	a, _ := pipe(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := a.SendRequest(ctx, "nope", nil, nil)
	if err == nil {
		t.Fatal("expected error for unregistered method")
	}
}

func TestNotificationDelivered(t *testing.T) {
	a, b := pipe(t)

	received := make(chan string, 1)
	b.HandleNotification("note", func(ctx context.Context, params json.RawMessage) {
		var v struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(params, &v)
		received <- v.Text
	})

	if err := a.SendNotification("note", map[string]string{"text": "hello"}); err != nil {
		t.Fatalf("SendNotification: %v", err)
	}

	select {
	case text := <-received:
		if text != "hello" {
			t.Errorf("text = %q, want %q", text, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestSendRequestAfterCloseReturnsConnectionClosed(t *testing.T) {
	a, b := pipe(t)
	a.Close()
	b.Close()

	<-a.Done()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := a.SendRequest(ctx, "ping", nil, nil)
	if err == nil {
		t.Fatal("expected error after link closed")
	}
}
