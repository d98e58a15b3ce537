package bridge

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/pragmatic-rustacean/symposium/internal/jrpc"
)

type pipePair struct {
	io.Reader
	io.Writer
	io.Closer
}

func newEditorPipe() (*pipePair, io.ReadWriteCloser) {
	serverR, clientW := io.Pipe()
	clientR, serverW := io.Pipe()
	client := &pipePair{Reader: clientR, Writer: clientW, Closer: clientW}
	server := &pipePair{Reader: serverR, Writer: serverW, Closer: serverW}
	return client, server
}

func TestConnectionProvideResponseRoundTrip(t *testing.T) {
	client, server := newEditorPipe()

	conn := NewConnection(jrpc.NewFramer(server, nil), elizaSessionFactory, nil)
	conn.Connect()

	clientFramer := jrpc.NewFramer(client, nil)
	defer clientFramer.Close()

	reqMsg, err := jrpc.NewRequest(jrpc.NewIntID(1), "lm/provideLanguageModelChatResponse", ProvideResponseRequest{
		ModelID: "default",
		Messages: []Message{
			{Role: RoleUser, Content: []ContentPart{TextPart("hello")}},
		},
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if err := clientFramer.WriteMessage(reqMsg); err != nil {
		t.Fatalf("write request: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	sawPart := false
	sawComplete := false
	gotResponse := false
	for time.Now().Before(deadline) && !gotResponse {
		msg, err := clientFramer.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		switch {
		case msg.IsNotification() && msg.Method == "lm/responsePart":
			sawPart = true
		case msg.IsNotification() && msg.Method == "lm/responseComplete":
			sawComplete = true
		case msg.IsResponse():
			if msg.Error != nil {
				t.Fatalf("response error: %v", msg.Error)
			}
			var result ProvideResponseResponse
			if err := json.Unmarshal(msg.Result, &result); err != nil {
				t.Fatalf("unmarshal result: %v", err)
			}
			gotResponse = true
		}
	}
	if !gotResponse {
		t.Fatal("did not receive a response within the deadline")
	}
	if !sawPart {
		t.Error("expected at least one lm/responsePart notification")
	}
	if !sawComplete {
		t.Error("expected an lm/responseComplete notification")
	}
}
