package modloader

import (
	"context"
	"testing"

	"github.com/pragmatic-rustacean/symposium/internal/modsource"
)

func TestResolveHTTPIsPassthrough(t *testing.T) {
	src := modsource.Source{Kind: modsource.KindHTTP, HTTP: &modsource.HTTPSource{URL: "https://example/mcp"}}
	r, err := Resolve(context.Background(), src, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Endpoint == nil || r.Endpoint.URL != "https://example/mcp" {
		t.Fatalf("expected HTTP endpoint, got %+v", r)
	}
	if r.Process != nil || r.InProcess != nil {
		t.Fatal("HTTP source should not produce a process")
	}
}

func TestResolveSSEIsPassthrough(t *testing.T) {
	src := modsource.Source{Kind: modsource.KindSSE, SSE: &modsource.SSESource{URL: "https://example/sse"}}
	r, err := Resolve(context.Background(), src, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !r.Endpoint.SSE {
		t.Error("expected SSE endpoint flag set")
	}
}

func TestResolveLocalLaunchesEcho(t *testing.T) {
	src := modsource.Source{Kind: modsource.KindLocal, Local: &modsource.LocalSource{Command: "cat"}}
	r, err := Resolve(context.Background(), src, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Process == nil {
		t.Fatal("expected a process")
	}
	defer r.Process.Stdin.Close()

	line := []byte("hello\n")
	if _, err := r.Process.Stdin.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(line))
	if _, err := r.Process.Stdout.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != string(line) {
		t.Errorf("got %q, want %q", buf, line)
	}
	r.Process.Stdin.Close()
	r.Process.Wait()
}

func TestResolveBuiltinEliza(t *testing.T) {
	src := modsource.Source{Kind: modsource.KindBuiltin, Builtin: &modsource.BuiltinSource{Name: "eliza"}}
	r, err := Resolve(context.Background(), src, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.InProcess == nil {
		t.Fatal("expected an in-process duplex")
	}
	r.InProcess.Close()
}

func TestResolveBuiltinUnknown(t *testing.T) {
	src := modsource.Source{Kind: modsource.KindBuiltin, Builtin: &modsource.BuiltinSource{Name: "nope"}}
	if _, err := Resolve(context.Background(), src, Options{}); err == nil {
		t.Fatal("expected error for unknown builtin")
	}
}
