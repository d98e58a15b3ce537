package cmd

import "os"

// stdio glues the process's own stdin/stdout into a single
// io.ReadWriteCloser, the client-facing transport every subcommand that
// runs a Conductor over the calling editor's pipes connects to.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }
