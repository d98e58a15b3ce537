package modloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/pragmatic-rustacean/symposium/internal/config"
	"github.com/pragmatic-rustacean/symposium/internal/modsource"
)

// Options configures how Resolve launches subprocess hops.
type Options struct {
	// Launcher starts Local/Npx/Pipx/Cargo/Binary subprocesses. If nil, a
	// plain unsandboxed exec.Cmd launcher is used.
	Launcher Launcher
	// CacheDir is where Cargo/Binary downloads are cached, content-addressed
	// by crate/binary name and version.
	CacheDir string
	Logger   *slog.Logger
}

// Resolve turns a mod descriptor into something runnable. It is the single
// entry point every hop in a conductor chain goes through.
func Resolve(ctx context.Context, src modsource.Source, opts Options) (*Runnable, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	switch src.Kind {
	case modsource.KindBuiltin:
		return resolveBuiltin(ctx, *src.Builtin)
	case modsource.KindRegistry:
		resolved, err := resolveRegistry(ctx, *src.Registry)
		if err != nil {
			return nil, err
		}
		return Resolve(ctx, resolved, opts)
	case modsource.KindLocal:
		return launchCommand(ctx, opts, src.Local.Command, src.Local.Args, src.Local.Env)
	case modsource.KindNpx:
		args := append([]string{"-y", src.Npx.Package}, src.Npx.Args...)
		return launchCommand(ctx, opts, "npx", args, nil)
	case modsource.KindPipx:
		args := append([]string{"run", src.Pipx.Package}, src.Pipx.Args...)
		return launchCommand(ctx, opts, "pipx", args, nil)
	case modsource.KindCargo:
		return resolveCargo(ctx, *src.Cargo, opts)
	case modsource.KindBinary:
		return resolveBinary(ctx, *src.Binary, opts)
	case modsource.KindHTTP:
		return &Runnable{Endpoint: &Endpoint{URL: src.HTTP.URL, Headers: src.HTTP.Headers}}, nil
	case modsource.KindSSE:
		return &Runnable{Endpoint: &Endpoint{URL: src.SSE.URL, Headers: src.SSE.Headers, SSE: true}}, nil
	default:
		return nil, fmt.Errorf("modloader: unsupported kind %q", src.Kind)
	}
}

func launchCommand(ctx context.Context, opts Options, command string, args, env []string) (*Runnable, error) {
	launcher := opts.Launcher
	if launcher == nil {
		launcher = execLauncher{}
	}
	stdin, stdout, stderr, wait, err := launcher.RunWithPipes(ctx, command, args, env)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", command, err)
	}
	return &Runnable{Process: &Process{Stdin: stdin, Stdout: stdout, Stderr: stderr, Wait: wait}}, nil
}

// execLauncher is the zero-configuration fallback Launcher used when the
// caller has no sandboxing requirements (e.g. `symposium eliza`, tests).
type execLauncher struct{}

func (execLauncher) RunWithPipes(ctx context.Context, command string, args, env []string) (stdin io.WriteCloser, stdout, stderr io.ReadCloser, wait func() error, err error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(cmd.Environ(), env...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, nil, err
	}
	return stdinPipe, stdoutPipe, stderrPipe, cmd.Wait, nil
}

// AgentSourceFromConfig resolves the user's configured agent command string
// (see config.Config.Agent) into a mod descriptor.
func AgentSourceFromConfig(cfg *config.Config) (modsource.Source, error) {
	return cfg.AgentSource()
}
