// Package modsource defines the mod descriptor: a tagged union describing
// where a proxy or agent component comes from and how to launch it. A
// Source value is the thing that gets persisted in config, cached by
// identity, and handed to internal/modloader.Resolve.
package modsource

import "fmt"

// Kind identifies which variant of Source is populated.
type Kind string

const (
	KindBuiltin  Kind = "builtin"
	KindRegistry Kind = "registry"
	KindLocal    Kind = "local"
	KindNpx      Kind = "npx"
	KindPipx     Kind = "pipx"
	KindCargo    Kind = "cargo"
	KindBinary   Kind = "binary"
	KindHTTP     Kind = "http"
	KindSSE      Kind = "sse"
)

// Source is a tagged union over every way a mod can be obtained. Exactly
// one of the variant fields is populated, selected by Kind; this mirrors
// how mitto's ACPServer config distinguishes server types, generalized to
// cover subprocess, downloaded-binary, and passthrough-transport mods.
type Source struct {
	Kind Kind `json:"kind"`

	Builtin  *BuiltinSource  `json:"builtin,omitempty"`
	Registry *RegistrySource `json:"registry,omitempty"`
	Local    *LocalSource    `json:"local,omitempty"`
	Npx      *NpxSource      `json:"npx,omitempty"`
	Pipx     *PipxSource     `json:"pipx,omitempty"`
	Cargo    *CargoSource    `json:"cargo,omitempty"`
	Binary   *BinarySource   `json:"binary,omitempty"`
	HTTP     *HTTPSource     `json:"http,omitempty"`
	SSE      *SSESource      `json:"sse,omitempty"`
}

// BuiltinSource names a component compiled into the symposium binary.
type BuiltinSource struct {
	Name string `json:"name"`
}

// RegistrySource names an entry to resolve against the ACP registry.
type RegistrySource struct {
	AgentID string `json:"agent_id"`
}

// LocalSource runs a command already on PATH or at an absolute path.
type LocalSource struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// NpxSource runs an npm package via `npx -y <package> [args...]`.
type NpxSource struct {
	Package string   `json:"package"`
	Args    []string `json:"args,omitempty"`
}

// PipxSource runs a Python package via `pipx run <package> [args...]`.
type PipxSource struct {
	Package string   `json:"package"`
	Args    []string `json:"args,omitempty"`
}

// CargoSource installs (or reuses a cached install of) a crates.io binary.
type CargoSource struct {
	Crate   string `json:"crate"`
	Version string `json:"version,omitempty"` // empty = latest
	Bin     string `json:"bin,omitempty"`     // empty = same as Crate
}

// BinarySource downloads a platform-specific release archive.
type BinarySource struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	URLTemplate string            `json:"url_template"` // supports {os}/{arch}/{version}
	BinPath     map[string]string `json:"bin_path,omitempty"`
}

// HTTPSource is a passthrough descriptor for an already-running HTTP/JSON-RPC
// endpoint; the mod loader does not launch a local process for it.
type HTTPSource struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// SSESource is a passthrough descriptor for a Server-Sent-Events MCP
// transport endpoint.
type SSESource struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Identity returns a stable string uniquely identifying this Source,
// suitable as a cache key; two Sources with the same Identity are expected
// to resolve to the same Runnable.
func (s Source) Identity() string {
	switch s.Kind {
	case KindBuiltin:
		return "builtin:" + s.Builtin.Name
	case KindRegistry:
		return "registry:" + s.Registry.AgentID
	case KindLocal:
		return "local:" + s.Local.Command
	case KindNpx:
		return "npx:" + s.Npx.Package
	case KindPipx:
		return "pipx:" + s.Pipx.Package
	case KindCargo:
		v := s.Cargo.Version
		if v == "" {
			v = "latest"
		}
		return fmt.Sprintf("cargo:%s@%s", s.Cargo.Crate, v)
	case KindBinary:
		return fmt.Sprintf("binary:%s@%s", s.Binary.Name, s.Binary.Version)
	case KindHTTP:
		return "http:" + s.HTTP.URL
	case KindSSE:
		return "sse:" + s.SSE.URL
	default:
		return "unknown"
	}
}

// Validate checks that exactly the variant field matching Kind is set.
func (s Source) Validate() error {
	set := 0
	for _, populated := range []bool{
		s.Builtin != nil, s.Registry != nil, s.Local != nil, s.Npx != nil,
		s.Pipx != nil, s.Cargo != nil, s.Binary != nil, s.HTTP != nil, s.SSE != nil,
	} {
		if populated {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("modsource: exactly one variant must be set, found %d", set)
	}

	switch s.Kind {
	case KindBuiltin:
		if s.Builtin == nil {
			return fmt.Errorf("modsource: kind %q requires builtin field", s.Kind)
		}
	case KindRegistry:
		if s.Registry == nil {
			return fmt.Errorf("modsource: kind %q requires registry field", s.Kind)
		}
	case KindLocal:
		if s.Local == nil {
			return fmt.Errorf("modsource: kind %q requires local field", s.Kind)
		}
	case KindNpx:
		if s.Npx == nil {
			return fmt.Errorf("modsource: kind %q requires npx field", s.Kind)
		}
	case KindPipx:
		if s.Pipx == nil {
			return fmt.Errorf("modsource: kind %q requires pipx field", s.Kind)
		}
	case KindCargo:
		if s.Cargo == nil {
			return fmt.Errorf("modsource: kind %q requires cargo field", s.Kind)
		}
	case KindBinary:
		if s.Binary == nil {
			return fmt.Errorf("modsource: kind %q requires binary field", s.Kind)
		}
	case KindHTTP:
		if s.HTTP == nil {
			return fmt.Errorf("modsource: kind %q requires http field", s.Kind)
		}
	case KindSSE:
		if s.SSE == nil {
			return fmt.Errorf("modsource: kind %q requires sse field", s.Kind)
		}
	default:
		return fmt.Errorf("modsource: unknown kind %q", s.Kind)
	}
	return nil
}
