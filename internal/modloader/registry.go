package modloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pragmatic-rustacean/symposium/internal/modsource"
	"golang.org/x/time/rate"
)

// RegistryURL is the ACP registry manifest Symposium resolves agent IDs
// against, mirroring the URL the original Rust registry client used.
const RegistryURL = "https://github.com/agentclientprotocol/registry/releases/latest/download/registry.json"

// registryLimiter throttles outbound registry/crates.io lookups so a chain
// with several Registry/Cargo mods doesn't hammer either service.
var registryLimiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 5)

// RegistryEntry is one agent or extension manifest entry.
type RegistryEntry struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

type registryManifest struct {
	Agents     []RegistryEntry `json:"agents"`
	Extensions []RegistryEntry `json:"extensions"`
}

var (
	registryCacheMu sync.Mutex
	registryCache   *registryManifest
)

func fetchRegistry(ctx context.Context) (*registryManifest, error) {
	registryCacheMu.Lock()
	if registryCache != nil {
		m := registryCache
		registryCacheMu.Unlock()
		return m, nil
	}
	registryCacheMu.Unlock()

	if err := registryLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, RegistryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch registry: unexpected status %d", resp.StatusCode)
	}

	var manifest registryManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	registryCacheMu.Lock()
	registryCache = &manifest
	registryCacheMu.Unlock()

	return &manifest, nil
}

// ListAgents returns every known agent: registry entries merged with the
// compiled-in builtins (eliza), builtins appended after the registry
// entries. A registry entry with a builtin's id is listed too, but
// resolving that id always yields the builtin (see resolveRegistry).
func ListAgents(ctx context.Context) ([]RegistryEntry, error) {
	manifest, err := fetchRegistry(ctx)
	if err != nil {
		return nil, err
	}
	agents := append([]RegistryEntry{}, manifest.Agents...)
	agents = append(agents, RegistryEntry{ID: "eliza", Name: "Eliza (builtin)", Description: "Built-in test agent"})
	return agents, nil
}

// ListExtensions returns every proxy extension the registry advertises.
func ListExtensions(ctx context.Context) ([]RegistryEntry, error) {
	manifest, err := fetchRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return manifest.Extensions, nil
}

// resolveRegistry looks up agent_id in the registry manifest and turns the
// matching entry into a concrete, launchable Source.
func resolveRegistry(ctx context.Context, src modsource.RegistrySource) (modsource.Source, error) {
	if src.AgentID == "eliza" {
		return modsource.Source{Kind: modsource.KindBuiltin, Builtin: &modsource.BuiltinSource{Name: "eliza"}}, nil
	}

	manifest, err := fetchRegistry(ctx)
	if err != nil {
		return modsource.Source{}, err
	}
	for _, entry := range manifest.Agents {
		if entry.ID == src.AgentID {
			env := make([]string, 0, len(entry.Env))
			for k, v := range entry.Env {
				env = append(env, k+"="+v)
			}
			return modsource.Source{
				Kind:  modsource.KindLocal,
				Local: &modsource.LocalSource{Command: entry.Command, Args: entry.Args, Env: env},
			}, nil
		}
	}
	return modsource.Source{}, fmt.Errorf("modloader: agent %q not found in registry", src.AgentID)
}

// ResolveAgentID is the public entry point `symposium registry resolve`
// uses: it returns the McpServer-shaped Source for an agent ID without
// launching it.
func ResolveAgentID(ctx context.Context, agentID string) (modsource.Source, error) {
	return resolveRegistry(ctx, modsource.RegistrySource{AgentID: agentID})
}
