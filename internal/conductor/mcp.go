package conductor

import "encoding/json"

// Mode selects how session/new's mcp_servers list is rewritten as it
// passes through the conductor, so that proxy hops can appear to the
// terminal agent as MCP servers the client itself provided.
type Mode int

const (
	// ModeDefault passes mcp_servers through unchanged. It is the only
	// mode this implementation exercises; other values are modeled for
	// forward compatibility with future bridging policies.
	ModeDefault Mode = iota
)

// rewriteSessionNew applies mode's bridging policy to a session/new
// request's params before it is forwarded to the first hop.
func rewriteSessionNew(mode Mode, params json.RawMessage) (json.RawMessage, error) {
	switch mode {
	case ModeDefault:
		return params, nil
	default:
		return params, nil
	}
}
