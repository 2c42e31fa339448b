package ports

import (
	"context"

	"github.com/weftworks/weft/internal/domain"
)

// Capability executes one node type. Input is the node's resolved input
// (run context merged over trigger data); the returned map is folded into
// the run context for downstream nodes.
type Capability interface {
	Execute(ctx context.Context, node domain.Node, input map[string]interface{}, rc domain.RunContext) (map[string]interface{}, error)
}

// CapabilityFunc adapts a plain function to the Capability interface.
type CapabilityFunc func(ctx context.Context, node domain.Node, input map[string]interface{}, rc domain.RunContext) (map[string]interface{}, error)

func (f CapabilityFunc) Execute(ctx context.Context, node domain.Node, input map[string]interface{}, rc domain.RunContext) (map[string]interface{}, error) {
	return f(ctx, node, input, rc)
}

// NodeRegistry maps node type strings to capabilities. Resolve returns a
// not-found error for unknown types; what that means for a run is the
// engine's decision.
type NodeRegistry interface {
	Register(nodeType string, capability Capability) error
	Unregister(nodeType string) error
	Resolve(nodeType string) (Capability, error)
	Types() []string
}
