package tools

import (
	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/governor"
	"github.com/topolane/topolane/internal/store"
)

// Dependencies are the backing components built-in tools wrap.
type Dependencies struct {
	Store    store.Store
	Engine   *engine.Engine
	Governor *governor.Governor
}

// NewBuiltinRegistry returns a Registry populated with every built-in tool
// whose dependency is present. A nil Governor, for example, simply omits
// the governor-backed tools rather than erroring.
func NewBuiltinRegistry(deps Dependencies) *Registry {
	r := NewRegistry()

	if deps.Store != nil {
		r.Register(NewQueryNodesTool(deps.Store))
		r.Register(NewGetNodeTool(deps.Store))
	}
	if deps.Engine != nil {
		r.Register(NewBlastRadiusTool(deps.Engine))
		r.Register(NewDependencyChainTool(deps.Engine))
		r.Register(NewCostByFilterTool(deps.Engine))
		r.Register(NewDetectDriftTool(deps.Engine))
		r.Register(NewGetStatsTool(deps.Engine))
	}
	if deps.Governor != nil {
		r.Register(NewPendingRequestsTool(deps.Governor))
		r.Register(NewAuditTrailTool(deps.Governor))
	}

	return r
}
