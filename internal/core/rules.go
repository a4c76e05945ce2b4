package core

import "vialcore/pkg/domain"

// NewRulesEngine returns an empty engine for callers assembling their own
// rule set.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set:
// exclusive slot ownership, slot/status agreement, and container geometry.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewSlotOwnershipRule())
	engine.Register(NewVialSlotStateRule())
	engine.Register(NewContainerGeometryRule())
	return engine
}
