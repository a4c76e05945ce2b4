package domain

import "context"

// RuleView is the read-only state rules evaluate against.
type RuleView interface {
	ListReagents() []Reagent
	ListLots() []Lot
	ListVials() []Vial
	ListContainers() []StorageContainer
	ListSlots() []Slot
	FindReagent(id string) (Reagent, bool)
	FindLot(id string) (Lot, bool)
	FindVial(id string) (Vial, bool)
	FindContainer(id string) (StorageContainer, bool)
	FindSlot(id string) (Slot, bool)
}

// Rule inspects a transaction's state and changes before commit.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine holds the registered rule set and runs it at commit.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine returns an engine with no rules registered.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register adds a rule. Rules run in registration order.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate runs every rule and merges their findings.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
