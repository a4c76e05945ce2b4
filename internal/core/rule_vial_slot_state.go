package core

import (
	"context"
	"fmt"

	"vialcore/pkg/domain"
)

// NewVialSlotStateRule returns the in-transaction rule tying slot occupancy
// to vial lifecycle state: only sealed and opened vials may hold a slot, and
// every vial status must be one of the canonical states.
func NewVialSlotStateRule() domain.Rule {
	return vialSlotStateRule{}
}

type vialSlotStateRule struct{}

var storableStates = map[domain.VialStatus]struct{}{
	domain.VialSealed: {},
	domain.VialOpened: {},
}

var validVialStates = map[domain.VialStatus]struct{}{
	domain.VialSealed:   {},
	domain.VialOpened:   {},
	domain.VialDepleted: {},
	domain.VialArchived: {},
}

func (vialSlotStateRule) Name() string { return "vial_slot_state" }

func (vialSlotStateRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, vial := range view.ListVials() {
		if _, ok := validVialStates[vial.Status]; !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "vial_slot_state",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("vial %s has unknown status %q", vial.ID, vial.Status),
				Entity:   domain.EntityVial,
				EntityID: vial.ID,
			})
			continue
		}
		if vial.SlotID == nil {
			continue
		}
		if _, ok := storableStates[vial.Status]; !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "vial_slot_state",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("vial %s is %s and cannot occupy slot %s", vial.ID, vial.Status, *vial.SlotID),
				Entity:   domain.EntityVial,
				EntityID: vial.ID,
			})
		}
	}
	return res, nil
}
