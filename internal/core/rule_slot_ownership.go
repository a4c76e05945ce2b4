package core

import (
	"context"
	"fmt"

	"vialcore/pkg/domain"
)

// NewSlotOwnershipRule returns the in-transaction rule enforcing exclusive
// slot ownership: a slot holds at most one vial, a vial holds at most one
// slot, and the two references always agree. A slot whose occupant belongs to
// an archived lot is tolerated until a claim detaches the stale reference.
func NewSlotOwnershipRule() domain.Rule {
	return slotOwnershipRule{}
}

type slotOwnershipRule struct{}

func (slotOwnershipRule) Name() string { return "slot_ownership" }

func (slotOwnershipRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	// Forward direction: each stored vial points at an existing slot whose
	// back-reference matches, and no two vials share a slot.
	slotOwner := make(map[string]string)
	for _, vial := range view.ListVials() {
		if vial.SlotID == nil {
			continue
		}
		slotID := *vial.SlotID
		if prev, taken := slotOwner[slotID]; taken {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "slot_ownership",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("slot %s claimed by vials %s and %s", slotID, prev, vial.ID),
				Entity:   domain.EntitySlot,
				EntityID: slotID,
			})
			continue
		}
		slotOwner[slotID] = vial.ID
		slot, ok := view.FindSlot(slotID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "slot_ownership",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("vial %s references missing slot %s", vial.ID, slotID),
				Entity:   domain.EntityVial,
				EntityID: vial.ID,
			})
			continue
		}
		if slot.VialID == nil || *slot.VialID != vial.ID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "slot_ownership",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("vial %s claims slot %s but the slot does not point back", vial.ID, slotID),
				Entity:   domain.EntitySlot,
				EntityID: slotID,
			})
		}
	}

	// Reverse direction: an occupied slot references an existing vial, and
	// an occupant from an active lot must point back at the slot.
	for _, slot := range view.ListSlots() {
		if slot.VialID == nil {
			continue
		}
		vial, ok := view.FindVial(*slot.VialID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "slot_ownership",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("slot %s references missing vial %s", slot.ID, *slot.VialID),
				Entity:   domain.EntitySlot,
				EntityID: slot.ID,
			})
			continue
		}
		if lot, ok := view.FindLot(vial.LotID); ok && !lot.Active() {
			// Stale reference left behind by an archive; claims repair it.
			continue
		}
		if vial.SlotID == nil || *vial.SlotID != slot.ID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "slot_ownership",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("slot %s holds vial %s but the vial does not point back", slot.ID, vial.ID),
				Entity:   domain.EntityVial,
				EntityID: vial.ID,
			})
		}
	}

	return res, nil
}
