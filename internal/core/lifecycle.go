package core

import (
	"time"

	"vialcore/pkg/domain"
)

// Vial lifecycle transitions. Each function runs inside the caller's
// transaction, validates before mutating, and returns the updated vial. The
// enclosing service emits the audit entry; a failed validation rolls the
// whole transaction back.

// activeLotFor resolves a vial's lot, treating archived lots as out of scope.
func activeLotFor(tx Transaction, vial Vial) (Lot, error) {
	lot, ok := tx.FindLot(vial.LotID)
	if !ok {
		return Lot{}, domain.ErrNotFound{Entity: EntityLot, ID: vial.LotID}
	}
	if !isActiveLot(lot) {
		return Lot{}, domain.ErrNotFound{Entity: EntityLot, ID: vial.LotID}
	}
	return lot, nil
}

// secondaryExpiration computes min(lot expiration, receipt + stability
// window). Returns nil when the reagent has no stability window configured.
func secondaryExpiration(tx Transaction, lot Lot, vial Vial) *time.Time {
	reagent, ok := tx.FindReagent(lot.ReagentID)
	if !ok || reagent.StabilityDays == nil {
		return nil
	}
	stability := vial.ReceivedAt.AddDate(0, 0, *reagent.StabilityDays)
	exp := lot.ExpiresAt
	if stability.Before(exp) {
		exp = stability
	}
	return &exp
}

// openVial moves a sealed vial out of storage. The claimed slot must equal
// the vial's recorded slot so the operator confirms the physical cell before
// the transition commits. Under a sealed-counts-only policy the same
// transition lands on depleted directly; there is no separate code path.
func openVial(tx Transaction, vialID, claimedSlotID, actor string, now time.Time, policy LabPolicy, force bool) (Vial, Lot, error) {
	vial, ok := tx.FindVial(vialID)
	if !ok {
		return Vial{}, Lot{}, domain.ErrNotFound{Entity: EntityVial, ID: vialID}
	}
	if vial.Status != VialSealed {
		return Vial{}, Lot{}, domain.StateViolationError{VialID: vialID, Status: vial.Status, Op: "open"}
	}
	recorded := ""
	if vial.SlotID != nil {
		recorded = *vial.SlotID
	}
	if recorded != claimedSlotID {
		return Vial{}, Lot{}, domain.SlotMismatchError{VialID: vialID, ClaimedSlot: claimedSlotID, RecordedSlot: recorded}
	}
	lot, err := activeLotFor(tx, vial)
	if err != nil {
		return Vial{}, Lot{}, err
	}
	if err := openPermitted(lot, force); err != nil {
		return Vial{}, Lot{}, err
	}
	if vial.SlotID != nil {
		if err := releaseSlot(tx, *vial.SlotID); err != nil {
			return Vial{}, Lot{}, err
		}
	}
	expiresAt := secondaryExpiration(tx, lot, vial)
	updated, err := tx.UpdateVial(vialID, func(v *Vial) error {
		v.Status = VialOpened
		v.OpenedAt = &now
		v.OpenedBy = &actor
		v.SlotID = nil
		if expiresAt != nil {
			v.ExpiresAt = expiresAt
		}
		if policy.SealedCountsOnly {
			v.Status = VialDepleted
			v.DepletedAt = &now
			v.DepletedBy = &actor
		}
		return nil
	})
	if err != nil {
		return Vial{}, Lot{}, err
	}
	return updated, lot, nil
}

// depleteVial marks an opened vial empty. With implicitOpen a still-sealed
// vial is treated as opened-then-depleted in one step (bulk depletion). The
// slot is released when still held.
func depleteVial(tx Transaction, vialID, actor string, now time.Time, implicitOpen bool) (Vial, error) {
	vial, ok := tx.FindVial(vialID)
	if !ok {
		return Vial{}, domain.ErrNotFound{Entity: EntityVial, ID: vialID}
	}
	switch vial.Status {
	case VialOpened:
	case VialSealed:
		if !implicitOpen {
			return Vial{}, domain.StateViolationError{VialID: vialID, Status: vial.Status, Op: "deplete"}
		}
	default:
		return Vial{}, domain.StateViolationError{VialID: vialID, Status: vial.Status, Op: "deplete"}
	}
	if vial.SlotID != nil {
		if err := releaseSlot(tx, *vial.SlotID); err != nil {
			return Vial{}, err
		}
	}
	wasSealed := vial.Status == VialSealed
	updated, err := tx.UpdateVial(vialID, func(v *Vial) error {
		if wasSealed {
			v.OpenedAt = &now
			v.OpenedBy = &actor
		}
		v.Status = VialDepleted
		v.DepletedAt = &now
		v.DepletedBy = &actor
		v.SlotID = nil
		return nil
	})
	if err != nil {
		return Vial{}, err
	}
	return updated, nil
}

// returnVialToStorage claims a slot for an opened vial that is being put
// back. Fails SlotOccupied when the target is owned by another vial.
func returnVialToStorage(tx Transaction, vialID, slotID string) (Vial, error) {
	vial, ok := tx.FindVial(vialID)
	if !ok {
		return Vial{}, domain.ErrNotFound{Entity: EntityVial, ID: vialID}
	}
	if vial.Status != VialOpened {
		return Vial{}, domain.StateViolationError{VialID: vialID, Status: vial.Status, Op: "return to storage"}
	}
	if _, err := claimSlot(tx, slotID, vialID); err != nil {
		return Vial{}, err
	}
	updated, ok := tx.FindVial(vialID)
	if !ok {
		return Vial{}, domain.ErrNotFound{Entity: EntityVial, ID: vialID}
	}
	return updated, nil
}

// correctVial is the privileged one-step rollback: depleted back to opened,
// or opened back to sealed with an optional slot restore. Any other target
// is an invalid correction. The mandatory note is validated by the service,
// which also writes it into the audit entry.
func correctVial(tx Transaction, vialID string, target VialStatus, restoreSlotID string) (Vial, error) {
	vial, ok := tx.FindVial(vialID)
	if !ok {
		return Vial{}, domain.ErrNotFound{Entity: EntityVial, ID: vialID}
	}
	switch {
	case vial.Status == VialDepleted && target == VialOpened:
		return tx.UpdateVial(vialID, func(v *Vial) error {
			v.Status = VialOpened
			v.DepletedAt = nil
			v.DepletedBy = nil
			return nil
		})
	case vial.Status == VialOpened && target == VialSealed:
		updated, err := tx.UpdateVial(vialID, func(v *Vial) error {
			v.Status = VialSealed
			v.OpenedAt = nil
			v.OpenedBy = nil
			v.ExpiresAt = nil
			return nil
		})
		if err != nil {
			return Vial{}, err
		}
		if restoreSlotID != "" {
			if _, err := claimSlot(tx, restoreSlotID, vialID); err != nil {
				return Vial{}, err
			}
			updated, ok = tx.FindVial(vialID)
			if !ok {
				return Vial{}, domain.ErrNotFound{Entity: EntityVial, ID: vialID}
			}
		}
		return updated, nil
	default:
		return Vial{}, domain.InvalidCorrectionError{VialID: vialID, From: vial.Status, To: target}
	}
}
