package core

import (
	"fmt"
	"math"

	"vialcore/pkg/domain"
)

// slotOccupant resolves the effective owner of a slot under the active-lot
// filter. A back-reference from a vial whose lot is archived is stale: the
// slot is logically free and the stale reference is repaired on claim.
func slotOccupant(view TransactionView, slot Slot) (Vial, bool) {
	if slot.VialID == nil {
		return Vial{}, false
	}
	vial, ok := view.FindVial(*slot.VialID)
	if !ok {
		return Vial{}, false
	}
	lot, ok := view.FindLot(vial.LotID)
	if !ok || !isActiveLot(lot) {
		return Vial{}, false
	}
	return vial, true
}

// nextEmptySlot returns the first unowned slot of the container in row-major
// order. A full container yields ErrNotFound carrying the container ID.
func nextEmptySlot(view TransactionView, containerID string) (Slot, error) {
	if _, ok := view.FindContainer(containerID); !ok {
		return Slot{}, domain.ErrNotFound{Entity: EntityContainer, ID: containerID}
	}
	for _, slot := range view.ListContainerSlots(containerID) {
		if _, occupied := slotOccupant(view, slot); !occupied {
			return slot, nil
		}
	}
	return Slot{}, domain.ErrNotFound{Entity: EntitySlot, ID: containerID}
}

// emptySlots returns all unowned slots of the container in row-major order,
// optionally starting after the cursor slot.
func emptySlots(view TransactionView, containerID, cursorSlotID string) []Slot {
	slots := view.ListContainerSlots(containerID)
	start := 0
	if cursorSlotID != "" {
		for i, slot := range slots {
			if slot.ID == cursorSlotID {
				start = i
				break
			}
		}
	}
	var out []Slot
	for _, slot := range slots[start:] {
		if _, occupied := slotOccupant(view, slot); !occupied {
			out = append(out, slot)
		}
	}
	return out
}

// slotUsage summarizes a container's occupancy under the active-lot filter.
func slotUsage(view TransactionView, containerID string) (SlotUsage, error) {
	if _, ok := view.FindContainer(containerID); !ok {
		return SlotUsage{}, domain.ErrNotFound{Entity: EntityContainer, ID: containerID}
	}
	usage := SlotUsage{}
	for _, slot := range view.ListContainerSlots(containerID) {
		usage.Total++
		if _, occupied := slotOccupant(view, slot); occupied {
			usage.Occupied++
		}
	}
	usage.Available = usage.Total - usage.Occupied
	return usage, nil
}

// claimSlot performs the conditional slot acquisition: it succeeds only when
// the slot is unowned at commit time under the active-lot filter. A stale
// back-reference from an archived lot's vial is detached as part of the
// claim. Transactions are serialized by the store, so two concurrent claims
// on the same empty slot resolve to one winner and one SlotOccupiedError.
func claimSlot(tx Transaction, slotID, vialID string) (Slot, error) {
	slot, ok := tx.FindSlot(slotID)
	if !ok {
		return Slot{}, domain.ErrNotFound{Entity: EntitySlot, ID: slotID}
	}
	if occupant, occupied := slotOccupant(tx.Snapshot(), slot); occupied {
		if occupant.ID == vialID {
			return slot, nil
		}
		return Slot{}, domain.SlotOccupiedError{SlotID: slot.ID, Label: slot.Label, Occupant: occupant.ID}
	}
	if slot.VialID != nil && *slot.VialID != vialID {
		// Stale reference: detach the archived lot's vial before handover.
		staleID := *slot.VialID
		if _, ok := tx.FindVial(staleID); ok {
			if _, err := tx.UpdateVial(staleID, func(v *Vial) error {
				if v.SlotID != nil && *v.SlotID == slot.ID {
					v.SlotID = nil
				}
				return nil
			}); err != nil {
				return Slot{}, err
			}
		}
	}
	updated, err := tx.UpdateSlot(slot.ID, func(s *Slot) error {
		s.VialID = &vialID
		return nil
	})
	if err != nil {
		return Slot{}, err
	}
	if _, err := tx.UpdateVial(vialID, func(v *Vial) error {
		v.SlotID = &updated.ID
		return nil
	}); err != nil {
		return Slot{}, err
	}
	return updated, nil
}

// releaseSlot clears slot ownership. Releasing an already-empty slot is a
// no-op; the vial back-reference is cleared only when it points here.
func releaseSlot(tx Transaction, slotID string) error {
	slot, ok := tx.FindSlot(slotID)
	if !ok {
		return domain.ErrNotFound{Entity: EntitySlot, ID: slotID}
	}
	if slot.VialID == nil {
		return nil
	}
	occupantID := *slot.VialID
	if _, err := tx.UpdateSlot(slot.ID, func(s *Slot) error {
		s.VialID = nil
		return nil
	}); err != nil {
		return err
	}
	if vial, ok := tx.FindVial(occupantID); ok && vial.SlotID != nil && *vial.SlotID == slot.ID {
		if _, err := tx.UpdateVial(occupantID, func(v *Vial) error {
			v.SlotID = nil
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// growTemporaryContainer expands a temporary container to the smallest
// square grid holding requiredCount slots. Growth is additive: existing slot
// identities, coordinates and owners are untouched; only missing coordinates
// gain slots. Non-temporary containers never grow.
func growTemporaryContainer(tx Transaction, containerID string, requiredCount int) (StorageContainer, error) {
	container, ok := tx.FindContainer(containerID)
	if !ok {
		return StorageContainer{}, domain.ErrNotFound{Entity: EntityContainer, ID: containerID}
	}
	if !container.Temporary {
		return StorageContainer{}, fmt.Errorf("container %s is not temporary and cannot grow", containerID)
	}
	if requiredCount < 1 {
		requiredCount = 1
	}
	size := int(math.Ceil(math.Sqrt(float64(requiredCount))))
	rows := container.Rows
	cols := container.Cols
	if size > rows {
		rows = size
	}
	if size > cols {
		cols = size
	}
	if rows == container.Rows && cols == container.Cols {
		return container, nil
	}
	updated, err := tx.UpdateContainer(containerID, func(c *StorageContainer) error {
		c.Rows = rows
		c.Cols = cols
		return nil
	})
	if err != nil {
		return StorageContainer{}, err
	}
	existing := make(map[[2]int]struct{})
	for _, slot := range tx.ListContainerSlots(containerID) {
		existing[[2]int{slot.Row, slot.Col}] = struct{}{}
	}
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			if _, ok := existing[[2]int{row, col}]; ok {
				continue
			}
			if _, err := tx.CreateSlot(Slot{ContainerID: containerID, Row: row, Col: col}); err != nil {
				return StorageContainer{}, err
			}
		}
	}
	return updated, nil
}

// materializeSlots creates the full rows x cols grid for a new container.
func materializeSlots(tx Transaction, container StorageContainer) error {
	for row := 0; row < container.Rows; row++ {
		for col := 0; col < container.Cols; col++ {
			if _, err := tx.CreateSlot(Slot{ContainerID: container.ID, Row: row, Col: col}); err != nil {
				return err
			}
		}
	}
	return nil
}
