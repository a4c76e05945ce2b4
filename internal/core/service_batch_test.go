package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vialcore/pkg/domain"
)

func TestReceiveAppendsOneLedgerEntryPerBatch(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	sc.receive(t, 4)

	entries, err := sc.svc.LedgerEntries(ctx, LedgerFilter{Action: "receive_batch"})
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 receive_batch entry, got %d", len(entries))
	}
	var summary struct {
		LotID       string   `json:"lot_id"`
		ContainerID string   `json:"container_id"`
		Quantity    int      `json:"quantity"`
		FirstSlot   string   `json:"first_slot"`
		LastSlot    string   `json:"last_slot"`
		VialIDs     []string `json:"vial_ids"`
	}
	if err := json.Unmarshal(entries[0].After.Raw(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Quantity != 4 || summary.FirstSlot != "A1" || summary.LastSlot != "B1" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.VialIDs) != 4 {
		t.Fatalf("summary lists %d vials, want 4", len(summary.VialIDs))
	}
}

func TestDepleteAllOpenedOnlySkipsSealed(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	vials := sc.receive(t, 3)

	slot := sc.slotOf(t, vials[0])
	if _, _, err := sc.svc.Open(ctx, vials[0].ID, slot.ID, false, "tech"); err != nil {
		t.Fatalf("open: %v", err)
	}

	updated, _, err := sc.svc.DepleteAll(ctx, sc.lot.ID, DepleteOpenedOnly, "tech")
	if err != nil {
		t.Fatalf("deplete all: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("depleted %d vials, want 1", len(updated))
	}
	count, err := sc.svc.SealedCount(ctx, sc.lot.ID)
	if err != nil {
		t.Fatalf("sealed count: %v", err)
	}
	if count != 2 {
		t.Fatalf("sealed count %d, want 2", count)
	}
}

func TestDepleteAllActiveEmptiesTheLot(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	vials := sc.receive(t, 3)

	slot := sc.slotOf(t, vials[0])
	if _, _, err := sc.svc.Open(ctx, vials[0].ID, slot.ID, false, "tech"); err != nil {
		t.Fatalf("open: %v", err)
	}

	updated, _, err := sc.svc.DepleteAll(ctx, sc.lot.ID, DepleteAllActive, "tech")
	if err != nil {
		t.Fatalf("deplete all: %v", err)
	}
	if len(updated) != 3 {
		t.Fatalf("depleted %d vials, want 3", len(updated))
	}
	for _, vial := range updated {
		if vial.Status != VialDepleted {
			t.Fatalf("vial %s status %s, want depleted", vial.ID, vial.Status)
		}
		if vial.OpenedAt == nil {
			t.Fatalf("vial %s has no opened timestamp after implicit open", vial.ID)
		}
	}
	usage, err := sc.svc.AvailableSlots(ctx, sc.container.ID)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	if usage.Occupied != 0 {
		t.Fatalf("depleted vials still occupy %d slots", usage.Occupied)
	}

	// Bulk depletion audits per vial: each before/after pair differs.
	entries, err := sc.svc.LedgerEntries(ctx, LedgerFilter{Action: "deplete_all"})
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 deplete_all entries, got %d", len(entries))
	}
}

func TestDepleteAllRejectsUnknownScope(t *testing.T) {
	sc := newScenario(t)
	sc.receive(t, 1)
	if _, _, err := sc.svc.DepleteAll(context.Background(), sc.lot.ID, DepleteScope("everything"), "tech"); err == nil {
		t.Fatal("unknown scope should be rejected")
	}
}

func TestMoveBatchFailsAtomicallyOnCapacity(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	vials := sc.receive(t, 2)

	tight, _, err := sc.svc.CreateContainer(ctx, StorageContainer{LabID: "lab-1", Name: "Overflow", Rows: 1, Cols: 1}, "admin")
	if err != nil {
		t.Fatalf("create container: %v", err)
	}

	_, _, err = sc.svc.MoveBatch(ctx, []string{vials[0].ID, vials[1].ID}, tight.ID, MovePlacement{}, "tech")
	var capErr domain.InsufficientCapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected InsufficientCapacityError, got %v", err)
	}
	if capErr.Available != 1 || capErr.Requested != 2 {
		t.Fatalf("unexpected capacity error %+v", capErr)
	}

	// No partial move: both vials still sit in the source container.
	for i, vial := range vials {
		current, _ := sc.svc.Store().GetVial(vial.ID)
		if current.SlotID == nil || *current.SlotID != *vial.SlotID {
			t.Fatalf("vial %d moved despite the failed batch", i)
		}
	}
}

func TestMoveBatchAuditsOncePerLot(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()

	second, _, err := sc.svc.CreateLot(ctx, Lot{
		LabID:     "lab-1",
		ReagentID: sc.reagent.ID,
		LotNumber: "L2026-003",
		ExpiresAt: scenarioStart.AddDate(1, 0, 0),
		QCStatus:  QCApproved,
	}, "admin")
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	batchA := sc.receive(t, 2)
	batchB, _, err := sc.svc.Receive(ctx, second.ID, 1, sc.container.ID, "tech")
	if err != nil {
		t.Fatalf("receive second lot: %v", err)
	}

	target, _, err := sc.svc.CreateContainer(ctx, StorageContainer{LabID: "lab-1", Name: "Freezer B", Rows: 2, Cols: 2}, "admin")
	if err != nil {
		t.Fatalf("create container: %v", err)
	}

	moved, _, err := sc.svc.MoveBatch(ctx, []string{batchA[0].ID, batchA[1].ID, batchB[0].ID}, target.ID, MovePlacement{}, "tech")
	if err != nil {
		t.Fatalf("move batch: %v", err)
	}
	if len(moved) != 3 {
		t.Fatalf("moved %d vials, want 3", len(moved))
	}
	for _, vial := range moved {
		slot := vial.SlotID
		if slot == nil {
			t.Fatalf("moved vial %s holds no slot", vial.ID)
		}
	}
	usage, err := sc.svc.AvailableSlots(ctx, target.ID)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	if usage.Occupied != 3 {
		t.Fatalf("target occupancy %d, want 3", usage.Occupied)
	}

	entries, err := sc.svc.LedgerEntries(ctx, LedgerFilter{Action: "move_batch"})
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected one move_batch entry per lot, got %d", len(entries))
	}
	if entries[0].EntityID != sc.lot.ID || entries[1].EntityID != second.ID {
		t.Fatalf("entries not in first-seen lot order: %s, %s", entries[0].EntityID, entries[1].EntityID)
	}
}

func TestMoveBatchExplicitPlacementAllowsInBatchSwap(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	vials := sc.receive(t, 2)

	slotA := sc.slotOf(t, vials[0])
	slotB := sc.slotOf(t, vials[1])

	// Swap the two vials inside the same container.
	moved, _, err := sc.svc.MoveBatch(ctx, []string{vials[0].ID, vials[1].ID}, sc.container.ID,
		MovePlacement{ExplicitSlotIDs: []string{slotB.ID, slotA.ID}}, "tech")
	if err != nil {
		t.Fatalf("swap move: %v", err)
	}
	if *moved[0].SlotID != slotB.ID || *moved[1].SlotID != slotA.ID {
		t.Fatal("swap did not land vials in each other's slots")
	}
}

func TestMoveBatchExplicitPlacementRejectsForeignOccupant(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	vials := sc.receive(t, 2)

	occupied := sc.slotOf(t, vials[1])
	_, _, err := sc.svc.MoveBatch(ctx, []string{vials[0].ID}, sc.container.ID,
		MovePlacement{ExplicitSlotIDs: []string{occupied.ID}}, "tech")
	var occErr domain.SlotOccupiedError
	if !errors.As(err, &occErr) {
		t.Fatalf("expected SlotOccupiedError, got %v", err)
	}
}

func TestMoveBatchCursorStartsAllocationMidGrid(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	vials := sc.receive(t, 1)

	slots := sc.svc.Store().ListContainerSlots(sc.container.ID)
	// Cursor at B1 (index 3 in the row-major 3x3 grid).
	cursor := slots[3]
	moved, _, err := sc.svc.MoveBatch(ctx, []string{vials[0].ID}, sc.container.ID,
		MovePlacement{CursorSlotID: cursor.ID}, "tech")
	if err != nil {
		t.Fatalf("move with cursor: %v", err)
	}
	if *moved[0].SlotID != cursor.ID {
		t.Fatalf("vial landed in %s, want cursor slot %s", *moved[0].SlotID, cursor.ID)
	}
}

func TestMoveBatchRejectsDepletedVials(t *testing.T) {
	sc := newScenario(t)
	ctx := context.Background()
	vials := sc.receive(t, 1)
	slot := sc.slotOf(t, vials[0])

	if _, _, err := sc.svc.Open(ctx, vials[0].ID, slot.ID, false, "tech"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := sc.svc.Deplete(ctx, vials[0].ID, "tech"); err != nil {
		t.Fatalf("deplete: %v", err)
	}

	_, _, err := sc.svc.MoveBatch(ctx, []string{vials[0].ID}, sc.container.ID, MovePlacement{}, "tech")
	var stateErr domain.StateViolationError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateViolationError, got %v", err)
	}
}
