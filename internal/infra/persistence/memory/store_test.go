package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"vialcore/pkg/domain"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	store := NewStore(nil)
	store.SetNowFunc(func() time.Time { return testStart })
	return store
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store := newTestStore()
	sentinel := errors.New("abort")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateReagent(Reagent{Name: "Taq", CatalogNumber: "T-1", Vendor: "V"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if err := store.View(context.Background(), func(view TransactionView) error {
		if got := len(view.ListReagents()); got != 0 {
			t.Fatalf("rolled-back transaction left %d reagents", got)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestReadsReturnIndependentCopies(t *testing.T) {
	store := newTestStore()
	var reagent Reagent
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		reagent, err = tx.CreateReagent(Reagent{Name: "Taq", CatalogNumber: "T-1", Vendor: "V"})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := store.GetReagent(reagent.ID)
	first.Name = "mutated"
	second, _ := store.GetReagent(reagent.ID)
	if second.Name != "Taq" {
		t.Fatal("store handed out shared state")
	}
}

func TestListReagentsReturnsCommittedState(t *testing.T) {
	store := newTestStore()
	if got := store.ListReagents(); len(got) != 0 {
		t.Fatalf("empty store listed %d reagents", len(got))
	}
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateReagent(Reagent{Name: "Taq", CatalogNumber: "T-1", Vendor: "V"}); err != nil {
			return err
		}
		_, err := tx.CreateReagent(Reagent{Name: "Ligase", CatalogNumber: "L-1", Vendor: "V"})
		return err
	})
	if err != nil {
		t.Fatalf("seed reagents: %v", err)
	}

	reagents := store.ListReagents()
	if len(reagents) != 2 {
		t.Fatalf("listed %d reagents, want 2", len(reagents))
	}
	reagents[0].Name = "mutated"
	for _, r := range store.ListReagents() {
		if r.Name == "mutated" {
			t.Fatal("list handed out shared state")
		}
	}
}

func TestUpdateContainerRejectsShrink(t *testing.T) {
	store := newTestStore()
	var container StorageContainer
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		container, err = tx.CreateContainer(StorageContainer{LabID: "lab-1", Name: "Rack", Rows: 3, Cols: 3})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateContainer(container.ID, func(c *StorageContainer) error {
			c.Rows = 2
			return nil
		})
		return err
	})
	if err == nil {
		t.Fatal("shrinking a container should fail")
	}
}

func TestCreateSlotRejectsDuplicateCoordinate(t *testing.T) {
	store := newTestStore()
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		container, err := tx.CreateContainer(StorageContainer{LabID: "lab-1", Name: "Rack", Rows: 2, Cols: 2})
		if err != nil {
			return err
		}
		if _, err := tx.CreateSlot(Slot{ContainerID: container.ID, Row: 0, Col: 0}); err != nil {
			return err
		}
		_, err = tx.CreateSlot(Slot{ContainerID: container.ID, Row: 0, Col: 0})
		return err
	})
	if err == nil {
		t.Fatal("duplicate coordinate should fail")
	}
}

func TestSlotsListedRowMajorWithLabels(t *testing.T) {
	store := newTestStore()
	var container StorageContainer
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		container, err = tx.CreateContainer(StorageContainer{LabID: "lab-1", Name: "Rack", Rows: 2, Cols: 3})
		if err != nil {
			return err
		}
		// Create out of order; listing sorts row-major.
		for _, rc := range [][2]int{{1, 2}, {0, 0}, {1, 0}, {0, 2}, {0, 1}, {1, 1}} {
			if _, err := tx.CreateSlot(Slot{ContainerID: container.ID, Row: rc[0], Col: rc[1]}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	slots := store.ListContainerSlots(container.ID)
	want := []string{"A1", "A2", "A3", "B1", "B2", "B3"}
	if len(slots) != len(want) {
		t.Fatalf("listed %d slots, want %d", len(slots), len(want))
	}
	for i, slot := range slots {
		if slot.Label != want[i] {
			t.Fatalf("slot %d label %s, want %s", i, slot.Label, want[i])
		}
	}
}

func TestAppendAuditEntryRequiresActorAndAction(t *testing.T) {
	store := newTestStore()
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.AppendAuditEntry(AuditEntry{Actor: "tech"})
		return err
	})
	if err == nil {
		t.Fatal("entry without an action should fail")
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.AppendAuditEntry(AuditEntry{Action: "receive_batch"})
		return err
	})
	if err == nil {
		t.Fatal("entry without an actor should fail")
	}
}

func TestLedgerPreservesAppendOrder(t *testing.T) {
	store := newTestStore()
	actions := []string{"create_lot", "receive_batch", "open_vial"}
	for _, action := range actions {
		_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, err := tx.AppendAuditEntry(AuditEntry{Actor: "tech", Action: action, Entity: domain.EntityLot, EntityID: "lot-1"})
			return err
		})
		if err != nil {
			t.Fatalf("append %s: %v", action, err)
		}
	}

	entries := store.ListAuditEntries()
	if len(entries) != len(actions) {
		t.Fatalf("ledger holds %d entries, want %d", len(entries), len(actions))
	}
	for i, entry := range entries {
		if entry.Action != actions[i] {
			t.Fatalf("entry %d action %s, want %s", i, entry.Action, actions[i])
		}
		if entry.ID == "" || entry.CreatedAt.IsZero() {
			t.Fatalf("entry %d missing identity or timestamp: %+v", i, entry)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := newTestStore()
	var lot Lot
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		reagent, err := tx.CreateReagent(Reagent{Name: "Taq", CatalogNumber: "T-1", Vendor: "V"})
		if err != nil {
			return err
		}
		lot, err = tx.CreateLot(Lot{LabID: "lab-1", ReagentID: reagent.ID, LotNumber: "L-1", ExpiresAt: testStart.AddDate(1, 0, 0), QCStatus: domain.QCPending})
		if err != nil {
			return err
		}
		if _, err := tx.CreateVial(Vial{LotID: lot.ID, Status: domain.VialSealed, ReceivedAt: testStart}); err != nil {
			return err
		}
		_, err = tx.AppendAuditEntry(AuditEntry{Actor: "tech", Action: "create_lot", Entity: domain.EntityLot, EntityID: lot.ID})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	snapshot := store.ExportState()
	restored := NewStore(nil)
	restored.ImportState(snapshot)

	if _, ok := restored.GetLot(lot.ID); !ok {
		t.Fatal("imported store lost the lot")
	}
	if got := len(restored.ListVials()); got != 1 {
		t.Fatalf("imported store holds %d vials, want 1", got)
	}
	if got := len(restored.ListAuditEntries()); got != 1 {
		t.Fatalf("imported store holds %d ledger entries, want 1", got)
	}

	// The exported snapshot is a deep copy: mutating the original store
	// afterwards leaves the restored copy untouched.
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateLot(lot.ID, func(l *Lot) error {
			l.QCStatus = domain.QCApproved
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	copyLot, _ := restored.GetLot(lot.ID)
	if copyLot.QCStatus != domain.QCPending {
		t.Fatal("snapshot shared state with the live store")
	}
}

func TestListLotVialsOrderedByReceipt(t *testing.T) {
	store := NewStore(nil)
	times := []time.Time{
		testStart.Add(2 * time.Hour),
		testStart,
		testStart.Add(time.Hour),
	}
	var lot Lot
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		reagent, err := tx.CreateReagent(Reagent{Name: "Taq", CatalogNumber: "T-1", Vendor: "V"})
		if err != nil {
			return err
		}
		lot, err = tx.CreateLot(Lot{LabID: "lab-1", ReagentID: reagent.ID, LotNumber: "L-1", ExpiresAt: testStart.AddDate(1, 0, 0), QCStatus: domain.QCApproved})
		if err != nil {
			return err
		}
		for _, ts := range times {
			if _, err := tx.CreateVial(Vial{LotID: lot.ID, Status: domain.VialSealed, ReceivedAt: ts}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var listed []Vial
	if err := store.View(context.Background(), func(view TransactionView) error {
		listed = view.ListLotVials(lot.ID)
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("listed %d vials, want 3", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].ReceivedAt.Before(listed[i-1].ReceivedAt) {
			t.Fatal("vials not ordered by receipt time")
		}
	}
}
