package domain

import "context"

// Transaction is the mutable unit of work a backend runs atomically. The domain has no hard deletes: lots
// archive, vials deplete, containers only grow, and the audit ledger is
// append-only by construction (no update or delete method exists for it).
type Transaction interface {
	Snapshot() TransactionView
	CreateReagent(Reagent) (Reagent, error)
	UpdateReagent(id string, mutator func(*Reagent) error) (Reagent, error)
	CreateLot(Lot) (Lot, error)
	UpdateLot(id string, mutator func(*Lot) error) (Lot, error)
	CreateVial(Vial) (Vial, error)
	UpdateVial(id string, mutator func(*Vial) error) (Vial, error)
	CreateContainer(StorageContainer) (StorageContainer, error)
	UpdateContainer(id string, mutator func(*StorageContainer) error) (StorageContainer, error)
	CreateSlot(Slot) (Slot, error)
	UpdateSlot(id string, mutator func(*Slot) error) (Slot, error)
	AppendAuditEntry(AuditEntry) (AuditEntry, error)
	FindReagent(id string) (Reagent, bool)
	FindLot(id string) (Lot, bool)
	FindVial(id string) (Vial, bool)
	FindContainer(id string) (StorageContainer, bool)
	FindSlot(id string) (Slot, bool)
	ListContainerSlots(containerID string) []Slot
	ListLotVials(lotID string) []Vial
}

// TransactionView provides read-only access to snapshot data for rules and
// queries.
type TransactionView interface {
	RuleView
	ListAuditEntries() []AuditEntry
	ListContainerSlots(containerID string) []Slot
	ListLotVials(lotID string) []Vial
}

// PersistentStore is what the service layer holds: transactional writes
// plus the read surface queries need outside a transaction.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetReagent(id string) (Reagent, bool)
	GetLot(id string) (Lot, bool)
	GetVial(id string) (Vial, bool)
	GetContainer(id string) (StorageContainer, bool)
	ListLots() []Lot
	ListVials() []Vial
	ListContainers() []StorageContainer
	ListContainerSlots(containerID string) []Slot
	ListAuditEntries() []AuditEntry
}
