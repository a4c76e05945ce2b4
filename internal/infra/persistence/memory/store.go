// Package memory is the transactional engine every backend shares: a
// mutex-serialized store over cloned state maps, with rule evaluation at
// commit. The sqlite and postgres stores embed it and add durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vialcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

// Domain type aliases keep store internals readable without qualifying
// every entity reference.
type (
	Reagent          = domain.Reagent
	Lot              = domain.Lot
	Vial             = domain.Vial
	StorageContainer = domain.StorageContainer
	Slot             = domain.Slot
	AuditEntry       = domain.AuditEntry
	Change           = domain.Change
	Result           = domain.Result
	RulesEngine      = domain.RulesEngine
	Transaction      = domain.Transaction
	TransactionView  = domain.TransactionView
)

type memoryState struct {
	reagents   map[string]Reagent
	lots       map[string]Lot
	vials      map[string]Vial
	containers map[string]StorageContainer
	slots      map[string]Slot
	ledger     []AuditEntry
}

// Snapshot captures a point-in-time clone of the store state. The ledger is
// kept as an ordered slice so append order survives export/import.
type Snapshot struct {
	Reagents   map[string]Reagent          `json:"reagents"`
	Lots       map[string]Lot              `json:"lots"`
	Vials      map[string]Vial             `json:"vials"`
	Containers map[string]StorageContainer `json:"containers"`
	Slots      map[string]Slot             `json:"slots"`
	Ledger     []AuditEntry                `json:"ledger"`
}

func newMemoryState() memoryState {
	return memoryState{
		reagents:   make(map[string]Reagent),
		lots:       make(map[string]Lot),
		vials:      make(map[string]Vial),
		containers: make(map[string]StorageContainer),
		slots:      make(map[string]Slot),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.reagents {
		cloned.reagents[k] = cloneReagent(v)
	}
	for k, v := range s.lots {
		cloned.lots[k] = cloneLot(v)
	}
	for k, v := range s.vials {
		cloned.vials[k] = cloneVial(v)
	}
	for k, v := range s.containers {
		cloned.containers[k] = cloneContainer(v)
	}
	for k, v := range s.slots {
		cloned.slots[k] = cloneSlot(v)
	}
	cloned.ledger = append([]AuditEntry(nil), s.ledger...)
	return cloned
}

func cloneReagent(r Reagent) Reagent {
	cp := r
	if r.StabilityDays != nil {
		d := *r.StabilityDays
		cp.StabilityDays = &d
	}
	return cp
}

func cloneLot(l Lot) Lot {
	cp := l
	if l.ArchivedAt != nil {
		t := *l.ArchivedAt
		cp.ArchivedAt = &t
	}
	return cp
}

func cloneVial(v Vial) Vial {
	cp := v
	cp.SlotID = cloneStringPtr(v.SlotID)
	cp.OpenedBy = cloneStringPtr(v.OpenedBy)
	cp.DepletedBy = cloneStringPtr(v.DepletedBy)
	cp.OpenedAt = cloneTimePtr(v.OpenedAt)
	cp.DepletedAt = cloneTimePtr(v.DepletedAt)
	cp.ExpiresAt = cloneTimePtr(v.ExpiresAt)
	return cp
}

func cloneContainer(c StorageContainer) StorageContainer { return c }

func cloneSlot(s Slot) Slot {
	cp := s
	cp.VialID = cloneStringPtr(s.VialID)
	return cp
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Store provides an in-memory transactional store for the vial domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore builds an empty store evaluating engine's rules at commit.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// SetNowFunc overrides the clock used for record timestamps (tests).
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

// NowFunc exposes the store clock.
func (s *Store) NowFunc() func() time.Time { return s.nowFn }

// RulesEngine exposes the engine evaluating commits.
func (s *Store) RulesEngine() *RulesEngine { return s.engine }

// ExportState returns a deep copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the committed state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(snapshot)
}

func snapshotFromState(state memoryState) Snapshot {
	snap := Snapshot{
		Reagents:   make(map[string]Reagent, len(state.reagents)),
		Lots:       make(map[string]Lot, len(state.lots)),
		Vials:      make(map[string]Vial, len(state.vials)),
		Containers: make(map[string]StorageContainer, len(state.containers)),
		Slots:      make(map[string]Slot, len(state.slots)),
		Ledger:     append([]AuditEntry(nil), state.ledger...),
	}
	for k, v := range state.reagents {
		snap.Reagents[k] = cloneReagent(v)
	}
	for k, v := range state.lots {
		snap.Lots[k] = cloneLot(v)
	}
	for k, v := range state.vials {
		snap.Vials[k] = cloneVial(v)
	}
	for k, v := range state.containers {
		snap.Containers[k] = cloneContainer(v)
	}
	for k, v := range state.slots {
		snap.Slots[k] = cloneSlot(v)
	}
	return snap
}

func stateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range snap.Reagents {
		state.reagents[k] = cloneReagent(v)
	}
	for k, v := range snap.Lots {
		state.lots[k] = cloneLot(v)
	}
	for k, v := range snap.Vials {
		state.vials[k] = cloneVial(v)
	}
	for k, v := range snap.Containers {
		state.containers[k] = cloneContainer(v)
	}
	for k, v := range snap.Slots {
		state.slots[k] = cloneSlot(v)
	}
	state.ledger = append([]AuditEntry(nil), snap.Ledger...)
	return state
}

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of transactional state.
type transactionView struct {
	state *memoryState
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The store mutex serializes transactions, so a conditional update
// inside fn observes every previously committed claim: two concurrent
// attempts to claim the same slot resolve to one winner.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := transactionView{state: &tx.state}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View runs fn over a read-only copy of the current state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func payloadFor[T any](value T) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		panic(fmt.Errorf("memory store snapshot payload: %w", err))
	}
	return payload
}

// Snapshot exposes the transactional state to rules and callers.
func (tx *transaction) Snapshot() TransactionView {
	return transactionView{state: &tx.state}
}

// CreateReagent stores a new reagent catalog record.
func (tx *transaction) CreateReagent(r Reagent) (Reagent, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.reagents[r.ID]; exists {
		return Reagent{}, fmt.Errorf("reagent %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.reagents[r.ID] = cloneReagent(r)
	tx.recordChange(Change{Entity: domain.EntityReagent, Action: domain.ActionCreate, After: payloadFor(r)})
	return cloneReagent(r), nil
}

// UpdateReagent mutates a reagent using the provided mutator function.
func (tx *transaction) UpdateReagent(id string, mutator func(*Reagent) error) (Reagent, error) {
	current, ok := tx.state.reagents[id]
	if !ok {
		return Reagent{}, domain.ErrNotFound{Entity: domain.EntityReagent, ID: id}
	}
	before := cloneReagent(current)
	if err := mutator(&current); err != nil {
		return Reagent{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.reagents[id] = cloneReagent(current)
	tx.recordChange(Change{Entity: domain.EntityReagent, Action: domain.ActionUpdate, Before: payloadFor(before), After: payloadFor(current)})
	return cloneReagent(current), nil
}

// CreateLot stores a new lot. QC status defaults to pending.
func (tx *transaction) CreateLot(l Lot) (Lot, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.lots[l.ID]; exists {
		return Lot{}, fmt.Errorf("lot %q already exists", l.ID)
	}
	if l.QCStatus == "" {
		l.QCStatus = domain.QCPending
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.lots[l.ID] = cloneLot(l)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionCreate, After: payloadFor(l)})
	return cloneLot(l), nil
}

// UpdateLot mutates an existing lot.
func (tx *transaction) UpdateLot(id string, mutator func(*Lot) error) (Lot, error) {
	current, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, domain.ErrNotFound{Entity: domain.EntityLot, ID: id}
	}
	before := cloneLot(current)
	if err := mutator(&current); err != nil {
		return Lot{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.lots[id] = cloneLot(current)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionUpdate, Before: payloadFor(before), After: payloadFor(current)})
	return cloneLot(current), nil
}

// CreateVial stores a new vial record.
func (tx *transaction) CreateVial(v Vial) (Vial, error) {
	if v.ID == "" {
		v.ID = tx.store.newID()
	}
	if _, exists := tx.state.vials[v.ID]; exists {
		return Vial{}, fmt.Errorf("vial %q already exists", v.ID)
	}
	if v.Status == "" {
		v.Status = domain.VialSealed
	}
	v.CreatedAt = tx.now
	v.UpdatedAt = tx.now
	tx.state.vials[v.ID] = cloneVial(v)
	tx.recordChange(Change{Entity: domain.EntityVial, Action: domain.ActionCreate, After: payloadFor(v)})
	return cloneVial(v), nil
}

// UpdateVial mutates an existing vial.
func (tx *transaction) UpdateVial(id string, mutator func(*Vial) error) (Vial, error) {
	current, ok := tx.state.vials[id]
	if !ok {
		return Vial{}, domain.ErrNotFound{Entity: domain.EntityVial, ID: id}
	}
	before := cloneVial(current)
	if err := mutator(&current); err != nil {
		return Vial{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.vials[id] = cloneVial(current)
	tx.recordChange(Change{Entity: domain.EntityVial, Action: domain.ActionUpdate, Before: payloadFor(before), After: payloadFor(current)})
	return cloneVial(current), nil
}

// CreateContainer stores container metadata.
func (tx *transaction) CreateContainer(c StorageContainer) (StorageContainer, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.containers[c.ID]; exists {
		return StorageContainer{}, fmt.Errorf("container %q already exists", c.ID)
	}
	if c.Rows < 1 || c.Cols < 1 {
		return StorageContainer{}, fmt.Errorf("container dimensions must be positive, got %dx%d", c.Rows, c.Cols)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.containers[c.ID] = cloneContainer(c)
	tx.recordChange(Change{Entity: domain.EntityContainer, Action: domain.ActionCreate, After: payloadFor(c)})
	return cloneContainer(c), nil
}

// UpdateContainer mutates container metadata. Dimensions never shrink.
func (tx *transaction) UpdateContainer(id string, mutator func(*StorageContainer) error) (StorageContainer, error) {
	current, ok := tx.state.containers[id]
	if !ok {
		return StorageContainer{}, domain.ErrNotFound{Entity: domain.EntityContainer, ID: id}
	}
	before := cloneContainer(current)
	if err := mutator(&current); err != nil {
		return StorageContainer{}, err
	}
	if current.Rows < before.Rows || current.Cols < before.Cols {
		return StorageContainer{}, fmt.Errorf("container %q dimensions cannot shrink (%dx%d -> %dx%d)",
			id, before.Rows, before.Cols, current.Rows, current.Cols)
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.containers[id] = cloneContainer(current)
	tx.recordChange(Change{Entity: domain.EntityContainer, Action: domain.ActionUpdate, Before: payloadFor(before), After: payloadFor(current)})
	return cloneContainer(current), nil
}

// CreateSlot stores a new slot. Coordinates are stable for the slot's life.
func (tx *transaction) CreateSlot(sl Slot) (Slot, error) {
	if sl.ID == "" {
		sl.ID = tx.store.newID()
	}
	if _, exists := tx.state.slots[sl.ID]; exists {
		return Slot{}, fmt.Errorf("slot %q already exists", sl.ID)
	}
	if _, ok := tx.state.containers[sl.ContainerID]; !ok {
		return Slot{}, domain.ErrNotFound{Entity: domain.EntityContainer, ID: sl.ContainerID}
	}
	for _, existing := range tx.state.slots {
		if existing.ContainerID == sl.ContainerID && existing.Row == sl.Row && existing.Col == sl.Col {
			return Slot{}, fmt.Errorf("slot (%d,%d) already exists in container %q", sl.Row, sl.Col, sl.ContainerID)
		}
	}
	if sl.Label == "" {
		sl.Label = domain.SlotLabel(sl.Row, sl.Col)
	}
	sl.CreatedAt = tx.now
	sl.UpdatedAt = tx.now
	tx.state.slots[sl.ID] = cloneSlot(sl)
	tx.recordChange(Change{Entity: domain.EntitySlot, Action: domain.ActionCreate, After: payloadFor(sl)})
	return cloneSlot(sl), nil
}

// UpdateSlot mutates a slot (ownership changes).
func (tx *transaction) UpdateSlot(id string, mutator func(*Slot) error) (Slot, error) {
	current, ok := tx.state.slots[id]
	if !ok {
		return Slot{}, domain.ErrNotFound{Entity: domain.EntitySlot, ID: id}
	}
	before := cloneSlot(current)
	if err := mutator(&current); err != nil {
		return Slot{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.slots[id] = cloneSlot(current)
	tx.recordChange(Change{Entity: domain.EntitySlot, Action: domain.ActionUpdate, Before: payloadFor(before), After: payloadFor(current)})
	return cloneSlot(current), nil
}

// AppendAuditEntry adds one immutable record to the ledger. This is the only
// ledger write; nothing in the transaction surface can touch an entry again.
func (tx *transaction) AppendAuditEntry(entry AuditEntry) (AuditEntry, error) {
	if entry.Action == "" {
		return AuditEntry{}, fmt.Errorf("audit entry requires an action")
	}
	if entry.Actor == "" {
		return AuditEntry{}, fmt.Errorf("audit entry requires an actor")
	}
	if entry.ID == "" {
		entry.ID = tx.store.newID()
	}
	entry.CreatedAt = tx.now
	tx.state.ledger = append(tx.state.ledger, entry)
	tx.recordChange(Change{Entity: domain.EntityAuditEntry, Action: domain.ActionAppend, After: payloadFor(entry)})
	return entry, nil
}

// FindReagent retrieves a reagent from the transactional state.
func (tx *transaction) FindReagent(id string) (Reagent, bool) {
	r, ok := tx.state.reagents[id]
	if !ok {
		return Reagent{}, false
	}
	return cloneReagent(r), true
}

// FindLot retrieves a lot from the transactional state.
func (tx *transaction) FindLot(id string) (Lot, bool) {
	l, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// FindVial retrieves a vial from the transactional state.
func (tx *transaction) FindVial(id string) (Vial, bool) {
	v, ok := tx.state.vials[id]
	if !ok {
		return Vial{}, false
	}
	return cloneVial(v), true
}

// FindContainer retrieves a container from the transactional state.
func (tx *transaction) FindContainer(id string) (StorageContainer, bool) {
	c, ok := tx.state.containers[id]
	if !ok {
		return StorageContainer{}, false
	}
	return cloneContainer(c), true
}

// FindSlot retrieves a slot from the transactional state.
func (tx *transaction) FindSlot(id string) (Slot, bool) {
	sl, ok := tx.state.slots[id]
	if !ok {
		return Slot{}, false
	}
	return cloneSlot(sl), true
}

// ListContainerSlots returns a container's slots in row-major order.
func (tx *transaction) ListContainerSlots(containerID string) []Slot {
	return listContainerSlots(&tx.state, containerID)
}

// ListLotVials returns a lot's vials ordered by receipt then ID.
func (tx *transaction) ListLotVials(lotID string) []Vial {
	return listLotVials(&tx.state, lotID)
}

func listContainerSlots(state *memoryState, containerID string) []Slot {
	out := make([]Slot, 0)
	for _, sl := range state.slots {
		if sl.ContainerID == containerID {
			out = append(out, cloneSlot(sl))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

func listLotVials(state *memoryState, lotID string) []Vial {
	out := make([]Vial, 0)
	for _, v := range state.vials {
		if v.LotID == lotID {
			out = append(out, cloneVial(v))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// View methods -----------------------------------------------------------

// ListReagents returns all reagents within the snapshot.
func (v transactionView) ListReagents() []Reagent {
	out := make([]Reagent, 0, len(v.state.reagents))
	for _, r := range v.state.reagents {
		out = append(out, cloneReagent(r))
	}
	return out
}

// ListLots returns all lots within the snapshot.
func (v transactionView) ListLots() []Lot {
	out := make([]Lot, 0, len(v.state.lots))
	for _, l := range v.state.lots {
		out = append(out, cloneLot(l))
	}
	return out
}

// ListVials returns all vials within the snapshot.
func (v transactionView) ListVials() []Vial {
	out := make([]Vial, 0, len(v.state.vials))
	for _, vial := range v.state.vials {
		out = append(out, cloneVial(vial))
	}
	return out
}

// ListContainers returns all containers within the snapshot.
func (v transactionView) ListContainers() []StorageContainer {
	out := make([]StorageContainer, 0, len(v.state.containers))
	for _, c := range v.state.containers {
		out = append(out, cloneContainer(c))
	}
	return out
}

// ListSlots returns all slots within the snapshot.
func (v transactionView) ListSlots() []Slot {
	out := make([]Slot, 0, len(v.state.slots))
	for _, sl := range v.state.slots {
		out = append(out, cloneSlot(sl))
	}
	return out
}

// ListAuditEntries returns the ledger in append order.
func (v transactionView) ListAuditEntries() []AuditEntry {
	return append([]AuditEntry(nil), v.state.ledger...)
}

// ListContainerSlots returns a container's slots in row-major order.
func (v transactionView) ListContainerSlots(containerID string) []Slot {
	return listContainerSlots(v.state, containerID)
}

// ListLotVials returns a lot's vials ordered by receipt then ID.
func (v transactionView) ListLotVials(lotID string) []Vial {
	return listLotVials(v.state, lotID)
}

// FindReagent retrieves a reagent by ID from the snapshot.
func (v transactionView) FindReagent(id string) (Reagent, bool) {
	r, ok := v.state.reagents[id]
	if !ok {
		return Reagent{}, false
	}
	return cloneReagent(r), true
}

// FindLot retrieves a lot by ID from the snapshot.
func (v transactionView) FindLot(id string) (Lot, bool) {
	l, ok := v.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// FindVial retrieves a vial by ID from the snapshot.
func (v transactionView) FindVial(id string) (Vial, bool) {
	vial, ok := v.state.vials[id]
	if !ok {
		return Vial{}, false
	}
	return cloneVial(vial), true
}

// FindContainer retrieves a container by ID from the snapshot.
func (v transactionView) FindContainer(id string) (StorageContainer, bool) {
	c, ok := v.state.containers[id]
	if !ok {
		return StorageContainer{}, false
	}
	return cloneContainer(c), true
}

// FindSlot retrieves a slot by ID from the snapshot.
func (v transactionView) FindSlot(id string) (Slot, bool) {
	sl, ok := v.state.slots[id]
	if !ok {
		return Slot{}, false
	}
	return cloneSlot(sl), true
}

// Read helpers -----------------------------------------------------------

// GetReagent retrieves a reagent by ID from committed state.
func (s *Store) GetReagent(id string) (Reagent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.reagents[id]
	if !ok {
		return Reagent{}, false
	}
	return cloneReagent(r), true
}

// GetLot retrieves a lot by ID from committed state.
func (s *Store) GetLot(id string) (Lot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// GetVial retrieves a vial by ID from committed state.
func (s *Store) GetVial(id string) (Vial, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.vials[id]
	if !ok {
		return Vial{}, false
	}
	return cloneVial(v), true
}

// GetContainer retrieves a container by ID from committed state.
func (s *Store) GetContainer(id string) (StorageContainer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.containers[id]
	if !ok {
		return StorageContainer{}, false
	}
	return cloneContainer(c), true
}

// ListReagents returns all reagents from committed state.
func (s *Store) ListReagents() []Reagent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reagent, 0, len(s.state.reagents))
	for _, r := range s.state.reagents {
		out = append(out, cloneReagent(r))
	}
	return out
}

// ListLots returns all lots from committed state.
func (s *Store) ListLots() []Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Lot, 0, len(s.state.lots))
	for _, l := range s.state.lots {
		out = append(out, cloneLot(l))
	}
	return out
}

// ListVials returns all vials from committed state.
func (s *Store) ListVials() []Vial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Vial, 0, len(s.state.vials))
	for _, v := range s.state.vials {
		out = append(out, cloneVial(v))
	}
	return out
}

// ListContainers returns all containers from committed state.
func (s *Store) ListContainers() []StorageContainer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StorageContainer, 0, len(s.state.containers))
	for _, c := range s.state.containers {
		out = append(out, cloneContainer(c))
	}
	return out
}

// ListContainerSlots returns a container's slots in row-major order from
// committed state.
func (s *Store) ListContainerSlots(containerID string) []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listContainerSlots(&s.state, containerID)
}

// ListAuditEntries returns the committed ledger in append order.
func (s *Store) ListAuditEntries() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuditEntry(nil), s.state.ledger...)
}
