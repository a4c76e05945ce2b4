package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vialcore/pkg/domain"
)

// Service exposes the transactional inventory operations. Every mutating
// operation runs in one store transaction: vial transitions, slot ownership
// changes, and the audit entries recording them commit together or not at
// all.
type Service struct {
	store    PersistentStore
	policies PolicySource
	clock    Clock
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithClock overrides the timestamp source.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the logger (default is a no-op).
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer attaches a tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithPolicySource overrides lab policy resolution (default: zero policy for
// every lab).
func WithPolicySource(source PolicySource) ServiceOption {
	return func(s *Service) {
		if source != nil {
			s.policies = source
		}
	}
}

// NewService wraps store with the orchestration layer, applying options
// over noop observability defaults.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		policies: StaticPolicySource{},
		clock:    systemClock{},
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine (nil selects the default invariant set).
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(newMemoryStore(engine), opts...)
}

// Store exposes the backing persistent store.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run wraps an operation with tracing, metrics and logging.
func (s *Service) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	s.logger.Debug("operation start", "operation", operation)
	err := fn(ctx)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
		return err
	}
	s.logger.Info("operation complete", "operation", operation, "duration", time.Since(start))
	return nil
}

// resolvePolicy reads the lab policy before the transaction's mutation
// phase; policy lookups never happen mid-transaction.
func (s *Service) resolvePolicy(ctx context.Context, labID string) (LabPolicy, error) {
	policy, err := s.policies.Resolve(ctx, labID)
	if err != nil {
		return LabPolicy{}, fmt.Errorf("resolve lab policy: %w", err)
	}
	return policy, nil
}

func appendAudit(tx Transaction, entry AuditEntry) error {
	_, err := tx.AppendAuditEntry(entry)
	return err
}

func vialPayload(v Vial) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(v)
	if err != nil {
		return domain.UndefinedChangePayload()
	}
	return payload
}

func payloadOf(value any) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		return domain.UndefinedChangePayload()
	}
	return payload
}

// --- administrative intake -------------------------------------------------

// CreateReagent persists a new reagent catalog record.
func (s *Service) CreateReagent(ctx context.Context, reagent Reagent, actor string) (Reagent, Result, error) {
	var created Reagent
	var res Result
	err := s.run(ctx, "create_reagent", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateReagent(reagent)
			if err != nil {
				return err
			}
			return appendAudit(tx, AuditEntry{
				Actor:    actor,
				Action:   "create_reagent",
				Entity:   EntityReagent,
				EntityID: created.ID,
				After:    payloadOf(created),
			})
		})
		return err
	})
	return created, res, err
}

// CreateLot persists a new lot in QC pending state.
func (s *Service) CreateLot(ctx context.Context, lot Lot, actor string) (Lot, Result, error) {
	var created Lot
	var res Result
	err := s.run(ctx, "create_lot", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindReagent(lot.ReagentID); !ok {
				return domain.ErrNotFound{Entity: EntityReagent, ID: lot.ReagentID}
			}
			var err error
			created, err = tx.CreateLot(lot)
			if err != nil {
				return err
			}
			return appendAudit(tx, AuditEntry{
				LabID:    created.LabID,
				Actor:    actor,
				Action:   "create_lot",
				Entity:   EntityLot,
				EntityID: created.ID,
				After:    payloadOf(created),
			})
		})
		return err
	})
	return created, res, err
}

// CreateContainer persists container metadata and materializes its slot grid.
func (s *Service) CreateContainer(ctx context.Context, container StorageContainer, actor string) (StorageContainer, Result, error) {
	var created StorageContainer
	var res Result
	err := s.run(ctx, "create_container", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateContainer(container)
			if err != nil {
				return err
			}
			if err := materializeSlots(tx, created); err != nil {
				return err
			}
			return appendAudit(tx, AuditEntry{
				LabID:    created.LabID,
				Actor:    actor,
				Action:   "create_container",
				Entity:   EntityContainer,
				EntityID: created.ID,
				After:    payloadOf(created),
			})
		})
		return err
	})
	return created, res, err
}

// SetLotQCStatus records an administrator QC transition. Approvals require a
// supporting note when the lab policy demands QC documentation.
func (s *Service) SetLotQCStatus(ctx context.Context, lotID string, status QCStatus, actor, note string) (Lot, Result, error) {
	var updated Lot
	var res Result
	err := s.run(ctx, "set_lot_qc_status", func(ctx context.Context) error {
		switch status {
		case QCPending, QCApproved, QCFailed:
		default:
			return fmt.Errorf("unknown qc status %q", status)
		}
		existing, ok := s.store.GetLot(lotID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityLot, ID: lotID}
		}
		policy, err := s.resolvePolicy(ctx, existing.LabID)
		if err != nil {
			return err
		}
		if status == QCApproved && policy.QCDocRequired && strings.TrimSpace(note) == "" {
			return fmt.Errorf("lot %s: qc approval requires a supporting note", lotID)
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindLot(lotID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityLot, ID: lotID}
			}
			var err error
			updated, err = tx.UpdateLot(lotID, func(l *Lot) error {
				l.QCStatus = status
				return nil
			})
			if err != nil {
				return err
			}
			return appendAudit(tx, AuditEntry{
				LabID:    updated.LabID,
				Actor:    actor,
				Action:   "set_lot_qc_status",
				Entity:   EntityLot,
				EntityID: lotID,
				Before:   payloadOf(before),
				After:    payloadOf(updated),
				Note:     note,
			})
		})
		return err
	})
	return updated, res, err
}

// ArchiveLot performs the terminal soft delete. Archived lots keep their
// vials, but those vials stop owning slots and counting as stock.
func (s *Service) ArchiveLot(ctx context.Context, lotID, actor, note string) (Lot, Result, error) {
	var updated Lot
	var res Result
	err := s.run(ctx, "archive_lot", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindLot(lotID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityLot, ID: lotID}
			}
			if before.Archived {
				updated = before // idempotent
				return nil
			}
			now := s.clock.Now()
			var err error
			updated, err = tx.UpdateLot(lotID, func(l *Lot) error {
				l.Archived = true
				l.ArchivedAt = &now
				return nil
			})
			if err != nil {
				return err
			}
			return appendAudit(tx, AuditEntry{
				LabID:    updated.LabID,
				Actor:    actor,
				Action:   "archive_lot",
				Entity:   EntityLot,
				EntityID: lotID,
				Before:   payloadOf(before),
				After:    payloadOf(updated),
				Note:     note,
			})
		})
		return err
	})
	return updated, res, err
}

// GrowTemporaryContainer expands a temporary container to hold requiredCount
// slots, exposed for administrative use; receive calls the same growth path.
func (s *Service) GrowTemporaryContainer(ctx context.Context, containerID string, requiredCount int, actor string) (StorageContainer, Result, error) {
	var grown StorageContainer
	var res Result
	err := s.run(ctx, "grow_container", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindContainer(containerID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityContainer, ID: containerID}
			}
			var err error
			grown, err = growTemporaryContainer(tx, containerID, requiredCount)
			if err != nil {
				return err
			}
			if grown.Rows == before.Rows && grown.Cols == before.Cols {
				return nil
			}
			return appendAudit(tx, AuditEntry{
				LabID:    grown.LabID,
				Actor:    actor,
				Action:   "grow_container",
				Entity:   EntityContainer,
				EntityID: containerID,
				Before:   payloadOf(before),
				After:    payloadOf(grown),
			})
		})
		return err
	})
	return grown, res, err
}

// --- inventory operations --------------------------------------------------

// receiveSummary is the consolidated audit payload for one receive batch.
type receiveSummary struct {
	LotID       string   `json:"lot_id"`
	ContainerID string   `json:"container_id"`
	Quantity    int      `json:"quantity"`
	FirstSlot   string   `json:"first_slot"`
	LastSlot    string   `json:"last_slot"`
	VialIDs     []string `json:"vial_ids"`
}

// Receive creates quantity sealed vials for a lot and stores each in the
// next empty slot. Without an explicit container the lab's temporary
// container is resolved (created 1x1 on first use) and grown to fit; a fixed
// container that cannot hold the batch fails atomically.
func (s *Service) Receive(ctx context.Context, lotID string, quantity int, containerID, actor string) ([]Vial, Result, error) {
	var created []Vial
	var res Result
	err := s.run(ctx, "receive_batch", func(ctx context.Context) error {
		if quantity < 1 {
			return fmt.Errorf("receive quantity must be positive, got %d", quantity)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			lot, ok := tx.FindLot(lotID)
			if !ok || !isActiveLot(lot) {
				return domain.ErrNotFound{Entity: EntityLot, ID: lotID}
			}
			now := s.clock.Now()

			target := containerID
			if target == "" {
				container, err := resolveTemporaryContainer(tx, lot.LabID, now)
				if err != nil {
					return err
				}
				target = container.ID
			}
			container, ok := tx.FindContainer(target)
			if !ok {
				return domain.ErrNotFound{Entity: EntityContainer, ID: target}
			}
			usage, err := slotUsage(tx.Snapshot(), target)
			if err != nil {
				return err
			}
			if container.Temporary {
				if _, err := growTemporaryContainer(tx, target, usage.Occupied+quantity); err != nil {
					return err
				}
			} else if usage.Available < quantity {
				return domain.InsufficientCapacityError{ContainerID: target, Requested: quantity, Available: usage.Available}
			}

			summary := receiveSummary{LotID: lotID, ContainerID: target, Quantity: quantity}
			for i := 0; i < quantity; i++ {
				vial, err := tx.CreateVial(Vial{LotID: lotID, Status: VialSealed, ReceivedAt: now})
				if err != nil {
					return err
				}
				slot, err := nextEmptySlot(tx.Snapshot(), target)
				if err != nil {
					return err
				}
				if _, err := claimSlot(tx, slot.ID, vial.ID); err != nil {
					return err
				}
				stored, _ := tx.FindVial(vial.ID)
				created = append(created, stored)
				if summary.FirstSlot == "" {
					summary.FirstSlot = slot.Label
				}
				summary.LastSlot = slot.Label
				summary.VialIDs = append(summary.VialIDs, vial.ID)
			}
			return appendAudit(tx, AuditEntry{
				LabID:    lot.LabID,
				Actor:    actor,
				Action:   "receive_batch",
				Entity:   EntityLot,
				EntityID: lotID,
				After:    payloadOf(summary),
			})
		})
		return err
	})
	return created, res, err
}

// resolveTemporaryContainer finds the lab's oldest temporary container,
// creating a 1x1 holding grid on first use.
func resolveTemporaryContainer(tx Transaction, labID string, _ time.Time) (StorageContainer, error) {
	var oldest *StorageContainer
	for _, container := range tx.Snapshot().ListContainers() {
		if !container.Temporary || container.LabID != labID {
			continue
		}
		c := container
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) ||
			(c.CreatedAt.Equal(oldest.CreatedAt) && c.ID < oldest.ID) {
			oldest = &c
		}
	}
	if oldest != nil {
		return *oldest, nil
	}
	created, err := tx.CreateContainer(StorageContainer{LabID: labID, Name: "Receiving", Rows: 1, Cols: 1, Temporary: true})
	if err != nil {
		return StorageContainer{}, err
	}
	if err := materializeSlots(tx, created); err != nil {
		return StorageContainer{}, err
	}
	return created, nil
}

// Open transitions a sealed vial out of storage. The slot the operator reads
// off the physical grid must match the vial's recorded slot. QC gating and
// the sealed-counts-only policy apply; force overrides the gate and the
// audit note records the lot's actual status at the time.
func (s *Service) Open(ctx context.Context, vialID, slotID string, force bool, actor string) (Vial, Result, error) {
	var updated Vial
	var res Result
	err := s.run(ctx, "open_vial", func(ctx context.Context) error {
		existing, ok := s.store.GetVial(vialID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityVial, ID: vialID}
		}
		lot, ok := s.store.GetLot(existing.LotID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityLot, ID: existing.LotID}
		}
		policy, err := s.resolvePolicy(ctx, lot.LabID)
		if err != nil {
			return err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindVial(vialID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityVial, ID: vialID}
			}
			now := s.clock.Now()
			var txLot Lot
			var err error
			updated, txLot, err = openVial(tx, vialID, slotID, actor, now, policy, force)
			if err != nil {
				return err
			}
			note := ""
			if force && txLot.QCStatus != QCApproved {
				note = fmt.Sprintf("qc override: lot %s status was %s at open", txLot.ID, txLot.QCStatus)
			}
			return appendAudit(tx, AuditEntry{
				LabID:    txLot.LabID,
				Actor:    actor,
				Action:   "open_vial",
				Entity:   EntityVial,
				EntityID: vialID,
				Before:   vialPayload(before),
				After:    vialPayload(updated),
				Note:     note,
			})
		})
		return err
	})
	return updated, res, err
}

// Deplete marks an opened vial empty.
func (s *Service) Deplete(ctx context.Context, vialID, actor string) (Vial, Result, error) {
	var updated Vial
	var res Result
	err := s.run(ctx, "deplete_vial", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindVial(vialID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityVial, ID: vialID}
			}
			lot, err := activeLotFor(tx, before)
			if err != nil {
				return err
			}
			updated, err = depleteVial(tx, vialID, actor, s.clock.Now(), false)
			if err != nil {
				return err
			}
			return appendAudit(tx, AuditEntry{
				LabID:    lot.LabID,
				Actor:    actor,
				Action:   "deplete_vial",
				Entity:   EntityVial,
				EntityID: vialID,
				Before:   vialPayload(before),
				After:    vialPayload(updated),
			})
		})
		return err
	})
	return updated, res, err
}

// ReturnToStorage puts an opened vial back into a specific empty slot.
func (s *Service) ReturnToStorage(ctx context.Context, vialID, slotID, actor string) (Vial, Result, error) {
	var updated Vial
	var res Result
	err := s.run(ctx, "return_to_storage", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindVial(vialID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityVial, ID: vialID}
			}
			lot, err := activeLotFor(tx, before)
			if err != nil {
				return err
			}
			updated, err = returnVialToStorage(tx, vialID, slotID)
			if err != nil {
				return err
			}
			return appendAudit(tx, AuditEntry{
				LabID:    lot.LabID,
				Actor:    actor,
				Action:   "return_to_storage",
				Entity:   EntityVial,
				EntityID: vialID,
				Before:   vialPayload(before),
				After:    vialPayload(updated),
			})
		})
		return err
	})
	return updated, res, err
}

// DepleteScope selects which vials DepleteAll touches.
type DepleteScope string

const (
	// DepleteOpenedOnly depletes only vials already opened.
	DepleteOpenedOnly DepleteScope = "openedOnly"
	// DepleteAllActive depletes every non-depleted vial, treating sealed
	// vials as implicitly opened then depleted.
	DepleteAllActive DepleteScope = "allActive"
)

// DepleteAll depletes a lot's vials in one atomic operation, one audit entry
// per vial (each vial's before/after snapshot differs materially).
func (s *Service) DepleteAll(ctx context.Context, lotID string, scope DepleteScope, actor string) ([]Vial, Result, error) {
	var updated []Vial
	var res Result
	err := s.run(ctx, "deplete_all", func(ctx context.Context) error {
		if scope != DepleteOpenedOnly && scope != DepleteAllActive {
			return fmt.Errorf("unknown deplete scope %q", scope)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			lot, ok := tx.FindLot(lotID)
			if !ok || !isActiveLot(lot) {
				return domain.ErrNotFound{Entity: EntityLot, ID: lotID}
			}
			now := s.clock.Now()
			for _, vial := range tx.ListLotVials(lotID) {
				switch vial.Status {
				case VialOpened:
				case VialSealed:
					if scope == DepleteOpenedOnly {
						continue
					}
				default:
					continue
				}
				depleted, err := depleteVial(tx, vial.ID, actor, now, scope == DepleteAllActive)
				if err != nil {
					return err
				}
				updated = append(updated, depleted)
				if err := appendAudit(tx, AuditEntry{
					LabID:    lot.LabID,
					Actor:    actor,
					Action:   "deplete_all",
					Entity:   EntityVial,
					EntityID: vial.ID,
					Before:   vialPayload(vial),
					After:    vialPayload(depleted),
				}); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// MovePlacement selects target slots for MoveBatch: either explicit slot IDs
// matched 1:1 with the vials, or the next empty slots in row-major order
// starting from an optional cursor slot.
type MovePlacement struct {
	ExplicitSlotIDs []string
	CursorSlotID    string
}

type vialMove struct {
	VialID   string `json:"vial_id"`
	FromSlot string `json:"from_slot"`
	ToSlot   string `json:"to_slot"`
}

// moveSummary is the consolidated audit payload for one lot's moved vials.
type moveSummary struct {
	LotID       string     `json:"lot_id"`
	ContainerID string     `json:"container_id"`
	Moves       []vialMove `json:"moves"`
}

// MoveBatch relocates vials into a target container atomically. Fewer empty
// slots than vials fails InsufficientCapacity with no partial move; explicit
// target slots must all be empty. One audit entry per distinct lot.
func (s *Service) MoveBatch(ctx context.Context, vialIDs []string, targetContainerID string, placement MovePlacement, actor string) ([]Vial, Result, error) {
	var moved []Vial
	var res Result
	err := s.run(ctx, "move_batch", func(ctx context.Context) error {
		if len(vialIDs) == 0 {
			return fmt.Errorf("move batch requires at least one vial")
		}
		if len(placement.ExplicitSlotIDs) > 0 && len(placement.ExplicitSlotIDs) != len(vialIDs) {
			return fmt.Errorf("explicit placement needs %d slots, got %d", len(vialIDs), len(placement.ExplicitSlotIDs))
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindContainer(targetContainerID); !ok {
				return domain.ErrNotFound{Entity: EntityContainer, ID: targetContainerID}
			}

			// Validation phase: every vial movable, every target slot free.
			befores := make([]Vial, 0, len(vialIDs))
			for _, vialID := range vialIDs {
				vial, ok := tx.FindVial(vialID)
				if !ok {
					return domain.ErrNotFound{Entity: EntityVial, ID: vialID}
				}
				if vial.Status != VialSealed && vial.Status != VialOpened {
					return domain.StateViolationError{VialID: vialID, Status: vial.Status, Op: "move"}
				}
				if _, err := activeLotFor(tx, vial); err != nil {
					return err
				}
				befores = append(befores, vial)
			}

			var targets []Slot
			if len(placement.ExplicitSlotIDs) > 0 {
				moving := make(map[string]struct{}, len(vialIDs))
				for _, id := range vialIDs {
					moving[id] = struct{}{}
				}
				for _, slotID := range placement.ExplicitSlotIDs {
					slot, ok := tx.FindSlot(slotID)
					if !ok {
						return domain.ErrNotFound{Entity: EntitySlot, ID: slotID}
					}
					if occupant, occupied := slotOccupant(tx.Snapshot(), slot); occupied {
						if _, inBatch := moving[occupant.ID]; !inBatch {
							return domain.SlotOccupiedError{SlotID: slot.ID, Label: slot.Label, Occupant: occupant.ID}
						}
					}
					targets = append(targets, slot)
				}
			} else {
				free := emptySlots(tx.Snapshot(), targetContainerID, placement.CursorSlotID)
				if len(free) < len(vialIDs) {
					return domain.InsufficientCapacityError{ContainerID: targetContainerID, Requested: len(vialIDs), Available: len(free)}
				}
				targets = free[:len(vialIDs)]
			}

			// Mutation phase: release every source first so in-batch swaps
			// find their targets free, then claim and summarize per lot.
			fromLabels := make([]string, len(befores))
			for i, before := range befores {
				if before.SlotID == nil {
					continue
				}
				if from, ok := tx.FindSlot(*before.SlotID); ok {
					fromLabels[i] = from.Label
				}
				if err := releaseSlot(tx, *before.SlotID); err != nil {
					return err
				}
			}
			summaries := make(map[string]*moveSummary)
			var lotOrder []string
			for i, before := range befores {
				target := targets[i]
				if _, err := claimSlot(tx, target.ID, before.ID); err != nil {
					return err
				}
				after, _ := tx.FindVial(before.ID)
				moved = append(moved, after)

				summary, ok := summaries[before.LotID]
				if !ok {
					summary = &moveSummary{LotID: before.LotID, ContainerID: targetContainerID}
					summaries[before.LotID] = summary
					lotOrder = append(lotOrder, before.LotID)
				}
				summary.Moves = append(summary.Moves, vialMove{VialID: before.ID, FromSlot: fromLabels[i], ToSlot: target.Label})
			}

			for _, lotID := range lotOrder {
				lot, _ := tx.FindLot(lotID)
				if err := appendAudit(tx, AuditEntry{
					LabID:    lot.LabID,
					Actor:    actor,
					Action:   "move_batch",
					Entity:   EntityLot,
					EntityID: lotID,
					After:    payloadOf(summaries[lotID]),
				}); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
	return moved, res, err
}

// Correct is the privileged one-step rollback. The note is mandatory and
// lands in the ledger; the correcting actor is the audit actor while the
// original open/deplete actor fields stay as historical record.
func (s *Service) Correct(ctx context.Context, vialID string, target VialStatus, note, restoreSlotID, actor string) (Vial, Result, error) {
	var updated Vial
	var res Result
	err := s.run(ctx, "correct_vial", func(ctx context.Context) error {
		if strings.TrimSpace(note) == "" {
			return domain.InvalidCorrectionError{VialID: vialID, To: target, Reason: "correction requires a note"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindVial(vialID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityVial, ID: vialID}
			}
			lot, err := activeLotFor(tx, before)
			if err != nil {
				return err
			}
			updated, err = correctVial(tx, vialID, target, restoreSlotID)
			if err != nil {
				return err
			}
			return appendAudit(tx, AuditEntry{
				LabID:         lot.LabID,
				Actor:         actor,
				Action:        "correct_vial",
				Entity:        EntityVial,
				EntityID:      vialID,
				Before:        vialPayload(before),
				After:         vialPayload(updated),
				Note:          note,
				SupportAction: true,
			})
		})
		return err
	})
	return updated, res, err
}

// --- queries ---------------------------------------------------------------

// NextEmptySlot returns the first unowned slot of a container in row-major
// order; a full container yields ErrNotFound.
func (s *Service) NextEmptySlot(ctx context.Context, containerID string) (Slot, error) {
	var slot Slot
	err := s.run(ctx, "next_empty_slot", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			var err error
			slot, err = nextEmptySlot(view, containerID)
			return err
		})
	})
	return slot, err
}

// AvailableSlots summarizes a container's occupancy.
func (s *Service) AvailableSlots(ctx context.Context, containerID string) (SlotUsage, error) {
	var usage SlotUsage
	err := s.run(ctx, "available_slots", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			var err error
			usage, err = slotUsage(view, containerID)
			return err
		})
	})
	return usage, err
}

// SealedCount returns the remaining sealed stock of an active lot.
func (s *Service) SealedCount(ctx context.Context, lotID string) (int, error) {
	count := 0
	err := s.run(ctx, "sealed_count", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			lot, ok := view.FindLot(lotID)
			if !ok || !isActiveLot(lot) {
				return domain.ErrNotFound{Entity: EntityLot, ID: lotID}
			}
			for _, vial := range view.ListLotVials(lotID) {
				if vial.Status == VialSealed {
					count++
				}
			}
			return nil
		})
	})
	return count, err
}

// FEFOAdvisory reports per-lot sealed stock for a reagent ordered by
// expiration, plus first-expired-first-out warnings. Advisory only.
func (s *Service) FEFOAdvisory(ctx context.Context, reagentID string) ([]LotStock, []FEFOWarning, error) {
	var stocks []LotStock
	var warnings []FEFOWarning
	err := s.run(ctx, "fefo_advisory", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			if _, ok := view.FindReagent(reagentID); !ok {
				return domain.ErrNotFound{Entity: EntityReagent, ID: reagentID}
			}
			stocks, warnings = fefoAdvisory(view, reagentID)
			return nil
		})
	})
	return stocks, warnings, err
}

// LedgerFilter narrows LedgerEntries output. Zero fields match everything.
type LedgerFilter struct {
	LabID    string
	Entity   EntityType
	EntityID string
	Actor    string
	Action   string
	Since    time.Time
	Until    time.Time
}

func (f LedgerFilter) matches(entry AuditEntry) bool {
	if f.LabID != "" && entry.LabID != f.LabID {
		return false
	}
	if f.Entity != "" && entry.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && entry.EntityID != f.EntityID {
		return false
	}
	if f.Actor != "" && entry.Actor != f.Actor {
		return false
	}
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && entry.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && entry.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

// LedgerEntries returns matching audit entries in append order.
func (s *Service) LedgerEntries(ctx context.Context, filter LedgerFilter) ([]AuditEntry, error) {
	var out []AuditEntry
	err := s.run(ctx, "ledger_entries", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			for _, entry := range view.ListAuditEntries() {
				if filter.matches(entry) {
					out = append(out, entry)
				}
			}
			return nil
		})
	})
	return out, err
}
