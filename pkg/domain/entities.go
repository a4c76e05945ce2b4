// Package domain holds the vial, lot, and storage entities, the typed
// error taxonomy, the audit change trail, and the rule evaluation
// primitives shared by every layer of vialcore.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityType names the kind of record a change or violation refers to.
type EntityType string

// Supported entity type identifiers used in Change records, audit entries,
// and persistence buckets.
const (
	// EntityReagent identifies a reagent catalog record.
	EntityReagent EntityType = "reagent"
	// EntityLot identifies a received lot record.
	EntityLot EntityType = "lot"
	// EntityVial identifies an individual vial record.
	EntityVial EntityType = "vial"
	// EntityContainer identifies a storage container record.
	EntityContainer EntityType = "storage_container"
	// EntitySlot identifies a storage slot record.
	EntitySlot EntityType = "slot"
	// EntityAuditEntry identifies an audit ledger record.
	EntityAuditEntry EntityType = "audit_entry"
)

// QCStatus represents the quality-control state of a lot.
type QCStatus string

// Canonical lot QC statuses; only approved lots permit opening vials without
// an explicit override.
const (
	QCPending  QCStatus = "pending"
	QCApproved QCStatus = "approved"
	QCFailed   QCStatus = "failed"
)

// VialStatus represents the lifecycle state of a single vial.
type VialStatus string

// Canonical vial lifecycle states. Sealed and opened vials may hold a slot;
// depleted and archived vials never do.
const (
	VialSealed   VialStatus = "sealed"
	VialOpened   VialStatus = "opened"
	VialDepleted VialStatus = "depleted"
	VialArchived VialStatus = "archived"
)

// Severity grades a rule violation.
type Severity string

// Severities decide whether a violation aborts the commit.
const (
	// SeverityBlock rolls the transaction back.
	SeverityBlock Severity = "block"
	// SeverityWarn lets the commit proceed and is surfaced to callers.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base carries the identity and bookkeeping fields shared by every entity.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reagent is a catalog item that lots are received against. StabilityDays,
// when set, bounds how long an opened vial stays usable and drives the
// secondary expiration computed on open.
type Reagent struct {
	Base
	Name          string `json:"name"`
	CatalogNumber string `json:"catalog_number"`
	Vendor        string `json:"vendor"`
	StabilityDays *int   `json:"stability_days"`
}

// Lot represents a received batch of a specific reagent. Archiving is a
// terminal soft delete: archived lots keep their vials but drop out of
// occupancy and stock calculations.
type Lot struct {
	Base
	LabID      string     `json:"lab_id"`
	ReagentID  string     `json:"reagent_id"`
	LotNumber  string     `json:"lot_number"`
	ExpiresAt  time.Time  `json:"expires_at"`
	QCStatus   QCStatus   `json:"qc_status"`
	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archived_at"`
}

// Active reports whether the lot participates in occupancy and stock math.
func (l Lot) Active() bool { return !l.Archived }

// Vial is one physical unit belonging to a lot. SlotID is non-nil only while
// the vial is physically stored; OpenedBy/DepletedBy keep the original actors
// as historical record even across corrections.
type Vial struct {
	Base
	LotID      string     `json:"lot_id"`
	Status     VialStatus `json:"status"`
	SlotID     *string    `json:"slot_id"`
	ReceivedAt time.Time  `json:"received_at"`
	OpenedAt   *time.Time `json:"opened_at"`
	DepletedAt *time.Time `json:"depleted_at"`
	OpenedBy   *string    `json:"opened_by"`
	DepletedBy *string    `json:"depleted_by"`
	// ExpiresAt is the secondary expiration: min(lot expiration, received_at
	// + reagent stability window). Nil until the vial is opened or when no
	// stability window is configured.
	ExpiresAt *time.Time `json:"expires_at"`
}

// Stored reports whether the vial currently holds a slot.
func (v Vial) Stored() bool { return v.SlotID != nil }

// StorageContainer is a named grid of Rows x Cols slots. Temporary containers
// grow on demand; dimensions never shrink.
type StorageContainer struct {
	Base
	LabID     string `json:"lab_id"`
	Name      string `json:"name"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
	Temporary bool   `json:"temporary"`
}

// SlotCapacity returns the total number of addressable positions.
func (c StorageContainer) SlotCapacity() int { return c.Rows * c.Cols }

// Slot is one addressable cell in a container. Coordinates are zero-based and
// stable for the life of the container; growth adds coordinates, never
// renumbers them. VialID is the at-most-one current owner back-reference.
type Slot struct {
	Base
	ContainerID string  `json:"container_id"`
	Row         int     `json:"row"`
	Col         int     `json:"col"`
	Label       string  `json:"label"`
	VialID      *string `json:"vial_id"`
}

// SlotLabel renders the human label for a zero-based (row, col) coordinate:
// row letters in spreadsheet style (A, B, ... Z, AA, AB, ...) followed by the
// one-based column number.
func SlotLabel(row, col int) string {
	var letters strings.Builder
	r := row
	for {
		letters.WriteByte(byte('A' + r%26))
		r = r/26 - 1
		if r < 0 {
			break
		}
	}
	// letters were emitted least-significant first
	b := []byte(letters.String())
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return fmt.Sprintf("%s%d", b, col+1)
}

// AuditEntry is one immutable ledger record. Entries are append-only: the
// persistence interfaces expose no update or delete for them, and the
// sqlite/postgres stores guard the audit table with triggers.
type AuditEntry struct {
	ID            string        `json:"id"`
	LabID         string        `json:"lab_id"`
	Actor         string        `json:"actor"`
	Action        string        `json:"action"`
	Entity        EntityType    `json:"entity"`
	EntityID      string        `json:"entity_id"`
	Before        ChangePayload `json:"before"`
	After         ChangePayload `json:"after"`
	Note          string        `json:"note,omitempty"`
	SupportAction bool          `json:"support_action"`
	CreatedAt     time.Time     `json:"created_at"`
}

// SlotUsage summarizes occupancy for one container.
type SlotUsage struct {
	Total     int `json:"total"`
	Occupied  int `json:"occupied"`
	Available int `json:"available"`
}

// Change is one recorded mutation, fed to the rules engine at commit.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action classifies a recorded mutation.
type Action string

// Change actions enumerate the mutations captured for rule evaluation. The
// domain has no hard deletes; ActionAppend marks ledger writes.
const (
	// ActionCreate marks a newly created entity.
	ActionCreate Action = "create"
	// ActionUpdate marks a mutated entity.
	ActionUpdate Action = "update"
	// ActionAppend indicates an audit entry was appended to the ledger.
	ActionAppend Action = "append"
)

// Violation is a single finding from one rule.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result collects the findings of a rule evaluation pass.
type Result struct {
	Violations []Violation
}

// Merge folds another result's violations into r.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation would abort the commit.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError carries the result of a commit blocked by rules.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
