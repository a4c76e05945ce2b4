package domain

import "fmt"

// ErrNotFound is returned when a referenced entity is absent or out of scope.
// For slot searches the ID names the container that was scanned.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// StateViolationError indicates a lifecycle transition requested from a state
// that does not permit it.
type StateViolationError struct {
	VialID string
	Status VialStatus
	Op     string
}

func (e StateViolationError) Error() string {
	return fmt.Sprintf("vial %s cannot %s from state %s", e.VialID, e.Op, e.Status)
}

// SlotMismatchError indicates the slot the caller claimed to hold the vial
// disagrees with the vial's recorded slot.
type SlotMismatchError struct {
	VialID       string
	ClaimedSlot  string
	RecordedSlot string
}

func (e SlotMismatchError) Error() string {
	return fmt.Sprintf("vial %s is recorded in slot %q, not %q", e.VialID, e.RecordedSlot, e.ClaimedSlot)
}

// SlotOccupiedError indicates a claim on a slot already owned by another
// vial. Under concurrent contention this is an expected outcome: the caller
// may retry with a fresh slot lookup.
type SlotOccupiedError struct {
	SlotID   string
	Label    string
	Occupant string
}

func (e SlotOccupiedError) Error() string {
	return fmt.Sprintf("slot %s (%s) is occupied by vial %s", e.SlotID, e.Label, e.Occupant)
}

// InsufficientCapacityError indicates a batch allocation could not be
// satisfied atomically.
type InsufficientCapacityError struct {
	ContainerID string
	Requested   int
	Available   int
}

func (e InsufficientCapacityError) Error() string {
	return fmt.Sprintf("container %s has %d empty slots, %d requested", e.ContainerID, e.Available, e.Requested)
}

// QCNotApprovedError indicates a gated transition was blocked because the
// owning lot's QC status is not approved and no override was requested.
type QCNotApprovedError struct {
	LotID  string
	Status QCStatus
}

func (e QCNotApprovedError) Error() string {
	return fmt.Sprintf("lot %s QC status is %s, not approved", e.LotID, e.Status)
}

// InvalidCorrectionError indicates a rollback requested from a state with no
// valid predecessor, or a correction missing its mandatory note.
type InvalidCorrectionError struct {
	VialID string
	From   VialStatus
	To     VialStatus
	Reason string
}

func (e InvalidCorrectionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid correction for vial %s: %s", e.VialID, e.Reason)
	}
	return fmt.Sprintf("invalid correction for vial %s: %s -> %s", e.VialID, e.From, e.To)
}
