package domain

import (
	"bytes"
	"encoding/json"
	"slices"
)

var jsonNull = []byte("null")

// ChangePayload holds a JSON snapshot of an entity's before or after state
// inside a Change or an AuditEntry. The wrapper distinguishes "not set"
// from "set but empty", clones bytes at every boundary so callers cannot
// alias internal state, and serializes the undefined case as JSON null so
// ledger entries survive the snapshot stores intact.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// UndefinedChangePayload is the "not set" payload, used when a change has
// no before state (creates) or no after state.
func UndefinedChangePayload() ChangePayload {
	return ChangePayload{}
}

// NewChangePayload wraps raw JSON bytes. The input is cloned. A nil slice
// produces a defined-but-empty payload rather than an undefined one.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	return ChangePayload{defined: true, raw: slices.Clone(raw)}
}

// NewChangePayloadFromValue snapshots any marshalable value.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return NewChangePayload(raw), nil
}

// Defined reports whether the payload was ever set.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload carries no bytes. Undefined payloads
// are empty by definition.
func (p ChangePayload) IsEmpty() bool {
	return !p.defined || len(p.raw) == 0
}

// Raw returns a copy of the snapshot bytes, or nil when the payload is
// undefined or empty.
func (p ChangePayload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return slices.Clone(p.raw)
}

// MarshalJSON writes the snapshot as-is, or null for undefined/empty.
func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if p.IsEmpty() {
		return jsonNull, nil
	}
	return slices.Clone(p.raw), nil
}

// UnmarshalJSON restores the wrapper; null maps back to undefined.
func (p *ChangePayload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, jsonNull) {
		*p = ChangePayload{}
		return nil
	}
	*p = NewChangePayload(data)
	return nil
}
