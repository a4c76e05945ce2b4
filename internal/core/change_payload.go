package core

import (
	"encoding/json"

	"vialcore/pkg/domain"
)

// decodeChangePayload unpacks a change snapshot into a concrete entity type.
// The second return is false when the payload is undefined, empty, or does
// not decode as T; rules treat such changes as not their concern instead of
// failing the transaction.
func decodeChangePayload[T any](payload domain.ChangePayload) (T, bool) {
	var value T
	raw := payload.Raw()
	if len(raw) == 0 {
		return value, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		var zero T
		return zero, false
	}
	return value, true
}
