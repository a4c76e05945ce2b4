package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSlotLabel(t *testing.T) {
	cases := []struct {
		row, col int
		want     string
	}{
		{0, 0, "A1"},
		{0, 11, "A12"},
		{1, 0, "B1"},
		{25, 0, "Z1"},
		{26, 0, "AA1"},
		{27, 3, "AB4"},
		{51, 0, "AZ1"},
		{52, 0, "BA1"},
	}
	for _, c := range cases {
		if got := SlotLabel(c.row, c.col); got != c.want {
			t.Fatalf("SlotLabel(%d,%d)=%s want %s", c.row, c.col, got, c.want)
		}
	}
}

func TestLotActive(t *testing.T) {
	lot := Lot{}
	if !lot.Active() {
		t.Fatal("fresh lot should be active")
	}
	lot.Archived = true
	if lot.Active() {
		t.Fatal("archived lot should be inactive")
	}
}

func TestVialStored(t *testing.T) {
	vial := Vial{}
	if vial.Stored() {
		t.Fatal("slotless vial reports stored")
	}
	slot := "slot-1"
	vial.SlotID = &slot
	if !vial.Stored() {
		t.Fatal("slotted vial reports unstored")
	}
}

func TestContainerSlotCapacity(t *testing.T) {
	c := StorageContainer{Rows: 8, Cols: 12}
	if got := c.SlotCapacity(); got != 96 {
		t.Fatalf("capacity %d, want 96", got)
	}
}

func TestResultBlockingDetection(t *testing.T) {
	var res Result
	if res.HasBlocking() {
		t.Fatal("empty result reports blocking")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "r", Severity: SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatal("warn-only result reports blocking")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "r", Severity: SeverityBlock}}})
	if !res.HasBlocking() {
		t.Fatal("blocking violation not detected")
	}
	if len(res.Violations) != 2 {
		t.Fatalf("merge lost violations: %d", len(res.Violations))
	}
}

func TestChangePayloadDefinedAndClone(t *testing.T) {
	raw := json.RawMessage(`{"id":"v-1"}`)
	payload := NewChangePayload(raw)
	if !payload.Defined() || payload.IsEmpty() {
		t.Fatalf("payload state Defined=%v IsEmpty=%v", payload.Defined(), payload.IsEmpty())
	}
	raw[2] = 'X'
	if string(payload.Raw()) != `{"id":"v-1"}` {
		t.Fatal("payload shared bytes with the caller")
	}

	undefined := UndefinedChangePayload()
	if undefined.Defined() {
		t.Fatal("undefined payload reports defined")
	}
}

func TestChangePayloadFromValueRoundTrip(t *testing.T) {
	vial := Vial{Base: Base{ID: "v-1", CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}, LotID: "lot-1", Status: VialSealed}
	payload, err := NewChangePayloadFromValue(vial)
	if err != nil {
		t.Fatalf("from value: %v", err)
	}
	var decoded Vial
	if err := json.Unmarshal(payload.Raw(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != "v-1" || decoded.LotID != "lot-1" || decoded.Status != VialSealed {
		t.Fatalf("round trip lost fields: %+v", decoded)
	}
}
