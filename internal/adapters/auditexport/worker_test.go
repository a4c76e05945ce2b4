package auditexport

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"vialcore/internal/blob"
	"vialcore/internal/core"
	"vialcore/pkg/domain"
)

type stubLedger struct {
	entries []domain.AuditEntry
	err     error
}

func (s stubLedger) LedgerEntries(_ context.Context, filter core.LedgerFilter) ([]domain.AuditEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.AuditEntry
	for _, entry := range s.entries {
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func sampleEntries() []domain.AuditEntry {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return []domain.AuditEntry{
		{ID: "a-1", LabID: "lab-1", Actor: "tech", Action: "receive_batch", Entity: domain.EntityLot, EntityID: "lot-1", CreatedAt: base},
		{ID: "a-2", LabID: "lab-1", Actor: "tech", Action: "open_vial", Entity: domain.EntityVial, EntityID: "vial-1", CreatedAt: base.Add(time.Hour)},
		{ID: "a-3", LabID: "lab-1", Actor: "supervisor", Action: "correct_vial", Entity: domain.EntityVial, EntityID: "vial-1", SupportAction: true, Note: "fixed", CreatedAt: base.Add(2 * time.Hour)},
	}
}

func waitForRecord(t *testing.T, w *Worker, id string, want Status) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.Get(id)
		if ok && record.Status == want {
			return record
		}
		if ok && record.Status == StatusFailed && want != StatusFailed {
			t.Fatalf("export failed: %s", record.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("export %s never reached status %s", id, want)
	return Record{}
}

func startWorker(t *testing.T, source LedgerSource, store blob.Store) *Worker {
	t.Helper()
	w := NewWorker(source, store)
	w.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return w
}

func TestExportProducesJSONAndCSVArtifacts(t *testing.T) {
	store := blob.NewMemory()
	w := startWorker(t, stubLedger{entries: sampleEntries()}, store)

	queued, err := w.Enqueue(context.Background(), Input{RequestedBy: "qa", Reason: "quarterly audit"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != StatusQueued {
		t.Fatalf("queued status %s", queued.Status)
	}

	record := waitForRecord(t, w, queued.ID, StatusSucceeded)
	if len(record.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(record.Artifacts))
	}
	if record.CompletedAt == nil {
		t.Fatal("completed record has no completion timestamp")
	}

	byFormat := map[Format]Artifact{}
	for _, artifact := range record.Artifacts {
		byFormat[artifact.Format] = artifact
	}

	jsonArtifact := byFormat[FormatJSON]
	if jsonArtifact.Rows != 3 {
		t.Fatalf("json artifact rows %d, want 3", jsonArtifact.Rows)
	}
	_, reader, err := store.Get(context.Background(), jsonArtifact.Key)
	if err != nil {
		t.Fatalf("get json artifact: %v", err)
	}
	payload, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("read json artifact: %v", err)
	}
	var decoded []domain.AuditEntry
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode json artifact: %v", err)
	}
	if len(decoded) != 3 || decoded[2].Note != "fixed" {
		t.Fatalf("decoded entries %+v", decoded)
	}

	csvArtifact := byFormat[FormatCSV]
	_, reader, err = store.Get(context.Background(), csvArtifact.Key)
	if err != nil {
		t.Fatalf("get csv artifact: %v", err)
	}
	rows, err := csv.NewReader(reader).ReadAll()
	_ = reader.Close()
	if err != nil {
		t.Fatalf("read csv artifact: %v", err)
	}
	// Header plus one row per entry.
	if len(rows) != 4 {
		t.Fatalf("csv has %d rows, want 4", len(rows))
	}
	if rows[0][0] != "id" || rows[0][3] != "action" {
		t.Fatalf("unexpected csv header %v", rows[0])
	}
	if rows[3][7] != "true" {
		t.Fatalf("support action column %q, want true", rows[3][7])
	}
}

func TestExportEmptyLedgerSucceedsWithHeaderOnlyCSV(t *testing.T) {
	store := blob.NewMemory()
	w := startWorker(t, stubLedger{}, store)

	queued, err := w.Enqueue(context.Background(), Input{Formats: []Format{FormatCSV}, RequestedBy: "qa"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForRecord(t, w, queued.ID, StatusSucceeded)
	if len(record.Artifacts) != 1 || record.Artifacts[0].Rows != 0 {
		t.Fatalf("unexpected artifacts %+v", record.Artifacts)
	}

	_, reader, err := store.Get(context.Background(), record.Artifacts[0].Key)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	rows, err := csv.NewReader(reader).ReadAll()
	_ = reader.Close()
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("empty export wrote %d rows, want header only", len(rows))
	}
}

func TestExportAppliesLedgerFilter(t *testing.T) {
	store := blob.NewMemory()
	w := startWorker(t, stubLedger{entries: sampleEntries()}, store)

	queued, err := w.Enqueue(context.Background(), Input{
		Filter:      core.LedgerFilter{Action: "open_vial"},
		Formats:     []Format{FormatJSON},
		RequestedBy: "qa",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForRecord(t, w, queued.ID, StatusSucceeded)
	if record.Artifacts[0].Rows != 1 {
		t.Fatalf("filtered export rows %d, want 1", record.Artifacts[0].Rows)
	}
}

func TestExportDeduplicatesFormats(t *testing.T) {
	store := blob.NewMemory()
	w := startWorker(t, stubLedger{entries: sampleEntries()}, store)

	queued, err := w.Enqueue(context.Background(), Input{Formats: []Format{FormatJSON, FormatJSON}, RequestedBy: "qa"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForRecord(t, w, queued.ID, StatusSucceeded)
	if len(record.Artifacts) != 1 {
		t.Fatalf("duplicate formats produced %d artifacts", len(record.Artifacts))
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	w := startWorker(t, stubLedger{}, blob.NewMemory())
	if _, err := w.Enqueue(context.Background(), Input{Formats: []Format{"parquet"}, RequestedBy: "qa"}); err == nil {
		t.Fatal("unknown format should be rejected at enqueue")
	}
}

func TestExportFailsWhenLedgerReadFails(t *testing.T) {
	w := startWorker(t, stubLedger{err: errors.New("backend down")}, blob.NewMemory())
	queued, err := w.Enqueue(context.Background(), Input{RequestedBy: "qa"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForRecord(t, w, queued.ID, StatusFailed)
	if record.Error == "" {
		t.Fatal("failed record carries no error")
	}
	if record.CompletedAt == nil {
		t.Fatal("failed record has no completion timestamp")
	}
}

func TestGetUnknownExport(t *testing.T) {
	w := NewWorker(stubLedger{}, blob.NewMemory())
	if _, ok := w.Get("missing"); ok {
		t.Fatal("unknown export id should not resolve")
	}
}
