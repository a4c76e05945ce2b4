// Package auditexport renders audit ledger slices to immutable JSON and CSV
// artifacts for downstream compliance reporting. Rendering is asynchronous:
// requests queue onto a worker that reads the ledger, materializes the
// artifacts, and stores them in a blob store. Only raw data formats are
// produced here; report formatting happens downstream.
package auditexport

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"vialcore/internal/blob"
	"vialcore/internal/core"
	"vialcore/pkg/domain"
)

// Format identifies an artifact serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored ledger artifact.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Rows        int       `json:"rows"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID          string            `json:"id"`
	Filter      core.LedgerFilter `json:"-"`
	Formats     []Format          `json:"formats"`
	Status      Status            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Artifacts   []Artifact        `json:"artifacts,omitempty"`
	RequestedBy string            `json:"requested_by"`
	Reason      string            `json:"reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	out := r
	out.Formats = append([]Format(nil), r.Formats...)
	out.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Input represents an enqueue request for the worker.
type Input struct {
	Filter      core.LedgerFilter
	Formats     []Format
	RequestedBy string
	Reason      string
}

// LedgerSource reads matching audit entries; usually the core service.
type LedgerSource interface {
	LedgerEntries(ctx context.Context, filter core.LedgerFilter) ([]domain.AuditEntry, error)
}

// Worker executes ledger exports asynchronously.
type Worker struct {
	source LedgerSource
	store  blob.Store

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

// NewWorker constructs an export worker over the given ledger source and
// artifact store.
func NewWorker(source LedgerSource, store blob.Store) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		queue:  make(chan task, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the processing goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop cancels the loop and blocks until in-flight work finishes.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules a ledger export and returns the queued record.
func (w *Worker) Enqueue(_ context.Context, input Input) (Record, error) {
	if w.source == nil {
		return Record{}, fmt.Errorf("ledger source not configured")
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if format != FormatJSON && format != FormatCSV {
			return Record{}, fmt.Errorf("unsupported export format %s", format)
		}
		if _, dup := seen[format]; dup {
			continue
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		Filter:      input.Filter,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- task{id: id, input: input}:
	default:
		return Record{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	w.updateStatus(t.id, StatusRunning, "")

	entries, err := w.source.LedgerEntries(w.ctx, t.input.Filter)
	if err != nil {
		w.fail(t.id, fmt.Sprintf("read ledger: %v", err))
		return
	}

	w.mu.RLock()
	formats := append([]Format(nil), w.jobs[t.id].Formats...)
	w.mu.RUnlock()

	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		payload, artifact, err := materialize(t.id, format, entries)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		if w.store != nil {
			info, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(payload), blob.PutOptions{
				ContentType: artifact.ContentType,
				Metadata:    map[string]string{"rows": strconv.Itoa(artifact.Rows)},
			})
			if err != nil {
				w.fail(t.id, fmt.Sprintf("store artifact: %v", err))
				return
			}
			artifact.URL = info.URL
			if info.Size > 0 {
				artifact.SizeBytes = info.Size
			}
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(t.id, artifacts)
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
}

var csvHeader = []string{"id", "lab_id", "actor", "action", "entity", "entity_id", "note", "support_action", "created_at", "before", "after"}

func materialize(requestID string, format Format, entries []domain.AuditEntry) ([]byte, Artifact, error) {
	now := time.Now().UTC()
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(entries)
		if err != nil {
			return nil, Artifact{}, fmt.Errorf("marshal json: %w", err)
		}
		return payload, Artifact{
			Key:         fmt.Sprintf("audit-exports/%s/ledger.json", requestID),
			Format:      FormatJSON,
			ContentType: "application/json",
			SizeBytes:   int64(len(payload)),
			Rows:        len(entries),
			CreatedAt:   now,
		}, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(csvHeader); err != nil {
			return nil, Artifact{}, fmt.Errorf("write csv header: %w", err)
		}
		for _, entry := range entries {
			row := []string{
				entry.ID,
				entry.LabID,
				entry.Actor,
				entry.Action,
				string(entry.Entity),
				entry.EntityID,
				entry.Note,
				strconv.FormatBool(entry.SupportAction),
				entry.CreatedAt.UTC().Format(time.RFC3339Nano),
				string(entry.Before.Raw()),
				string(entry.After.Raw()),
			}
			if err := writer.Write(row); err != nil {
				return nil, Artifact{}, fmt.Errorf("write csv row: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, Artifact{}, fmt.Errorf("flush csv: %w", err)
		}
		payload := buf.Bytes()
		return payload, Artifact{
			Key:         fmt.Sprintf("audit-exports/%s/ledger.csv", requestID),
			Format:      FormatCSV,
			ContentType: "text/csv",
			SizeBytes:   int64(len(payload)),
			Rows:        len(entries),
			CreatedAt:   now,
		}, nil
	default:
		return nil, Artifact{}, fmt.Errorf("unsupported export format %s", format)
	}
}
