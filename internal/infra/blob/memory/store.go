// Package memory keeps blobs in process memory. It backs tests and
// ephemeral deployments where export artifacts need no durability.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"vialcore/internal/blob/core"
)

// Store satisfies core.Store with a mutex-guarded map of byte slices.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]storedBlob
}

type storedBlob struct {
	info core.Info
	data []byte
}

func (b storedBlob) snapshot() core.Info {
	info := b.info
	info.Metadata = maps.Clone(info.Metadata)
	return info
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{blobs: make(map[string]storedBlob)}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put writes a new blob. Existing keys are rejected, matching the
// create-only contract of the other backends.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.blobs[key]; taken {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	blob := storedBlob{
		info: core.Info{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  opts.ContentType,
			Metadata:     maps.Clone(opts.Metadata),
			LastModified: time.Now().UTC(),
		},
		data: data,
	}
	s.blobs[key] = blob
	return blob.snapshot(), nil
}

func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("blob %s not found", key)
	}
	return blob.snapshot(), io.NopCloser(bytes.NewReader(slices.Clone(blob.data))), nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s not found", key)
	}
	return blob.snapshot(), nil
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return false, nil
	}
	delete(s.blobs, key)
	return true, nil
}

// List returns matching blobs sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Info
	for key, blob := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			out = append(out, blob.snapshot())
		}
	}
	slices.SortFunc(out, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// PresignURL is not supported in memory.
func (s *Store) PresignURL(context.Context, string, core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}
