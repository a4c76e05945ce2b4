package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"vialcore/internal/blob/core"
)

func TestPutGetDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	info, err := store.Put(ctx, "a/b", strings.NewReader("payload"), core.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 {
		t.Fatalf("size %d, want 7", info.Size)
	}
	if _, err := store.Put(ctx, "a/b", strings.NewReader("other"), core.PutOptions{}); err == nil {
		t.Fatal("overwrite should fail")
	}

	got, reader, err := store.Get(ctx, "a/b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(reader)
	_ = reader.Close()
	if !bytes.Equal(data, []byte("payload")) || got.ContentType != "text/plain" {
		t.Fatalf("round trip lost data: %q %+v", data, got)
	}

	deleted, err := store.Delete(ctx, "a/b")
	if err != nil || !deleted {
		t.Fatalf("delete: %v (%v)", err, deleted)
	}
	if _, err := store.Head(ctx, "a/b"); err == nil {
		t.Fatal("deleted blob still has metadata")
	}
}

func TestListByPrefix(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, key := range []string{"x/1", "x/2", "y/1"} {
		if _, err := store.Put(ctx, key, strings.NewReader("d"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "x/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "x/1" {
		t.Fatalf("unexpected listing %+v", infos)
	}
}

func TestPresignUnsupported(t *testing.T) {
	store := New()
	_, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{})
	if !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
