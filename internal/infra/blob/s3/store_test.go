package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"

	"vialcore/internal/blob/core"
)

func TestMockBackedRoundTrip(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	info, err := store.Put(ctx, "exports/ledger.json", strings.NewReader(`[]`), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/ledger.json" || info.Size != 2 {
		t.Fatalf("unexpected info %+v", info)
	}

	got, reader, err := store.Get(ctx, "exports/ledger.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(reader)
	_ = reader.Close()
	if !bytes.Equal(data, []byte(`[]`)) {
		t.Fatalf("payload mismatch: %q", data)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type %q", got.ContentType)
	}

	if _, err := store.Put(ctx, "exports/ledger.json", strings.NewReader(`[1]`), core.PutOptions{}); err == nil {
		t.Fatal("overwrite should fail, artifacts are immutable")
	}
}

func TestMockBackedHeadAndDelete(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("data"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := store.Head(ctx, "k")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Size != 4 {
		t.Fatalf("head size %d, want 4", info.Size)
	}

	deleted, err := store.Delete(ctx, "k")
	if err != nil || !deleted {
		t.Fatalf("delete: %v (%v)", err, deleted)
	}
	if _, err := store.Head(ctx, "k"); err == nil {
		t.Fatal("deleted object still resolves")
	}
}

func TestMockBackedListFiltersByPrefix(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	for _, key := range []string{"exports/a", "exports/b", "misc/c"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("listed %d objects, want 2", len(infos))
	}
}

func TestMockBackedPresignURL(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	url, err := store.PresignURL(ctx, "k", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "k") {
		t.Fatalf("presigned url %q does not reference the key", url)
	}
}

func TestLoadOptionsUseExplicitCredentials(t *testing.T) {
	ctx := context.Background()
	opts := loadOptions(Config{
		Bucket:          "b",
		AccessKeyID:     "AKIAEXPLICIT",
		SecretAccessKey: "SECRET",
		SessionToken:    "TOKEN",
	}, "eu-west-1")
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if awsCfg.Region != "eu-west-1" {
		t.Fatalf("region %q, want eu-west-1", awsCfg.Region)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "AKIAEXPLICIT" || creds.SecretAccessKey != "SECRET" || creds.SessionToken != "TOKEN" {
		t.Fatalf("explicit credentials not honored: %+v", creds)
	}
}
