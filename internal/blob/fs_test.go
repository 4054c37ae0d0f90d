package blob

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestFilesystemPutGetDelete(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	info, err := s.Put(ctx, "a/b/report.txt", strings.NewReader("hello"), PutOptions{ContentType: "text/plain", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || info.ContentType != "text/plain" || info.ETag == "" {
		t.Fatalf("unexpected info: %+v", info)
	}

	if _, err := s.Put(ctx, "a/b/report.txt", strings.NewReader("again"), PutOptions{}); err == nil {
		t.Fatalf("put must fail on an existing key")
	}

	got, rc, err := s.Get(ctx, "a/b/report.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(data) != "hello" {
		t.Fatalf("payload mismatch: %q %v", data, err)
	}
	if got.Metadata["k"] != "v" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}

	head, err := s.Head(ctx, "a/b/report.txt")
	if err != nil || head.Size != 5 {
		t.Fatalf("head: %+v %v", head, err)
	}

	existed, err := s.Delete(ctx, "a/b/report.txt")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	existed, err = s.Delete(ctx, "a/b/report.txt")
	if err != nil || existed {
		t.Fatalf("second delete should report not found: %v %v", existed, err)
	}
}

func TestFilesystemList(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"x/1.txt", "x/2.txt", "y/3.txt"} {
		if _, err := s.Put(ctx, key, strings.NewReader(key), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "x/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "x/1.txt" || infos[1].Key != "x/2.txt" {
		t.Fatalf("prefix listing wrong: %+v", infos)
	}
}

func TestFilesystemKeySanitization(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "/abs/path", "a/../../b"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func TestMemoryStoreBasics(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if _, err := s.Put(ctx, "k", strings.NewReader("v"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("v2"), PutOptions{}); err == nil {
		t.Fatalf("put must fail on an existing key")
	}
	_, rc, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "v" {
		t.Fatalf("payload mismatch: %q", data)
	}
	if _, err := s.PresignURL(ctx, "k", SignedURLOptions{}); err == nil {
		t.Fatalf("memory driver must not presign")
	}
	existed, err := s.Delete(ctx, "k")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
}
