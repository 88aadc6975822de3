package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/minutes/internal/config"
)

func TestFSStore_PutGetExistsDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	key, err := s.Put(ctx, "meetings/abc.mp3", strings.NewReader("audio"), 5)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != "meetings/abc.mp3" {
		t.Errorf("Put key = %q, want meetings/abc.mp3", key)
	}

	ok, err := s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}

	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "audio" {
		t.Errorf("Get = %q, want audio", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, _ = s.Exists(ctx, key)
	if ok {
		t.Error("Exists after delete = true")
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("second Delete: %v, want nil", err)
	}
}

func TestFSStore_GetMissing(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	_, err := s.Get(context.Background(), "meetings/none.mp3")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFSStore_ShortBodyLeavesNothing(t *testing.T) {
	root := t.TempDir()
	s, _ := NewFSStore(root)
	_, err := s.Put(context.Background(), "meetings/short.mp3", strings.NewReader("abc"), 10)
	if err == nil {
		t.Fatal("expected short write error")
	}
	entries, _ := os.ReadDir(filepath.Join(root, "meetings"))
	if len(entries) != 0 {
		t.Errorf("leftover files after failed put: %v", entries)
	}
}

func TestFSStore_InvalidKey(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	for _, key := range []string{"", "../escape.mp3", "meetings/../../x"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), 1); err == nil {
			t.Errorf("Put(%q) error = nil, want invalid key", key)
		}
	}
}

func TestOpen_FSBackend(t *testing.T) {
	cfg := configFor("fs")
	cfg.Dir = t.TempDir()
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*FSStore); !ok {
		t.Errorf("Open(fs) = %T, want *FSStore", s)
	}
}

func configFor(backend string) config.BlobConfig {
	return config.BlobConfig{Backend: backend}
}
