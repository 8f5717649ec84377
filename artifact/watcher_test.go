package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchFlagsArtifactChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finbert-v1.fsm")
	if err := os.WriteFile(path, []byte("v1 weights"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	dirty := make(chan struct{}, 1)
	w, err := Watch(path, func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("swapped weights"), 0o600); err != nil {
		t.Fatalf("overwrite artifact: %v", err)
	}

	select {
	case <-dirty:
	case <-time.After(2 * time.Second):
		t.Fatal("artifact overwrite was not flagged")
	}
}

func TestWatchIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finbert-v1.fsm")
	if err := os.WriteFile(path, []byte("weights"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	dirty := make(chan struct{}, 1)
	w, err := Watch(path, func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("noise"), 0o600); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	select {
	case <-dirty:
		t.Fatal("sibling file change was flagged as artifact drift")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finbert-v1.fsm")
	if err := os.WriteFile(path, []byte("weights"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	w, err := Watch(path, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
