package enrich

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/foreman/pkg/connectors/knowledge"
	"mercator-hq/foreman/pkg/providers"
)

// ============================================================
// Spool watcher
// ============================================================

func TestWatcher_EnrichesDroppedPhoto(t *testing.T) {
	dir := t.TempDir()
	mock := visionMock(t, contactorReply)
	store := knowledge.NewMemory()
	watcher := NewWatcher(NewPipeline([]providers.Provider{mock}, store), dir, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "cabinet.jpg")
	if err := os.WriteFile(path, []byte("photo-bytes"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		atom, err := store.FindByPart(context.Background(), "Siemens", "3RT2026-1BB40")
		if err != nil {
			t.Fatalf("FindByPart failed: %v", err)
		}
		if atom != nil {
			if len(atom.Provenance) == 0 || atom.Provenance[0].PhotoID != "cabinet" {
				t.Errorf("Expected provenance from the spool file, got %v", atom.Provenance)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Photo was never enriched")
}

func TestWatcher_DebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	mock := visionMock(t, contactorReply)
	watcher := NewWatcher(NewPipeline([]providers.Provider{mock}, knowledge.NewMemory()), dir, 200*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "upload.jpg")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("chunk"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		time.Sleep(30 * time.Millisecond)
	}

	time.Sleep(600 * time.Millisecond)
	if calls := mock.VisionCalls(); calls != 1 {
		t.Errorf("Expected 1 enrichment after the writes settle, got %d", calls)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	mock := visionMock(t, contactorReply)
	watcher := NewWatcher(NewPipeline([]providers.Provider{mock}, knowledge.NewMemory()), dir, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"notes.txt", ".partial.jpg", "report.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	time.Sleep(300 * time.Millisecond)
	if calls := mock.VisionCalls(); calls != 0 {
		t.Errorf("Expected no enrichment for non-photo files, got %d calls", calls)
	}
}

func TestShouldEnrich(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"created jpg", fsnotify.Event{Name: "/spool/new.jpg", Op: fsnotify.Create}, true},
		{"written png", fsnotify.Event{Name: "/spool/scan.png", Op: fsnotify.Write}, true},
		{"uppercase extension", fsnotify.Event{Name: "/spool/IMG.JPG", Op: fsnotify.Create}, true},
		{"webp", fsnotify.Event{Name: "/spool/plate.webp", Op: fsnotify.Create}, true},
		{"chmod only", fsnotify.Event{Name: "/spool/new.jpg", Op: fsnotify.Chmod}, false},
		{"removed", fsnotify.Event{Name: "/spool/new.jpg", Op: fsnotify.Remove}, false},
		{"text file", fsnotify.Event{Name: "/spool/notes.txt", Op: fsnotify.Write}, false},
		{"hidden partial upload", fsnotify.Event{Name: "/spool/.partial.jpg", Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldEnrich(tt.event); got != tt.want {
				t.Errorf("shouldEnrich(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}
