package watch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tabwire/tabwire/internal/protocol"
)

type syncRecorder struct {
	mu      sync.Mutex
	scripts []protocol.Script
}

func (s *syncRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync" {
			http.NotFound(w, r)
			return
		}
		var sc protocol.Script
		if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.scripts = append(s.scripts, sc)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"synced","id":"` + sc.ID + `"}`))
	}
}

func (s *syncRecorder) snapshot() []protocol.Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Script, len(s.scripts))
	copy(out, s.scripts)
	return out
}

func TestScanUploadsExistingScripts(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "greet.js"), []byte("hi()"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	rec := &syncRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	w := New(dir, ts.URL)
	w.scan(context.Background())

	scripts := rec.snapshot()
	if len(scripts) != 1 {
		t.Fatalf("synced scripts: got %d want 1", len(scripts))
	}
	if scripts[0].ID != "greet" || scripts[0].Content != "hi()" {
		t.Fatalf("script: got %+v", scripts[0])
	}
	if scripts[0].Path != filepath.Join(dir, "greet.js") {
		t.Fatalf("path: got %q", scripts[0].Path)
	}
}

func TestRunUploadsCreatedScript(t *testing.T) {
	dir := t.TempDir()
	rec := &syncRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	w := New(dir, ts.URL)
	go func() { done <- w.Run(ctx) }()

	// Give the watch a moment to install before creating the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "late.js"), []byte("later()"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, sc := range rec.snapshot() {
			if sc.ID == "late" && sc.Content == "later()" {
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("Run: %v", err)
				}
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("created script never synced")
}

func TestUploadSkipsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.js")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	rec := &syncRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	w := New(dir, ts.URL)
	if err := w.upload(context.Background(), path); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Fatalf("synced scripts: got %d want 0", n)
	}
}

func TestIsScript(t *testing.T) {
	if !isScript("a.js") || isScript("a.txt") || isScript("a.jsx") {
		t.Fatal("script extension filter is wrong")
	}
}
