// Package watch uploads user scripts to the bridge. It watches a directory
// for .js files and POSTs each created or modified file to the ingress sync
// endpoint. It talks to the bridge exclusively through that endpoint, so it
// runs equally well inside the serve process or as a standalone command
// pointed at a remote bridge.
package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tabwire/tabwire/internal/logx"
	"github.com/tabwire/tabwire/internal/protocol"
)

// Watcher mirrors a directory of .js files into a running bridge.
type Watcher struct {
	Dir     string
	BaseURL string
	Client  *http.Client
}

// New returns a watcher for dir that syncs against the bridge at baseURL.
func New(dir, baseURL string) *Watcher {
	return &Watcher{
		Dir:     dir,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Run uploads every script already in the directory, then watches for
// creations and modifications until ctx is done. Upload failures are logged
// and retried on the next change; only a broken watch ends the loop.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create agents dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}

	w.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if !isScript(ev.Name) {
				continue
			}
			if err := w.upload(ctx, ev.Name); err != nil {
				logx.Log.Warn().Err(err).Str("path", ev.Name).Msg("script sync failed")
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logx.Log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// scan uploads the scripts already present when the watcher starts, so a
// bridge restart does not lose them.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		logx.Log.Warn().Err(err).Str("dir", w.Dir).Msg("initial scan failed")
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isScript(e.Name()) {
			continue
		}
		path := filepath.Join(w.Dir, e.Name())
		if err := w.upload(ctx, path); err != nil {
			logx.Log.Warn().Err(err).Str("path", path).Msg("script sync failed")
		}
	}
}

func isScript(name string) bool {
	return strings.HasSuffix(name, ".js")
}

// upload reads the script file and submits it to the sync endpoint. The
// script ID is the file name without its extension, so re-saving a file
// overwrites its previous registration.
func (w *Watcher) upload(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if len(content) == 0 {
		// Editors often create the file empty before the first write; the
		// write event follows shortly.
		return nil
	}
	sc := protocol.Script{
		ID:      strings.TrimSuffix(filepath.Base(path), ".js"),
		Content: string(content),
		Path:    path,
	}
	body, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode script: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.BaseURL+"/sync", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sync rejected: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	logx.Log.Info().Str("id", sc.ID).Str("path", path).Msg("script synced")
	return nil
}
