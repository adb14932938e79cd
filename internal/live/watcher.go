package live

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/carraway/dossier/internal/evidence"
	"github.com/carraway/dossier/internal/importer"
	"github.com/carraway/dossier/internal/state"
)

// Options configures the live messages watcher.
type Options struct {
	// ChatDBPath is the chat.db snapshot to watch. Empty means the default
	// macOS location.
	ChatDBPath string
	// Debounce collapses the burst of filesystem events a single Messages
	// write produces into one import.
	Debounce time.Duration
	// Logf receives progress lines. Nil silences them.
	Logf func(format string, args ...any)
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}
	return o
}

// Watch runs an initial import and then re-imports whenever chat.db changes,
// until the context is cancelled. The watch is on the containing directory:
// SQLite writes land in the WAL file next to chat.db, not chat.db itself.
func Watch(ctx context.Context, store *sql.DB, svc *evidence.Service, opts Options) error {
	opts = opts.withDefaults()

	imp, err := importer.NewChatDBImporter(opts.ChatDBPath)
	if err != nil {
		return err
	}
	chatDBDir := filepath.Dir(imp.Path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(chatDBDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", chatDBDir, err)
	}

	opts.Logf("Watching for message changes in %s (debounce: %s)", chatDBDir, opts.Debounce)

	runImport := func() {
		res, err := imp.Import(ctx, store, svc, false)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			opts.Logf("live import error: %v", err)
			return
		}
		recordBeat(store)
		if res.Created+res.Updated > 0 {
			opts.Logf("[%s] Merged %d new, %d updated",
				time.Now().Format("15:04:05"), res.Created, res.Updated)
		}
	}

	opts.Logf("[%s] Running initial import...", time.Now().Format("15:04:05"))
	runImport()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.Contains(event.Name, "chat.db") {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(opts.Debounce, runImport)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			opts.Logf("watch error: %v", err)
		}
	}
}

// recordBeat stamps the last successful live import so status can report
// watcher liveness.
func recordBeat(store *sql.DB) {
	_ = state.Set(store, "live", "last_beat", strconv.FormatInt(time.Now().Unix(), 10))
}

// LastBeat reports when the watcher last completed an import, or zero time.
func LastBeat(store *sql.DB) (time.Time, error) {
	v, ok, err := state.Get(store, "live", "last_beat")
	if err != nil || !ok {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt live beat %q: %w", v, err)
	}
	return time.Unix(sec, 0), nil
}
