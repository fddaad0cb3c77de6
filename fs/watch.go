package fs

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/consorcio-sanramon/aforo-live/logger"
)

// DefaultIgnore skips editor and VCS noise.
var DefaultIgnore = ignore.CompileIgnoreLines(
	".git/",
	"*.swp",
	"*.swx",
	"*~",
	".#*",
	"4913",
	".DS_Store",
)

const debounce = 200 * time.Millisecond

// Watcher calls OnChange once a burst of writes to the watched directories
// settles. Paths matched by Ignore never trigger it.
type Watcher struct {
	Dirs     []string
	Ignore   *ignore.GitIgnore
	OnChange func(paths []string)
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range w.Dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	var (
		mu      sync.Mutex
		pending = map[string]struct{}{}
		timer   *time.Timer
	)
	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = map[string]struct{}{}
		mu.Unlock()

		if len(paths) > 0 && w.OnChange != nil {
			w.OnChange(paths)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			mu.Lock()
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(debounce, flush)
			} else {
				timer.Reset(debounce)
			}
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if w.Ignore != nil && w.Ignore.MatchesPath(filepath.Base(event.Name)) {
		return false
	}
	return true
}
