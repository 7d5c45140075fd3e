// Package watch stages a new asset cache version whenever the on-disk asset
// tree changes.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce batches the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// DefaultRetry is how long a change that failed to stage waits before the
// next attempt, typically until an earlier install finishes.
const DefaultRetry = 2 * time.Second

// StageFunc installs version as the next asset cache version.
type StageFunc func(ctx context.Context, version string) error

// Watcher watches an asset directory tree.
type Watcher struct {
	dir      string
	base     string
	stage    StageFunc
	logger   *zap.Logger
	debounce time.Duration
	retry    time.Duration
	fsw      *fsnotify.Watcher
	last     string
}

// New creates a watcher over dir. Staged versions are named
// "<base>+<hash>" where hash is derived from the tree's contents.
func New(dir, base string, stage StageFunc, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		dir:      dir,
		base:     base,
		stage:    stage,
		logger:   logger,
		debounce: DefaultDebounce,
		retry:    DefaultRetry,
		fsw:      fsw,
	}
	if err := w.addTree(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	if w.last, err = TreeHash(os.DirFS(dir)); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// SetDebounce changes the quiet period before a change is staged.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// SetRetry changes the wait before a failed stage is attempted again.
func (w *Watcher) SetRetry(d time.Duration) { w.retry = d }

// Version returns the version tag of the tree as last seen.
func (w *Watcher) Version() string { return Version(w.base, w.last) }

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	w.logger.Info("watching assets", zap.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("watching new directory", zap.String("dir", ev.Name), zap.Error(err))
					}
				}
			}
			w.logger.Debug("asset changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("asset watcher error", zap.Error(err))

		case <-timer.C:
			if !w.settle(ctx) && ctx.Err() == nil {
				timer.Reset(w.retry)
			}
		}
	}
}

// settle stages the tree if it changed. It reports false when the change is
// still pending and must be retried.
func (w *Watcher) settle(ctx context.Context) bool {
	hash, err := TreeHash(os.DirFS(w.dir))
	if err != nil {
		w.logger.Warn("hashing assets", zap.Error(err))
		return false
	}
	if hash == w.last {
		return true
	}
	version := Version(w.base, hash)
	if err := w.stage(ctx, version); err != nil {
		w.logger.Warn("staging asset cache version, will retry",
			zap.String("version", version),
			zap.Duration("retry", w.retry),
			zap.Error(err))
		return false
	}
	w.last = hash
	w.logger.Info("staged asset cache version", zap.String("version", version))
	return true
}

// Version joins a base version and a content hash.
func Version(base, hash string) string {
	return base + "+" + hash
}

// TreeHash returns a short digest of every file's path and contents.
func TreeHash(fsys fs.FS) (string, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking assets: %w", err)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		f, err := fsys.Open(p)
		if err != nil {
			return "", err
		}
		io.WriteString(h, p)
		h.Write([]byte{0})
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", p, err)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:8], nil
}
