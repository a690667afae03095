package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mdeck/internal/apperr"
	"github.com/starford/mdeck/internal/storage"
)

// Event kinds reported to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	EventInvalid = "invalid"
)

const (
	// settleDelay groups the writes an editor issues for one save.
	settleDelay    = 100 * time.Millisecond
	reconcileDelay = 200 * time.Millisecond
)

// EventCallback is called after a watcher-driven index change.
// kind is one of the Event* constants.
type EventCallback func(kind string, path string)

type watcher struct {
	db     *DB
	store  storage.Provider
	parse  ParseFunc
	root   string
	logger *slog.Logger
	cb     EventCallback

	fsw *fsnotify.Watcher
	// pending maps documents waiting to settle to whether they were created.
	pending map[string]bool
}

// Watch starts an fsnotify watcher on the vault root and re-parses changed
// documents until ctx is cancelled. It calls cb (if non-nil) after each
// index mutation, including documents recorded as invalid.
//
// Writes to a document are re-parsed once they settle. New directories are
// added to the watch list and their documents indexed. Rename events
// trigger a reconciliation pass against the vault.
func Watch(ctx context.Context, db *DB, store storage.Provider, parse ParseFunc, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := addDirsRecursive(fsw, vaultRoot); err != nil {
		return err
	}

	w := &watcher{
		db:      db,
		store:   store,
		parse:   parse,
		root:    vaultRoot,
		logger:  logger,
		cb:      cb,
		fsw:     fsw,
		pending: make(map[string]bool),
	}
	logger.Info("watcher: started", slog.String("root", vaultRoot))
	return w.loop(ctx)
}

func (w *watcher) loop(ctx context.Context) error {
	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	reconcile := time.NewTimer(reconcileDelay)
	reconcile.Stop()
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case <-settle.C:
			w.flush()

		case <-reconcile.C:
			w.reconcile()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			switch w.handle(ev) {
			case actionSettle:
				settle.Reset(settleDelay)
			case actionReconcile:
				reconcile.Reset(reconcileDelay)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

type action int

const (
	actionNone action = iota
	actionSettle
	actionReconcile
)

func (w *watcher) handle(ev fsnotify.Event) action {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.watchNewDir(ev.Name, info.Name())
			return actionNone
		}
	}

	if !storage.IsDocument(ev.Name) || isHidden(w.root, ev.Name) {
		return actionNone
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return actionNone
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.pending[rel] = w.pending[rel] || ev.Op&fsnotify.Create != 0
		return actionSettle

	case ev.Op&fsnotify.Remove != 0:
		delete(w.pending, rel)
		w.remove(rel)

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old path only; the new one arrives as a
		// Create when it stays inside a watched directory.
		delete(w.pending, rel)
		w.remove(rel)
		return actionReconcile
	}
	return actionNone
}

// flush indexes every settled document.
func (w *watcher) flush() {
	for rel, created := range w.pending {
		delete(w.pending, rel)

		data, err := w.store.Read(rel)
		if err != nil {
			// Removed before it settled.
			w.logger.Debug("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		kind := EventUpdated
		if created {
			kind = EventCreated
		}
		err = IndexFile(w.db, w.parse, rel, data)
		if err != nil {
			w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		} else {
			w.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
		}
		notify(w.cb, kind, rel, err)
	}
}

func (w *watcher) remove(rel string) {
	if err := w.db.DeleteDocument(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("path", rel))
	if w.cb != nil {
		w.cb(EventDeleted, rel)
	}
}

func (w *watcher) watchNewDir(abs, name string) {
	if strings.HasPrefix(name, ".") {
		return
	}
	if err := addDirsRecursive(w.fsw, abs); err != nil {
		w.logger.Warn("watcher: add new dir failed", slog.String("path", abs), slog.String("error", err.Error()))
	} else {
		w.logger.Debug("watcher: watching new dir", slog.String("path", abs))
	}

	// Documents may have been written before the directory was watched.
	_ = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsDocument(p) {
			return nil
		}
		if rel, relErr := filepath.Rel(w.root, p); relErr == nil {
			w.pending[filepath.ToSlash(rel)] = true
		}
		return nil
	})
	w.flush()
}

// reconcile removes index entries whose files are gone and indexes
// documents that are new or changed on disk.
func (w *watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			w.remove(p)
		}
	}
	for p, cs := range disk {
		if old, ok := checksums[p]; ok && old == cs {
			continue
		}
		data, err := w.store.Read(p)
		if err != nil {
			continue
		}
		notify(w.cb, EventCreated, p, IndexFile(w.db, w.parse, p, data))
		w.logger.Debug("reconcile: indexed", slog.String("path", p))
	}
}

// notify reports kind for a successful index, EventInvalid for a document
// that failed to parse and nothing for other errors.
func notify(cb EventCallback, kind, path string, err error) {
	if cb == nil {
		return
	}
	switch {
	case err == nil:
		cb(kind, path)
	case errors.Is(err, apperr.ErrInvalidDocument):
		cb(EventInvalid, path)
	}
}

// isHidden reports whether path lies in a hidden directory below root.
func isHidden(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
