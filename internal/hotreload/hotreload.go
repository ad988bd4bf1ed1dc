// Package hotreload watches operator-editable files (the app registers the
// local dev password-seed file) and invokes a callback on change, adapted from the teacher's config reloader but
// trimmed to this project's narrower need: no backups, no webhook
// notification, no atomic.Value config snapshot, just "this file changed,
// go re-read it".
package hotreload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

type Watcher struct {
	logger   *logrus.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	hashes map[string]string

	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger *logrus.Logger, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{logger: logger, watcher: fw, debounce: debounce, hashes: make(map[string]string), ctx: ctx, cancel: cancel}, nil
}

// Watch adds path to the watch set and invokes onChange whenever its
// content hash differs from the last observed value. onChange runs
// synchronously on the watcher's event loop goroutine.
func (w *Watcher) Watch(path string, onChange func(path string)) error {
	if err := w.watcher.Add(path); err != nil {
		return err
	}
	h, err := hashFile(path)
	if err == nil {
		w.mu.Lock()
		w.hashes[path] = h
		w.mu.Unlock()
	}

	go w.loop(path, onChange)
	return nil
}

func (w *Watcher) loop(path string, onChange func(path string)) {
	var pending *time.Timer
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != path {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, func() { w.maybeFire(path, onChange) })
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).WithField("path", path).Warn("hotreload: watcher error")
		}
	}
}

func (w *Watcher) maybeFire(path string, onChange func(path string)) {
	h, err := hashFile(path)
	if err != nil {
		w.logger.WithError(err).WithField("path", path).Warn("hotreload: re-hash failed")
		return
	}
	w.mu.Lock()
	changed := w.hashes[path] != h
	w.hashes[path] = h
	w.mu.Unlock()
	if changed {
		onChange(path)
	}
}

func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
