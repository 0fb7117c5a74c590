package shaders

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"frame-engine/core"
)

// Watcher reloads programs whose SPIR-V files change on disk. Events are
// collected until no new one arrived for the debounce interval; the
// programs that reloaded successfully are then passed to onReload.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	onReload func([]*Program)
	byPath   map[string]*Program

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewWatcher watches the directories of programs. onReload runs on the
// watcher's goroutine.
func NewWatcher(debounce time.Duration, onReload func([]*Program), programs ...*Program) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	w := &Watcher{
		fs:       fs,
		debounce: debounce,
		onReload: onReload,
		byPath:   make(map[string]*Program),
		done:     make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, p := range programs {
		vert, frag := p.Paths()
		for _, path := range []string{vert, frag} {
			w.byPath[filepath.Clean(path)] = p
			dirs[filepath.Dir(path)] = true
		}
	}
	for dir := range dirs {
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, errors.Wrapf(err, "failed to watch %s", dir)
		}
	}

	w.wg.Add(1)
	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	defer w.wg.Done()

	pending := make(map[*Program]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-w.done:
			timer.Stop()
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			p, ok := w.byPath[filepath.Clean(event.Name)]
			if !ok {
				continue
			}
			pending[p] = true
			timer.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			core.Logger().Warn("shader watcher error", "err", err)
		case <-timer.C:
			var reloaded []*Program
			for p := range pending {
				if err := p.Reload(); err != nil {
					core.Logger().Warn("shader reload failed", "program", p.Name(), "err", err)
					continue
				}
				reloaded = append(reloaded, p)
			}
			clear(pending)
			if len(reloaded) > 0 && w.onReload != nil {
				w.onReload(reloaded)
			}
		}
	}
}

// Close stops watching and waits for the watcher goroutine to exit.
// Closing twice is a no-op.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
