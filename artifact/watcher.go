package artifact

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher flags on-disk drift of the loaded artifact file. The model is
// never reloaded while the process runs; a drift signal means the serving
// weights no longer match the file and an operator should restart on
// purpose.
type Watcher struct {
	fw   *fsnotify.Watcher
	path string
	done chan struct{}
	once sync.Once
}

// Watch observes the artifact file and invokes onDirty once per change
// event. The parent directory is watched so replace-by-rename is seen too.
func Watch(path string, onDirty func()) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{fw: fw, path: abs, done: make(chan struct{})}
	go w.loop(onDirty)
	zap.S().Infof("Watching model artifact %s for drift", abs)
	return w, nil
}

func (w *Watcher) loop(onDirty func()) {
	const dirtyOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path || ev.Op&dirtyOps == 0 {
				continue
			}
			zap.S().Warnf("Model artifact %s changed on disk (%s); serving weights no longer match the file", w.path, ev.Op)
			if onDirty != nil {
				onDirty()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			zap.S().Warnf("Artifact watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}
