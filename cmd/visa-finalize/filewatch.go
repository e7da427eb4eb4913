package main

import "github.com/fsnotify/fsnotify"

// fileWatcher re-fires on every write to a single file, the same
// fsnotify idiom internal/runtime/vfs/watch_fsnotify.go and
// internal/config.Watcher use for the workaround table.
type fileWatcher struct {
	fsw  *fsnotify.Watcher
	hits chan struct{}
	done chan struct{}
}

func newFileWatcher(path string) (*fileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()

		return nil, err
	}

	fw := &fileWatcher{fsw: fsw, hits: make(chan struct{}), done: make(chan struct{})}

	go fw.loop()

	return fw, nil
}

func (fw *fileWatcher) loop() {
	defer close(fw.done)

	for {
		select {
		case ev, ok := <-fw.fsw.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				select {
				case fw.hits <- struct{}{}:
				default:
				}
			}
		case _, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Events yields one signal per detected write/create, coalesced if the
// receiver falls behind.
func (fw *fileWatcher) Events() <-chan struct{} { return fw.hits }

func (fw *fileWatcher) Close() error {
	err := fw.fsw.Close()
	<-fw.done

	return err
}
