package snapshot

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// InfoWatcher watches a snapshot's info file for replacement, generalizing
// the teacher repo family's fsnotify.Watcher wrapper (Events()/Errors()
// channel accessors feeding a translation loop) to a single-file watch rather
// than a directory tree.
type InfoWatcher struct {
	watcher *fsnotify.Watcher
	events  chan struct{}
	errors  chan error
	done    chan struct{}
}

// WatchInfoFile starts watching path, signalling on Events() whenever the file
// is written, renamed, or created. Removals alone are not signalled.
func WatchInfoFile(path string) (*InfoWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create info file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch info file %s: %w", path, err)
	}

	iw := &InfoWatcher{
		watcher: w,
		events:  make(chan struct{}, 1),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	go iw.loop()
	return iw, nil
}

func (iw *InfoWatcher) loop() {
	defer close(iw.events)
	defer close(iw.errors)
	for {
		select {
		case ev, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Create) != 0 {
				select {
				case iw.events <- struct{}{}:
				default:
				}
			}
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case iw.errors <- err:
			default:
			}
		case <-iw.done:
			return
		}
	}
}

// Events reports when the watched info file has been replaced.
func (iw *InfoWatcher) Events() <-chan struct{} { return iw.events }

// Errors reports watcher-internal failures.
func (iw *InfoWatcher) Errors() <-chan error { return iw.errors }

// Close stops the watcher.
func (iw *InfoWatcher) Close() error {
	close(iw.done)
	return iw.watcher.Close()
}
