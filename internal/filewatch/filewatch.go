// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package filewatch calls back when a file is written or replaced.
//
// The parent directory is watched rather than the file itself, so that the
// watch survives programs that replace the file by renaming a new one over
// it, or that remove it and create it again later.
package filewatch

import (
	"fmt"
	"path/filepath"

	"github.com/coredhcp/dutinfo/logger"
	"github.com/fsnotify/fsnotify"
)

var log = logger.GetLogger("filewatch")

// Watcher watches a single file.
type Watcher struct {
	filename string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// Watch starts calling onChange, from a single goroutine, every time
// filename is written or created. Removing the file is not a change: the
// callback runs again once a file with the same name shows up.
func Watch(filename string, onChange func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	filename = filepath.Clean(filename)
	dir := filepath.Dir(filename)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w := &Watcher{filename: filename, watcher: watcher, done: make(chan struct{})}
	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) loop(onChange func()) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.filename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				log.Debugf("%s: ignoring %s", w.filename, event.Op)
				continue
			}
			onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warningf("watcher error on %s: %v", w.filename, err)
		}
	}
}

// Close stops the watch and waits for a running callback to return.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
