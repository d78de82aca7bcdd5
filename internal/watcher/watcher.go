// Copyright 2015 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package watcher notifies a processor when a source file changes, so a
// program can be recompiled and rerun as it is edited.
package watcher

import (
	"context"
	"expvar"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

var (
	errorCount = expvar.NewInt("source_watcher_error_count")
)

type OpType int

const (
	_ OpType = iota
	Update
	Delete
)

func (o OpType) String() string {
	switch o {
	case Update:
		return "Update"
	case Delete:
		return "Delete"
	}
	return "Unknown"
}

// Event is a change to the watched file.
type Event struct {
	Op       OpType
	Pathname string
}

// Processor describes an interface for receiving watcher.Events
type Processor interface {
	ProcessFileEvent(context.Context, Event)
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(context.Context, Event)

// ProcessFileEvent calls f.
func (f ProcessorFunc) ProcessFileEvent(ctx context.Context, e Event) {
	f(ctx, e)
}

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultDebounce     = 100 * time.Millisecond
)

// Watcher watches single files for changes.
type Watcher struct {
	pollInterval   time.Duration
	debounce       time.Duration
	enableFsnotify bool
}

// Option configures a Watcher.
type Option func(*Watcher) error

// PollInterval sets how often the file is checked when fsnotify is not in use.
func PollInterval(d time.Duration) Option {
	return func(w *Watcher) error {
		if d < 0 {
			return errors.Errorf("poll interval must not be negative, got %s", d)
		}
		w.pollInterval = d
		return nil
	}
}

// Debounce sets how long the file must be quiet before an event is sent.
// Editors commonly write a file in several steps.
func Debounce(d time.Duration) Option {
	return func(w *Watcher) error {
		w.debounce = d
		return nil
	}
}

// DisableFsnotify makes the Watcher poll the file's modification time instead.
func DisableFsnotify() Option {
	return func(w *Watcher) error {
		w.enableFsnotify = false
		return nil
	}
}

// New returns a new Watcher.
func New(options ...Option) (*Watcher, error) {
	w := &Watcher{debounce: defaultDebounce, enableFsnotify: true}
	for _, option := range options {
		if err := option(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Watch sends p an event each time the file at path settles after a
// change, until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, path string, p Processor) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "Failed to lookup absolutepath of %q", path)
	}
	fi, err := os.Stat(absPath)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %q", absPath)
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.enableFsnotify {
		f, err := fsnotify.NewWatcher()
		if err != nil {
			glog.Warning(err)
		} else {
			defer f.Close()
			// The directory is watched so a file replaced by rename is still seen.
			dir := filepath.Dir(absPath)
			if err := f.Add(dir); err != nil {
				return errors.Wrapf(err, "Failed to create a new watch on %q", dir)
			}
			events, errs = f.Events, f.Errors
		}
	}
	var tick <-chan time.Time
	if events == nil {
		interval := w.pollInterval
		if interval == 0 {
			glog.Infof("fsnotify disabled and no poll interval specified; defaulting to %s poll", defaultPollInterval)
			interval = defaultPollInterval
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	glog.V(1).Infof("watching %s", absPath)

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()
	var pending *Event
	notify := func(op OpType) {
		pending = &Event{op, absPath}
		settle.Reset(w.debounce)
	}
	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Name != absPath {
				continue
			}
			glog.V(2).Infof("watcher event %v", e)
			switch {
			case e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) != 0:
				notify(Update)
			case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// A rename-on-save is followed by a Create for the new file.
				notify(Delete)
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			errorCount.Add(1)
			glog.Errorf("fsnotify error: %s\n", err)

		case <-tick:
			nfi, err := os.Stat(absPath)
			switch {
			case err != nil:
				if fi != nil {
					glog.V(1).Info(err)
					notify(Delete)
				}
			case fi == nil || nfi.ModTime().After(fi.ModTime()) || nfi.Size() != fi.Size():
				notify(Update)
			}
			fi = nfi

		case <-settle.C:
			if pending != nil {
				glog.V(1).Infof("sending %s for %s", pending.Op, pending.Pathname)
				p.ProcessFileEvent(ctx, *pending)
				pending = nil
			}
		}
	}
}
