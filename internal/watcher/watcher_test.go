// Copyright 2015 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/c4jit/internal/testutil"
)

type testStubProcessor struct {
	mu     sync.Mutex
	Events []Event
}

func (t *testStubProcessor) ProcessFileEvent(ctx context.Context, e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Events = append(t.Events, e)
}

func (t *testStubProcessor) last() (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Events) == 0 {
		return Event{}, false
	}
	return t.Events[len(t.Events)-1], true
}

// watch runs w on path in the background until the test ends.
func watch(t *testing.T, w *Watcher, path string) *testStubProcessor {
	t.Helper()
	s := &testStubProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, path, s) }()
	t.Cleanup(func() {
		cancel()
		testutil.FatalIfErr(t, <-done)
	})
	return s
}

func expectEvent(t *testing.T, s *testStubProcessor, want Event, poke func()) {
	t.Helper()
	ok, err := testutil.DoOrTimeout(func() (bool, error) {
		if e, ok := s.last(); ok && e == want {
			return true, nil
		}
		poke()
		return false, nil
	}, 10*time.Second, 50*time.Millisecond)
	testutil.FatalIfErr(t, err)
	if !ok {
		t.Fatalf("no %v event; got %v", want, s.Events)
	}
}

func TestWatchFsnotify(t *testing.T) {
	testutil.SkipIfShort(t)
	workdir := testutil.TestTempDir(t)
	path := testutil.TestWriteFile(t, workdir, "prog.c", "int main() { return 0; }\n")
	absPath, err := filepath.Abs(path)
	testutil.FatalIfErr(t, err)

	w, err := New(Debounce(10 * time.Millisecond))
	testutil.FatalIfErr(t, err)
	s := watch(t, w, path)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	testutil.FatalIfErr(t, err)
	defer f.Close()
	expectEvent(t, s, Event{Update, absPath}, func() { testutil.WriteString(t, f, "\n") })

	// Unrelated files in the same directory are ignored.
	n := len(s.Events)
	testutil.TestWriteFile(t, workdir, "other.c", "")
	time.Sleep(100 * time.Millisecond)
	s.mu.Lock()
	testutil.ExpectNoDiff(t, n, len(s.Events))
	s.mu.Unlock()

	testutil.FatalIfErr(t, os.Remove(path))
	expectEvent(t, s, Event{Delete, absPath}, func() {})
}

func TestWatchPoll(t *testing.T) {
	testutil.SkipIfShort(t)
	workdir := testutil.TestTempDir(t)
	path := testutil.TestWriteFile(t, workdir, "prog.c", "int main() { return 0; }\n")
	absPath, err := filepath.Abs(path)
	testutil.FatalIfErr(t, err)

	w, err := New(DisableFsnotify(), PollInterval(10*time.Millisecond), Debounce(time.Millisecond))
	testutil.FatalIfErr(t, err)
	s := watch(t, w, path)

	later := time.Now().Add(time.Hour)
	expectEvent(t, s, Event{Update, absPath}, func() {
		testutil.FatalIfErr(t, os.Chtimes(path, later, later))
	})
	testutil.FatalIfErr(t, os.Remove(path))
	expectEvent(t, s, Event{Delete, absPath}, func() {})
}

func TestWatchMissingFile(t *testing.T) {
	w, err := New()
	testutil.FatalIfErr(t, err)
	err = w.Watch(context.Background(), filepath.Join(testutil.TestTempDir(t), "missing.c"), ProcessorFunc(func(context.Context, Event) {}))
	testutil.ExpectErrorContains(t, err, "failed to stat")
}

func TestBadPollInterval(t *testing.T) {
	_, err := New(PollInterval(-time.Second))
	testutil.ExpectErrorContains(t, err, "poll interval must not be negative")
}
