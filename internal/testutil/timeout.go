// Copyright 2019 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package testutil

import (
	"testing"
	"time"

	"github.com/golang/glog"
)

// DoOrTimeout polls do every interval until it reports true, returns an
// error, or the deadline passes.  The boolean result is false on timeout.
func DoOrTimeout(do func() (bool, error), deadline, interval time.Duration) (bool, error) {
	timeout := time.After(deadline)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			return false, nil
		case <-ticker.C:
			ok, err := do()
			glog.V(2).Infof("poll: %v %v", ok, err)
			if err != nil || ok {
				return ok, err
			}
		}
	}
}

// SkipIfShort skips tests that wait on the filesystem or the clock.
func SkipIfShort(tb testing.TB) {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping test in -short mode")
	}
}
