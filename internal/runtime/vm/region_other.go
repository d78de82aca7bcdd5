// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

//go:build !unix

package vm

import "github.com/golang/glog"

// Region is memory obtained for generated code.
type Region struct {
	Data []byte
	Exec bool // The mapping is executable.
}

// MapExecutable allocates size bytes from the Go heap; there is no
// anonymous mapping on this platform.
func MapExecutable(size int) (*Region, error) {
	glog.Warningf("no executable mappings on this platform, allocating %d bytes", size)
	return &Region{Data: make([]byte, size)}, nil
}

// Unmap releases the region.
func (r *Region) Unmap() error {
	r.Data = nil
	return nil
}
