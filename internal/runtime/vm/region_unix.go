// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

//go:build unix

package vm

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Region is memory obtained from the operating system for generated code.
type Region struct {
	Data []byte
	Exec bool // The mapping is executable.
}

// MapExecutable maps size bytes of anonymous read, write, and execute
// memory.  Kernels that refuse writable executable mappings get a
// read/write mapping instead.
func MapExecutable(size int) (*Region, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err == nil {
		return &Region{Data: b, Exec: true}, nil
	}
	glog.Warningf("mmap of %d executable bytes failed, mapping read/write: %v", size, err)
	b, err = unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(err, "could not mmap(%d) jit executable memory", size)
	}
	return &Region{Data: b}, nil
}

// Unmap returns the region to the operating system.
func (r *Region) Unmap() error {
	if r.Data == nil {
		return nil
	}
	err := unix.Munmap(r.Data)
	r.Data = nil
	return err
}
