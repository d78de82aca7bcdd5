// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package host implements the library functions compiled programs call:
// open, read, close, printf, malloc, memset, memcmp, and exit.  Each is
// bound to a trap address on the machine.
package host

import (
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/vm"
	"github.com/pkg/errors"
)

// Host holds the process state the library functions share.
type Host struct {
	stdout io.Writer
	stdin  io.Reader

	mem  *vm.Memory
	heap *vm.Segment
	brk  uint32 // Next free heap address.

	files  map[int]*os.File
	nextFD int
}

// New creates a Host allocating from heap and doing I/O on stdin and stdout.
func New(mem *vm.Memory, heap *vm.Segment, stdout io.Writer, stdin io.Reader) *Host {
	return &Host{
		stdout: stdout,
		stdin:  stdin,
		mem:    mem,
		heap:   heap,
		brk:    heap.Base,
		files:  make(map[int]*os.File),
		nextFD: 3,
	}
}

type primitive struct {
	op   code.Opcode
	name string
	fn   func(h *Host, c *vm.CPU) (uint32, error)
}

var primitives = []primitive{
	{code.OPEN, "open", (*Host).open},
	{code.READ, "read", (*Host).read},
	{code.CLOS, "close", (*Host).close},
	{code.PRTF, "printf", (*Host).printf},
	{code.MALC, "malloc", (*Host).malloc},
	{code.MSET, "memset", (*Host).memset},
	{code.MCMP, "memcmp", (*Host).memcmp},
	{code.EXIT, "exit", (*Host).exit},
}

// Addr returns the trap address of the library function op.
func (h *Host) Addr(op code.Opcode) (uint32, bool) {
	if !op.IsNative() {
		return 0, false
	}
	return vm.TrapAddr(int(op - code.OPEN)), true
}

// Bind attaches the library functions to their trap addresses on c.
func (h *Host) Bind(c *vm.CPU) {
	for _, p := range primitives {
		p := p
		addr, _ := h.Addr(p.op)
		c.Bind(addr, p.name, func(c *vm.CPU) (uint32, error) {
			return p.fn(h, c)
		})
	}
}

// Close closes any files the program left open.
func (h *Host) Close() error {
	var first error
	for fd, f := range h.files {
		if err := f.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close of fd %d", fd)
		}
		delete(h.files, fd)
	}
	return first
}

func args(c *vm.CPU, n int) ([]uint32, error) {
	a := make([]uint32, n)
	for i := range a {
		v, err := c.Arg(i)
		if err != nil {
			return nil, err
		}
		a[i] = v
	}
	return a, nil
}

const failed = ^uint32(0) // -1

func (h *Host) open(c *vm.CPU) (uint32, error) {
	a, err := args(c, 2)
	if err != nil {
		return 0, err
	}
	path, err := h.mem.CString(a[0])
	if err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, int(int32(a[1])), 0644)
	if err != nil {
		glog.V(1).Infof("open(%q): %v", path, err)
		return failed, nil
	}
	fd := h.nextFD
	h.nextFD++
	h.files[fd] = f
	return uint32(fd), nil
}

func (h *Host) read(c *vm.CPU) (uint32, error) {
	a, err := args(c, 3)
	if err != nil {
		return 0, err
	}
	fd, n := int(int32(a[0])), int(int32(a[2]))
	var r io.Reader
	if fd == 0 {
		r = h.stdin
	} else if f, ok := h.files[fd]; ok {
		r = f
	}
	if r == nil || n < 0 {
		return failed, nil
	}
	buf, err := h.mem.Slice(a[1], n)
	if err != nil {
		return 0, err
	}
	got, err := r.Read(buf)
	if err != nil && err != io.EOF {
		glog.V(1).Infof("read(%d): %v", fd, err)
		return failed, nil
	}
	return uint32(got), nil
}

func (h *Host) close(c *vm.CPU) (uint32, error) {
	a, err := args(c, 1)
	if err != nil {
		return 0, err
	}
	fd := int(int32(a[0]))
	f, ok := h.files[fd]
	if !ok {
		return failed, nil
	}
	delete(h.files, fd)
	if err := f.Close(); err != nil {
		return failed, nil
	}
	return 0, nil
}

func (h *Host) printf(c *vm.CPU) (uint32, error) {
	format, err := c.Arg(0)
	if err != nil {
		return 0, err
	}
	next := 1
	out, err := Sprintf(h.mem, format, func() (uint32, error) {
		v, err := c.Arg(next)
		next++
		return v, err
	})
	if err != nil {
		return 0, err
	}
	n, err := h.stdout.Write(out)
	if err != nil {
		return failed, nil
	}
	return uint32(n), nil
}

// Alloc returns n bytes of heap from a bump pointer, 8 byte aligned, or 0
// when the heap is exhausted.  Memory is never freed.
func (h *Host) Alloc(n int) uint32 {
	p := (uint64(h.brk) + 7) &^ 7
	if n < 0 || p+uint64(n) > h.heap.End() {
		glog.V(1).Infof("malloc(%d): heap exhausted", n)
		return 0
	}
	h.brk = uint32(p + uint64(n))
	return uint32(p)
}

// Args copies the argument vector into the heap as NUL terminated strings
// and returns the address of the pointer array that refers to them.
func (h *Host) Args(argv []string) (uint32, error) {
	vec := h.Alloc(4 * len(argv))
	if vec == 0 && len(argv) > 0 {
		return 0, errors.New("no heap for the argument vector")
	}
	for i, arg := range argv {
		p := h.Alloc(len(arg) + 1)
		if p == 0 {
			return 0, errors.Errorf("no heap for argument %d", i)
		}
		if err := h.mem.Load(p, append([]byte(arg), 0)); err != nil {
			return 0, err
		}
		if err := h.mem.Write32(vec+uint32(4*i), p); err != nil {
			return 0, err
		}
	}
	return vec, nil
}

func (h *Host) malloc(c *vm.CPU) (uint32, error) {
	n, err := c.Arg(0)
	if err != nil {
		return 0, err
	}
	return h.Alloc(int(int32(n))), nil
}

func (h *Host) memset(c *vm.CPU) (uint32, error) {
	a, err := args(c, 3)
	if err != nil {
		return 0, err
	}
	b, err := h.mem.Slice(a[0], int(int32(a[2])))
	if err != nil {
		return 0, err
	}
	for i := range b {
		b[i] = byte(a[1])
	}
	return a[0], nil
}

func (h *Host) memcmp(c *vm.CPU) (uint32, error) {
	a, err := args(c, 3)
	if err != nil {
		return 0, err
	}
	n := int(int32(a[2]))
	x, err := h.mem.Slice(a[0], n)
	if err != nil {
		return 0, err
	}
	y, err := h.mem.Slice(a[1], n)
	if err != nil {
		return 0, err
	}
	for i := range x {
		if x[i] != y[i] {
			return uint32(int32(x[i]) - int32(y[i])), nil
		}
	}
	return 0, nil
}

func (h *Host) exit(c *vm.CPU) (uint32, error) {
	code, err := c.Arg(0)
	if err != nil {
		return 0, err
	}
	return 0, &vm.Exit{Code: int(int32(code))}
}
