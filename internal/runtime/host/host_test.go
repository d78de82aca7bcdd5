// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package host_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/host"
	"github.com/google/c4jit/internal/runtime/vm"
	"github.com/google/c4jit/internal/testutil"
	"github.com/pkg/errors"
)

type machine struct {
	mem  *vm.Memory
	cpu  *vm.CPU
	host *host.Host
	out  bytes.Buffer
	data uint32 // Next free data address.
}

func newMachine(t *testing.T, heapSize int, stdin string) *machine {
	t.Helper()
	m := &machine{mem: &vm.Memory{}, data: vm.DataBase}
	heap := &vm.Segment{Name: "heap", Base: vm.HeapBase, Data: make([]byte, heapSize)}
	for _, s := range []*vm.Segment{
		{Name: "data", Base: vm.DataBase, Data: make([]byte, 4096)},
		heap,
		{Name: "stack", Base: vm.StackTop - vm.StackSize, Data: make([]byte, vm.StackSize)},
	} {
		testutil.FatalIfErr(t, m.mem.Map(s))
	}
	m.cpu = vm.New(m.mem)
	m.host = host.New(m.mem, heap, &m.out, strings.NewReader(stdin))
	m.host.Bind(m.cpu)
	t.Cleanup(func() { testutil.FatalIfErr(t, m.host.Close()) })
	return m
}

// str places a NUL terminated string in the data segment.
func (m *machine) str(t *testing.T, s string) uint32 {
	t.Helper()
	a := m.data
	testutil.FatalIfErr(t, m.mem.Load(a, append([]byte(s), 0)))
	m.data += uint32(len(s) + 1)
	return a
}

// call invokes library function op with args as if called from code.
func (m *machine) call(t *testing.T, op code.Opcode, args ...uint32) (uint32, error) {
	t.Helper()
	sp := vm.StackTop - 256
	testutil.FatalIfErr(t, m.mem.Write32(sp, vm.HaltAddr))
	for i, a := range args {
		testutil.FatalIfErr(t, m.mem.Write32(sp+4+4*uint32(i), a))
	}
	m.cpu.Regs[vm.ESP] = sp
	addr, ok := m.host.Addr(op)
	if !ok {
		t.Fatalf("%s is not a library call", op)
	}
	m.cpu.EIP = addr
	if err := m.cpu.Step(); err != nil {
		return 0, err
	}
	testutil.ExpectNoDiff(t, vm.HaltAddr, m.cpu.EIP)
	return m.cpu.Regs[vm.EAX], nil
}

func (m *machine) mustCall(t *testing.T, op code.Opcode, args ...uint32) uint32 {
	t.Helper()
	r, err := m.call(t, op, args...)
	testutil.FatalIfErr(t, err)
	return r
}

func TestAddr(t *testing.T) {
	m := newMachine(t, 64, "")
	seen := map[uint32]bool{}
	for op := code.OPEN; op <= code.EXIT; op++ {
		a, ok := m.host.Addr(op)
		if !ok || seen[a] || a < vm.TrapBase {
			t.Errorf("bad trap address 0x%08x for %s", a, op)
		}
		seen[a] = true
	}
	if _, ok := m.host.Addr(code.ADD); ok {
		t.Error("ADD has a trap address")
	}
}

func TestMalloc(t *testing.T) {
	m := newMachine(t, 64, "")
	testutil.ExpectNoDiff(t, vm.HeapBase, m.mustCall(t, code.MALC, 3))
	testutil.ExpectNoDiff(t, vm.HeapBase+8, m.mustCall(t, code.MALC, 4))
	testutil.ExpectNoDiff(t, uint32(0), m.mustCall(t, code.MALC, 100))
	testutil.ExpectNoDiff(t, vm.HeapBase+16, m.mustCall(t, code.MALC, 48))
	testutil.ExpectNoDiff(t, uint32(0), m.mustCall(t, code.MALC, 1))
}

func TestArgs(t *testing.T) {
	m := newMachine(t, 64, "")
	vec, err := m.host.Args([]string{"prog.c", "x"})
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, vm.HeapBase, vec)
	for i, want := range []string{"prog.c", "x"} {
		p, err := m.mem.Read32(vec + 4*uint32(i))
		testutil.FatalIfErr(t, err)
		got, err := m.mem.CString(p)
		testutil.FatalIfErr(t, err)
		testutil.ExpectNoDiff(t, want, got)
	}
	_, err = m.host.Args([]string{strings.Repeat("a", 64)})
	testutil.ExpectErrorContains(t, err, "no heap for argument 0")
}

func TestMemsetMemcmp(t *testing.T) {
	m := newMachine(t, 64, "")
	a := m.mustCall(t, code.MALC, 8)
	b := m.mustCall(t, code.MALC, 8)
	testutil.ExpectNoDiff(t, a, m.mustCall(t, code.MSET, a, 'x', 8))
	m.mustCall(t, code.MSET, b, 'x', 8)
	testutil.ExpectNoDiff(t, uint32(0), m.mustCall(t, code.MCMP, a, b, 8))
	testutil.FatalIfErr(t, m.mem.Write8(b+5, 'y'))
	if r := int32(m.mustCall(t, code.MCMP, a, b, 8)); r >= 0 {
		t.Errorf("memcmp = %d, want negative", r)
	}
	testutil.ExpectNoDiff(t, uint32(0), m.mustCall(t, code.MCMP, a, b, 5))
	_, err := m.call(t, code.MSET, 0, 0, 4)
	testutil.ExpectErrorContains(t, err, "segmentation fault")
}

func TestFiles(t *testing.T) {
	m := newMachine(t, 64, "from stdin")
	path := testutil.TestWriteFile(t, testutil.TestTempDir(t), "input.txt", "hello, file")
	fd := m.mustCall(t, code.OPEN, m.str(t, path), 0)
	if int32(fd) < 3 {
		t.Fatalf("open returned %d", int32(fd))
	}
	buf := m.mustCall(t, code.MALC, 64)
	testutil.ExpectNoDiff(t, uint32(11), m.mustCall(t, code.READ, fd, buf, 64))
	got, err := m.mem.CString(buf)
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, "hello, file", got)
	testutil.ExpectNoDiff(t, uint32(0), m.mustCall(t, code.READ, fd, buf, 64))
	testutil.ExpectNoDiff(t, uint32(0), m.mustCall(t, code.CLOS, fd))
	testutil.ExpectNoDiff(t, ^uint32(0), m.mustCall(t, code.CLOS, fd))
	testutil.ExpectNoDiff(t, ^uint32(0), m.mustCall(t, code.READ, fd, buf, 64))

	testutil.ExpectNoDiff(t, ^uint32(0), m.mustCall(t, code.OPEN, m.str(t, path+".missing"), 0))

	testutil.ExpectNoDiff(t, uint32(4), m.mustCall(t, code.READ, 0, buf, 4))
	b, err := m.mem.Slice(buf, 4)
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, "from", string(b))
}

func TestPrintf(t *testing.T) {
	m := newMachine(t, 64, "")
	n := m.mustCall(t, code.PRTF, m.str(t, "%d + %s = %c\n"), 1, m.str(t, "two"), '3')
	testutil.ExpectNoDiff(t, "1 + two = 3\n", m.out.String())
	testutil.ExpectNoDiff(t, uint32(m.out.Len()), n)
}

func TestExit(t *testing.T) {
	m := newMachine(t, 64, "")
	_, err := m.call(t, code.EXIT, ^uint32(0))
	var e *vm.Exit
	if !errors.As(err, &e) {
		t.Fatalf("expected exit, got %v", err)
	}
	testutil.ExpectNoDiff(t, -1, e.Code)
}

var sprintfTests = []struct {
	format string
	args   []interface{} // uint32, int32, or string placed in memory.
	want   string
}{
	{"plain", nil, "plain"},
	{"%d", []interface{}{int32(-5)}, "-5"},
	{"%i|%5d|%-5d|", []interface{}{int32(1), int32(42), int32(42)}, "1|   42|42   |"},
	{"%05d %+d %.3d", []interface{}{int32(42), int32(5), int32(7)}, "00042 +5 007"},
	{"%x %X %o %#x", []interface{}{uint32(255), uint32(255), uint32(8), uint32(255)}, "ff FF 10 0xff"},
	{"%u", []interface{}{int32(-1)}, "4294967295"},
	{"%c%c", []interface{}{uint32('h'), uint32('i')}, "hi"},
	{"%s!", []interface{}{"world"}, "world!"},
	{"%.2s|%6s", []interface{}{"world", "abc"}, "wo|   abc"},
	{"%*d", []interface{}{int32(4), int32(7)}, "   7"},
	{"%p", []interface{}{uint32(0x1000)}, "0x1000"},
	{"100%%", nil, "100%"},
	{"%ld %hd", []interface{}{int32(3), int32(4)}, "3 4"},
	{"%q", nil, "%q"},
	{"trailing %", nil, "trailing %"},
}

func TestSprintf(t *testing.T) {
	for _, tc := range sprintfTests {
		tc := tc
		t.Run(tc.format, func(t *testing.T) {
			m := newMachine(t, 64, "")
			var words []uint32
			for _, a := range tc.args {
				switch v := a.(type) {
				case uint32:
					words = append(words, v)
				case int32:
					words = append(words, uint32(v))
				case string:
					words = append(words, m.str(t, v))
				}
			}
			i := 0
			got, err := host.Sprintf(m.mem, m.str(t, tc.format), func() (uint32, error) {
				if i >= len(words) {
					return 0, errors.New("too many arguments consumed")
				}
				i++
				return words[i-1], nil
			})
			testutil.FatalIfErr(t, err)
			testutil.ExpectNoDiff(t, tc.want, string(got))
			testutil.ExpectNoDiff(t, len(words), i)
		})
	}
}
