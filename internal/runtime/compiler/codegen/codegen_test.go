// Copyright 2016 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package codegen_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/compiler/codegen"
	"github.com/google/c4jit/internal/runtime/compiler/parser"
	"github.com/google/c4jit/internal/runtime/vm"
	"github.com/google/c4jit/internal/testutil"
)

const base = vm.CodeBase

// hosts places each library call at a fixed address.
type hosts struct{}

func (hosts) Addr(op code.Opcode) (uint32, bool) {
	if !op.IsNative() {
		return 0, false
	}
	return vm.TrapAddr(int(op - code.OPEN)), true
}

func cells(c ...interface{}) []int {
	var r []int
	for _, v := range c {
		switch v := v.(type) {
		case code.Opcode:
			r = append(r, int(v))
		case int:
			r = append(r, v)
		}
	}
	return r
}

func generate(t *testing.T, text []int, opts ...codegen.Option) *codegen.Image {
	t.Helper()
	img, err := codegen.Generate(&code.Object{Name: "test", Text: text}, make([]byte, 4096), base, hosts{}, opts...)
	testutil.FatalIfErr(t, err)
	return img
}

func TestGenerateAddresses(t *testing.T) {
	img := generate(t, cells(code.IMM, 5, code.PSH, code.LEV))
	testutil.ExpectNoDiff(t, []uint32{base, 0, base + 5, base + 6}, img.Addr)
	testutil.ExpectNoDiff(t, uint32(base), img.Entry)
	testutil.ExpectNoDiff(t, []byte{0xb8, 5, 0, 0, 0, 0x50, 0x89, 0xec, 0x5d, 0xc3}, img.Code())
	if img.IsInstruction(1) || !img.IsInstruction(2) {
		t.Error("operand cell reported as an instruction")
	}
}

func TestRelocate(t *testing.T) {
	img := generate(t, cells(code.JMP, 4, code.JMP, 0, code.LEV))
	testutil.ExpectNoDiff(t, []byte{0xe9, 0, 0, 0, 0, 0xe9, 0, 0, 0, 0, 0x89, 0xec, 0x5d, 0xc3}, img.Code())
	testutil.FatalIfErr(t, img.Relocate())
	testutil.ExpectNoDiff(t, []byte{
		0xe9, 0x05, 0x00, 0x00, 0x00, // forward to cell 4
		0xe9, 0xf6, 0xff, 0xff, 0xff, // back to cell 0
		0x89, 0xec, 0x5d, 0xc3,
	}, img.Code())
	testutil.ExpectErrorContains(t, img.Relocate(), "already relocated")
}

func TestRelocateConditional(t *testing.T) {
	img := generate(t, cells(code.BZ, 6, code.BNZ, 0, code.JSR, 6, code.LEV))
	testutil.FatalIfErr(t, img.Relocate())
	testutil.ExpectNoDiff(t, []byte{
		0x85, 0xc0, 0x0f, 0x84, 0x0d, 0x00, 0x00, 0x00, // to base+21
		0x85, 0xc0, 0x0f, 0x85, 0xf0, 0xff, 0xff, 0xff, // to base
		0xe8, 0x00, 0x00, 0x00, 0x00, // to base+21
		0x89, 0xec, 0x5d, 0xc3,
	}, img.Code())
}

func TestNativeCallConsumesAdjust(t *testing.T) {
	img := generate(t, cells(code.IMM, 1, code.PSH, code.EXIT, code.ADJ, 1, code.LEV))
	if img.IsInstruction(4) {
		t.Error("ADJ after a native call should be folded into the call")
	}
	testutil.ExpectNoDiff(t, img.Addr[3]+31, img.Addr[6])
}

var generateErrorTests = []struct {
	name string
	text []int
	err  string
}{
	{"native without adjust", cells(code.PRTF, code.LEV), "no ADJ after native proc PRTF"},
	{"native at end", cells(code.PRTF), "no ADJ after native proc"},
	{"unknown opcode", cells(99), "code generation failed for 99"},
	{"missing operand", cells(code.IMM), "IMM is missing its operand"},
	{"lea out of range", cells(code.LEA, 100), "LEA out of bounds"},
	{"entry not an instruction", nil, "entry cell 0 is not an instruction"},
}

func TestGenerateErrors(t *testing.T) {
	for _, tc := range generateErrorTests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := codegen.Generate(&code.Object{Text: tc.text}, make([]byte, 64), base, hosts{})
			testutil.ExpectErrorContains(t, err, tc.err)
		})
	}
}

func TestRegionFull(t *testing.T) {
	_, err := codegen.Generate(&code.Object{Text: cells(code.IMM, 1, code.IMM, 2)}, make([]byte, 8), base, hosts{})
	testutil.ExpectErrorContains(t, err, "executable region exhausted")
}

func TestRelocateBadTarget(t *testing.T) {
	img := generate(t, cells(code.JMP, 1))
	testutil.ExpectErrorContains(t, img.Relocate(), "branch target 1 is not an instruction")
	img = generate(t, cells(code.JMP, 100))
	testutil.ExpectErrorContains(t, img.Relocate(), "branch target 100 is not an instruction")
}

func TestListing(t *testing.T) {
	obj, err := parser.Parse("test", []byte("int main() {\n  return 7;\n}\n"), vm.DataBase)
	testutil.FatalIfErr(t, err)
	var b strings.Builder
	_, err = codegen.Generate(obj, make([]byte, 4096), base, hosts{}, codegen.Listing(&b))
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, `   1 | int main() {
   2 |   return 7;
0x00000 (0x08000000):	ENT  0x0
0x00002 (0x08000003):	IMM  0x7
0x00004 (0x08000008):	LEV
   3 | }
0x00005 (0x0800000c):	LEV
`, b.String())
}

func TestGeneratedCodeRuns(t *testing.T) {
	obj, err := parser.Parse("test", []byte(`
int fib(int n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); }
int main() { return fib(10) * 100 / 11 % 7; }`), vm.DataBase)
	testutil.FatalIfErr(t, err)
	region := make([]byte, 4096)
	img, err := codegen.Generate(obj, region, base, hosts{})
	testutil.FatalIfErr(t, err)
	testutil.FatalIfErr(t, img.Relocate())

	m := &vm.Memory{}
	testutil.FatalIfErr(t, m.Map(&vm.Segment{Name: "code", Base: base, Data: region, Exec: true}))
	testutil.FatalIfErr(t, m.Map(&vm.Segment{Name: "stack", Base: vm.StackTop - vm.StackSize, Data: make([]byte, vm.StackSize)}))
	c := vm.New(m)
	r, err := c.Call(context.Background(), img.Entry)
	testutil.FatalIfErr(t, err)
	// fib(10) is 55; 5500 / 11 is 500; 500 % 7 is 3.
	testutil.ExpectNoDiff(t, uint32(3), r)
}
