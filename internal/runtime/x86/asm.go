// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package x86 emits IA-32 machine code for the stack machine operations.
// The accumulator is %eax, the bytecode stack is the native stack, and the
// frame pointer is %ebp.  %ecx, %edx, and %esi are scratch.
package x86

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrRegionFull is returned when the code does not fit the executable region.
var ErrRegionFull = errors.New("executable region exhausted")

// Op is a binary operation combining the popped operand with the accumulator.
type Op int

const (
	Or Op = iota
	Xor
	And
	Add
	Sub
	Mul
	Div
	Mod
	Shl
	Shr
)

// Cond is the condition nibble shared by the setcc and jcc opcodes.
type Cond byte

const (
	Equal        Cond = 0x4
	NotEqual     Cond = 0x5
	Less         Cond = 0xc
	GreaterEqual Cond = 0xd
	LessEqual    Cond = 0xe
	Greater      Cond = 0xf
)

// A Fixup is the address of a rel32 field whose target is not known yet.
type Fixup uint32

// Assembler writes instructions into a code buffer that will be loaded at
// Base.  The first error is sticky and reported by Err; later instructions
// are dropped.
type Assembler struct {
	Base uint32

	buf []byte
	n   int
	err error
}

// New returns an Assembler writing into buf, which is loaded at base.
func New(buf []byte, base uint32) *Assembler {
	return &Assembler{Base: base, buf: buf}
}

// PC returns the address the next instruction will be emitted at.
func (a *Assembler) PC() uint32 {
	return a.Base + uint32(a.n)
}

// Len returns the number of bytes emitted.
func (a *Assembler) Len() int {
	return a.n
}

// Bytes returns the code emitted so far.
func (a *Assembler) Bytes() []byte {
	return a.buf[:a.n]
}

// Err returns the first error encountered.
func (a *Assembler) Err() error {
	return a.err
}

func (a *Assembler) emit(b ...byte) {
	if a.err != nil {
		return
	}
	if a.n+len(b) > len(a.buf) {
		a.err = ErrRegionFull
		return
	}
	a.n += copy(a.buf[a.n:], b)
}

func (a *Assembler) emit32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.emit(b[:]...)
}

func isInt8(v int) bool {
	return v >= -128 && v <= 127
}

// LeaLocal loads the address of frame slot n, which is n words above %ebp.
func (a *Assembler) LeaLocal(n int) uint32 {
	pc := a.PC()
	d := n * 4
	if !isInt8(d) {
		if a.err == nil {
			a.err = errors.Errorf("LEA out of bounds: frame offset %d", d)
		}
		return pc
	}
	a.emit(0x8d, 0x45, byte(int8(d))) // lea d(%ebp),%eax
	return pc
}

// Enter sets up a frame with room for n local words.
func (a *Assembler) Enter(n int) uint32 {
	pc := a.PC()
	a.emit(0x55, 0x89, 0xe5) // push %ebp; mov %esp,%ebp
	switch d := n * 4; {
	case d == 0:
	case isInt8(d):
		a.emit(0x83, 0xec, byte(d)) // sub $d,%esp
	default:
		a.emit(0x81, 0xec) // sub $d,%esp
		a.emit32(uint32(d))
	}
	return pc
}

// MovImm loads a constant into the accumulator.
func (a *Assembler) MovImm(v uint32) uint32 {
	pc := a.PC()
	a.emit(0xb8) // mov $v,%eax
	a.emit32(v)
	return pc
}

// AdjustStack discards n words from the stack.
func (a *Assembler) AdjustStack(n int) uint32 {
	pc := a.PC()
	if d := n * 4; isInt8(d) {
		a.emit(0x83, 0xc4, byte(int8(d))) // add $d,%esp
	} else {
		a.emit(0x81, 0xc4) // add $d,%esp
		a.emit32(uint32(d))
	}
	return pc
}

// Push pushes the accumulator.
func (a *Assembler) Push() uint32 {
	pc := a.PC()
	a.emit(0x50) // push %eax
	return pc
}

// Leave tears down the frame and returns.
func (a *Assembler) Leave() uint32 {
	pc := a.PC()
	a.emit(0x89, 0xec, 0x5d, 0xc3) // mov %ebp,%esp; pop %ebp; ret
	return pc
}

// LoadWord replaces the accumulator with the word it points at.
func (a *Assembler) LoadWord() uint32 {
	pc := a.PC()
	a.emit(0x8b, 0x00) // mov (%eax),%eax
	return pc
}

// LoadByte replaces the accumulator with the zero extended byte it points at.
func (a *Assembler) LoadByte() uint32 {
	pc := a.PC()
	a.emit(0x0f, 0xb6, 0x00) // movzbl (%eax),%eax
	return pc
}

// StoreWord pops an address and stores the accumulator there.
func (a *Assembler) StoreWord() uint32 {
	pc := a.PC()
	a.emit(0x59, 0x89, 0x01) // pop %ecx; mov %eax,(%ecx)
	return pc
}

// StoreByte pops an address and stores the low byte of the accumulator there.
func (a *Assembler) StoreByte() uint32 {
	pc := a.PC()
	a.emit(0x59, 0x88, 0x01) // pop %ecx; mov %al,(%ecx)
	return pc
}

// Binary pops the left operand and combines it with the accumulator, which
// holds the right operand.
func (a *Assembler) Binary(op Op) uint32 {
	pc := a.PC()
	switch op {
	case Or:
		a.emit(0x59, 0x09, 0xc8) // pop %ecx; or %ecx,%eax
	case Xor:
		a.emit(0x59, 0x31, 0xc8) // pop %ecx; xor %ecx,%eax
	case And:
		a.emit(0x59, 0x21, 0xc8) // pop %ecx; and %ecx,%eax
	case Add:
		a.emit(0x59, 0x01, 0xc8) // pop %ecx; add %ecx,%eax
	case Sub:
		a.emit(0x59, 0x91, 0x29, 0xc8) // pop %ecx; xchg %eax,%ecx; sub %ecx,%eax
	case Mul:
		a.emit(0x59, 0x0f, 0xaf, 0xc1) // pop %ecx; imul %ecx,%eax
	case Div:
		a.emit(0x59, 0x91, 0x99, 0xf7, 0xf9) // pop %ecx; xchg %eax,%ecx; cltd; idiv %ecx
	case Mod:
		a.emit(0x59, 0x91, 0x99, 0xf7, 0xf9, 0x92) // ...; xchg %eax,%edx
	case Shl:
		a.emit(0x59, 0x91, 0xd3, 0xe0) // pop %ecx; xchg %eax,%ecx; shl %cl,%eax
	case Shr:
		a.emit(0x59, 0x91, 0xd3, 0xf8) // pop %ecx; xchg %eax,%ecx; sar %cl,%eax
	default:
		if a.err == nil {
			a.err = errors.Errorf("unknown binary operation %d", op)
		}
	}
	return pc
}

// Compare pops the left operand, compares it with the accumulator, and
// leaves 1 in the accumulator if the condition holds and 0 otherwise.
func (a *Assembler) Compare(c Cond) uint32 {
	pc := a.PC()
	a.emit(0x59, 0x39, 0xc1)         // pop %ecx; cmp %eax,%ecx
	a.emit(0x0f, 0x90|byte(c), 0xc0) // setcc %al
	a.emit(0x0f, 0xb6, 0xc0)         // movzbl %al,%eax
	return pc
}

// Jump emits an unconditional jump and returns its displacement for patching.
func (a *Assembler) Jump() (uint32, Fixup) {
	pc := a.PC()
	a.emit(0xe9) // jmp rel32
	a.emit32(0)
	return pc, Fixup(pc + 1)
}

// Call emits a call and returns its displacement for patching.
func (a *Assembler) Call() (uint32, Fixup) {
	pc := a.PC()
	a.emit(0xe8) // call rel32
	a.emit32(0)
	return pc, Fixup(pc + 1)
}

// BranchZero emits a jump taken when the accumulator is zero.
func (a *Assembler) BranchZero() (uint32, Fixup) {
	return a.branch(0x84)
}

// BranchNonZero emits a jump taken when the accumulator is not zero.
func (a *Assembler) BranchNonZero() (uint32, Fixup) {
	return a.branch(0x85)
}

func (a *Assembler) branch(jcc byte) (uint32, Fixup) {
	pc := a.PC()
	a.emit(0x85, 0xc0, 0x0f, jcc) // test %eax,%eax; jcc rel32
	a.emit32(0)
	return pc, Fixup(pc + 4)
}

// CallNative calls the host function at target with the nargs words on top
// of the stack as its arguments.  The stack holds them with the first
// argument deepest, so they are copied in reverse onto a 16 byte aligned
// area below the stack, the call runs on that area, and the original stack
// comes back with the arguments popped.
func (a *Assembler) CallNative(nargs int, target uint32) uint32 {
	pc := a.PC()
	a.emit(0xb9) // mov $4n,%ecx
	a.emit32(uint32(nargs * 4))
	a.emit(0x89, 0xe6)       // mov %esp,%esi
	a.emit(0x29, 0xce)       // sub %ecx,%esi
	a.emit(0xc1, 0xe9, 0x02) // shr $2,%ecx
	a.emit(0x83, 0xe6, 0xf0) // and $-16,%esi
	if nargs > 0 {
		a.emit(0x5a)                   // 1: pop %edx
		a.emit(0x89, 0x54, 0x8e, 0xfc) // mov %edx,-4(%esi,%ecx,4)
		a.emit(0xe2, 0xf9)             // loop 1b
	}
	a.emit(0x87, 0xf4) // xchg %esi,%esp
	a.emit(0xe8)       // call target
	a.emit32(target - (a.PC() + 4))
	a.emit(0x87, 0xf4) // xchg %esi,%esp
	return pc
}

// Patch points the rel32 field f at target.
func (a *Assembler) Patch(f Fixup, target uint32) error {
	off := int(uint32(f) - a.Base)
	if uint32(f) < a.Base || off+4 > a.n {
		return errors.Errorf("fixup 0x%08x outside emitted code", uint32(f))
	}
	binary.LittleEndian.PutUint32(a.buf[off:], target-(uint32(f)+4))
	return nil
}
