// Copyright 2016 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package codegen translates bytecode into IA-32 machine code in two
// passes: the first emits native code for every cell and records where each
// landed, the second patches branch and call displacements once every target
// address is known.
package codegen

import (
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/x86"
	"github.com/pkg/errors"
)

// HostTable locates the library functions native call opcodes invoke.
type HostTable interface {
	Addr(op code.Opcode) (uint32, bool)
}

var binaryOps = map[code.Opcode]x86.Op{
	code.OR:  x86.Or,
	code.XOR: x86.Xor,
	code.AND: x86.And,
	code.SHL: x86.Shl,
	code.SHR: x86.Shr,
	code.ADD: x86.Add,
	code.SUB: x86.Sub,
	code.MUL: x86.Mul,
	code.DIV: x86.Div,
	code.MOD: x86.Mod,
}

var conditions = map[code.Opcode]x86.Cond{
	code.EQ: x86.Equal,
	code.NE: x86.NotEqual,
	code.LT: x86.Less,
	code.GT: x86.Greater,
	code.LE: x86.LessEqual,
	code.GE: x86.GreaterEqual,
}

// fixup is a control transfer whose displacement waits for relocation.
type fixup struct {
	cell   int // The branch instruction.
	target int // The cell it transfers to.
	field  x86.Fixup
}

// Image is the native code generated for an object.
type Image struct {
	Base  uint32
	Addr  []uint32 // Native address of each instruction cell.
	Entry uint32   // Native address of the entry function.

	insn      []bool // Cells that begin an instruction.
	fixups    []fixup
	asm       *x86.Assembler
	relocated bool
}

// Code returns the generated machine code.
func (img *Image) Code() []byte {
	return img.asm.Bytes()
}

// IsInstruction reports whether cell begins an instruction.
func (img *Image) IsInstruction(cell int) bool {
	return cell >= 0 && cell < len(img.insn) && img.insn[cell]
}

// Option configures code generation.
type Option func(*generator)

// Listing writes each cell with its native address to w as it is
// generated, preceded by the source lines that produced it.
func Listing(w io.Writer) Option {
	return func(g *generator) {
		g.listing = w
	}
}

type generator struct {
	obj     *code.Object
	hosts   HostTable
	listing io.Writer
	line    int // Last source line listed.
}

// Generate emits native code for obj into region, which will execute at
// base.  The returned Image still has to be relocated.
func Generate(obj *code.Object, region []byte, base uint32, hosts HostTable, opts ...Option) (*Image, error) {
	g := &generator{obj: obj, hosts: hosts}
	for _, opt := range opts {
		opt(g)
	}
	img := &Image{
		Base: base,
		Addr: make([]uint32, len(obj.Text)),
		insn: make([]bool, len(obj.Text)),
		asm:  x86.New(region, base),
	}
	if err := g.emit(img); err != nil {
		return nil, err
	}
	if !img.IsInstruction(obj.Entry) {
		return nil, errors.Errorf("entry cell %d is not an instruction", obj.Entry)
	}
	img.Entry = img.Addr[obj.Entry]
	glog.V(1).Infof("%s: %d cells became %d bytes of native code at 0x%08x", obj.Name, len(obj.Text), img.asm.Len(), base)
	return img, nil
}

// emit is the first pass.
func (g *generator) emit(img *Image) error {
	text := g.obj.Text
	a := img.asm
	for pc := 0; pc < len(text); {
		cell := pc
		op := code.Opcode(text[pc])
		if !op.Valid() {
			return errors.Errorf("code generation failed for %d at cell %d", text[pc], cell)
		}
		pc++
		operand := 0
		if op.HasOperand() {
			if pc >= len(text) {
				return errors.Errorf("cell %d: %s is missing its operand", cell, op)
			}
			operand = text[pc]
			pc++
		}
		img.Addr[cell] = a.PC()
		img.insn[cell] = true
		g.list(cell, img.Addr[cell], op, operand)
		glog.V(2).Infof("cell %d: %s %d at 0x%08x", cell, op, operand, img.Addr[cell])

		switch op {
		case code.LEA:
			a.LeaLocal(operand)
		case code.IMM:
			a.MovImm(uint32(operand))
		case code.ENT:
			a.Enter(operand)
		case code.ADJ:
			a.AdjustStack(operand)
		case code.PSH:
			a.Push()
		case code.LEV:
			a.Leave()
		case code.LI:
			a.LoadWord()
		case code.LC:
			a.LoadByte()
		case code.SI:
			a.StoreWord()
		case code.SC:
			a.StoreByte()
		case code.JMP, code.JSR, code.BZ, code.BNZ:
			var f x86.Fixup
			switch op {
			case code.JMP:
				_, f = a.Jump()
			case code.JSR:
				_, f = a.Call()
			case code.BZ:
				_, f = a.BranchZero()
			case code.BNZ:
				_, f = a.BranchNonZero()
			}
			img.fixups = append(img.fixups, fixup{cell: cell, target: operand, field: f})
		default:
			switch {
			case op.IsNative():
				// The argument count comes from the ADJ that follows; the
				// call pops the arguments itself.
				if pc+1 >= len(text) || code.Opcode(text[pc]) != code.ADJ {
					return errors.Errorf("cell %d: no ADJ after native proc %s", cell, op)
				}
				n := text[pc+1]
				pc += 2
				target, ok := g.hosts.Addr(op)
				if !ok {
					return errors.Errorf("cell %d: no host function for %s", cell, op)
				}
				a.CallNative(n, target)
			case op.IsComparison():
				a.Compare(conditions[op])
			default:
				bop, ok := binaryOps[op]
				if !ok {
					return errors.Errorf("code generation failed for %d at cell %d", int(op), cell)
				}
				a.Binary(bop)
			}
		}
		if err := a.Err(); err != nil {
			return errors.Wrapf(err, "jit: cell %d (%s)", cell, op)
		}
	}
	return nil
}

// list writes one listing line for cell.
func (g *generator) list(cell int, addr uint32, op code.Opcode, operand int) {
	if g.listing == nil {
		return
	}
	g.obj.Listing(g.listing, cell, &g.line)
	if op.HasOperand() {
		fmt.Fprintf(g.listing, "0x%05x (0x%08x):\t%-4s 0x%x\n", cell, addr, op, uint32(operand))
		return
	}
	fmt.Fprintf(g.listing, "0x%05x (0x%08x):\t%s\n", cell, addr, op)
}

// Relocate is the second pass: it points every jump, branch, and call at
// the native address of its target cell.
func (img *Image) Relocate() error {
	if img.relocated {
		return errors.New("image already relocated")
	}
	for _, f := range img.fixups {
		if !img.IsInstruction(f.target) {
			return errors.Errorf("cell %d: branch target %d is not an instruction", f.cell, f.target)
		}
		if err := img.asm.Patch(f.field, img.Addr[f.target]); err != nil {
			return errors.Wrapf(err, "cell %d", f.cell)
		}
	}
	img.relocated = true
	glog.V(1).Infof("relocated %d branches", len(img.fixups))
	return nil
}
