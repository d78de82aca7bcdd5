// Copyright 2017 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package code

import (
	"fmt"
	"io"
	"strings"
)

// Object is the data and bytecode resulting from compiled program source.
type Object struct {
	Name string // Name of the program, usually the source file's base name.

	Text   []int // The bytecode cells.
	SrcMap []int // Source line that produced each cell, parallel to Text.

	Source  []byte // The program source image.
	LineMap []int  // Offset in Source of the start of each line; index 0 is unused.

	Data     []byte // Initial image of the data pool: string literals and globals.
	DataBase uint32 // Address the data pool is loaded at; data addresses in Text are absolute.

	Entry int // Cell index of the entry function's first instruction.
}

// Instrs decodes the cells into a list of instructions.
func (o *Object) Instrs() []Instr {
	var r []Instr
	for pc := 0; pc < len(o.Text); {
		i := Instr{Opcode: Opcode(o.Text[pc]), SourceLine: o.lineOf(pc)}
		pc++
		if i.Opcode.HasOperand() && pc < len(o.Text) {
			i.Operand = o.Text[pc]
			pc++
		}
		r = append(r, i)
	}
	return r
}

func (o *Object) lineOf(cell int) int {
	if cell < len(o.SrcMap) {
		return o.SrcMap[cell]
	}
	return 0
}

// SourceLine returns the text of line l, without its trailing newline.
func (o *Object) SourceLine(l int) string {
	if l <= 0 || l >= len(o.LineMap) {
		return ""
	}
	start := o.LineMap[l]
	end := len(o.Source)
	if l+1 < len(o.LineMap) {
		end = o.LineMap[l+1]
	}
	if start > end || end > len(o.Source) {
		return ""
	}
	return strings.TrimRight(string(o.Source[start:end]), "\n")
}

// Listing writes the source lines that precede cell, starting after line
// *last, and advances *last.  It is shared by the bytecode dump and the
// native code listing so both interleave source the same way.
func (o *Object) Listing(w io.Writer, cell int, last *int) {
	for *last < o.lineOf(cell) {
		*last++
		fmt.Fprintf(w, "% 4d | %s\n", *last, o.SourceLine(*last))
	}
}

// Disassemble writes a human readable dump of the bytecode with the source
// lines that produced it interleaved.
func (o *Object) Disassemble(w io.Writer) {
	line := 0
	for pc := 0; pc < len(o.Text); {
		o.Listing(w, pc, &line)
		op := Opcode(o.Text[pc])
		if op.HasOperand() && pc+1 < len(o.Text) {
			fmt.Fprintf(w, "0x%05x:\t%-4s 0x%x\n", pc, op, uint32(o.Text[pc+1]))
			pc += 2
			continue
		}
		fmt.Fprintf(w, "0x%05x:\t%s\n", pc, op)
		pc++
	}
}
