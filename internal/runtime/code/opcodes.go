// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package code contains the bytecode instructions produced by the parser and
// consumed by the native code generator.
package code

// Opcode is one stack machine operation.  The machine has a single
// accumulator and an operand stack; binary operations pop their left operand
// from the stack and take their right operand from the accumulator.
type Opcode int

const (
	LEA Opcode = iota // Load the address of the frame slot at operand into the accumulator.
	IMM               // Load the operand into the accumulator.
	JMP               // Jump to the cell at operand.
	JSR               // Call the function whose first cell is at operand.
	BZ                // Branch to operand if the accumulator is zero.
	BNZ               // Branch to operand if the accumulator is non-zero.
	ENT               // Enter a function, reserving operand local slots.
	ADJ               // Drop operand argument words from the stack.
	LEV               // Leave the current function.
	LI                // Load the int the accumulator points to.
	LC                // Load the char the accumulator points to.
	SI                // Pop an address and store the accumulator there as an int.
	SC                // Pop an address and store the accumulator there as a char.
	PSH               // Push the accumulator.

	OR
	XOR
	AND
	EQ
	NE
	LT
	GT
	LE
	GE
	SHL
	SHR
	ADD
	SUB
	MUL
	DIV
	MOD

	// Library calls into the host; each is followed by an ADJ cell carrying
	// the argument count.
	OPEN
	READ
	CLOS
	PRTF
	MALC
	MSET
	MCMP
	EXIT

	lastOpcode
)

var opNames = map[Opcode]string{
	LEA:  "LEA",
	IMM:  "IMM",
	JMP:  "JMP",
	JSR:  "JSR",
	BZ:   "BZ",
	BNZ:  "BNZ",
	ENT:  "ENT",
	ADJ:  "ADJ",
	LEV:  "LEV",
	LI:   "LI",
	LC:   "LC",
	SI:   "SI",
	SC:   "SC",
	PSH:  "PSH",
	OR:   "OR",
	XOR:  "XOR",
	AND:  "AND",
	EQ:   "EQ",
	NE:   "NE",
	LT:   "LT",
	GT:   "GT",
	LE:   "LE",
	GE:   "GE",
	SHL:  "SHL",
	SHR:  "SHR",
	ADD:  "ADD",
	SUB:  "SUB",
	MUL:  "MUL",
	DIV:  "DIV",
	MOD:  "MOD",
	OPEN: "OPEN",
	READ: "READ",
	CLOS: "CLOS",
	PRTF: "PRTF",
	MALC: "MALC",
	MSET: "MSET",
	MCMP: "MCMP",
	EXIT: "EXIT",
}

func (o Opcode) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "BAD"
}

// Valid reports whether o is a defined opcode.
func (o Opcode) Valid() bool {
	return o >= LEA && o < lastOpcode
}

// HasOperand reports whether o occupies two cells, the second holding an
// immediate operand.
func (o Opcode) HasOperand() bool {
	return o >= LEA && o <= ADJ
}

// IsBranch reports whether the operand of o is the cell index of a control
// transfer target.
func (o Opcode) IsBranch() bool {
	return o == JMP || o == JSR || o == BZ || o == BNZ
}

// IsNative reports whether o is a call into a host library function.
func (o Opcode) IsNative() bool {
	return o >= OPEN && o <= EXIT
}

// IsComparison reports whether o produces a 0/1 result from comparing two ints.
func (o Opcode) IsComparison() bool {
	return o >= EQ && o <= GE
}
