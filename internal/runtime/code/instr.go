// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package code

import "fmt"

// Instr is a decoded view of one instruction in an Object's cells.
type Instr struct {
	Opcode     Opcode
	Operand    int
	SourceLine int // Line number of the original source file, counting from one.
}

// debug print for instructions.
func (i Instr) String() string {
	if i.Opcode.HasOperand() {
		return fmt.Sprintf("{%s %d %d}", i.Opcode, i.Operand, i.SourceLine)
	}
	return fmt.Sprintf("{%s %d}", i.Opcode, i.SourceLine)
}
