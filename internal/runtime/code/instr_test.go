// Copyright 2018 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package code_test

import (
	"testing"

	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/testutil"
)

func TestInstrString(t *testing.T) {
	testutil.ExpectNoDiff(t, code.Instr{Opcode: code.IMM, Operand: 14, SourceLine: 2}.String(), "{IMM 14 2}")
	testutil.ExpectNoDiff(t, code.Instr{Opcode: code.PSH, SourceLine: 3}.String(), "{PSH 3}")
}

func TestOpcodeClasses(t *testing.T) {
	for op := code.LEA; op <= code.EXIT; op++ {
		if !op.Valid() {
			t.Errorf("%d should be valid", op)
		}
		if op.String() == "BAD" {
			t.Errorf("%d has no name", op)
		}
		if op.IsBranch() && !op.HasOperand() {
			t.Errorf("%s is a branch without an operand", op)
		}
		if op.IsNative() && op.HasOperand() {
			t.Errorf("%s is native and has an operand", op)
		}
	}
	if code.Opcode(-1).Valid() || code.Opcode(1000).Valid() {
		t.Error("out of range opcodes reported valid")
	}
}
