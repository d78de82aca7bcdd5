// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package vm

// The 32-bit address space compiled programs run in.
const (
	CodeBase uint32 = 0x08000000 // Generated code.
	DataBase uint32 = 0x10000000 // String literals and globals.
	HeapBase uint32 = 0x20000000 // The malloc arena.

	StackTop  uint32 = 0xc0000000
	StackSize        = 1 << 20

	// Host functions are bound to trap addresses at TrapBase + TrapSize*i.
	TrapBase uint32 = 0xffff0000
	TrapSize uint32 = 16

	// HaltAddr is the return address of the entry call.  Returning to it
	// stops the machine.
	HaltAddr uint32 = 0xfffffff0
)

// TrapAddr returns the trap address of host function i.
func TrapAddr(i int) uint32 {
	return TrapBase + TrapSize*uint32(i)
}
