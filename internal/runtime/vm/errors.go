// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package vm

import "fmt"

// Fault is a machine exception: an access outside mapped memory, an
// undecodable instruction, or a division error.
type Fault struct {
	Reason string
	Addr   uint32 // Faulting data address, or the instruction address.
	EIP    uint32 // Address of the instruction that faulted.
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at 0x%08x (eip 0x%08x)", f.Reason, f.Addr, f.EIP)
}

// Exit is returned when the program calls exit.
type Exit struct {
	Code int
}

func (e *Exit) Error() string {
	return fmt.Sprintf("exit(%d)", e.Code)
}
