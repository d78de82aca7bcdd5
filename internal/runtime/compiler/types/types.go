// Copyright 2016 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package types implements the type lattice of the compiler: a base kind of
// char or int, plus a count of pointer indirections folded into one integer.
package types

import "strings"

// Type is a base kind with Ptr added once per level of indirection.
type Type int

const (
	Char Type = 0
	Int  Type = 1
	Ptr  Type = 2 // Added once per level of indirection.
)

// WordSize is the size in bytes of an int and of a pointer on the target.
const WordSize = 4

// PointerTo returns the type of a pointer to t.
func PointerTo(t Type) Type {
	return t + Ptr
}

// IsPointer reports whether t has at least one level of indirection.
func IsPointer(t Type) bool {
	return t >= Ptr
}

// Elem returns the type t points to.  ok is false if t is not a pointer.
func Elem(t Type) (elem Type, ok bool) {
	if !IsPointer(t) {
		return t, false
	}
	return t - Ptr, true
}

// WordScaled reports whether pointer arithmetic on t moves in whole words.
// This is true for int* and every multi-level pointer; char* moves in bytes.
func WordScaled(t Type) bool {
	return t > Ptr
}

// Stride returns the number of bytes an offset of one moves a value of type
// t, as used by ++, --, +, - and indexing.
func Stride(t Type) int {
	if WordScaled(t) {
		return WordSize
	}
	return 1
}

// Base returns the base kind of t with all indirections removed.
func Base(t Type) Type {
	return t % Ptr
}

// Depth returns the number of indirections in t.
func Depth(t Type) int {
	return int(t / Ptr)
}

func (t Type) String() string {
	var b strings.Builder
	if Base(t) == Char {
		b.WriteString("char")
	} else {
		b.WriteString("int")
	}
	for i := 0; i < Depth(t); i++ {
		b.WriteByte('*')
	}
	return b.String()
}
