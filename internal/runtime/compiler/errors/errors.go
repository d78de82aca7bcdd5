// Copyright 2015 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package errors holds the positioned diagnostics produced by the compiler.
package errors

import (
	"fmt"
	"strings"

	"github.com/google/c4jit/internal/runtime/compiler/position"
	"github.com/pkg/errors"
)

type compileError struct {
	pos position.Position
	msg string
}

func (e compileError) Error() string {
	return e.pos.String() + ": " + e.msg
}

// ErrorList contains a list of compile errors.
type ErrorList []*compileError

// Add appends an error at a position to the list of errors.
func (p *ErrorList) Add(pos *position.Position, msg string) {
	if pos == nil {
		pos = &position.Position{}
	}
	*p = append(*p, &compileError{*pos, msg})
}

// Append puts an ErrorList on the end of this ErrorList.
func (p *ErrorList) Append(l ErrorList) {
	*p = append(*p, l...)
}

// Line returns the source line of the first error, or zero if there is none.
func (p ErrorList) Line() int {
	if len(p) == 0 {
		return 0
	}
	return p[0].pos.Line
}

// ErrorList implements the error interface.
func (p ErrorList) Error() string {
	switch len(p) {
	case 0:
		return "no errors"
	case 1:
		return p[0].Error()
	}
	var r strings.Builder
	for i, e := range p {
		if i > 0 {
			r.WriteString("\n")
		}
		fmt.Fprintf(&r, "%s", e)
	}
	return r.String()
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
