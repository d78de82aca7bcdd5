// Copyright 2016 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package position implements a data structure for storing source code positions.
package position

import "fmt"

// A Position is the location in the source program that a token appears.  The
// compiler is line-oriented, so a position names a source file and a line.
type Position struct {
	Filename string // Source filename in which this token appears.
	Line     int    // Line in the source for this token, counting from one.
}

// String formats a position to be useful for printing messages associated with
// this position, e.g. compiler errors.
func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.Filename, p.Line)
}
