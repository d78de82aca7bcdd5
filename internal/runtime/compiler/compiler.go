// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package compiler turns program source into bytecode and a data pool image.
package compiler

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/compiler/parser"
	"github.com/google/c4jit/internal/runtime/compiler/types"
	"github.com/pkg/errors"
)

// DefaultPoolSize bounds the source image, the bytecode, and the data pool.
const DefaultPoolSize = 256 * 1024

// Compiler compiles programs.
type Compiler struct {
	emitBytecode bool
	dataBase     uint32
	poolSize     int
}

// Option configures a new Compiler.
type Option func(*Compiler) error

// EmitBytecode dumps the bytecode of each compiled program to the INFO log.
func EmitBytecode() Option {
	return func(c *Compiler) error {
		c.emitBytecode = true
		return nil
	}
}

// DataBase sets the address the data pool will be loaded at.  Global
// variable and string literal addresses in the bytecode are absolute.
func DataBase(addr uint32) Option {
	return func(c *Compiler) error {
		c.dataBase = addr
		return nil
	}
}

// PoolSize sets the size in bytes of the source, bytecode, and data areas.
func PoolSize(n int) Option {
	return func(c *Compiler) error {
		if n <= 0 {
			return errors.Errorf("pool size must be positive, got %d", n)
		}
		c.poolSize = n
		return nil
	}
}

// New creates a new Compiler.
func New(options ...Option) (*Compiler, error) {
	c := &Compiler{poolSize: DefaultPoolSize}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Compile compiles a program from the input into bytecode and data stored in
// an Object, or returns the first compile error.
func (c *Compiler) Compile(name string, input io.Reader) (*code.Object, error) {
	name = filepath.Base(name)
	src, err := io.ReadAll(io.LimitReader(input, int64(c.poolSize)))
	if err != nil {
		return nil, errors.Wrapf(err, "read of %q failed", name)
	}
	if len(src) >= c.poolSize {
		return nil, errors.Errorf("%s: source exceeds the %d byte source area", name, c.poolSize-1)
	}

	obj, err := parser.Parse(name, src, c.dataBase)
	if err != nil {
		return nil, err
	}
	if len(obj.Text)*types.WordSize > c.poolSize {
		return nil, errors.Errorf("%s: %d cells exceed the %d byte text area", name, len(obj.Text), c.poolSize)
	}
	if len(obj.Data) > c.poolSize {
		return nil, errors.Errorf("%s: %d bytes exceed the %d byte data area", name, len(obj.Data), c.poolSize)
	}
	if c.emitBytecode {
		var b strings.Builder
		obj.Disassemble(&b)
		glog.Infof("%s bytecode:\n%s", name, b.String())
	}
	return obj, nil
}
