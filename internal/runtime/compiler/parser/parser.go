// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package parser lexes and parses program source, emitting stack machine
// bytecode as a side effect of parsing.  There is no syntax tree: the
// parser resolves symbols and computes the type of every expression as it
// goes, and its output is the code generator's input.
package parser

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/compiler/errors"
	"github.com/google/c4jit/internal/runtime/compiler/position"
	"github.com/google/c4jit/internal/runtime/compiler/symbol"
	"github.com/google/c4jit/internal/runtime/compiler/types"
)

// keywordOrder lists the reserved words in the order they are entered into
// a new symbol table.
var keywordOrder = []string{"char", "else", "enum", "if", "int", "return", "while"}

// LibraryCalls lists the host functions a program may call by name.
var LibraryCalls = []struct {
	Name   string
	Opcode code.Opcode
}{
	{"open", code.OPEN},
	{"read", code.READ},
	{"close", code.CLOS},
	{"printf", code.PRTF},
	{"malloc", code.MALC},
	{"memset", code.MSET},
	{"memcmp", code.MCMP},
	{"exit", code.EXIT},
}

// EntryName is the function execution starts in.
const EntryName = "main"

// NewSymbolTable returns a symbol table holding the keywords and library calls.
func NewSymbolTable() *symbol.Table {
	t := symbol.NewTable()
	for _, k := range keywordOrder {
		t.Intern(k).Keyword = int(Keywords[k])
	}
	for _, lc := range LibraryCalls {
		s := t.Intern(lc.Name)
		s.Class, s.Type, s.Value = symbol.Sys, types.Int, int(lc.Opcode)
	}
	return t
}

// bailout is panicked by errorf and recovered by Parse; compilation stops
// at the first error.
type bailout struct{}

type parser struct {
	*Lexer

	name string
	obj  *code.Object
	syms *symbol.Table

	ops []int // Cell indices that hold opcodes, in emission order.

	typ   types.Type   // Type of the expression most recently parsed.
	scope symbol.Scope // Parameters and locals of the function being parsed.
	loc   int          // Frame slot number of the first local of that function.

	errors errors.ErrorList
}

// Parse compiles the program source into an Object whose data pool will be
// loaded at dataBase.
func Parse(name string, src []byte, dataBase uint32) (obj *code.Object, err error) {
	obj = &code.Object{Name: name, Source: src, DataBase: dataBase}
	syms := NewSymbolTable()
	entry := syms.Intern(EntryName)
	p := &parser{
		Lexer: NewLexer(name, obj, syms),
		name:  name,
		obj:   obj,
		syms:  syms,
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			obj, err = nil, p.errors
		}
	}()
	p.program()
	p.Flush()
	if entry.Class != symbol.Fun {
		p.errorf("%s() not defined", EntryName)
	}
	obj.Entry = entry.Value
	glog.V(1).Infof("%s: %d cells, %d data bytes, %d symbols", name, len(obj.Text), len(obj.Data), syms.Len())
	return obj, nil
}

func (p *parser) errorf(format string, args ...interface{}) {
	pos := position.Position{Filename: p.name, Line: p.Line()}
	p.errors.Add(&pos, fmt.Sprintf(format, args...))
	panic(bailout{})
}

// expect consumes a token of kind k, or fails with msg.
func (p *parser) expect(k Kind, msg string) {
	if p.Kind != k {
		p.errorf("%s", msg)
	}
	p.Next()
}

func (p *parser) emit(op code.Opcode) {
	glog.V(2).Infof("emitting `%s' at cell %d from line %d", op, len(p.obj.Text), p.Line())
	p.ops = append(p.ops, len(p.obj.Text))
	p.obj.Text = append(p.obj.Text, int(op))
}

func (p *parser) emitOperand(op code.Opcode, operand int) {
	p.emit(op)
	p.obj.Text = append(p.obj.Text, operand)
}

// reserve emits a placeholder operand cell and returns its index for
// backpatching.
func (p *parser) reserve() int {
	p.obj.Text = append(p.obj.Text, 0)
	return len(p.obj.Text) - 1
}

// patch points the placeholder at cell to the next cell to be emitted.
func (p *parser) patch(cell int) {
	p.obj.Text[cell] = len(p.obj.Text)
}

// lastLoad reports whether the last cell emitted is a memory load opcode,
// and which one.
func (p *parser) lastLoad() (code.Opcode, bool) {
	n := len(p.obj.Text) - 1
	if len(p.ops) == 0 || p.ops[len(p.ops)-1] != n {
		return 0, false
	}
	op := code.Opcode(p.obj.Text[n])
	return op, op == code.LC || op == code.LI
}

// replaceLast overwrites the last opcode cell.
func (p *parser) replaceLast(op code.Opcode) {
	p.obj.Text[len(p.obj.Text)-1] = int(op)
}

// dropLast removes the last opcode cell.
func (p *parser) dropLast() {
	p.obj.Text = p.obj.Text[:len(p.obj.Text)-1]
	p.ops = p.ops[:len(p.ops)-1]
	if p.mapped > len(p.obj.Text) {
		p.mapped = len(p.obj.Text)
		p.obj.SrcMap = p.obj.SrcMap[:p.mapped]
	}
}

// load returns the opcode that loads a value of type t through the accumulator.
func load(t types.Type) code.Opcode {
	if t == types.Char {
		return code.LC
	}
	return code.LI
}

// store returns the opcode that stores a value of type t.
func store(t types.Type) code.Opcode {
	if t == types.Char {
		return code.SC
	}
	return code.SI
}

// alignData pads the data pool to the next word boundary, always adding at
// least one byte so the string just scanned is terminated.
func (p *parser) alignData() {
	n := (len(p.obj.Data) + types.WordSize) &^ (types.WordSize - 1)
	for len(p.obj.Data) < n {
		p.obj.Data = append(p.obj.Data, 0)
	}
}
