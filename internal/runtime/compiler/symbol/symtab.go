// Copyright 2016 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package symbol implements the compiler's symbol table: one flat,
// append-only record per distinct identifier, and the per-function scope
// that lets parameters and locals shadow globals of the same name.
package symbol

import (
	"bytes"
	"fmt"

	"github.com/golang/glog"
	"github.com/google/c4jit/internal/runtime/compiler/types"
	"github.com/pkg/errors"
)

// Class describes what an identifier is currently bound to.
type Class int

const (
	None Class = iota // Seen by the lexer, never declared.
	Num               // A constant, e.g. an enum member.  Value is the constant.
	Fun               // A function.  Value is the cell index of its first instruction.
	Sys               // A host library call.  Value is its opcode.
	Glo               // A global variable.  Value is its absolute data address.
	Loc               // A parameter or local.  Value is its frame slot number.
)

var classNames = map[Class]string{
	None: "none",
	Num:  "num",
	Fun:  "fun",
	Sys:  "sys",
	Glo:  "glo",
	Loc:  "loc",
}

func (c Class) String() string {
	return classNames[c]
}

// Symbol is one entry in the symbol table.
type Symbol struct {
	Hash    uint32 // Lexical hash of Name.
	Name    string
	Keyword int // Nonzero if Name is reserved; the token kind it lexes as.

	Class Class
	Type  types.Type
	Value int
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s(%s %s %d)", s.Name, s.Class, s.Type, s.Value)
}

// Hash computes the rolling identifier hash the lexer computes while
// scanning: each character after the first is folded in with a multiplier
// of 147, then the length is mixed in.
func Hash(name []byte) uint32 {
	if len(name) == 0 {
		return 0
	}
	h := uint32(name[0])
	for _, c := range name[1:] {
		h = h*147 + uint32(c)
	}
	return h<<6 + uint32(len(name))
}

// Table is the flat symbol table.  Entries are created on first sighting
// and never removed.
type Table struct {
	syms []*Symbol
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	return &Table{}
}

// Lookup finds the entry for name, whose hash the caller has already
// computed, appending a new unclassified entry if there is none.  The scan
// is linear; hashes are compared first and names only on a hash match.
func (t *Table) Lookup(hash uint32, name []byte) *Symbol {
	for _, s := range t.syms {
		if s.Hash == hash && bytes.Equal([]byte(s.Name), name) {
			return s
		}
	}
	s := &Symbol{Hash: hash, Name: string(name)}
	t.syms = append(t.syms, s)
	glog.V(2).Infof("new symbol %q hash %#x", s.Name, hash)
	return s
}

// Intern is Lookup for callers that have not hashed the name.
func (t *Table) Intern(name string) *Symbol {
	return t.Lookup(Hash([]byte(name)), []byte(name))
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.syms)
}

// Symbols returns the entries in order of first sighting.
func (t *Table) Symbols() []*Symbol {
	return t.syms
}

// ErrDuplicate is returned when a name is declared twice in one scope.
var ErrDuplicate = errors.New("duplicate definition")

type binding struct {
	sym   *Symbol
	class Class
	typ   types.Type
	value int
}

// Scope records the bindings shadowed by one function's parameters and
// locals so that closing the function restores them.  The symbol table
// itself always holds the single active binding of each name.
type Scope struct {
	saved []binding
}

// Declare binds sym as a local of type typ in frame slot value, saving the
// binding it shadows.
func (s *Scope) Declare(sym *Symbol, typ types.Type, value int) error {
	if sym.Class == Loc {
		return errors.Wrapf(ErrDuplicate, "%s", sym.Name)
	}
	s.saved = append(s.saved, binding{sym, sym.Class, sym.Type, sym.Value})
	sym.Class, sym.Type, sym.Value = Loc, typ, value
	return nil
}

// Len returns the number of names the scope has declared.
func (s *Scope) Len() int {
	return len(s.saved)
}

// Close restores every shadowed binding, most recent first, and empties the scope.
func (s *Scope) Close() {
	for i := len(s.saved) - 1; i >= 0; i-- {
		b := s.saved[i]
		b.sym.Class, b.sym.Type, b.sym.Value = b.class, b.typ, b.value
	}
	s.saved = s.saved[:0]
}
