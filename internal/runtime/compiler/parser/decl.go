// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package parser

import (
	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/compiler/symbol"
	"github.com/google/c4jit/internal/runtime/compiler/types"
)

// program parses the top level declarations until the end of input.
func (p *parser) program() {
	p.Next()
	for p.Kind != EOF {
		bt := types.Int
		switch p.Kind {
		case INT:
			p.Next()
		case CHAR:
			p.Next()
			bt = types.Char
		case ENUM:
			p.enum()
		}
		for p.Kind != SEMI && p.Kind != RCURLY {
			ty := p.pointers(bt)
			if p.Kind != IDENT {
				p.errorf("bad global declaration")
			}
			sym := p.Sym
			if sym.Class != symbol.None {
				p.errorf("duplicate global definition")
			}
			p.Next()
			sym.Type = ty
			if p.Kind == LPAREN {
				p.function(sym)
			} else {
				sym.Class = symbol.Glo
				sym.Value = int(p.obj.DataBase) + len(p.obj.Data)
				p.obj.Data = append(p.obj.Data, make([]byte, types.WordSize)...)
			}
			if p.Kind == COMMA {
				p.Next()
			}
		}
		p.Next()
	}
}

// pointers consumes leading '*' tokens, adding a level of indirection to t for each.
func (p *parser) pointers(t types.Type) types.Type {
	for p.Kind == MUL {
		p.Next()
		t = types.PointerTo(t)
	}
	return t
}

// baseType consumes an optional int or char keyword.
func (p *parser) baseType() types.Type {
	switch p.Kind {
	case INT:
		p.Next()
	case CHAR:
		p.Next()
		return types.Char
	}
	return types.Int
}

// enum parses an optionally named enum body, binding each member as an int
// constant.  Members count up from zero or from an explicit initializer.
func (p *parser) enum() {
	p.Next()
	if p.Kind != LCURLY {
		p.Next()
	}
	if p.Kind != LCURLY {
		return
	}
	p.Next()
	i := 0
	for p.Kind != RCURLY {
		if p.Kind != IDENT {
			p.errorf("bad enum identifier %s", p.Kind)
		}
		sym := p.Sym
		p.Next()
		if p.Kind == ASSIGN {
			p.Next()
			if p.Kind != NUM {
				p.errorf("bad enum initializer")
			}
			i = p.Value
			p.Next()
		}
		sym.Class, sym.Type, sym.Value = symbol.Num, types.Int, i
		i++
		if p.Kind == COMMA {
			p.Next()
		}
	}
	p.Next()
}

// function parses a parameter list and body.  Parameters take frame slots
// counting up from zero, and locals continue the sequence after a gap for
// the saved frame pointer and return address.  On return the current token
// is the closing brace.
func (p *parser) function(sym *symbol.Symbol) {
	sym.Class = symbol.Fun
	sym.Value = len(p.obj.Text)
	p.Next()
	i := 0
	for p.Kind != RPAREN {
		ty := p.pointers(p.baseType())
		if p.Kind != IDENT {
			p.errorf("bad parameter declaration")
		}
		if err := p.scope.Declare(p.Sym, ty, i); err != nil {
			p.errorf("duplicate parameter definition")
		}
		i++
		p.Next()
		if p.Kind == COMMA {
			p.Next()
		}
	}
	p.Next()
	if p.Kind != LCURLY {
		p.errorf("bad function definition")
	}
	i++
	p.loc = i
	p.Next()
	for p.Kind == INT || p.Kind == CHAR {
		bt := p.baseType()
		for p.Kind != SEMI {
			ty := p.pointers(bt)
			if p.Kind != IDENT {
				p.errorf("bad local declaration")
			}
			i++
			if err := p.scope.Declare(p.Sym, ty, i); err != nil {
				p.errorf("duplicate local definition")
			}
			p.Next()
			if p.Kind == COMMA {
				p.Next()
			}
		}
		p.Next()
	}
	p.emitOperand(code.ENT, i-p.loc)
	for p.Kind != RCURLY {
		p.stmt()
	}
	p.emit(code.LEV)
	p.scope.Close()
}
