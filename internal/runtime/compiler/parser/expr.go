// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package parser

import (
	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/compiler/symbol"
	"github.com/google/c4jit/internal/runtime/compiler/types"
)

// binaryOps are the operators that push the left operand, evaluate the right
// operand one precedence level tighter, and combine the two with one opcode.
var binaryOps = map[Kind]code.Opcode{
	OR:  code.OR,
	XOR: code.XOR,
	AND: code.AND,
	EQ:  code.EQ,
	NE:  code.NE,
	LT:  code.LT,
	GT:  code.GT,
	LE:  code.LE,
	GE:  code.GE,
	SHL: code.SHL,
	SHR: code.SHR,
	MUL: code.MUL,
	DIV: code.DIV,
	MOD: code.MOD,
}

// expr parses an expression whose operators bind at least as tightly as
// lev, emitting code that leaves its value in the accumulator and setting
// p.typ to its type.
func (p *parser) expr(lev int) {
	p.unary()

	// Precedence climbing.
	for p.Kind.Precedence() >= lev {
		t := p.typ
		switch k := p.Kind; k {
		case ASSIGN:
			p.Next()
			if _, ok := p.lastLoad(); !ok {
				p.errorf("bad lvalue in assignment")
			}
			p.replaceLast(code.PSH)
			p.expr(precAssign)
			p.typ = t
			p.emit(store(t))

		case COND:
			p.Next()
			p.emit(code.BZ)
			d := p.reserve()
			p.expr(precAssign)
			p.expect(COLON, "conditional missing colon")
			p.obj.Text[d] = len(p.obj.Text) + 2
			p.emit(code.JMP)
			d = p.reserve()
			p.expr(precCond)
			p.patch(d)

		case LOR, LAND:
			p.Next()
			if k == LOR {
				p.emit(code.BNZ)
			} else {
				p.emit(code.BZ)
			}
			d := p.reserve()
			p.expr(k.Precedence() + 1)
			p.patch(d)
			p.typ = types.Int

		case ADD, SUB:
			p.Next()
			p.emit(code.PSH)
			p.expr(precMultiplicative)
			p.typ = t
			if types.WordScaled(t) {
				p.scale()
			}
			if k == ADD {
				p.emit(code.ADD)
			} else {
				p.emit(code.SUB)
			}

		case INC, DEC:
			op, ok := p.lastLoad()
			if !ok {
				p.errorf("bad lvalue in post-increment")
			}
			p.replaceLast(code.PSH)
			p.emit(op)
			step, undo := code.ADD, code.SUB
			if k == DEC {
				step, undo = undo, step
			}
			p.emit(code.PSH)
			p.emitOperand(code.IMM, types.Stride(t))
			p.emit(step)
			p.emit(store(t))
			p.emit(code.PSH)
			p.emitOperand(code.IMM, types.Stride(t))
			p.emit(undo)
			p.Next()

		case BRAK:
			p.Next()
			p.emit(code.PSH)
			p.expr(precAssign)
			p.expect(RSQUARE, "close bracket expected")
			if types.WordScaled(t) {
				p.scale()
			} else if !types.IsPointer(t) {
				p.errorf("pointer type expected")
			}
			p.emit(code.ADD)
			p.typ, _ = types.Elem(t)
			p.emit(load(p.typ))

		default:
			op, ok := binaryOps[k]
			if !ok {
				p.errorf("compiler error tk=%s", k)
			}
			p.Next()
			p.emit(code.PSH)
			p.expr(k.Precedence() + 1)
			p.emit(op)
			p.typ = types.Int
		}
	}
}

// scale multiplies the accumulator by the word size.
func (p *parser) scale() {
	p.emit(code.PSH)
	p.emitOperand(code.IMM, types.WordSize)
	p.emit(code.MUL)
}

// unary parses one primary or prefix unary production.
func (p *parser) unary() {
	switch p.Kind {
	case EOF:
		p.errorf("unexpected eof in expression")

	case NUM:
		p.emitOperand(code.IMM, p.Value)
		p.Next()
		p.typ = types.Int

	case STR:
		p.emitOperand(code.IMM, p.Value)
		p.Next()
		for p.Kind == STR {
			p.Next()
		}
		p.alignData()
		p.typ = types.PointerTo(types.Char)

	case IDENT:
		p.identifier()

	case LPAREN:
		p.Next()
		if p.Kind == INT || p.Kind == CHAR {
			t := types.Int
			if p.Kind == CHAR {
				t = types.Char
			}
			p.Next()
			for p.Kind == MUL {
				p.Next()
				t = types.PointerTo(t)
			}
			p.expect(RPAREN, "bad cast")
			p.expr(precPostfix)
			p.typ = t
			return
		}
		p.expr(precAssign)
		p.expect(RPAREN, "close paren expected")

	case MUL:
		p.Next()
		p.expr(precPostfix)
		t, ok := types.Elem(p.typ)
		if !ok {
			p.errorf("bad dereference")
		}
		p.typ = t
		p.emit(load(t))

	case AND:
		p.Next()
		p.expr(precPostfix)
		if _, ok := p.lastLoad(); !ok {
			p.errorf("bad address-of")
		}
		p.dropLast()
		p.typ = types.PointerTo(p.typ)

	case NOT:
		p.Next()
		p.expr(precPostfix)
		p.emit(code.PSH)
		p.emitOperand(code.IMM, 0)
		p.emit(code.EQ)
		p.typ = types.Int

	case TILDE:
		p.Next()
		p.expr(precPostfix)
		p.emit(code.PSH)
		p.emitOperand(code.IMM, -1)
		p.emit(code.XOR)
		p.typ = types.Int

	case ADD:
		p.Next()
		p.expr(precPostfix)
		p.typ = types.Int

	case SUB:
		p.Next()
		if p.Kind == NUM {
			p.emitOperand(code.IMM, -p.Value)
			p.Next()
		} else {
			p.emitOperand(code.IMM, -1)
			p.emit(code.PSH)
			p.expr(precPostfix)
			p.emit(code.MUL)
		}
		p.typ = types.Int

	case INC, DEC:
		step := code.ADD
		if p.Kind == DEC {
			step = code.SUB
		}
		p.Next()
		p.expr(precPostfix)
		op, ok := p.lastLoad()
		if !ok {
			p.errorf("bad lvalue in pre-increment")
		}
		p.replaceLast(code.PSH)
		p.emit(op)
		p.emit(code.PSH)
		p.emitOperand(code.IMM, types.Stride(p.typ))
		p.emit(step)
		p.emit(store(p.typ))

	default:
		p.errorf("bad expression")
	}
}

// identifier parses a function call or a variable or constant reference.
func (p *parser) identifier() {
	d := p.Sym
	p.Next()
	if p.Kind == LPAREN {
		p.Next()
		n := 0
		for p.Kind != RPAREN {
			p.expr(precAssign)
			p.emit(code.PSH)
			n++
			if p.Kind == COMMA {
				p.Next()
			}
		}
		p.Next()
		switch d.Class {
		case symbol.Sys:
			p.emit(code.Opcode(d.Value))
			p.emitOperand(code.ADJ, n)
		case symbol.Fun:
			p.emitOperand(code.JSR, d.Value)
			if n > 0 {
				p.emitOperand(code.ADJ, n)
			}
		default:
			p.errorf("bad function call")
		}
		p.typ = d.Type
		return
	}
	switch d.Class {
	case symbol.Num:
		p.emitOperand(code.IMM, d.Value)
		p.typ = types.Int
		return
	case symbol.Loc:
		p.emitOperand(code.LEA, p.loc-d.Value)
	case symbol.Glo:
		p.emitOperand(code.IMM, d.Value)
	default:
		p.errorf("undefined variable")
	}
	p.typ = d.Type
	p.emit(load(p.typ))
}
