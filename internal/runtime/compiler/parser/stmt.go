// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package parser

import "github.com/google/c4jit/internal/runtime/code"

// stmt parses one statement.
func (p *parser) stmt() {
	switch p.Kind {
	case IF:
		p.Next()
		p.condition()
		p.emit(code.BZ)
		b := p.reserve()
		p.stmt()
		if p.Kind == ELSE {
			p.obj.Text[b] = len(p.obj.Text) + 2
			p.emit(code.JMP)
			b = p.reserve()
			p.Next()
			p.stmt()
		}
		p.patch(b)

	case WHILE:
		p.Next()
		top := len(p.obj.Text)
		p.condition()
		p.emit(code.BZ)
		b := p.reserve()
		p.stmt()
		p.emitOperand(code.JMP, top)
		p.patch(b)

	case RETURN:
		p.Next()
		if p.Kind != SEMI {
			p.expr(precAssign)
		}
		p.emit(code.LEV)
		p.expect(SEMI, "semicolon expected")

	case LCURLY:
		p.Next()
		for p.Kind != RCURLY {
			p.stmt()
		}
		p.Next()

	case SEMI:
		p.Next()

	default:
		p.expr(precAssign)
		p.expect(SEMI, "semicolon expected")
	}
}

// condition parses the parenthesized condition of an if or while.
func (p *parser) condition() {
	p.expect(LPAREN, "open paren expected")
	p.expr(precAssign)
	p.expect(RPAREN, "close paren expected")
}
