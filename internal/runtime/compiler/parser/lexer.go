// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package parser

import (
	"github.com/golang/glog"
	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/compiler/position"
	"github.com/google/c4jit/internal/runtime/compiler/symbol"
)

// A Lexer holds the state of the scanner.  It shares the object under
// construction with the parser: identifiers are interned into the symbol
// table, string literals are appended to the data pool, and each newline
// attributes the cells emitted since the previous one to the line just
// ended.
type Lexer struct {
	name string
	src  []byte
	pos  int // Read position in src.
	line int // Line of the read position, counting from one.

	syms *symbol.Table
	obj  *code.Object

	mapped int // Cells of obj.Text already attributed to a line.

	Token // The current token.
}

// NewLexer creates a scanner over the source held by obj.
func NewLexer(name string, obj *code.Object, syms *symbol.Table) *Lexer {
	obj.LineMap = append(obj.LineMap[:0], 0, 0)
	return &Lexer{
		name: name,
		src:  obj.Source,
		line: 1,
		syms: syms,
		obj:  obj,
	}
}

// Line returns the line of the read position.
func (l *Lexer) Line() int {
	return l.line
}

func (l *Lexer) peek() byte {
	if l.pos < len(l.src) {
		return l.src[l.pos]
	}
	return 0
}

// accept consumes the next character if it is c.
func (l *Lexer) accept(c byte) bool {
	if l.peek() == c {
		l.pos++
		return true
	}
	return false
}

// Flush attributes every cell emitted since the last newline to the
// current line.
func (l *Lexer) Flush() {
	for l.mapped < len(l.obj.Text) {
		l.obj.SrcMap = append(l.obj.SrcMap, l.line)
		l.mapped++
	}
}

func (l *Lexer) newline() {
	l.Flush()
	l.line++
	l.obj.LineMap = append(l.obj.LineMap, l.pos)
}

func (l *Lexer) skipLine() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// emit sets the current token.
func (l *Lexer) emit(kind Kind) {
	l.Kind = kind
	l.Pos = position.Position{Filename: l.name, Line: l.line}
	glog.V(2).Infof("Emitting %v", l.Token)
}

// Next advances past exactly one token.  At the end of input the current
// token is EOF.
func (l *Lexer) Next() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		switch {
		case c == '\n':
			l.newline()
		case c == '#':
			l.skipLine()
		case isAlpha(c):
			l.lexIdent()
			return
		case isDigit(c):
			v := int(c - '0')
			for isDigit(l.peek()) {
				v = v*10 + int(l.src[l.pos]-'0')
				l.pos++
			}
			l.Value = v
			l.emit(NUM)
			return
		case c == '/':
			if l.accept('/') {
				l.skipLine()
				continue
			}
			l.emit(DIV)
			return
		case c == '\'' || c == '"':
			l.lexQuoted(c)
			return
		default:
			if k, ok := l.lexOperator(c); ok {
				l.emit(k)
				return
			}
			// Anything else, including whitespace, separates tokens.
		}
	}
	l.emit(EOF)
}

func (l *Lexer) lexIdent() {
	start := l.pos - 1
	h := uint32(l.src[start])
	for isAlpha(l.peek()) || isDigit(l.peek()) {
		h = h*147 + uint32(l.src[l.pos])
		l.pos++
	}
	name := l.src[start:l.pos]
	h = h<<6 + uint32(len(name))
	sym := l.syms.Lookup(h, name)
	if sym.Keyword != 0 {
		l.Sym = nil
		l.emit(Kind(sym.Keyword))
		return
	}
	l.Sym = sym
	l.emit(IDENT)
}

// lexQuoted scans a string or character literal.  Only \n is a recognised
// escape; any other escaped character stands for itself.  String bytes are
// appended to the data pool without a terminator; the parser aligns the pool
// after the last of a run of adjacent literals, which also terminates it.
func (l *Lexer) lexQuoted(quote byte) {
	start := len(l.obj.Data)
	v := 0
	for l.pos < len(l.src) && l.src[l.pos] != quote {
		v = int(l.src[l.pos])
		l.pos++
		if v == '\\' && l.pos < len(l.src) {
			v = int(l.src[l.pos])
			l.pos++
			if v == 'n' {
				v = '\n'
			}
		}
		if quote == '"' {
			l.obj.Data = append(l.obj.Data, byte(v))
		}
	}
	l.accept(quote)
	if quote == '"' {
		l.Value = int(l.obj.DataBase) + start
		l.emit(STR)
		return
	}
	l.Value = v
	l.emit(NUM)
}

// lexOperator recognises punctuation and operators, using one character of
// lookahead for the two character forms.
func (l *Lexer) lexOperator(c byte) (Kind, bool) {
	switch c {
	case '=':
		if l.accept('=') {
			return EQ, true
		}
		return ASSIGN, true
	case '+':
		if l.accept('+') {
			return INC, true
		}
		return ADD, true
	case '-':
		if l.accept('-') {
			return DEC, true
		}
		return SUB, true
	case '!':
		if l.accept('=') {
			return NE, true
		}
		return NOT, true
	case '<':
		if l.accept('=') {
			return LE, true
		}
		if l.accept('<') {
			return SHL, true
		}
		return LT, true
	case '>':
		if l.accept('=') {
			return GE, true
		}
		if l.accept('>') {
			return SHR, true
		}
		return GT, true
	case '|':
		if l.accept('|') {
			return LOR, true
		}
		return OR, true
	case '&':
		if l.accept('&') {
			return LAND, true
		}
		return AND, true
	case '^':
		return XOR, true
	case '%':
		return MOD, true
	case '*':
		return MUL, true
	case '[':
		return BRAK, true
	case '?':
		return COND, true
	case '~':
		return TILDE, true
	case ';':
		return SEMI, true
	case '{':
		return LCURLY, true
	case '}':
		return RCURLY, true
	case '(':
		return LPAREN, true
	case ')':
		return RPAREN, true
	case ']':
		return RSQUARE, true
	case ',':
		return COMMA, true
	case ':':
		return COLON, true
	}
	return EOF, false
}
