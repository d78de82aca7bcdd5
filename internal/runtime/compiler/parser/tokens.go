// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package parser

import (
	"fmt"

	"github.com/google/c4jit/internal/runtime/compiler/position"
	"github.com/google/c4jit/internal/runtime/compiler/symbol"
)

// Kind enumerates the types of lexical tokens in a program.
type Kind int

const (
	EOF Kind = iota // End of input.

	NUM   // Numeric or character literal; Value holds it.
	STR   // String literal; Value holds its data pool offset.
	IDENT // Identifier; Sym holds its symbol table entry.

	// Keywords.
	CHAR
	ELSE
	ENUM
	IF
	INT
	RETURN
	WHILE

	// Punctuation.
	SEMI   // ;
	LCURLY // {
	RCURLY // }
	LPAREN // (
	RPAREN // )
	RSQUARE
	COMMA
	COLON
	TILDE // ~
	NOT   // !

	// Operators, which have a precedence.
	ASSIGN // =
	COND   // ?
	LOR    // ||
	LAND   // &&
	OR     // |
	XOR    // ^
	AND    // &
	EQ     // ==
	NE     // !=
	LT     // <
	GT     // >
	LE     // <=
	GE     // >=
	SHL    // <<
	SHR    // >>
	ADD    // +
	SUB    // -
	MUL    // *
	DIV    // /
	MOD    // %
	INC    // ++
	DEC    // --
	BRAK   // [

	lastKind
)

var kindNames = map[Kind]string{
	EOF:     "EOF",
	NUM:     "NUM",
	STR:     "STR",
	IDENT:   "IDENT",
	CHAR:    "char",
	ELSE:    "else",
	ENUM:    "enum",
	IF:      "if",
	INT:     "int",
	RETURN:  "return",
	WHILE:   "while",
	SEMI:    ";",
	LCURLY:  "{",
	RCURLY:  "}",
	LPAREN:  "(",
	RPAREN:  ")",
	RSQUARE: "]",
	COMMA:   ",",
	COLON:   ":",
	TILDE:   "~",
	NOT:     "!",
	ASSIGN:  "=",
	COND:    "?",
	LOR:     "||",
	LAND:    "&&",
	OR:      "|",
	XOR:     "^",
	AND:     "&",
	EQ:      "==",
	NE:      "!=",
	LT:      "<",
	GT:      ">",
	LE:      "<=",
	GE:      ">=",
	SHL:     "<<",
	SHR:     ">>",
	ADD:     "+",
	SUB:     "-",
	MUL:     "*",
	DIV:     "/",
	MOD:     "%",
	INC:     "++",
	DEC:     "--",
	BRAK:    "[",
}

// String returns a readable name of the token Kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Keywords maps each reserved word to its token kind.
var Keywords = map[string]Kind{
	"char":   CHAR,
	"else":   ELSE,
	"enum":   ENUM,
	"if":     IF,
	"int":    INT,
	"return": RETURN,
	"while":  WHILE,
}

// Operator precedence levels, lowest first.  A token that is not a binary
// or postfix operator has precedence zero and ends precedence climbing.
const (
	precNone = iota
	precAssign
	precCond
	precLor
	precLand
	precOr
	precXor
	precAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precPostfix
)

var precedence = [lastKind]int{
	ASSIGN: precAssign,
	COND:   precCond,
	LOR:    precLor,
	LAND:   precLand,
	OR:     precOr,
	XOR:    precXor,
	AND:    precAnd,
	EQ:     precEquality,
	NE:     precEquality,
	LT:     precRelational,
	GT:     precRelational,
	LE:     precRelational,
	GE:     precRelational,
	SHL:    precShift,
	SHR:    precShift,
	ADD:    precAdditive,
	SUB:    precAdditive,
	MUL:    precMultiplicative,
	DIV:    precMultiplicative,
	MOD:    precMultiplicative,
	INC:    precPostfix,
	DEC:    precPostfix,
	BRAK:   precPostfix,
}

// Precedence returns the binding strength of k as a binary or postfix operator.
func (k Kind) Precedence() int {
	if k < 0 || k >= lastKind {
		return precNone
	}
	return precedence[k]
}

// Token describes a lexed Token from the input.
type Token struct {
	Kind  Kind
	Value int            // Literal value for NUM, data pool offset for STR.
	Sym   *symbol.Symbol // Resolved entry for IDENT.
	Pos   position.Position
}

// String returns a printable form of a Token.
func (t Token) String() string {
	switch t.Kind {
	case NUM, STR:
		return fmt.Sprintf("%s(%d,%s)", t.Kind, t.Value, t.Pos)
	case IDENT:
		return fmt.Sprintf("%s(%q,%s)", t.Kind, t.Sym.Name, t.Pos)
	}
	return fmt.Sprintf("%s(%s)", t.Kind, t.Pos)
}
