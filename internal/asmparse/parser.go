package asmparse

import (
	"fmt"

	"github.com/devyn/fai/internal/asmback"
	"github.com/devyn/fai/internal/fai"
)

// Parse turns assembly source text into the section stream asmback.Assemble
// consumes: a leading unlabeled section holding any code before the first
// label (empty when the source starts with a label) followed by one section
// per label definition.
func Parse(source string) ([]asmback.Section, error) {
	p := &parser{lex: newLexer(source)}
	if err := p.fill(); err != nil {
		return nil, err
	}
	return p.parseProgram()
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) fill() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) peek() token { return p.tok }

func (p *parser) consume() (token, error) {
	t := p.tok
	if err := p.fill(); err != nil {
		return token{}, err
	}
	return t, nil
}

func (p *parser) errf(format string, args ...interface{}) error {
	return ParseError{Line: p.tok.line, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parseProgram() ([]asmback.Section, error) {
	var sections []asmback.Section
	cur := asmback.Section{}

	for p.peek().kind != tEOF {
		if p.peek().kind == tIdent && p.isLabelDef() {
			labelTok, err := p.consume() // identifier
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(); err != nil { // colon
				return nil, err
			}
			sections = append(sections, cur)
			cur = asmback.Section{Label: labelTok.text}
			continue
		}

		blocks, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		cur.Blocks = append(cur.Blocks, blocks...)
	}

	sections = append(sections, cur)
	return sections, nil
}

// isLabelDef reports whether the lexer is positioned at IDENT ':' — this
// needs one token of lookahead past the current ident, so it peeks via a
// save/restore of lexer position.
func (p *parser) isLabelDef() bool {
	save := *p.lex
	savedTok := p.tok

	next, err := p.lex.next()

	*p.lex = save
	p.tok = savedTok

	return err == nil && next.kind == tColon
}

func isRegisterName(s string) (fai.Register, bool) {
	if len(s) != 1 {
		return 0, false
	}
	switch s[0] | 0x20 { // fold ASCII case
	case 'a':
		return fai.A, true
	case 'b':
		return fai.B, true
	case 'c':
		return fai.C, true
	case 'd':
		return fai.D, true
	default:
		return 0, false
	}
}

func (p *parser) parseItem() ([]asmback.AsmBlock, error) {
	tok := p.peek()

	if tok.kind == tOp && tok.text == "." {
		return p.parseDirective()
	}

	if tok.kind == tIdent {
		return p.parseInstruction()
	}

	return nil, p.errf("expected an instruction, directive, or label, found %q", tok.text)
}

func (p *parser) parseInstruction() ([]asmback.AsmBlock, error) {
	nameTok, err := p.consume()
	if err != nil {
		return nil, err
	}

	fn, ok := fai.FunctionByName(nameTok.text)
	if !ok {
		return nil, ParseError{Line: nameTok.line, Message: fmt.Sprintf("unknown instruction mnemonic %q", nameTok.text)}
	}

	inst := asmback.AsmInstruction{Function: fn}

	if p.peek().kind == tIdent {
		if reg, ok := isRegisterName(p.peek().text); ok {
			if _, err := p.consume(); err != nil {
				return nil, err
			}
			inst.Register = &reg
		}
	}

	if p.peek().kind == tLBracket {
		if _, err := p.consume(); err != nil {
			return nil, err
		}
		operand, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		inst.Operand = operand

		closeTok := p.peek()
		if closeTok.kind != tRBracket {
			return nil, p.errf("expected ']' to close operand, found %q", closeTok.text)
		}
		if _, err := p.consume(); err != nil {
			return nil, err
		}
	}

	return []asmback.AsmBlock{{Kind: asmback.BlockInstruction, Instruction: inst}}, nil
}

func (p *parser) parseOperand() (*asmback.OperandRef, error) {
	tok := p.peek()

	switch {
	case tok.kind == tDollar:
		if _, err := p.consume(); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		op := asmback.ConcreteOperand(fai.OperandRel(val))
		return &op, nil

	case tok.kind == tIdent:
		if reg, ok := isRegisterName(tok.text); ok {
			if _, err := p.consume(); err != nil {
				return nil, err
			}
			op := asmback.ConcreteOperand(fai.OperandRegister(reg))
			return &op, nil
		}

		labelTok, err := p.consume()
		if err != nil {
			return nil, err
		}

		var offset int32
		if p.peek().kind == tOp && (p.peek().text == "+" || p.peek().text == "-") {
			signTok, err := p.consume()
			if err != nil {
				return nil, err
			}
			val, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			if signTok.text == "-" {
				val = -val
			}
			offset = val
		}

		ref := asmback.LabelOperand(labelTok.text, offset)
		return &ref, nil

	default:
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		op := asmback.ConcreteOperand(fai.OperandConstant(uint32(val)))
		return &op, nil
	}
}

var binOps = map[string]bool{
	"+": true, "-": true, "*": true, "**": true, "/": true,
	"&": true, "|": true, "^": true, "<<": true, ">>": true,
}

// parseExpr evaluates strictly left to right: no operator precedence, each
// binary operator applies immediately to the running total and the next
// unary term, matching the simple constant-folding the assembler performs.
func (p *parser) parseExpr() (int32, error) {
	val, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	for p.peek().kind == tOp && binOps[p.peek().text] {
		opTok, err := p.consume()
		if err != nil {
			return 0, err
		}
		rhs, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		val, err = applyBinOp(val, opTok.text, rhs, opTok.line)
		if err != nil {
			return 0, err
		}
	}

	return val, nil
}

func (p *parser) parseUnary() (int32, error) {
	tok := p.peek()
	if tok.kind == tOp && (tok.text == "-" || tok.text == "~") {
		if _, err := p.consume(); err != nil {
			return 0, err
		}
		val, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if tok.text == "-" {
			return -val, nil
		}
		return ^val, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (int32, error) {
	tok := p.peek()
	switch tok.kind {
	case tNumber, tChar:
		if _, err := p.consume(); err != nil {
			return 0, err
		}
		return int32(tok.num), nil
	default:
		return 0, p.errf("expected a constant, found %q", tok.text)
	}
}

func applyBinOp(lhs int32, op string, rhs int32, line int) (int32, error) {
	a, b := uint32(lhs), uint32(rhs)
	switch op {
	case "+":
		return int32(a + b), nil
	case "-":
		return int32(a - b), nil
	case "*":
		return int32(a * b), nil
	case "**":
		var r uint32 = 1
		for i := uint32(0); i < b; i++ {
			r *= a
		}
		return int32(r), nil
	case "/":
		if b == 0 {
			return 0, ParseError{Line: line, Message: "division by zero in constant expression"}
		}
		return int32(a / b), nil
	case "&":
		return int32(a & b), nil
	case "|":
		return int32(a | b), nil
	case "^":
		return int32(a ^ b), nil
	case "<<":
		return int32(a << (b & 31)), nil
	case ">>":
		return int32(a >> (b & 31)), nil
	default:
		return 0, ParseError{Line: line, Message: fmt.Sprintf("unknown operator %q", op)}
	}
}

func (p *parser) parseDirective() ([]asmback.AsmBlock, error) {
	if _, err := p.consume(); err != nil { // "."
		return nil, err
	}

	kwTok := p.peek()
	if kwTok.kind != tIdent {
		return nil, p.errf("expected a directive name after '.', found %q", kwTok.text)
	}
	if _, err := p.consume(); err != nil {
		return nil, err
	}

	switch kwTok.text {
	case "words":
		words, err := p.parseWordList()
		if err != nil {
			return nil, err
		}
		return []asmback.AsmBlock{{Kind: asmback.BlockWords, Words: words}}, nil

	case "len_words":
		words, err := p.parseWordList()
		if err != nil {
			return nil, err
		}
		lengthWord := asmback.AsmBlock{Kind: asmback.BlockWords, Words: []uint32{uint32(len(words))}}
		dataWord := asmback.AsmBlock{Kind: asmback.BlockWords, Words: words}
		return []asmback.AsmBlock{lengthWord, dataWord}, nil

	case "bytes":
		end, data, err := p.parseEndiannessAndString()
		if err != nil {
			return nil, err
		}
		return []asmback.AsmBlock{{Kind: asmback.BlockBytes, Bytes: data, Endianness: end}}, nil

	case "len_bytes":
		end, data, err := p.parseEndiannessAndString()
		if err != nil {
			return nil, err
		}
		lengthWord := asmback.AsmBlock{Kind: asmback.BlockWords, Words: []uint32{uint32(len(data))}}
		bytesBlock := asmback.AsmBlock{Kind: asmback.BlockBytes, Bytes: data, Endianness: end}
		return []asmback.AsmBlock{lengthWord, bytesBlock}, nil

	default:
		return nil, ParseError{Line: kwTok.line, Message: fmt.Sprintf("unknown directive %q", kwTok.text)}
	}
}

func (p *parser) parseWordList() ([]uint32, error) {
	if p.peek().kind != tLBrace {
		return nil, p.errf("expected '{' to open a word list, found %q", p.peek().text)
	}
	if _, err := p.consume(); err != nil {
		return nil, err
	}

	var words []uint32
	for p.peek().kind != tRBrace {
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		words = append(words, uint32(val))

		if p.peek().kind == tComma {
			if _, err := p.consume(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if p.peek().kind != tRBrace {
		return nil, p.errf("expected '}' to close a word list, found %q", p.peek().text)
	}
	if _, err := p.consume(); err != nil {
		return nil, err
	}

	return words, nil
}

func (p *parser) parseEndiannessAndString() (asmback.Endianness, []byte, error) {
	endTok := p.peek()
	if endTok.kind != tIdent {
		return 0, nil, p.errf("expected BE or LE, found %q", endTok.text)
	}
	if _, err := p.consume(); err != nil {
		return 0, nil, err
	}

	var end asmback.Endianness
	switch endTok.text {
	case "BE":
		end = asmback.BigEndian
	case "LE":
		end = asmback.LittleEndian
	default:
		return 0, nil, ParseError{Line: endTok.line, Message: fmt.Sprintf("expected BE or LE, found %q", endTok.text)}
	}

	strTok := p.peek()
	if strTok.kind != tString {
		return 0, nil, p.errf("expected a string literal, found %q", strTok.text)
	}
	if _, err := p.consume(); err != nil {
		return 0, nil, err
	}

	return end, []byte(strTok.text), nil
}
