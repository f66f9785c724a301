package restriction

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse parses a textual filter into AND-ed restrictions.
//
// Supported clauses, joined by AND (case insensitive):
//   - "age >= 30" with = == != <> < <= > >=
//   - "name like 'A%'", "name not like 'A%'", "name ilike 'a%'"
//   - "id in (1, 2, 3)", "id not in (1, 2)"
//   - "email is null", "email is not null", "email = null"
//   - "age between 20 and 40"
//
// Values are single or double quoted strings, integers, floats, true, false
// or bare words (taken as strings).
func Parse(expr string) ([]Restriction, error) {
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: expr}

	out := []Restriction{}
	if p.peek().kind == tokEOF {
		return out, nil
	}
	for {
		c, err := p.clause()
		if err != nil {
			return nil, err
		}
		out = append(out, c)

		if p.peek().kind == tokEOF {
			return out, nil
		}
		if !p.keyword("and") {
			return nil, p.errorf("expected AND, got %q", p.peek().text)
		}
	}
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexString reads the quoted literal starting at src[start]. A doubled quote
// inside the literal stands for one quote character.
func lexString(src string, start int) (string, int, bool) {
	q := src[start]
	var b strings.Builder
	for i := start + 1; i < len(src); i++ {
		if src[i] != q {
			b.WriteByte(src[i])
			continue
		}
		if i+1 < len(src) && src[i+1] == q {
			b.WriteByte(q)
			i++
			continue
		}
		return b.String(), i + 1, true
	}
	return "", 0, false
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '\'' || c == '"':
			text, next, ok := lexString(src, i)
			if !ok {
				return nil, syntaxError(src, i, "unterminated string")
			}
			toks = append(toks, token{kind: tokString, text: text, pos: i})
			i = next
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case strings.ContainsRune("=!<>", c):
			op := string(c)
			if i+1 < len(src) && strings.ContainsRune("=>", rune(src[i+1])) {
				op += string(src[i+1])
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		case isDigit(c) || ((c == '-' || c == '+') && i+1 < len(src) && isDigit(rune(src[i+1]))):
			start := i
			i++
			for i < len(src) && (isDigit(rune(src[i])) || src[i] == '.' || src[i] == 'e' || src[i] == 'E') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case isWordStart(c):
			start := i
			for i < len(src) && isWordPart(rune(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: src[start:i], pos: start})
		default:
			return nil, syntaxError(src, i, fmt.Sprintf("unexpected character %q", c))
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func isDigit(c rune) bool     { return c >= '0' && c <= '9' }
func isWordStart(c rune) bool { return c == '_' || unicode.IsLetter(c) }
func isWordPart(c rune) bool  { return isWordStart(c) || isDigit(c) || c == '.' }

type parser struct {
	toks []token
	pos  int
	src  string
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// keyword consumes the next token if it is the given word.
func (p *parser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tokWord && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) errorf(format string, args ...any) error {
	return syntaxError(p.src, p.peek().pos, fmt.Sprintf(format, args...))
}

func (p *parser) clause() (Condition, error) {
	prop := p.next()
	if prop.kind != tokWord {
		return Condition{}, syntaxError(p.src, prop.pos, fmt.Sprintf("expected property, got %q", prop.text))
	}
	name := prop.text

	if t := p.peek(); t.kind == tokOp {
		p.next()
		return p.comparison(name, t.text)
	}

	switch {
	case p.keyword("like"):
		return p.pattern(name, OpLike)
	case p.keyword("ilike"):
		return p.pattern(name, OpILike)
	case p.keyword("in"):
		return p.list(name, OpIn)
	case p.keyword("between"):
		low, err := p.literal()
		if err != nil {
			return Condition{}, err
		}
		if !p.keyword("and") {
			return Condition{}, p.errorf("expected AND in between")
		}
		high, err := p.literal()
		if err != nil {
			return Condition{}, err
		}
		return New(name, OpBetween, low, high)
	case p.keyword("is"):
		if p.keyword("not") {
			if !p.keyword("null") {
				return Condition{}, p.errorf("expected NULL after IS NOT")
			}
			return New(name, OpIsNotNull)
		}
		if !p.keyword("null") {
			return Condition{}, p.errorf("expected NULL after IS")
		}
		return New(name, OpIsNull)
	case p.keyword("not"):
		switch {
		case p.keyword("like"):
			return p.pattern(name, OpNotLike)
		case p.keyword("in"):
			return p.list(name, OpNotIn)
		}
		return Condition{}, p.errorf("expected LIKE or IN after NOT")
	}
	return Condition{}, p.errorf("expected operator after %q", name)
}

var comparisonOps = map[string]Operator{
	"=":  OpEq,
	"==": OpEq,
	"!=": OpNe,
	"<>": OpNe,
	">":  OpGt,
	">=": OpGe,
	"<":  OpLt,
	"<=": OpLe,
}

func (p *parser) comparison(name, text string) (Condition, error) {
	op, ok := comparisonOps[text]
	if !ok {
		return Condition{}, p.errorf("unsupported operator %q", text)
	}

	// "x = null" reads as IS NULL
	if t := p.peek(); t.kind == tokWord && strings.EqualFold(t.text, "null") {
		p.next()
		switch op {
		case OpEq:
			return New(name, OpIsNull)
		case OpNe:
			return New(name, OpIsNotNull)
		}
		return Condition{}, p.errorf("NULL cannot be compared with %s", text)
	}

	v, err := p.literal()
	if err != nil {
		return Condition{}, err
	}
	return New(name, op, v)
}

func (p *parser) pattern(name string, op Operator) (Condition, error) {
	t := p.next()
	if t.kind != tokString {
		return Condition{}, syntaxError(p.src, t.pos, "pattern must be a quoted string")
	}
	return New(name, op, t.text)
}

func (p *parser) list(name string, op Operator) (Condition, error) {
	if t := p.next(); t.kind != tokLParen {
		return Condition{}, syntaxError(p.src, t.pos, "expected ( after IN")
	}
	var values []any
	for {
		v, err := p.literal()
		if err != nil {
			return Condition{}, err
		}
		values = append(values, v)

		t := p.next()
		if t.kind == tokRParen {
			break
		}
		if t.kind != tokComma {
			return Condition{}, syntaxError(p.src, t.pos, "expected , or ) in list")
		}
	}
	return New(name, op, values...)
}

func (p *parser) literal() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, syntaxError(p.src, t.pos, fmt.Sprintf("bad number %q", t.text))
		}
		return f, nil
	case tokWord:
		switch strings.ToLower(t.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, syntaxError(p.src, t.pos, "NULL is only allowed with =, != or IS")
		}
		return t.text, nil
	}
	return nil, syntaxError(p.src, t.pos, "expected a value")
}

func syntaxError(src string, pos int, msg string) error {
	return &InvalidRestrictionError{
		Code:    ErrCodeSyntax,
		Message: fmt.Sprintf("%s at offset %d in %q", msg, pos, src),
	}
}
