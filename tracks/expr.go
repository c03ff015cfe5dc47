package tracks

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/paleotronic/trackm8/disk"
	"github.com/paleotronic/trackm8/loggy"
)

// Expressions compute address and header bytes from named integer variables.
// The grammar is a small subset of Python integer arithmetic:
//
//	| ^ & << >> + - * / // % unary - ~ ( )
//
// Plain division must be exact; // truncates.

type tokenKind int

const (
	tokNum tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	num  int
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch >= '0' && ch <= '9':
			j := i
			for j < len(src) && (isAlnum(src[j])) {
				j++
			}
			n, err := strconv.ParseInt(src[i:j], 0, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q at %d", src[i:j], i)
			}
			toks = append(toks, token{kind: tokNum, text: src[i:j], num: int(n), pos: i})
			i = j
		case isAlpha(ch):
			j := i
			for j < len(src) && isAlnum(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: i})
			i = j
		case ch == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case ch == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			op := ""
			if i+1 < len(src) {
				switch src[i : i+2] {
				case "//", "<<", ">>":
					op = src[i : i+2]
				}
			}
			if op == "" && strings.IndexByte("+-*/%&|^~", ch) >= 0 {
				op = string(ch)
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected %q at %d", ch, i)
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isAlpha(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isAlnum(ch byte) bool {
	return isAlpha(ch) || (ch >= '0' && ch <= '9')
}

var binaryPrec = map[string]int{
	"|":  1,
	"^":  2,
	"&":  3,
	"<<": 4, ">>": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "//": 6, "%": 6,
}

const unaryPrec = 7

type node interface {
	eval(vars map[string]int) (int, error)
}

type numNode int

type varNode string

type unaryNode struct {
	op string
	x  node
}

type binaryNode struct {
	op   string
	l, r node
}

func (n numNode) eval(map[string]int) (int, error) {
	return int(n), nil
}

func (n varNode) eval(vars map[string]int) (int, error) {
	v, ok := vars[string(n)]
	if !ok {
		return 0, fmt.Errorf("unknown variable %s", string(n))
	}
	return v, nil
}

func (n unaryNode) eval(vars map[string]int) (int, error) {
	x, err := n.x.eval(vars)
	if err != nil {
		return 0, err
	}
	if n.op == "-" {
		return -x, nil
	}
	return ^x, nil
}

func (n binaryNode) eval(vars map[string]int) (int, error) {
	l, err := n.l.eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := n.r.eval(vars)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "|":
		return l | r, nil
	case "^":
		return l ^ r, nil
	case "&":
		return l & r, nil
	case "<<", ">>":
		if r < 0 || r > 62 {
			return 0, fmt.Errorf("shift count %d out of range", r)
		}
		if n.op == "<<" {
			return l << uint(r), nil
		}
		return l >> uint(r), nil
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		if l%r != 0 {
			return 0, fmt.Errorf("%d/%d is not an integer", l, r)
		}
		return l / r, nil
	case "//":
		if r == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return 0, fmt.Errorf("modulo by zero")
		}
		return l % r, nil
	}
	return 0, fmt.Errorf("unknown operator %s", n.op)
}

type parser struct {
	toks []token
	pos  int
	vars map[string]bool
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parse(minPrec int) (node, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp {
			return left, nil
		}
		prec, ok := binaryPrec[t.text]
		if !ok || prec <= minPrec {
			return left, nil
		}
		p.next()
		right, err := p.parse(prec)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: t.text, l: left, r: right}
	}
}

func (p *parser) prefix() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return numNode(t.num), nil
	case tokIdent:
		p.vars[t.text] = true
		return varNode(t.text), nil
	case tokLParen:
		x, err := p.parse(0)
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing ) for ( at %d", t.pos)
		}
		return x, nil
	case tokOp:
		if t.text == "-" || t.text == "~" {
			x, err := p.parse(unaryPrec)
			if err != nil {
				return nil, err
			}
			return unaryNode{op: t.text, x: x}, nil
		}
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
}

// Expr is a parsed arithmetic expression.
type Expr struct {
	src  string
	root node
	vars []string
}

// ParseExpr compiles src; failures wrap disk.ErrMetadataMismatch.
func ParseExpr(src string) (*Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", disk.ErrMetadataMismatch, src, err)
	}
	p := &parser{toks: toks, vars: map[string]bool{}}
	root, err := p.parse(0)
	if err == nil && p.peek().kind != tokEOF {
		err = fmt.Errorf("unexpected %q at %d", p.peek().text, p.peek().pos)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", disk.ErrMetadataMismatch, src, err)
	}
	e := &Expr{src: src, root: root}
	for v := range p.vars {
		e.vars = append(e.vars, v)
	}
	sort.Strings(e.vars)
	return e, nil
}

func (e *Expr) String() string {
	return e.src
}

// Vars lists the variables referenced, sorted.
func (e *Expr) Vars() []string {
	return e.vars
}

// Uses reports whether the expression references any variable for which
// match returns true.
func (e *Expr) Uses(match func(string) bool) bool {
	for _, v := range e.vars {
		if match(v) {
			return true
		}
	}
	return false
}

func (e *Expr) Eval(vars map[string]int) (int, error) {
	v, err := e.root.eval(vars)
	if err != nil {
		return 0, fmt.Errorf("%w: solving %q: %v", disk.ErrMetadataMismatch, e.src, err)
	}
	return v, nil
}

// EvalByte evaluates and insists the result fits in a byte.
func (e *Expr) EvalByte(vars map[string]int) (byte, error) {
	v, err := e.Eval(vars)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("%w: %q evaluated to %d which is not a byte", disk.ErrMetadataMismatch, e.src, v)
	}
	return byte(v), nil
}

var compiledExprs = map[string]*Expr{}
var compiledMu sync.Mutex

// compiled returns the parsed form of src, parsing it only the first time.
func compiled(src string) (*Expr, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if e, ok := compiledExprs[src]; ok {
		return e, nil
	}
	e, err := ParseExpr(src)
	if err != nil {
		loggy.Get(loggy.Tracks).Errorf("%v", err)
		return nil, err
	}
	compiledExprs[src] = e
	return e, nil
}

// evalByte evaluates src against vars, logging failures for format authors.
func evalByte(src string, vars map[string]int) (byte, error) {
	e, err := compiled(src)
	if err != nil {
		return 0, err
	}
	return evalCompiled(e, vars)
}

func evalCompiled(e *Expr, vars map[string]int) (byte, error) {
	b, err := e.EvalByte(vars)
	if err != nil {
		l := loggy.Get(loggy.Tracks)
		l.Errorf("%v", err)
		if strings.Contains(e.src, "/") && !strings.Contains(e.src, "//") {
			l.Warnf("division in %q must be exact, use // for integer division", e.src)
		}
		if l.Enabled(loggy.LevelDebug) {
			l.Debugf("variables: %v", vars)
		}
	}
	return b, err
}
