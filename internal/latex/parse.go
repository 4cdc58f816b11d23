package latex

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnbalanced    = errors.New("latex: unbalanced braces")
	ErrUnclosedEnv   = errors.New("latex: unclosed environment")
	ErrUnexpectedEnd = errors.New("latex: unexpected \\end")
	ErrBadBegin      = errors.New("latex: malformed \\begin")
)

// rawEnvs keep their body as a single text node.
var rawEnvs = map[string]bool{
	"verbatim":   true,
	"lstlisting": true,
	"comment":    true,
	"minted":     true,
}

type stop int

const (
	stopEOF stop = iota
	stopBrace
	stopBracket
	stopEnd
)

// bracketState tracks nesting inside an optional [...] argument so that a
// ']' within math or an inner bracket pair does not end it.
type bracketState struct {
	depth int
	math  bool
}

func (b *bracketState) closes() bool { return b.depth == 0 && !b.math }

type parser struct {
	src  string
	pos  int
	tree *Tree
}

// Parse builds a tree from src. Any structural error aborts the parse; no
// partial tree is returned.
func Parse(src string) (*Tree, error) {
	p := &parser{src: src, tree: newTree()}
	kids, err := p.seq(0, stopEOF, "")
	if err != nil {
		return nil, err
	}
	p.tree.nodes[0].Children = kids
	return p.tree, nil
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

// seq parses nodes belonging to parent until the given stop condition.
func (p *parser) seq(parent NodeID, until stop, env string) ([]NodeID, error) {
	var (
		out []NodeID
		br  bracketState
	)
	for {
		if p.eof() {
			switch until {
			case stopEOF:
				return out, nil
			case stopEnd:
				return nil, fmt.Errorf("%w: %s", ErrUnclosedEnv, env)
			default:
				return nil, ErrUnbalanced
			}
		}
		c := p.src[p.pos]
		switch {
		case c == '}':
			if until != stopBrace {
				return nil, fmt.Errorf("%w: unexpected '}' at offset %d", ErrUnbalanced, p.pos)
			}
			p.pos++
			return out, nil
		case c == ']' && until == stopBracket && br.closes():
			p.pos++
			return out, nil
		case c == '{':
			p.pos++
			id := p.tree.add(Node{Kind: KindGroup, Parent: parent})
			kids, err := p.seq(id, stopBrace, "")
			if err != nil {
				return nil, err
			}
			p.tree.nodes[id].Children = kids
			out = append(out, id)
		case c == '%':
			if i := strings.IndexByte(p.src[p.pos:], '\n'); i >= 0 {
				p.pos += i
			} else {
				p.pos = len(p.src)
			}
		case c == '\\':
			id, done, err := p.command(parent, until, env)
			if err != nil {
				return nil, err
			}
			if done {
				return out, nil
			}
			if id != NoNode {
				out = append(out, id)
			}
		default:
			out = append(out, p.text(parent, until, &br))
		}
	}
}

func (p *parser) text(parent NodeID, until stop, br *bracketState) NodeID {
	start := p.pos
scan:
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '\\', '{', '}', '%':
			break scan
		}
		if until == stopBracket {
			switch c {
			case '$':
				br.math = !br.math
			case '[':
				if !br.math {
					br.depth++
				}
			case ']':
				if br.closes() {
					break scan
				}
				if !br.math {
					br.depth--
				}
			}
		}
		p.pos++
	}
	return p.tree.add(Node{Kind: KindText, Text: p.src[start:p.pos], Parent: parent})
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '@'
}

// command parses a control sequence starting at a backslash. done is true
// when the sequence was the \end closing the environment being parsed.
func (p *parser) command(parent NodeID, until stop, env string) (NodeID, bool, error) {
	p.pos++ // backslash
	if p.eof() {
		return p.tree.add(Node{Kind: KindText, Text: `\`, Parent: parent}), false, nil
	}
	if !isLetter(p.src[p.pos]) {
		name := p.src[p.pos : p.pos+1]
		p.pos++
		id := p.tree.add(Node{Kind: KindCommand, Name: name, Parent: parent})
		if name == `\` {
			p.args(id, true)
		}
		return id, false, nil
	}

	start := p.pos
	for p.pos < len(p.src) && isLetter(p.src[p.pos]) {
		p.pos++
	}
	name := p.src[start:p.pos]

	if name == "verb" {
		if id, ok := p.verb(parent, start-1); ok {
			return id, false, nil
		}
	}

	switch name {
	case "begin":
		id, err := p.environment(parent)
		return id, false, err
	case "end":
		closing, err := p.envName()
		if err != nil {
			return NoNode, false, fmt.Errorf("%w: %v", ErrUnexpectedEnd, err)
		}
		if until == stopEnd && closing == env {
			return NoNode, true, nil
		}
		return NoNode, false, fmt.Errorf("%w: \\end{%s}", ErrUnexpectedEnd, closing)
	}

	n := Node{Kind: KindCommand, Name: name, Parent: parent}
	if p.pos < len(p.src) && p.src[p.pos] == '*' {
		n.Star = true
		p.pos++
	}
	id := p.tree.add(n)
	if err := p.args(id, false); err != nil {
		return NoNode, false, err
	}
	return id, false, nil
}

// verb keeps \verb|...| (or \verb*|...|) as literal text, whatever the
// delimited body contains. The body may not span lines. begin is the offset
// of the backslash.
func (p *parser) verb(parent NodeID, begin int) (NodeID, bool) {
	i := p.pos
	if i < len(p.src) && p.src[i] == '*' {
		i++
	}
	if i >= len(p.src) {
		return NoNode, false
	}
	delim := p.src[i]
	if delim == ' ' || delim == '\t' || delim == '\n' || isLetter(delim) {
		return NoNode, false
	}
	end := strings.IndexAny(p.src[i+1:], string(delim)+"\n")
	if end < 0 || p.src[i+1+end] != delim {
		return NoNode, false
	}
	p.pos = i + 1 + end + 1
	return p.tree.add(Node{Kind: KindText, Text: p.src[begin:p.pos], Parent: parent}), true
}

// envName reads "{name}" following \begin or \end.
func (p *parser) envName() (string, error) {
	p.skipBlanks()
	if p.eof() || p.src[p.pos] != '{' {
		return "", ErrBadBegin
	}
	end := strings.IndexByte(p.src[p.pos:], '}')
	if end < 0 {
		return "", ErrBadBegin
	}
	name := strings.TrimSpace(p.src[p.pos+1 : p.pos+end])
	p.pos += end + 1
	if name == "" {
		return "", ErrBadBegin
	}
	return name, nil
}

func (p *parser) environment(parent NodeID) (NodeID, error) {
	full, err := p.envName()
	if err != nil {
		return NoNode, err
	}
	n := Node{Kind: KindEnv, Name: strings.TrimSuffix(full, "*"), Parent: parent}
	n.Star = n.Name != full
	id := p.tree.add(n)

	if rawEnvs[n.Name] {
		closing := `\end{` + full + `}`
		i := strings.Index(p.src[p.pos:], closing)
		if i < 0 {
			return NoNode, fmt.Errorf("%w: %s", ErrUnclosedEnv, full)
		}
		body := p.tree.add(Node{Kind: KindText, Text: p.src[p.pos : p.pos+i], Parent: id})
		p.tree.nodes[id].Children = []NodeID{body}
		p.pos += i + len(closing)
		return id, nil
	}

	if err := p.args(id, false); err != nil {
		return NoNode, err
	}
	kids, err := p.seq(id, stopEnd, full)
	if err != nil {
		return NoNode, err
	}
	p.tree.nodes[id].Children = kids
	return id, nil
}

// args greedily attaches adjacent {...} and [...] arguments to id. Spaces
// and tabs may separate arguments; a newline ends the argument list. A
// bracket that never closes is treated as text rather than an error.
func (p *parser) args(id NodeID, bracketOnly bool) error {
	for {
		save := p.pos
		p.skipBlanks()
		if p.eof() {
			p.pos = save
			return nil
		}
		c := p.src[p.pos]
		switch {
		case c == '{' && !bracketOnly:
			p.pos++
			kids, err := p.seq(id, stopBrace, "")
			if err != nil {
				return err
			}
			p.tree.nodes[id].Args = append(p.tree.nodes[id].Args, Arg{Nodes: kids})
		case c == '[':
			mark := len(p.tree.nodes)
			p.pos++
			kids, err := p.seq(id, stopBracket, "")
			if err != nil {
				p.tree.nodes = p.tree.nodes[:mark]
				p.pos = save
				return nil
			}
			p.tree.nodes[id].Args = append(p.tree.nodes[id].Args, Arg{Optional: true, Nodes: kids})
			if bracketOnly {
				return nil
			}
		default:
			p.pos = save
			return nil
		}
	}
}

func (p *parser) skipBlanks() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}
