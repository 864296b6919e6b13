package genetree

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Sentinel parse errors.
var (
	ErrSyntax        = errors.New("genetree: newick syntax error")
	ErrMissingLength = errors.New("genetree: branch length missing")
	ErrNotBinary     = errors.New("genetree: node is not binary")
	ErrUnnamedTip    = errors.New("genetree: tip has no name")
	ErrNegativeLen   = errors.New("genetree: negative branch length")
)

type newickParser struct {
	s    string
	pos  int
	lens map[*Node]float64
}

// ReadTree will parse a newick string with branch lengths into a Tree. Node
// heights are measured back from the deepest tip, which sits at height zero.
func ReadTree(name, nwk string) (*Tree, error) {
	p := &newickParser{s: strings.TrimSpace(nwk), lens: make(map[*Node]float64)}
	root, err := p.subtree(nil)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == ';' {
		p.pos++
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("%w: trailing input at offset %d", ErrSyntax, p.pos)
	}
	p.assignHeights(root)
	return newTree(name, root), nil
}

func (p *newickParser) skipSpace() {
	for p.pos < len(p.s) && unicode.IsSpace(rune(p.s[p.pos])) {
		p.pos++
	}
}

func (p *newickParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *newickParser) subtree(parent *Node) (*Node, error) {
	n := &Node{Parent: parent}
	if p.peek() == '(' {
		p.pos++
		for {
			c, err := p.subtree(n)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, c)
			switch p.peek() {
			case ',':
				p.pos++
				continue
			case ')':
				p.pos++
			default:
				return nil, fmt.Errorf("%w: expected ',' or ')' at offset %d", ErrSyntax, p.pos)
			}
			break
		}
		if len(n.Children) != 2 {
			return nil, fmt.Errorf("%w: %d children at offset %d", ErrNotBinary, len(n.Children), p.pos)
		}
	}
	n.Name = p.label()
	if n.IsTip() && n.Name == "" {
		return nil, fmt.Errorf("%w: offset %d", ErrUnnamedTip, p.pos)
	}
	if p.peek() == ':' {
		p.pos++
		l, err := p.number()
		if err != nil {
			return nil, err
		}
		if l < 0 {
			return nil, fmt.Errorf("%w: %g at %q", ErrNegativeLen, l, n.Name)
		}
		p.lens[n] = l
	} else if parent != nil {
		return nil, fmt.Errorf("%w: node %q", ErrMissingLength, n.Name)
	}
	return n, nil
}

func (p *newickParser) label() string {
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == '\'' {
		end := strings.IndexByte(p.s[p.pos+1:], '\'')
		if end >= 0 {
			lab := p.s[p.pos+1 : p.pos+1+end]
			p.pos += end + 2
			return lab
		}
	}
	start := p.pos
	for p.pos < len(p.s) && !strings.ContainsRune("(),:;", rune(p.s[p.pos])) && !unicode.IsSpace(rune(p.s[p.pos])) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *newickParser) number() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) && strings.ContainsRune("0123456789.eE+-", rune(p.s[p.pos])) {
		p.pos++
	}
	v, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad branch length %q: %w", ErrSyntax, p.s[start:p.pos], err)
	}
	return v, nil
}

func (p *newickParser) assignHeights(root *Node) {
	depth := make(map[*Node]float64)
	nodes := root.PreorderArray()
	maxDepth := 0.
	for _, n := range nodes {
		if n.Parent != nil {
			depth[n] = depth[n.Parent] + p.lens[n]
		}
		if n.IsTip() && depth[n] > maxDepth {
			maxDepth = depth[n]
		}
	}
	for _, n := range nodes {
		n.Height = maxDepth - depth[n]
	}
}
