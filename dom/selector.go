package dom

import (
	"fmt"
	"strings"
)

// compound is a sequence of simple selectors, e.g. "button.primary#go".
type compound struct {
	tag     string // "" or "*" matches any element
	id      string
	classes []string
}

// chain is a list of compounds joined by the descendant combinator.
type chain []compound

// selectorList is a comma separated list of chains.
type selectorList []chain

// parseSelector supports type, universal, id and class selectors, the
// descendant combinator and selector lists.
func parseSelector(s string) (selectorList, error) {
	var list selectorList
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSelector, s)
		}
		c := make(chain, 0, len(fields))
		for _, f := range fields {
			comp, err := parseCompound(f)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", err, s)
			}
			c = append(c, comp)
		}
		list = append(list, c)
	}
	return list, nil
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	if s[0] == '*' {
		c.tag = "*"
		i = 1
	} else {
		j := identEnd(s, 0)
		c.tag = strings.ToLower(s[:j])
		i = j
	}
	for i < len(s) {
		prefix := s[i]
		if prefix != '#' && prefix != '.' {
			return compound{}, ErrInvalidSelector
		}
		j := identEnd(s, i+1)
		if j == i+1 {
			return compound{}, ErrInvalidSelector
		}
		name := s[i+1 : j]
		if prefix == '#' {
			if c.id != "" && c.id != name {
				return compound{}, ErrInvalidSelector
			}
			c.id = name
		} else {
			c.classes = append(c.classes, name)
		}
		i = j
	}
	return c, nil
}

// identEnd returns the index just past the identifier starting at i.
func identEnd(s string, i int) int {
	for i < len(s) {
		ch := s[i]
		if ch == '-' || ch == '_' || ch >= 0x80 ||
			('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9') {
			i++
			continue
		}
		break
	}
	return i
}

func (c compound) match(n *Node) bool {
	if n.typ != elementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && c.tag != n.tag {
		return false
	}
	if c.id != "" && c.id != n.id {
		return false
	}
	for _, class := range c.classes {
		if !n.HasClass(class) {
			return false
		}
	}
	return true
}

// match checks the last compound against n and the rest against its
// ancestors, right to left. Caller must hold the document lock.
func (c chain) match(n *Node) bool {
	last := len(c) - 1
	if !c[last].match(n) {
		return false
	}
	cur := n.parent
	for i := last - 1; i >= 0; i-- {
		for cur != nil && !c[i].match(cur) {
			cur = cur.parent
		}
		if cur == nil {
			return false
		}
		cur = cur.parent
	}
	return true
}

func (l selectorList) match(n *Node) bool {
	for _, c := range l {
		if c.match(n) {
			return true
		}
	}
	return false
}
