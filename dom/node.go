package dom

import (
	"slices"
	"strings"

	"github.com/rbaliyan/listener"
)

type nodeType int

const (
	windowNode nodeType = iota
	documentNode
	elementNode
)

// Node is a window, document or element of a Document.
type Node struct {
	doc      *Document
	typ      nodeType
	tag      string
	id       string
	classes  []string
	parent   *Node
	children []*Node
}

// Kind returns "window", "document" or the lower-case tag name.
func (n *Node) Kind() string {
	switch n.typ {
	case windowNode:
		return "window"
	case documentNode:
		return "document"
	}
	return n.tag
}

// Name returns "#id" for elements with an id, and "" otherwise.
func (n *Node) Name() string {
	if n.id == "" {
		return ""
	}
	return "#" + n.id
}

// ID returns the element id
func (n *Node) ID() string { return n.id }

// Tag returns the lower-case tag name; empty for window and document.
func (n *Node) Tag() string { return n.tag }

// Classes returns a copy of the class list
func (n *Node) Classes() []string { return slices.Clone(n.classes) }

// HasClass reports whether the element carries class c.
func (n *Node) HasClass(c string) bool { return slices.Contains(n.classes, c) }

// Document returns the owning document
func (n *Node) Document() *Document { return n.doc }

// Parent returns the parent node, or nil for the document, the window and
// detached elements.
func (n *Node) Parent() *Node {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return n.parent
}

// Children returns a copy of the child list
func (n *Node) Children() []*Node {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return slices.Clone(n.children)
}

// AppendChild moves child to the end of n's children. Window nodes cannot
// have children, and a node cannot be appended to itself or a descendant.
func (n *Node) AppendChild(child *Node) error {
	if child == nil || child.doc != n.doc || child.typ != elementNode || n.typ == windowNode {
		return ErrHierarchy
	}
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if child.contains(n) {
		return ErrHierarchy
	}
	if child.parent != nil {
		child.parent.detach(child)
	}
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// RemoveChild detaches child from n. Listeners on the detached subtree stay
// subscribed and fire again if it is re-attached.
func (n *Node) RemoveChild(child *Node) error {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if child == nil || child.parent != n {
		return ErrNotChild
	}
	n.detach(child)
	child.parent = nil
	return nil
}

// detach removes child from n.children; caller must hold the document lock
func (n *Node) detach(child *Node) {
	n.children = slices.DeleteFunc(n.children, func(c *Node) bool { return c == child })
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other listener.Target) bool {
	o, ok := other.(*Node)
	if !ok || o == nil {
		return false
	}
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return n.contains(o)
}

func (n *Node) contains(o *Node) bool {
	for cur := o; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Matches reports whether the element matches selector. Invalid selectors
// match nothing.
func (n *Node) Matches(selector string) bool {
	sel, err := parseSelector(selector)
	if err != nil {
		return false
	}
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return sel.match(n)
}

// Closest returns the nearest inclusive ancestor matching selector, or nil.
func (n *Node) Closest(selector string) listener.Target {
	if found := n.closest(selector); found != nil {
		return found
	}
	return nil
}

func (n *Node) closest(selector string) *Node {
	sel, err := parseSelector(selector)
	if err != nil {
		return nil
	}
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	for cur := n; cur != nil; cur = cur.parent {
		if sel.match(cur) {
			return cur
		}
	}
	return nil
}

// String returns a short CSS-like description, e.g. "button#go.primary".
func (n *Node) String() string {
	if n.typ != elementNode {
		return n.Kind()
	}
	var b strings.Builder
	b.WriteString(n.tag)
	if n.id != "" {
		b.WriteString("#" + n.id)
	}
	for _, c := range n.classes {
		b.WriteString("." + c)
	}
	return b.String()
}

// path returns the propagation path from the window down to n. Detached
// elements propagate only through their own ancestors.
// Caller must hold the document lock.
func (n *Node) path() []*Node {
	var path []*Node
	for cur := n; cur != nil; cur = cur.parent {
		path = append(path, cur)
	}
	slices.Reverse(path)
	if n.typ != windowNode && path[0] == n.doc.root {
		path = append([]*Node{n.doc.window}, path...)
	}
	return path
}

// Compile-time interface check
var _ listener.Element = (*Node)(nil)
