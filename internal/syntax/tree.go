// Package syntax holds the portable syntax tree the extractors work on. A
// tree-sitter parse is converted once per file into plain {kind, parent,
// children} nodes so the extraction algorithms are not tied to one parser.
package syntax

// Node is one syntax tree node.
type Node struct {
	Kind  string // grammar node type, e.g. "call_expression" or "("
	Field string // field name this node occupies in its parent, if any
	Named bool   // false for anonymous tokens such as keywords and punctuation
	Text  string // source text covered by the node

	StartByte int
	EndByte   int
	StartLine int // 1-based
	EndLine   int // 1-based
	Missing   bool

	Parent   *Node
	Children []*Node
}

// Tree is a parsed file.
type Tree struct {
	Root     *Node
	Source   string
	Language string
}

// New builds a named node and links children to it. Used to construct trees
// without a parser.
func New(kind, text string, children ...*Node) *Node {
	n := &Node{Kind: kind, Named: true, Text: text}
	for _, c := range children {
		c.Parent = n
	}
	n.Children = children
	return n
}

// WithField sets the node's field name and returns it.
func (n *Node) WithField(field string) *Node {
	n.Field = field
	return n
}

// Token builds an anonymous node such as a keyword.
func Token(kind string) *Node {
	return &Node{Kind: kind, Text: kind}
}

// ChildByField returns the first child occupying field, or nil.
func (n *Node) ChildByField(field string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildrenByField returns every child occupying field.
func (n *Node) ChildrenByField(field string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// NamedChildren returns the named children in order.
func (n *Node) NamedChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Named {
			out = append(out, c)
		}
	}
	return out
}

// ChildOfKind returns the first direct child of the given kind, or nil.
func (n *Node) ChildOfKind(kind string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// HasToken reports whether an anonymous direct child has the given kind.
func (n *Node) HasToken(kind string) bool {
	for _, c := range n.Children {
		if !c.Named && c.Kind == kind {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// IsAncestorOf reports whether n is a proper ancestor of other.
func (n *Node) IsAncestorOf(other *Node) bool {
	for p := other.Parent; p != nil; p = p.Parent {
		if p == n {
			return true
		}
	}
	return false
}

// FirstError returns the first ERROR or missing node in the tree, or nil.
func (t *Tree) FirstError() *Node {
	var found *Node
	t.Root.Walk(func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.Kind == "ERROR" || n.Missing {
			found = n
			return false
		}
		return true
	})
	return found
}
