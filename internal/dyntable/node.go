package dyntable

// Node is an element of the container hierarchy.
//
// Parent must return an untyped nil at the top of the hierarchy.
type Node interface {
	NodeName() string
	Parent() Node
}

// Root is the well-known container under which sibling tables are registered
// so that regions can find their targets by name.
type Root interface {
	Node
	LookupTable(name string) (*Table, bool)
}

// FindAncestor returns the nearest node, starting at n itself, that matches.
func FindAncestor(n Node, match func(Node) bool) (Node, bool) {
	for n != nil {
		if match(n) {
			return n, true
		}
		n = n.Parent()
	}
	return nil, false
}

// IsRoot matches nodes implementing Root.
func IsRoot(n Node) bool {
	_, ok := n.(Root)
	return ok
}
