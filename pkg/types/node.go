package types

// NodeKind classifies a structural unit recovered from raw text.
type NodeKind string

const (
	NodeHeading   NodeKind = "heading"
	NodeParagraph NodeKind = "paragraph"
	NodeList      NodeKind = "list"
	NodeTable     NodeKind = "table"
	NodeCode      NodeKind = "code"
	NodeMixed     NodeKind = "mixed"
)

// DocumentNode is a recovered structural unit of a document. Nodes form an
// ordered tree: children appear in source order, and a heading node's subtree
// contains everything up to the next heading of equal or lower level.
//
// A tree is built once per parse call and never mutated afterward.
type DocumentNode struct {
	Kind     NodeKind
	Level    int // 1-6 for headings, 0 otherwise
	Text     string
	Position int // source order index, increasing across the whole tree
	Children []*DocumentNode
}

// IsAtomic reports whether the node must not be split mid-content.
// Tables and code blocks only make sense whole.
func (n *DocumentNode) IsAtomic() bool {
	return n.Kind == NodeTable || n.Kind == NodeCode
}

// Walk visits the node and its descendants in pre-order (source order).
// Traversal stops early if fn returns false.
func (n *DocumentNode) Walk(fn func(*DocumentNode) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// CountNodes returns the total number of nodes in the subtree, including n.
func (n *DocumentNode) CountNodes() int {
	count := 0
	n.Walk(func(*DocumentNode) bool {
		count++
		return true
	})
	return count
}
