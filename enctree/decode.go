package enctree

// Decode walks the tree for an instruction word and returns the matching
// instruction leaf.
func (n *Node) Decode(word uint64) (*Node, bool) {
	if n.leaf {
		return n, word&n.Mask == n.Match
	}

	if n.Selected == nil {
		for _, c := range n.Children {
			if leaf, ok := c.Decode(word); ok {
				return leaf, true
			}
		}
		return nil, false
	}

	v := value(word, *n.Selected)
	for _, c := range n.Children {
		if c.Mappings[*n.Selected] == v {
			return c.Decode(word)
		}
	}
	return nil, false
}
