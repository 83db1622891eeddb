// Package enctree builds decode trees over fixed-width instruction encodings.
//
// A decode tree partitions the 2^N words of an N-bit instruction width.
// Decision nodes branch on one bit range, grouping nodes carry the value
// committed for that range, and instruction leaves own the (mask, match) of
// exactly one instruction. Every node exposes coverage metrics describing how
// much of its reachable space is assigned to instructions.
package enctree

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/sarchlab/m2isa/arch"
)

// MaxWidth is the widest instruction word a tree can describe.
const MaxWidth = 63

// Kind tells the role of a node.
type Kind uint8

// Node kinds.
const (
	KindGrouping Kind = iota
	KindDecision
	KindInstruction
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDecision:
		return "decision"
	case KindInstruction:
		return "instruction"
	default:
		return "grouping"
	}
}

// Node is a node of a decode tree.
type Node struct {
	Size  int
	Mask  uint64 // bits fixed along the path to this node
	Match uint64 // values of the fixed bits

	// Selected is the range the node branches on. Nil unless the node is a
	// decision node.
	Selected *arch.RangeSpec
	// Mappings holds every range committed on the path with its value.
	Mappings map[arch.RangeSpec]uint64

	Children []*Node
	Parent   *Node

	// Name is set on instruction leaves.
	Name string

	leaf bool
}

// NewRoot creates the root of a tree over width-bit words.
func NewRoot(width int) (*Node, error) {
	if width < 1 || width > MaxWidth {
		return nil, fmt.Errorf("instruction width %d out of range 1..%d", width, MaxWidth)
	}
	return &Node{Size: width, Mappings: map[arch.RangeSpec]uint64{}}, nil
}

// Kind returns the role of the node.
func (n *Node) Kind() Kind {
	switch {
	case n.leaf:
		return KindInstruction
	case n.Selected != nil:
		return KindDecision
	default:
		return KindGrouping
	}
}

// Select marks r as the range the node branches on.
func (n *Node) Select(r arch.RangeSpec) error {
	if n.leaf {
		return fmt.Errorf("cannot select %s on instruction %s", r, n.Name)
	}
	if n.Selected != nil {
		return fmt.Errorf("node %s already selects %s", n.Bits(), *n.Selected)
	}
	if r.Lower < 0 || r.Upper < r.Lower || r.Upper >= n.Size {
		return fmt.Errorf("range %s outside %d-bit word", r, n.Size)
	}
	if r.Mask()&n.Mask != 0 {
		return fmt.Errorf("range %s overlaps fixed bits of %s", r, n.Bits())
	}
	n.Selected = &r
	return nil
}

// Commit adds a child fixing the selected range to value.
func (n *Node) Commit(value uint64) (*Node, error) {
	if n.Selected == nil {
		return nil, fmt.Errorf("node %s has no selected range", n.Bits())
	}
	r := *n.Selected
	if value>>uint(r.Length()) != 0 {
		return nil, fmt.Errorf("value %#x does not fit range %s", value, r)
	}

	mappings := make(map[arch.RangeSpec]uint64, len(n.Mappings)+1)
	for k, v := range n.Mappings {
		mappings[k] = v
	}
	mappings[r] = value

	child := &Node{
		Size:     n.Size,
		Mask:     n.Mask | r.Mask(),
		Match:    n.Match | value<<uint(r.Lower),
		Mappings: mappings,
		Parent:   n,
	}
	n.Children = append(n.Children, child)
	return child, nil
}

// Instruction adds an instruction leaf. The leaf mask must contain the
// node mask and agree with its match.
func (n *Node) Instruction(name string, mask, match uint64) (*Node, error) {
	if n.leaf || n.Selected != nil {
		return nil, fmt.Errorf("instruction %s must hang under a grouping node", name)
	}
	if mask&n.Mask != n.Mask || match&n.Mask != n.Match {
		return nil, fmt.Errorf("instruction %s (%08x:%08x) does not match node %s", name, match, mask, n.Bits())
	}

	leaf := &Node{
		Size:     n.Size,
		Mask:     mask,
		Match:    match,
		Mappings: n.Mappings,
		Parent:   n,
		Name:     name,
		leaf:     true,
	}
	n.Children = append(n.Children, leaf)
	return leaf, nil
}

// SelectedMask returns the selected range as a mask, or 0.
func (n *Node) SelectedMask() uint64 {
	if n.Selected == nil {
		return 0
	}
	return n.Selected.Mask()
}

// FixedBits returns the number of fixed bits.
func (n *Node) FixedBits() int {
	return bits.OnesCount64(n.Mask)
}

// VariableBits returns the number of bits not yet fixed.
func (n *Node) VariableBits() int {
	return n.Size - n.FixedBits()
}

// SpaceSize returns the number of words reachable at this node.
func (n *Node) SpaceSize() uint64 {
	return uint64(1) << uint(n.VariableBits())
}

// NumInstrs returns the number of instruction leaves below the node.
func (n *Node) NumInstrs() int {
	if n.leaf {
		return 1
	}
	total := 0
	for _, c := range n.Children {
		total += c.NumInstrs()
	}
	return total
}

// Used returns how many reachable words are assigned to instructions.
func (n *Node) Used() uint64 {
	if n.leaf {
		return n.SpaceSize()
	}
	var total uint64
	for _, c := range n.Children {
		total += c.Used()
	}
	return total
}

func (n *Node) childSpace() uint64 {
	var total uint64
	for _, c := range n.Children {
		total += c.SpaceSize()
	}
	return total
}

func (n *Node) total() float64 {
	return math.Ldexp(1, n.Size)
}

// MaxSelf is the share of the parent space reachable here. Leaves report
// the share of their grouping node.
func (n *Node) MaxSelf() float64 {
	if n.leaf && n.Parent != nil {
		return n.Parent.MaxSelf()
	}
	if n.Parent == nil {
		return 1.0
	}
	return float64(n.SpaceSize()) / float64(n.Parent.SpaceSize())
}

// MaxTotal is the share of the whole word space reachable here.
func (n *Node) MaxTotal() float64 {
	return float64(n.SpaceSize()) / n.total()
}

// SumSelf is the share of the node space covered by its children.
func (n *Node) SumSelf() float64 {
	return float64(n.childSpace()) / float64(n.SpaceSize())
}

// SumTotal is the share of the whole word space covered by the children.
func (n *Node) SumTotal() float64 {
	return float64(n.childSpace()) / n.total()
}

// UsedSelf is the share of the node space assigned to instructions.
func (n *Node) UsedSelf() float64 {
	return float64(n.Used()) / float64(n.SpaceSize())
}

// UsedTotal is the share of the whole word space assigned below the node.
func (n *Node) UsedTotal() float64 {
	return float64(n.Used()) / n.total()
}

// Bits renders the node pattern most significant bit first: '-' for
// selected bits, '0' or '1' for fixed bits and '?' for the rest.
func (n *Node) Bits() string {
	selected := n.SelectedMask()
	var sb strings.Builder
	sb.Grow(n.Size)
	for i := n.Size - 1; i >= 0; i-- {
		bit := uint64(1) << uint(i)
		switch {
		case selected&bit != 0:
			sb.WriteByte('-')
		case n.Mask&bit == 0:
			sb.WriteByte('?')
		case n.Match&bit != 0:
			sb.WriteByte('1')
		default:
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Label is Bits, prefixed with the instruction name on leaves.
func (n *Node) Label() string {
	if n.leaf {
		return fmt.Sprintf("%s(%s)", n.Name, n.Bits())
	}
	return n.Bits()
}

// Leaves returns the instruction leaves below the node, depth first.
func (n *Node) Leaves() []*Node {
	if n.leaf {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Walk calls fn for the node and its descendants, depth first, with the
// depth of each node below n.
func (n *Node) Walk(fn func(node *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}
