// Package report renders decode trees as indented coverage reports.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xlab/treeprint"

	"github.com/sarchlab/m2isa/enctree"
)

// Stats formats the coverage metrics of a node.
func Stats(n *enctree.Node) string {
	f := func(v float64) string {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	parts := []string{
		fmt.Sprintf("num_instrs=%d", n.NumInstrs()),
		fmt.Sprintf("fixed=%d", n.FixedBits()),
		fmt.Sprintf("variable=%d", n.VariableBits()),
		fmt.Sprintf("space=%d", n.SpaceSize()),
		"max_self=" + f(n.MaxSelf()),
		"max_total=" + f(n.MaxTotal()),
		"sum_self=" + f(n.SumSelf()),
		"sum_total=" + f(n.SumTotal()),
		"used_self=" + f(n.UsedSelf()),
		"used_total=" + f(n.UsedTotal()),
	}
	return strings.Join(parts, ",")
}

func line(n *enctree.Node) string {
	return fmt.Sprintf("%s [%s]", n.Label(), Stats(n))
}

// Render draws the tree below root, one node per line.
func Render(root *enctree.Node) string {
	tree := treeprint.NewWithRoot(line(root))
	addChildren(tree, root)
	return tree.String()
}

func addChildren(branch treeprint.Tree, n *enctree.Node) {
	for _, c := range n.Children {
		if len(c.Children) == 0 {
			branch.AddNode(line(c))
			continue
		}
		addChildren(branch.AddBranch(line(c)), c)
	}
}

// Write renders every tree under a header naming its width.
func Write(w io.Writer, trees []*enctree.Node) error {
	for i, root := range trees {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%d-bit instructions: %d\n", root.Size, root.NumInstrs()); err != nil {
			return err
		}
		if _, err := io.WriteString(w, Render(root)); err != nil {
			return err
		}
	}
	return nil
}
