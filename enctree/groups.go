package enctree

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/m2isa/arch"
)

// Group holds the entries sharing one instruction width.
type Group struct {
	Width   int
	Entries []Entry
}

// GroupByWidth groups the encoded instructions by size, narrowest first.
// Instructions without an encoding are skipped.
func GroupByWidth(instrs []*arch.Instruction) []Group {
	byWidth := make(map[int][]Entry)
	for _, instr := range instrs {
		if !instr.HasEncoding {
			continue
		}
		byWidth[instr.Size] = append(byWidth[instr.Size], EntryFromInstruction(instr))
	}

	groups := make([]Group, 0, len(byWidth))
	for w, entries := range byWidth {
		groups = append(groups, Group{Width: w, Entries: entries})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Width < groups[j].Width
	})
	return groups
}

// BuildGroups builds one tree per group concurrently. Trees are returned in
// group order; the first failure is returned.
func (b *Builder) BuildGroups(groups []Group) ([]*Node, error) {
	trees := make([]*Node, len(groups))

	var g errgroup.Group
	for i, group := range groups {
		g.Go(func() error {
			root, err := b.Build(group.Entries, group.Width)
			if err != nil {
				return fmt.Errorf("%d-bit instructions: %w", group.Width, err)
			}
			trees[i] = root
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return trees, nil
}
