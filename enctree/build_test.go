package enctree_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/sarchlab/m2isa/alloc"
	"github.com/sarchlab/m2isa/arch"
	"github.com/sarchlab/m2isa/enctree"
	"github.com/sarchlab/m2isa/operands"
)

// checkTree verifies the structural guarantees of a finished tree.
func checkTree(root *enctree.Node, entries []enctree.Entry) {
	leaves := root.Leaves()
	Expect(leaves).To(HaveLen(len(entries)))

	names := map[string]int{}
	for _, l := range leaves {
		names[l.Name]++
	}
	for _, e := range entries {
		Expect(names[e.Name]).To(Equal(1), "instruction %s", e.Name)
	}

	root.Walk(func(n *enctree.Node, _ int) {
		Expect(n.Used()).To(BeNumerically("<=", n.SpaceSize()))
		if n.Parent != nil {
			Expect(n.Mask & n.Parent.Mask).To(Equal(n.Parent.Mask))
		}
		if n.Selected != nil {
			Expect(n.SelectedMask() & n.Mask).To(BeZero())
		}
	})

	for i, a := range leaves {
		for _, b := range leaves[i+1:] {
			common := a.Mask & b.Mask
			Expect((a.Match^b.Match)&common).NotTo(BeZero(), "%s and %s overlap", a.Name, b.Name)
		}
	}
}

var _ = Describe("Builder", func() {
	Context("with instructions differing in bits 31:25", func() {
		var (
			entries []enctree.Entry
			root    *enctree.Node
		)

		BeforeEach(func() {
			entries = []enctree.Entry{
				{Name: "add", Mask: 0xFE00707F, Match: 0x00000033},
				{Name: "mul", Mask: 0xFE00707F, Match: 0x02000033},
				{Name: "sub", Mask: 0xFE00707F, Match: 0x40000033},
			}
			var err error
			root, err = enctree.Build(entries, 32)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should select bits 31:25 at the root", func() {
			Expect(root.Kind()).To(Equal(enctree.KindDecision))
			Expect(*root.Selected).To(Equal(arch.RangeSpec{Upper: 31, Lower: 25}))
			Expect(root.Bits()).To(Equal(strings.Repeat("-", 7) + strings.Repeat("?", 25)))
		})

		It("should create one grouping node and one leaf per instruction", func() {
			Expect(root.Children).To(HaveLen(3))
			var values []uint64
			for _, c := range root.Children {
				Expect(c.Kind()).To(Equal(enctree.KindGrouping))
				Expect(c.Children).To(HaveLen(1))
				Expect(c.Children[0].Kind()).To(Equal(enctree.KindInstruction))
				values = append(values, c.Mappings[arch.RangeSpec{Upper: 31, Lower: 25}])
			}
			Expect(values).To(Equal([]uint64{0x00, 0x01, 0x20}))

			Expect(root.Children[0].Children[0].Name).To(Equal("add"))
			Expect(root.Children[1].Children[0].Name).To(Equal("mul"))
			Expect(root.Children[2].Children[0].Name).To(Equal("sub"))
			checkTree(root, entries)
		})

		It("should compute coverage metrics", func() {
			Expect(root.NumInstrs()).To(Equal(3))
			Expect(root.FixedBits()).To(Equal(0))
			Expect(root.SpaceSize()).To(Equal(uint64(1) << 32))
			Expect(root.Used()).To(Equal(uint64(3) << 15))
			Expect(root.MaxSelf()).To(Equal(1.0))
			Expect(root.SumSelf()).To(Equal(3.0 / 128))
			Expect(root.UsedTotal()).To(Equal(3.0 / (1 << 17)))

			group := root.Children[1]
			Expect(group.VariableBits()).To(Equal(25))
			Expect(group.MaxSelf()).To(Equal(1.0 / 128))
			Expect(group.MaxTotal()).To(Equal(1.0 / 128))
			Expect(group.UsedSelf()).To(Equal(1.0 / 1024))

			leaf := group.Children[0]
			Expect(leaf.FixedBits()).To(Equal(17))
			Expect(leaf.Used()).To(Equal(leaf.SpaceSize()))
			Expect(leaf.MaxSelf()).To(Equal(group.MaxSelf()))
			Expect(leaf.Label()).To(Equal("mul(0000001??????????000?????0110011)"))
		})
	})

	It("should hang a single instruction directly under the root", func() {
		root, err := enctree.Build([]enctree.Entry{{Name: "only", Mask: 0x7F, Match: 0x0B}}, 32)
		Expect(err).NotTo(HaveOccurred())
		Expect(root.Kind()).To(Equal(enctree.KindGrouping))
		Expect(root.Leaves()).To(HaveLen(1))
	})

	It("should return a bare root for no instructions", func() {
		root, err := enctree.Build(nil, 16)
		Expect(err).NotTo(HaveOccurred())
		Expect(root.Children).To(BeEmpty())
		Expect(root.Used()).To(BeZero())
	})

	It("should branch on the field with the most distinct values", func() {
		entries := []enctree.Entry{
			{Name: "a", Mask: 0x707F, Match: 0x0013},
			{Name: "b", Mask: 0x707F, Match: 0x1013},
			{Name: "c", Mask: 0x707F, Match: 0x2013},
			{Name: "d", Mask: 0x707F, Match: 0x0033},
		}
		root, err := enctree.Build(entries, 32)
		Expect(err).NotTo(HaveOccurred())
		Expect(*root.Selected).To(Equal(arch.RangeSpec{Upper: 14, Lower: 12}))
		checkTree(root, entries)
	})

	It("should recurse into groups sharing a value", func() {
		entries := []enctree.Entry{
			{Name: "lb", Mask: 0x707F, Match: 0x0003},
			{Name: "lh", Mask: 0x707F, Match: 0x1003},
			{Name: "add", Mask: 0xFE00707F, Match: 0x00000033},
			{Name: "sub", Mask: 0xFE00707F, Match: 0x40000033},
		}
		root, err := enctree.Build(entries, 32)
		Expect(err).NotTo(HaveOccurred())
		checkTree(root, entries)

		maxDepth := 0
		root.Walk(func(_ *enctree.Node, depth int) {
			if depth > maxDepth {
				maxDepth = depth
			}
		})
		Expect(maxDepth).To(BeNumerically(">", 2))
	})

	Context("when no fixed field discriminates", func() {
		It("should synthesize a field from narrower pieces", func() {
			entries := []enctree.Entry{
				{
					Name: "wide", Mask: 0xFFF0007F, Match: 0x1230007B,
					Fields: []arch.RangeSpec{{Upper: 31, Lower: 20}, {Upper: 6, Lower: 0}},
				},
				{
					Name: "split", Mask: 0xFFF0007F, Match: 0x1240007B,
					Fields: []arch.RangeSpec{{Upper: 31, Lower: 25}, {Upper: 24, Lower: 20}, {Upper: 6, Lower: 0}},
				},
			}

			var buf bytes.Buffer
			root, err := enctree.NewBuilder(enctree.WithLogger(zerolog.New(&buf))).Build(entries, 32)
			Expect(err).NotTo(HaveOccurred())
			Expect(*root.Selected).To(Equal(arch.RangeSpec{Upper: 31, Lower: 20}))
			Expect(root.Children).To(HaveLen(2))
			Expect(root.Children[0].Mappings[*root.Selected]).To(Equal(uint64(0x123)))
			Expect(root.Children[1].Mappings[*root.Selected]).To(Equal(uint64(0x124)))
			Expect(buf.String()).To(ContainSubstring("synthesized field"))
			checkTree(root, entries)
		})

		It("should branch on bits fixed by every instruction of a system group", func() {
			entries := []enctree.Entry{
				{Name: "ecall", Mask: 0xFFFFFFFF, Match: 0x00000073},
				{Name: "ebreak", Mask: 0xFFFFFFFF, Match: 0x00100073},
				{Name: "csrrw", Mask: 0x0000707F, Match: 0x00001073},
			}

			root, err := enctree.Build(entries, 32)
			Expect(err).NotTo(HaveOccurred())
			Expect(*root.Selected).To(Equal(arch.RangeSpec{Upper: 14, Lower: 12}))
			Expect(root.Children).To(HaveLen(2))
			checkTree(root, entries)

			for word, name := range map[uint64]string{
				0x00000073: "ecall",
				0x00100073: "ebreak",
				0x34011073: "csrrw",
			} {
				leaf, ok := root.Decode(word)
				Expect(ok).To(BeTrue())
				Expect(leaf.Name).To(Equal(name))
			}
		})

		It("should split differently cut fields on their shared bits", func() {
			entries := []enctree.Entry{
				{Name: "narrow", Mask: 0x707F, Match: 0x0013},
				{Name: "wide", Mask: 0xF07F, Match: 0x1013},
			}

			root, err := enctree.Build(entries, 32)
			Expect(err).NotTo(HaveOccurred())
			Expect(*root.Selected).To(Equal(arch.RangeSpec{Upper: 14, Lower: 12}))
			Expect(root.Leaves()).To(HaveLen(2))
			checkTree(root, entries)
		})

		It("should report a conflict when pieces do not tile the field", func() {
			entries := []enctree.Entry{
				{
					Name: "wide", Mask: 0xFFF0007F, Match: 0x1230007B,
					Fields: []arch.RangeSpec{{Upper: 31, Lower: 20}, {Upper: 6, Lower: 0}},
				},
				{Name: "narrow", Mask: 0xFE00007F, Match: 0x1200007B},
			}
			_, err := enctree.Build(entries, 32)

			var conflict *enctree.EncodingSpaceConflictError
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.Names()).To(ConsistOf("wide", "narrow"))
			Expect(err.Error()).To(ContainSubstring("mask=fff0007f"))
			Expect(err.Error()).To(ContainSubstring("match=1200007b"))
		})
	})

	It("should report indistinguishable instructions with their positions", func() {
		entries := []enctree.Entry{
			{Name: "first", Mask: 0x7F, Match: 0x33},
			{Name: "other", Mask: 0x707F, Match: 0x1013},
			{Name: "second", Mask: 0x7F, Match: 0x33},
		}
		_, err := enctree.Build(entries, 32)

		var conflict *enctree.EncodingSpaceConflictError
		Expect(errors.As(err, &conflict)).To(BeTrue())
		Expect(conflict.Conflicts).To(ConsistOf(
			enctree.Conflict{Index: 0, Name: "first", Mask: 0x7F, Match: 0x33},
			enctree.Conflict{Index: 2, Name: "second", Mask: 0x7F, Match: 0x33},
		))
	})

	DescribeTable("invalid input",
		func(entries []enctree.Entry, width int, msg string) {
			_, err := enctree.Build(entries, width)
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("zero width", []enctree.Entry(nil), 0, "out of range"),
		Entry("too wide", []enctree.Entry(nil), 64, "out of range"),
		Entry("mask beyond width",
			[]enctree.Entry{{Name: "x", Mask: 0x1FFFF, Match: 0}}, 16, "exceeds 16 bits"),
		Entry("match outside mask",
			[]enctree.Entry{{Name: "x", Mask: 0x7F, Match: 0x80}}, 32, "outside mask"),
		Entry("field not fixed",
			[]enctree.Entry{{Name: "x", Mask: 0x7F, Match: 0, Fields: []arch.RangeSpec{{Upper: 7, Lower: 0}}}}, 32, "not fixed"),
		Entry("overlapping fields",
			[]enctree.Entry{{Name: "x", Mask: 0x7F, Match: 0, Fields: []arch.RangeSpec{{Upper: 6, Lower: 0}, {Upper: 3, Lower: 2}}}}, 32, "overlaps"),
	)

	Context("with allocator output", func() {
		var instrs []*arch.Instruction

		BeforeEach(func() {
			reg := func(name string) operands.Named {
				return operands.Named{Name: name, Operand: operands.Operand{Width: 32}}
			}
			imm := func(name string, width int) operands.Named {
				return operands.Named{Name: name, Operand: operands.Operand{Width: width, Immediate: true}}
			}
			shapes := [][]operands.Named{
				{reg("rd"), reg("rs1"), reg("rs2")},
				{reg("rd"), reg("rs1"), imm("imm", 12)},
				{reg("rd"), reg("rs1"), reg("rs2"), reg("rs3")},
				{reg("rd"), reg("rs1")},
				{reg("rd"), reg("rs1"), imm("imm", 5)},
				{reg("rs1"), reg("rs2"), imm("imm", 12)},
				{reg("rd"), imm("imm", 5), imm("imm2", 5), imm("imm3", 5)},
			}

			encoder := alloc.NewEncoder()
			instrs = nil
			for n := 0; n < 24; n++ {
				i := &arch.Instruction{
					Name:     fmt.Sprintf("x.op%d", n),
					Operands: operands.Set(shapes[n%len(shapes)]),
				}
				a, err := encoder.Allocate(i)
				Expect(err).NotTo(HaveOccurred())
				Expect(a.Apply()).To(Succeed())
				instrs = append(instrs, i)
			}
		})

		It("should derive fields from the fixed parts of the encoding", func() {
			e := enctree.EntryFromInstruction(instrs[0])
			Expect(e.Fields).To(ConsistOf(
				arch.RangeSpec{Upper: 31, Lower: 25},
				arch.RangeSpec{Upper: 14, Lower: 12},
				arch.RangeSpec{Upper: 6, Lower: 0},
			))
			Expect(e.Mask).To(Equal(uint64(0xFE00707F)))
		})

		It("should give every instruction exactly one leaf", func() {
			groups := enctree.GroupByWidth(instrs)
			Expect(groups).To(HaveLen(1))
			Expect(groups[0].Width).To(Equal(32))

			trees, err := enctree.NewBuilder().BuildGroups(groups)
			Expect(err).NotTo(HaveOccurred())
			Expect(trees).To(HaveLen(1))
			checkTree(trees[0], groups[0].Entries)
		})
	})

	Describe("BuildGroups", func() {
		It("should build every width independently and keep group order", func() {
			groups := []enctree.Group{
				{Width: 16, Entries: []enctree.Entry{
					{Name: "c.a", Mask: 0xE003, Match: 0x0001},
					{Name: "c.b", Mask: 0xE003, Match: 0x2001},
				}},
				{Width: 32, Entries: []enctree.Entry{
					{Name: "a", Mask: 0x707F, Match: 0x0013},
					{Name: "b", Mask: 0x707F, Match: 0x1013},
				}},
			}
			trees, err := enctree.NewBuilder().BuildGroups(groups)
			Expect(err).NotTo(HaveOccurred())
			Expect(trees[0].Size).To(Equal(16))
			Expect(trees[1].Size).To(Equal(32))
			checkTree(trees[0], groups[0].Entries)
			checkTree(trees[1], groups[1].Entries)
		})

		It("should name the width of a failing group", func() {
			groups := []enctree.Group{
				{Width: 16, Entries: []enctree.Entry{
					{Name: "dup1", Mask: 0x3, Match: 0x1},
					{Name: "dup2", Mask: 0x3, Match: 0x1},
				}},
			}
			_, err := enctree.NewBuilder().BuildGroups(groups)
			Expect(err).To(MatchError(ContainSubstring("16-bit instructions")))

			var conflict *enctree.EncodingSpaceConflictError
			Expect(errors.As(err, &conflict)).To(BeTrue())
		})
	})
})
