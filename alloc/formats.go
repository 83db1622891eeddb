package alloc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sarchlab/m2isa/arch"
	"github.com/sarchlab/m2isa/operands"
)

// AllocKind selects which allocator supplies the opcode identity of a format.
type AllocKind uint8

// Allocator kinds.
const (
	AllocI  AllocKind = iota // (funct3, major)
	AllocF7                  // (funct7, funct3, major)
	AllocF2                  // (funct2, funct3, major)
)

// String returns the allocator name.
func (k AllocKind) String() string {
	switch k {
	case AllocF7:
		return "funct7"
	case AllocF2:
		return "funct2"
	default:
		return "funct3"
	}
}

// Shape is the operand shape of an instruction.
type Shape struct {
	Immediates int
	Inputs     int
	Outputs    int
}

// String formats the shape as (immediates,inputs,outputs).
func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.Immediates, s.Inputs, s.Outputs)
}

type slotKind uint8

const (
	slotFunct slotKind = iota
	slotFunct3
	slotOpcode
	slotZero
	slotIn
	slotOut
	slotImm
)

// slot is one field of a format layout. index selects the operand (inputs
// and outputs in declaration order, immediates by ascending width); upper
// and lower are the operand bits of immediate slots.
type slot struct {
	kind         slotKind
	index        int
	upper, lower int
}

var (
	funct  = slot{kind: slotFunct}
	funct3 = slot{kind: slotFunct3}
	opcode = slot{kind: slotOpcode}
	zeros  = slot{kind: slotZero}
)

func in(i int) slot  { return slot{kind: slotIn, index: i} }
func out(i int) slot { return slot{kind: slotOut, index: i} }

func imm(i, upper, lower int) slot {
	return slot{kind: slotImm, index: i, upper: upper, lower: lower}
}

// Format is one row of the encoding table.
type Format struct {
	Name  string
	Shape Shape
	Alloc AllocKind
	// Buckets holds the snapped width of each immediate, narrowest first.
	// An immediate fits when its width does not exceed its bucket.
	Buckets []int

	layout []slot
}

// fits reports whether immediates sorted by width fit the buckets.
func (f *Format) fits(imms operands.Set) bool {
	for i, n := range imms {
		if n.Operand.Width > f.Buckets[i] {
			return false
		}
	}
	return true
}

// Layout describes the field order, most significant first.
func (f *Format) Layout() string {
	parts := make([]string, len(f.layout))
	for i, s := range f.layout {
		switch s.kind {
		case slotFunct:
			if f.Alloc == AllocF2 {
				parts[i] = "funct2"
			} else {
				parts[i] = "funct7"
			}
		case slotFunct3:
			parts[i] = "funct3"
		case slotOpcode:
			parts[i] = "opcode"
		case slotZero:
			parts[i] = "00000"
		case slotIn:
			parts[i] = fmt.Sprintf("in%d", s.index)
		case slotOut:
			parts[i] = fmt.Sprintf("out%d", s.index)
		case slotImm:
			parts[i] = fmt.Sprintf("imm%d[%d:%d]", s.index, s.upper, s.lower)
		}
	}
	return strings.Join(parts, " | ")
}

// formats lists every supported layout. Rows of the same shape are tried in
// order.
var formats = []*Format{
	{Name: "R0", Shape: Shape{0, 0, 0}, Alloc: AllocF7,
		layout: []slot{funct, zeros, zeros, funct3, zeros, opcode}},
	{Name: "R1-nodst", Shape: Shape{0, 1, 0}, Alloc: AllocF7,
		layout: []slot{funct, zeros, in(0), funct3, zeros, opcode}},
	{Name: "R-nodst", Shape: Shape{0, 2, 0}, Alloc: AllocF7,
		layout: []slot{funct, in(1), in(0), funct3, zeros, opcode}},
	{Name: "R4-nodst", Shape: Shape{0, 3, 0}, Alloc: AllocF2,
		layout: []slot{funct, in(2), in(1), in(0), funct3, zeros, opcode}},
	{Name: "I17-nodst", Shape: Shape{1, 1, 0}, Alloc: AllocI, Buckets: []int{17},
		layout: []slot{imm(0, 16, 5), in(0), funct3, imm(0, 4, 0), opcode}},
	{Name: "S", Shape: Shape{1, 2, 0}, Alloc: AllocI, Buckets: []int{12},
		layout: []slot{imm(0, 11, 5), in(1), in(0), funct3, imm(0, 4, 0), opcode}},
	{Name: "SI5", Shape: Shape{2, 1, 0}, Alloc: AllocI, Buckets: []int{5, 12},
		layout: []slot{imm(1, 11, 5), imm(0, 4, 0), in(0), funct3, imm(1, 4, 0), opcode}},

	{Name: "R0-dst", Shape: Shape{0, 0, 1}, Alloc: AllocF7,
		layout: []slot{funct, zeros, zeros, funct3, out(0), opcode}},
	{Name: "R1", Shape: Shape{0, 1, 1}, Alloc: AllocF7,
		layout: []slot{funct, zeros, in(0), funct3, out(0), opcode}},
	{Name: "R", Shape: Shape{0, 2, 1}, Alloc: AllocF7,
		layout: []slot{funct, in(1), in(0), funct3, out(0), opcode}},
	{Name: "R4", Shape: Shape{0, 3, 1}, Alloc: AllocF2,
		layout: []slot{funct, in(2), in(1), in(0), funct3, out(0), opcode}},
	{Name: "U17", Shape: Shape{1, 0, 1}, Alloc: AllocI, Buckets: []int{17},
		layout: []slot{imm(0, 16, 0), funct3, out(0), opcode}},
	{Name: "RI5", Shape: Shape{1, 1, 1}, Alloc: AllocF7, Buckets: []int{5},
		layout: []slot{funct, imm(0, 4, 0), in(0), funct3, out(0), opcode}},
	{Name: "I", Shape: Shape{1, 1, 1}, Alloc: AllocI, Buckets: []int{12},
		layout: []slot{imm(0, 11, 0), in(0), funct3, out(0), opcode}},
	{Name: "F2", Shape: Shape{1, 2, 1}, Alloc: AllocF2, Buckets: []int{5},
		layout: []slot{funct, imm(0, 4, 0), in(1), in(0), funct3, out(0), opcode}},
	{Name: "RII5", Shape: Shape{2, 0, 1}, Alloc: AllocF7, Buckets: []int{5, 5},
		layout: []slot{funct, imm(1, 4, 0), imm(0, 4, 0), funct3, out(0), opcode}},
	{Name: "LI16", Shape: Shape{2, 0, 1}, Alloc: AllocI, Buckets: []int{1, 16},
		layout: []slot{imm(0, 0, 0), imm(1, 15, 0), funct3, out(0), opcode}},
	{Name: "F2-RII5", Shape: Shape{2, 1, 1}, Alloc: AllocF2, Buckets: []int{5, 5},
		layout: []slot{funct, imm(1, 4, 0), imm(0, 4, 0), in(0), funct3, out(0), opcode}},
	{Name: "F2-III5", Shape: Shape{3, 0, 1}, Alloc: AllocF2, Buckets: []int{5, 5, 5},
		layout: []slot{funct, imm(2, 4, 0), imm(1, 4, 0), imm(0, 4, 0), funct3, out(0), opcode}},

	{Name: "R0-dst2", Shape: Shape{0, 0, 2}, Alloc: AllocF7,
		layout: []slot{funct, zeros, out(1), funct3, out(0), opcode}},
	{Name: "R1-dst2", Shape: Shape{0, 1, 2}, Alloc: AllocF7,
		layout: []slot{funct, in(0), out(1), funct3, out(0), opcode}},
	{Name: "F2-dst2", Shape: Shape{0, 2, 2}, Alloc: AllocF2,
		layout: []slot{funct, in(1), in(0), out(1), funct3, out(0), opcode}},
	{Name: "R0-dst3", Shape: Shape{0, 0, 3}, Alloc: AllocF7,
		layout: []slot{funct, out(2), out(1), funct3, out(0), opcode}},
	{Name: "F2-dst3", Shape: Shape{0, 1, 3}, Alloc: AllocF2,
		layout: []slot{funct, in(0), out(2), out(1), funct3, out(0), opcode}},
}

var formatsByShape = func() map[Shape][]*Format {
	m := make(map[Shape][]*Format)
	for _, f := range formats {
		m[f.Shape] = append(m[f.Shape], f)
	}
	return m
}()

// Formats returns the encoding table.
func Formats() []Format {
	out := make([]Format, len(formats))
	for i, f := range formats {
		out[i] = *f
	}
	return out
}

// sortImmediates orders immediates by ascending width, keeping declaration
// order among equal widths.
func sortImmediates(imms operands.Set) operands.Set {
	sorted := imms.Clone()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Operand.Width < sorted[j].Operand.Width
	})
	return sorted
}

// selectFormat picks the first format of the shape whose buckets fit. imms
// must be sorted by width.
func selectFormat(name string, shape Shape, imms operands.Set) (*Format, error) {
	rows, ok := formatsByShape[shape]
	if !ok {
		return nil, &UnsupportedFormatError{
			Instruction: name,
			Immediates:  shape.Immediates,
			Inputs:      shape.Inputs,
			Outputs:     shape.Outputs,
		}
	}

	for _, f := range rows {
		if f.fits(imms) {
			return f, nil
		}
	}

	largest := 0
	for _, f := range rows {
		for _, b := range f.Buckets {
			if b > largest {
				largest = b
			}
		}
	}
	for _, n := range imms {
		if n.Operand.Width > largest {
			return nil, &ImmediateWidthOverflowError{
				Instruction: name,
				Operand:     n.Name,
				Width:       n.Operand.Width,
				Max:         largest,
			}
		}
	}

	return nil, &UnsupportedFormatError{
		Instruction: name,
		Immediates:  shape.Immediates,
		Inputs:      shape.Inputs,
		Outputs:     shape.Outputs,
	}
}

// fieldIdentity is the value of every fixed identity field of a format.
type fieldIdentity struct {
	functN uint64
	funct3 uint64
	major  uint64
	n      int
}

// build lays out the encoding of a format.
func (f *Format) build(id fieldIdentity, imms, ins, outs operands.Set) arch.Encoding {
	enc := make(arch.Encoding, 0, len(f.layout))
	for _, s := range f.layout {
		switch s.kind {
		case slotFunct:
			enc = append(enc, arch.BitVal{Length: id.n, Value: id.functN})
		case slotFunct3:
			enc = append(enc, arch.BitVal{Length: Funct3Width, Value: id.funct3})
		case slotOpcode:
			enc = append(enc, arch.BitVal{Length: OpcodeWidth, Value: id.major})
		case slotZero:
			enc = append(enc, arch.BitVal{Length: RegisterWidth, Value: 0})
		case slotIn:
			enc = append(enc, arch.RegField(ins[s.index].Name))
		case slotOut:
			enc = append(enc, arch.RegField(outs[s.index].Name))
		case slotImm:
			n := imms[s.index]
			enc = append(enc, arch.BitField{
				Name:  n.Name,
				Range: arch.RangeSpec{Upper: s.upper, Lower: s.lower},
				Type:  arch.TypeOf(n.Operand.Signed),
			})
		}
	}
	return enc
}
