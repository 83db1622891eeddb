package enctree

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/sarchlab/m2isa/arch"
)

// Entry is one instruction handed to the builder.
type Entry struct {
	Name  string
	Mask  uint64
	Match uint64
	// Fields lists the fixed ranges the builder may branch on. Mask bits not
	// covered by any field are added as maximal runs.
	Fields []arch.RangeSpec
}

// EntryFromInstruction derives an entry from an encoded instruction. The
// fixed fields of its encoding become the candidate ranges; without an
// encoding the ranges are the runs of its mask.
func EntryFromInstruction(instr *arch.Instruction) Entry {
	e := Entry{Name: instr.Name, Mask: instr.Mask, Match: instr.Code}
	for _, fr := range instr.Encoding.FixedRanges() {
		e.Fields = append(e.Fields, fr.Bits)
	}
	return e
}

// maskRuns returns the maximal runs of set bits, lowest first.
func maskRuns(mask uint64) []arch.RangeSpec {
	var runs []arch.RangeSpec
	for mask != 0 {
		lower := bits.TrailingZeros64(mask)
		length := bits.TrailingZeros64(^(mask >> uint(lower)))
		r := arch.RangeSpec{Upper: lower + length - 1, Lower: lower}
		runs = append(runs, r)
		mask &^= r.Mask()
	}
	return runs
}

// normalize validates the entry against the word width and returns its
// complete, disjoint field list ordered lowest first.
func (e Entry) normalize(width int) ([]arch.RangeSpec, error) {
	word := arch.MaskOf(width-1, 0)
	if e.Mask&^word != 0 {
		return nil, fmt.Errorf("instruction %s: mask %#x exceeds %d bits", e.Name, e.Mask, width)
	}
	if e.Match&^e.Mask != 0 {
		return nil, fmt.Errorf("instruction %s: match %#x has bits outside mask %#x", e.Name, e.Match, e.Mask)
	}

	var covered uint64
	fields := make([]arch.RangeSpec, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Lower < 0 || f.Upper < f.Lower || f.Upper >= width {
			return nil, fmt.Errorf("instruction %s: field %s outside %d-bit word", e.Name, f, width)
		}
		if f.Mask()&^e.Mask != 0 {
			return nil, fmt.Errorf("instruction %s: field %s is not fixed", e.Name, f)
		}
		if f.Mask()&covered != 0 {
			return nil, fmt.Errorf("instruction %s: field %s overlaps another field", e.Name, f)
		}
		covered |= f.Mask()
		fields = append(fields, f)
	}
	fields = append(fields, maskRuns(e.Mask&^covered)...)

	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Lower < fields[j].Lower
	})
	return fields, nil
}

// value extracts the bits of r from match.
func value(match uint64, r arch.RangeSpec) uint64 {
	return (match & r.Mask()) >> uint(r.Lower)
}
