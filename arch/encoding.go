// Package arch provides the architectural records shared by the encoder and
// the decode tree builder: bit ranges, encoding fields, instructions,
// instruction sets and the model that groups them.
//
// An Encoding is read most-significant field first. Fixed fields (BitVal)
// contribute to the instruction's mask and code, named fields (BitField)
// carry operand bits.
//
// Usage:
//
//	enc := arch.Encoding{
//		arch.BitVal{Length: 7, Value: 0},
//		arch.RegField("rs2"),
//		arch.RegField("rs1"),
//		arch.BitVal{Length: 3, Value: 0},
//		arch.RegField("rd"),
//		arch.BitVal{Length: 7, Value: 0x7b},
//	}
//	mask, code := enc.MaskMatch() // 0xfe00707f, 0x0000007b
package arch

import (
	"fmt"
	"strings"
)

// DataType is the signedness of a bit-field.
type DataType uint8

// Data types.
const (
	Unsigned DataType = iota
	Signed
)

// String returns "u" or "s".
func (t DataType) String() string {
	if t == Signed {
		return "s"
	}
	return "u"
}

// TypeOf returns Signed when signed is true.
func TypeOf(signed bool) DataType {
	if signed {
		return Signed
	}
	return Unsigned
}

// RangeSpec is an inclusive bit range [Upper:Lower].
type RangeSpec struct {
	Upper int
	Lower int
}

// Length returns the number of bits in the range.
func (r RangeSpec) Length() int {
	return r.Upper - r.Lower + 1
}

// Mask returns the range as a bit mask.
func (r RangeSpec) Mask() uint64 {
	return MaskOf(r.Upper, r.Lower)
}

// Overlaps reports whether the two ranges share a bit.
func (r RangeSpec) Overlaps(o RangeSpec) bool {
	return r.Lower <= o.Upper && o.Lower <= r.Upper
}

// Contains reports whether o lies entirely inside r.
func (r RangeSpec) Contains(o RangeSpec) bool {
	return r.Lower <= o.Lower && o.Upper <= r.Upper
}

// String formats the range as "upper:lower".
func (r RangeSpec) String() string {
	return fmt.Sprintf("%d:%d", r.Upper, r.Lower)
}

// MaskOf returns a mask with bits [upper:lower] set.
func MaskOf(upper, lower int) uint64 {
	length := upper - lower + 1
	if length >= 64 {
		return ^uint64(0) << uint(lower)
	}
	return ((uint64(1) << uint(length)) - 1) << uint(lower)
}

// Field is one entry of an Encoding: a BitVal or a BitField.
type Field interface {
	Len() int
	field()
}

// BitVal is a fixed constant of Length bits.
type BitVal struct {
	Length int
	Value  uint64
}

// BitField places bits [Range] of the named operand.
type BitField struct {
	Name  string
	Range RangeSpec
	Type  DataType
}

func (BitVal) field()   {}
func (BitField) field() {}

// Len returns the field width.
func (v BitVal) Len() int { return v.Length }

// Len returns the field width.
func (f BitField) Len() int { return f.Range.Length() }

// String formats the constant as CoreDSL, e.g. 3'b010.
func (v BitVal) String() string {
	return fmt.Sprintf("%d'b%0*b", v.Length, v.Length, v.Value)
}

// String formats the field as name[upper:lower].
func (f BitField) String() string {
	return fmt.Sprintf("%s[%d:%d]", f.Name, f.Range.Upper, f.Range.Lower)
}

// RegField returns the 5-bit unsigned field of a register index operand.
func RegField(name string) BitField {
	return BitField{Name: name, Range: RangeSpec{Upper: 4, Lower: 0}, Type: Unsigned}
}

// Placement is a field together with the instruction bits it occupies.
type Placement struct {
	Field Field
	Bits  RangeSpec
}

// Encoding is an ordered list of fields, most significant first.
type Encoding []Field

// Width returns the sum of all field lengths.
func (e Encoding) Width() int {
	w := 0
	for _, f := range e {
		w += f.Len()
	}
	return w
}

// Placements returns every field with its position in the instruction word,
// in encoding order.
func (e Encoding) Placements() []Placement {
	out := make([]Placement, len(e))
	pos := 0
	for i := len(e) - 1; i >= 0; i-- {
		l := e[i].Len()
		out[i] = Placement{Field: e[i], Bits: RangeSpec{Upper: pos + l - 1, Lower: pos}}
		pos += l
	}
	return out
}

// FixedRanges returns the positions of all BitVal fields with their values,
// lowest field first.
func (e Encoding) FixedRanges() []FixedRange {
	var out []FixedRange
	ps := e.Placements()
	for i := len(ps) - 1; i >= 0; i-- {
		if v, ok := ps[i].Field.(BitVal); ok {
			out = append(out, FixedRange{Bits: ps[i].Bits, Value: v.Value})
		}
	}
	return out
}

// FixedRange is a fixed-value range of an instruction word.
type FixedRange struct {
	Bits  RangeSpec
	Value uint64
}

// MaskMatch returns the mask of fixed bits and their required values.
func (e Encoding) MaskMatch() (mask, match uint64) {
	for _, fr := range e.FixedRanges() {
		mask |= fr.Bits.Mask()
		match |= fr.Value << uint(fr.Bits.Lower)
	}
	return mask, match
}

// Validate checks that every field is well formed, that the fields tile
// exactly width bits, and that no operand bit is placed twice.
func (e Encoding) Validate(width int) error {
	if width < 1 || width > 64 {
		return fmt.Errorf("unsupported instruction width %d", width)
	}

	placed := make(map[string]uint64)
	for i, f := range e {
		switch f := f.(type) {
		case BitVal:
			if f.Length < 1 {
				return fmt.Errorf("field %d: constant has length %d", i, f.Length)
			}
			if f.Length < 64 && f.Value>>uint(f.Length) != 0 {
				return fmt.Errorf("field %d: value %#x does not fit %d bits", i, f.Value, f.Length)
			}
		case BitField:
			if f.Range.Lower < 0 || f.Range.Upper < f.Range.Lower {
				return fmt.Errorf("field %d: invalid range %s of %s", i, f.Range, f.Name)
			}
			m := f.Range.Mask()
			if placed[f.Name]&m != 0 {
				return fmt.Errorf("field %d: bits %s of %s placed twice", i, f.Range, f.Name)
			}
			placed[f.Name] |= m
		}
	}

	if got := e.Width(); got != width {
		return fmt.Errorf("encoding covers %d bits, expected %d", got, width)
	}
	return nil
}

// Pattern renders the encoding as a bit string: fixed bits as 0/1 and
// operand bits as '.'.
func (e Encoding) Pattern() string {
	var b strings.Builder
	for _, f := range e {
		switch f := f.(type) {
		case BitVal:
			fmt.Fprintf(&b, "%0*b", f.Length, f.Value)
		default:
			b.WriteString(strings.Repeat(".", f.Len()))
		}
	}
	return b.String()
}

// CoreDSL renders the encoding in CoreDSL syntax.
func (e Encoding) CoreDSL() string {
	parts := make([]string, len(e))
	for i, f := range e {
		parts[i] = fmt.Sprint(f)
	}
	return strings.Join(parts, " :: ")
}

// String is an alias for CoreDSL.
func (e Encoding) String() string {
	return e.CoreDSL()
}
