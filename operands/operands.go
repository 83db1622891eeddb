// Package operands provides the operand model of custom instructions.
//
// Operands are declared with possibly ambiguous widths and signedness
// (ComplexOperand) and are expanded into fully concrete operand sets before
// an encoding is allocated for them. It supports:
//   - Expansion of ambiguous operand declarations into every concrete set
//   - Classification into immediates, input registers and output registers
//   - Emission of behavior IR references for each operand
//
// Usage:
//
//	sets, err := operands.Expand([]operands.NamedComplex{
//		{Name: "rd", Operand: operands.ComplexOperand{Widths: []int{32}, Signs: []string{"u"}}},
//		{Name: "rs1", Operand: operands.ComplexOperand{Widths: []int{8, 16}, Signs: []string{"us"}}},
//	})
//	imms, ins, outs := operands.Classify(sets[0])
package operands

import (
	"fmt"
	"strings"
)

// XLEN is the machine word width registers are assumed to have.
const XLEN = 32

// RegisterIndexWidth is the width of a register index field.
const RegisterIndexWidth = 5

// Operand is a fully resolved instruction operand.
type Operand struct {
	Width     int  // Bit width (>= 1)
	Signed    bool // Signedness of the value
	Immediate bool // true for immediates, false for registers
}

// SignString returns "s" for signed and "u" for unsigned operands.
func (o Operand) SignString() string {
	if o.Signed {
		return "s"
	}
	return "u"
}

// String returns a compact description such as "imm:s12" or "reg:u32".
func (o Operand) String() string {
	kind := "reg"
	if o.Immediate {
		kind = "imm"
	}
	return fmt.Sprintf("%s:%s%d", kind, o.SignString(), o.Width)
}

// PrettyWidth returns the mnemonic suffix for sub-word operands.
func (o Operand) PrettyWidth() string {
	switch o.Width {
	case 16:
		return ".w"
	case 8:
		return ".b"
	default:
		return ""
	}
}

// Named binds an operand to its name.
type Named struct {
	Name    string
	Operand Operand
}

// Set is an ordered name to operand mapping for one instruction.
// Declaration order is significant: it decides register field placement.
type Set []Named

// Lookup returns the operand with the given name.
func (s Set) Lookup(name string) (Operand, bool) {
	for _, n := range s {
		if n.Name == name {
			return n.Operand, true
		}
	}
	return Operand{}, false
}

// Names returns the operand names in declaration order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, n := range s {
		names[i] = n.Name
	}
	return names
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// String lists the operands as "name=desc" pairs.
func (s Set) String() string {
	parts := make([]string, len(s))
	for i, n := range s {
		parts[i] = n.Name + "=" + n.Operand.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// IsSourceRegister reports whether a register name follows the source
// register convention (rs1, rs2, ...).
func IsSourceRegister(name string) bool {
	return strings.HasPrefix(name, "rs")
}

// Classify partitions a set into immediates, input registers and output
// registers, each in declaration order.
func Classify(s Set) (immediates, inputs, outputs Set) {
	for _, n := range s {
		switch {
		case n.Operand.Immediate:
			immediates = append(immediates, n)
		case IsSourceRegister(n.Name):
			inputs = append(inputs, n)
		default:
			outputs = append(outputs, n)
		}
	}
	return immediates, inputs, outputs
}
