package operands

import (
	"fmt"
)

// Sign specifiers accepted by ComplexOperand.
const (
	SignUnsigned  = "u"
	SignSigned    = "s"
	SignAmbiguous = "us"
	// SignAmbiguousAlt is accepted as a synonym of SignAmbiguous.
	SignAmbiguousAlt = "su"
)

// ComplexOperand is an operand declaration with candidate widths and signs.
//
// Signs holds either one specifier applied to every width, or one specifier
// per width.
type ComplexOperand struct {
	Widths    []int
	Signs     []string
	Immediate bool
}

// NamedComplex binds a complex operand to its name.
type NamedComplex struct {
	Name    string
	Operand ComplexOperand
}

// Variants returns every concrete operand the declaration stands for, in
// width order. An ambiguous sign yields the unsigned variant first.
func Variants(c ComplexOperand) ([]Operand, error) {
	if len(c.Widths) == 0 {
		return nil, fmt.Errorf("operand declares no width")
	}
	if len(c.Signs) == 0 {
		return nil, fmt.Errorf("operand declares no sign")
	}
	if len(c.Signs) > 1 && len(c.Signs) != len(c.Widths) {
		return nil, fmt.Errorf("%d signs neither match %d widths nor are a single sign",
			len(c.Signs), len(c.Widths))
	}

	var out []Operand
	for i, w := range c.Widths {
		if w < 1 {
			return nil, fmt.Errorf("invalid operand width %d", w)
		}

		sign := c.Signs[0]
		if len(c.Signs) > 1 {
			sign = c.Signs[i]
		}

		switch sign {
		case SignUnsigned:
			out = append(out, Operand{Width: w, Immediate: c.Immediate})
		case SignSigned:
			out = append(out, Operand{Width: w, Signed: true, Immediate: c.Immediate})
		case SignAmbiguous, SignAmbiguousAlt:
			out = append(out,
				Operand{Width: w, Immediate: c.Immediate},
				Operand{Width: w, Signed: true, Immediate: c.Immediate})
		default:
			return nil, fmt.Errorf("unknown sign specifier %q", sign)
		}
	}
	return out, nil
}

// Expand turns complex operand declarations into every concrete operand set.
//
// The result is the strict cross product of each operand's variants, with
// the first operand varying slowest. No operands yield a single empty set.
func Expand(ops []NamedComplex) ([]Set, error) {
	sets := []Set{{}}
	for _, op := range ops {
		variants, err := Variants(op.Operand)
		if err != nil {
			return nil, fmt.Errorf("operand %s: %w", op.Name, err)
		}

		next := make([]Set, 0, len(sets)*len(variants))
		for _, s := range sets {
			for _, v := range variants {
				combo := make(Set, len(s), len(s)+1)
				copy(combo, s)
				next = append(next, append(combo, Named{Name: op.Name, Operand: v}))
			}
		}
		sets = next
	}
	return sets, nil
}
