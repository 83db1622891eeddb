package operands

import (
	"fmt"

	"github.com/sarchlab/m2isa/behav"
)

// RegisterFile is the name of the general purpose register file.
const RegisterFile = "X"

// Reference returns the behavior IR access for an operand: an indexed
// register access for registers, a named access for immediates.
//
// With cast set, operands narrower than XLEN get a sized conversion and
// signed full-width operands an unsized signed conversion.
func (o Operand) Reference(name string, cast bool) behav.Node {
	var ref behav.Node
	if o.Immediate {
		ref = behav.NamedReference{Name: name, Width: o.Width, Signed: o.Signed}
	} else {
		ref = behav.IndexedReference{
			Memory: RegisterFile,
			Index:  behav.NamedReference{Name: name, Width: RegisterIndexWidth, Signed: o.Signed},
		}
	}

	if !cast {
		return ref
	}
	if o.Width < XLEN {
		return behav.TypeConv{Signed: o.Signed, Width: o.Width, Expr: ref}
	}
	if o.Signed {
		return behav.TypeConv{Signed: true, Expr: ref}
	}
	return ref
}

// EmitReference returns the casted reference for a named operand.
func EmitReference(n Named) behav.Node {
	return n.Operand.Reference(n.Name, true)
}

// References returns the casted reference for every operand of a set.
func References(s Set) map[string]behav.Node {
	refs := make(map[string]behav.Node, len(s))
	for _, n := range s {
		refs[n.Name] = EmitReference(n)
	}
	return refs
}

// SIMDSlices splits a register operand into XLEN/Width lane slices, lowest
// lane first.
func (o Operand) SIMDSlices(name string) ([]behav.SliceOperation, error) {
	if o.Immediate {
		return nil, fmt.Errorf("immediate %s cannot be sliced", name)
	}
	if XLEN%o.Width != 0 {
		return nil, fmt.Errorf("operand %s width %d cannot be packed into XLEN %d", name, o.Width, XLEN)
	}

	lanes := XLEN / o.Width
	slices := make([]behav.SliceOperation, 0, lanes)
	for l := 0; l < lanes; l++ {
		slices = append(slices, behav.SliceOperation{
			Expr:  o.Reference(name, true),
			Left:  behav.IntLiteral{Value: int64(o.Width*(l+1) - 1)},
			Right: behav.IntLiteral{Value: int64(o.Width * l)},
		})
	}
	return slices, nil
}
