package alloc

import (
	"fmt"

	"github.com/sarchlab/m2isa/arch"
)

// EncodeSet encodes every unencoded instruction of a set and re-keys them
// into its encoded instructions.
//
// The set is changed only when every instruction was encoded and no new key
// collides with an existing one.
func (e *Encoder) EncodeSet(set *arch.InstructionSet) ([]*Allocation, error) {
	allocs := make([]*Allocation, 0, len(set.Unencoded))
	keys := make(map[arch.Key]string, len(set.Unencoded))
	staged := make([]arch.Instruction, 0, len(set.Unencoded))
	for _, instr := range set.Unencoded {
		a, err := e.Allocate(instr)
		if err != nil {
			return nil, fmt.Errorf("instruction set %s: %w", set.Name, err)
		}

		key := a.Key()
		if other, ok := set.Instructions[key]; ok {
			return nil, fmt.Errorf("instruction set %s: %s collides with encoded instruction %s at %s",
				set.Name, instr.Name, other.Name, key)
		}
		if other, ok := keys[key]; ok {
			return nil, fmt.Errorf("instruction set %s: %s collides with %s at %s",
				set.Name, instr.Name, other, key)
		}
		applied, err := a.applied()
		if err != nil {
			return nil, fmt.Errorf("instruction set %s: %w", set.Name, err)
		}
		keys[key] = instr.Name
		allocs = append(allocs, a)
		staged = append(staged, applied)
	}

	for i, a := range allocs {
		*a.Instruction = staged[i]
		set.Instructions[a.Instruction.Key()] = a.Instruction
	}
	set.Unencoded = nil

	return allocs, nil
}

// EncodeModel encodes the cores and then the sets of a model. The pool is
// reset before each core or set; sets without unencoded instructions are
// skipped. The first error aborts the run.
func (e *Encoder) EncodeModel(model *arch.Model) ([]*Allocation, error) {
	var all []*Allocation
	for _, set := range model.All() {
		if len(set.Unencoded) == 0 {
			continue
		}

		e.Reset()
		allocs, err := e.EncodeSet(set)
		if err != nil {
			return nil, err
		}

		e.logger.Info().
			Str("set", set.Name).
			Int("encoded", len(allocs)).
			Int("remaining", e.pool.I.Remaining()).
			Msg("encoded instruction set")
		all = append(all, allocs...)
	}
	return all, nil
}
