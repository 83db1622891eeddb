package arch

import (
	"fmt"
	"sort"

	"github.com/sarchlab/m2isa/operands"
)

// ModelVersion is the version of the in-memory model layout. Loading a model
// written with another version is allowed but reported.
const ModelVersion = 1

// Key identifies an encoded instruction by its code and mask.
type Key struct {
	Code uint64
	Mask uint64
}

// String formats the key as code:mask in hexadecimal.
func (k Key) String() string {
	return fmt.Sprintf("%08x:%08x", k.Code, k.Mask)
}

// Instruction is one instruction of an instruction set.
type Instruction struct {
	Name     string
	Size     int // instruction word width; 0 until known
	Operands operands.Set
	Encoding Encoding

	Code        uint64
	Mask        uint64
	HasEncoding bool
}

// Key returns the (code, mask) identity of an encoded instruction.
func (i *Instruction) Key() Key {
	return Key{Code: i.Code, Mask: i.Mask}
}

// SetEncoding attaches an encoding and derives size, code and mask from it.
func (i *Instruction) SetEncoding(enc Encoding) error {
	width := enc.Width()
	if i.Size != 0 && i.Size != width {
		return fmt.Errorf("instruction %s: encoding covers %d bits, instruction is %d bits",
			i.Name, width, i.Size)
	}
	if err := enc.Validate(width); err != nil {
		return fmt.Errorf("instruction %s: %w", i.Name, err)
	}

	i.Encoding = enc
	i.Size = width
	i.Mask, i.Code = enc.MaskMatch()
	i.HasEncoding = true
	return nil
}

// InstructionSet is a named group of instructions: encoded instructions keyed
// by (code, mask) and instructions still waiting for an encoding.
type InstructionSet struct {
	Name         string
	Instructions map[Key]*Instruction
	Unencoded    []*Instruction
}

// NewInstructionSet creates an empty instruction set.
func NewInstructionSet(name string) *InstructionSet {
	return &InstructionSet{
		Name:         name,
		Instructions: make(map[Key]*Instruction),
	}
}

// Add files an instruction as encoded or unencoded. Two encoded instructions
// with the same key are rejected.
func (s *InstructionSet) Add(instr *Instruction) error {
	if !instr.HasEncoding {
		s.Unencoded = append(s.Unencoded, instr)
		return nil
	}

	key := instr.Key()
	if other, ok := s.Instructions[key]; ok {
		return fmt.Errorf("instruction set %s: %s and %s share encoding %s",
			s.Name, other.Name, instr.Name, key)
	}
	s.Instructions[key] = instr
	return nil
}

// Encoded returns the encoded instructions ordered by name, then key.
func (s *InstructionSet) Encoded() []*Instruction {
	out := make([]*Instruction, 0, len(s.Instructions))
	for _, instr := range s.Instructions {
		out = append(out, instr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Mask < out[j].Mask
	})
	return out
}

// Model groups the cores and instruction sets of one description.
type Model struct {
	Version int
	Cores   []*InstructionSet
	Sets    []*InstructionSet
}

// NewModel creates an empty model of the current version.
func NewModel() *Model {
	return &Model{Version: ModelVersion}
}

// All returns the cores followed by the sets, in declaration order.
func (m *Model) All() []*InstructionSet {
	out := make([]*InstructionSet, 0, len(m.Cores)+len(m.Sets))
	out = append(out, m.Cores...)
	return append(out, m.Sets...)
}
