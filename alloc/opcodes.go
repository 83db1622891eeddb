// Package alloc synthesizes encodings for custom instructions.
//
// Opcode space is drawn from a finite pool of major opcodes. Each major
// opcode offers eight funct3 values; funct-N allocators further split one
// (funct3, major) pair into 2^N funct values. A fixed table of formats maps
// the operand shape of an instruction to a field layout.
//
// Usage:
//
//	enc := alloc.NewEncoder(alloc.WithLogger(logger))
//	a, err := enc.Allocate(instr)
//	if err != nil {
//		return err
//	}
//	err = a.Apply()
package alloc

// Major opcodes reserved for custom extensions of a 32-bit RISC-V word.
const (
	MajorCustom0 uint64 = 0b000_1011
	MajorCustom1 uint64 = 0b010_1011
	MajorCustom2 uint64 = 0b101_1011
	MajorCustom3 uint64 = 0b111_1011
)

// Field widths shared by every format.
const (
	OpcodeWidth   = 7
	Funct3Width   = 3
	RegisterWidth = 5
	// InstructionWidth is the width of every synthesized encoding.
	InstructionWidth = 32
)

const funct3Count = 1 << Funct3Width

// DefaultMajors returns the default pool in consumption order.
func DefaultMajors() []uint64 {
	return []uint64{MajorCustom3, MajorCustom2, MajorCustom1, MajorCustom0}
}

// OpcodeAllocator hands out unique (funct3, major) pairs.
type OpcodeAllocator struct {
	initial []uint64
	majors  []uint64

	major     uint64
	hasMajor  bool
	funct3    uint64
	allocated int
}

// NewOpcodeAllocator creates an allocator consuming majors in order.
func NewOpcodeAllocator(majors []uint64) *OpcodeAllocator {
	a := &OpcodeAllocator{initial: append([]uint64(nil), majors...)}
	a.Reset()
	return a
}

// Allocate returns the next free (funct3, major) pair.
func (a *OpcodeAllocator) Allocate() (funct3, major uint64, err error) {
	if !a.hasMajor || a.funct3 >= funct3Count {
		if len(a.majors) == 0 {
			return 0, 0, &PoolExhaustedError{Allocated: a.allocated}
		}
		a.major = a.majors[0]
		a.majors = a.majors[1:]
		a.hasMajor = true
		a.funct3 = 0
	}

	funct3 = a.funct3
	a.funct3++
	a.allocated++
	return funct3, a.major, nil
}

// Remaining returns how many pairs can still be allocated.
func (a *OpcodeAllocator) Remaining() int {
	n := len(a.majors) * funct3Count
	if a.hasMajor {
		n += funct3Count - int(a.funct3)
	}
	return n
}

// Reset restores the initial pool.
func (a *OpcodeAllocator) Reset() {
	a.majors = append([]uint64(nil), a.initial...)
	a.major = 0
	a.hasMajor = false
	a.funct3 = 0
	a.allocated = 0
}

// FunctNAllocator adds an N-bit funct field on top of an OpcodeAllocator,
// drawing a fresh (funct3, major) pair whenever its funct space is used up.
type FunctNAllocator struct {
	base *OpcodeAllocator
	n    int

	functN uint64
	funct3 uint64
	major  uint64
	has    bool
}

// NewFunctNAllocator creates an N-bit funct allocator over base.
func NewFunctNAllocator(base *OpcodeAllocator, n int) *FunctNAllocator {
	return &FunctNAllocator{base: base, n: n}
}

// N returns the funct field width.
func (f *FunctNAllocator) N() int {
	return f.n
}

// Allocate returns the next free (functN, funct3, major) triple.
func (f *FunctNAllocator) Allocate() (functN, funct3, major uint64, err error) {
	if !f.has || f.functN >= uint64(1)<<uint(f.n) {
		f3, mj, err := f.base.Allocate()
		if err != nil {
			return 0, 0, 0, err
		}
		f.funct3, f.major = f3, mj
		f.functN = 0
		f.has = true
	}

	functN = f.functN
	f.functN++
	return functN, f.funct3, f.major, nil
}

// Reset forgets the current pair. The base allocator is not reset.
func (f *FunctNAllocator) Reset() {
	f.functN, f.funct3, f.major = 0, 0, 0
	f.has = false
}

// PoolState is a snapshot of every allocator cursor in a Pool.
type PoolState struct {
	Majors    []uint64
	Major     uint64
	HasMajor  bool
	Funct3    uint64
	Allocated int
	Funct7    FunctState
	Funct2    FunctState
}

// FunctState is the cursor of a FunctNAllocator.
type FunctState struct {
	FunctN uint64
	Funct3 uint64
	Major  uint64
	Active bool
}

// Pool owns the allocators of one encoding run: the plain (funct3, major)
// allocator of I-type formats and the funct7 and funct2 allocators sharing
// its opcode space.
type Pool struct {
	I  *OpcodeAllocator
	F7 *FunctNAllocator
	F2 *FunctNAllocator
}

// NewPool creates a pool over the given majors, or DefaultMajors when none
// are given.
func NewPool(majors ...uint64) *Pool {
	if len(majors) == 0 {
		majors = DefaultMajors()
	}
	base := NewOpcodeAllocator(majors)
	return &Pool{
		I:  base,
		F7: NewFunctNAllocator(base, 7),
		F2: NewFunctNAllocator(base, 2),
	}
}

// Reset restores the pool to its initial state. Call it between
// independent encoding runs.
func (p *Pool) Reset() {
	p.I.Reset()
	p.F7.Reset()
	p.F2.Reset()
}

// State returns a snapshot of the pool cursors.
func (p *Pool) State() PoolState {
	return PoolState{
		Majors:    append([]uint64(nil), p.I.majors...),
		Major:     p.I.major,
		HasMajor:  p.I.hasMajor,
		Funct3:    p.I.funct3,
		Allocated: p.I.allocated,
		Funct7:    p.F7.state(),
		Funct2:    p.F2.state(),
	}
}

func (f *FunctNAllocator) state() FunctState {
	return FunctState{FunctN: f.functN, Funct3: f.funct3, Major: f.major, Active: f.has}
}
