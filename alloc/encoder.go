package alloc

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sarchlab/m2isa/arch"
	"github.com/sarchlab/m2isa/operands"
)

// Identity is the opcode identity drawn for one instruction. No two
// allocations of one run share an Identity.
type Identity struct {
	Alloc  AllocKind
	FunctN uint64
	Funct3 uint64
	Major  uint64
}

// WidthSnap records an immediate widened to fit its format.
type WidthSnap struct {
	Operand string
	From    int
	To      int
}

// Allocation is the result of encoding one instruction. Nothing is written
// to the instruction until Apply is called.
type Allocation struct {
	Instruction *arch.Instruction
	Format      string
	Encoding    arch.Encoding
	Identity    Identity
	Snaps       []WidthSnap
	// Operands holds the instruction operands with snapped widths applied.
	Operands operands.Set
}

// Key returns the (code, mask) the instruction will be filed under.
func (a *Allocation) Key() arch.Key {
	mask, code := a.Encoding.MaskMatch()
	return arch.Key{Code: code, Mask: mask}
}

// Apply attaches the encoding and the snapped operand widths to the
// instruction.
func (a *Allocation) Apply() error {
	applied, err := a.applied()
	if err != nil {
		return err
	}
	*a.Instruction = applied
	return nil
}

// applied returns a copy of the instruction with the allocation attached.
func (a *Allocation) applied() (arch.Instruction, error) {
	instr := *a.Instruction
	if err := instr.SetEncoding(a.Encoding); err != nil {
		return arch.Instruction{}, err
	}
	instr.Operands = a.Operands
	return instr, nil
}

// Encoder allocates encodings from a Pool.
type Encoder struct {
	pool   *Pool
	logger zerolog.Logger
	seen   map[*arch.Instruction]struct{}
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithLogger sets the logger receiving width-snap events.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Encoder) {
		e.logger = logger
	}
}

// WithPool sets the opcode pool.
func WithPool(pool *Pool) Option {
	return func(e *Encoder) {
		e.pool = pool
	}
}

// WithConfig creates the opcode pool from a Config.
func WithConfig(config *Config) Option {
	return func(e *Encoder) {
		e.pool = NewPool(config.Majors...)
	}
}

// NewEncoder creates an encoder with a default pool and no logging.
func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{
		logger: zerolog.Nop(),
		seen:   make(map[*arch.Instruction]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = NewPool()
	}
	return e
}

// Pool returns the pool the encoder draws from.
func (e *Encoder) Pool() *Pool {
	return e.pool
}

// Reset starts a new independent run: the pool is restored and previously
// seen instructions are forgotten.
func (e *Encoder) Reset() {
	e.pool.Reset()
	e.seen = make(map[*arch.Instruction]struct{})
}

// Allocate synthesizes an encoding for an unencoded instruction.
//
// The instruction size and the format are checked before the pool is
// touched, so a failing call leaves the pool unchanged. An instruction can
// be handed to Allocate once per run; later calls fail with
// AlreadyEncodedError whatever the outcome of the first.
func (e *Encoder) Allocate(instr *arch.Instruction) (*Allocation, error) {
	if _, ok := e.seen[instr]; ok || instr.HasEncoding {
		return nil, &AlreadyEncodedError{Instruction: instr.Name}
	}
	e.seen[instr] = struct{}{}

	if instr.Size != 0 && instr.Size != InstructionWidth {
		return nil, fmt.Errorf("instruction %s is %d bits, encodings are %d bits",
			instr.Name, instr.Size, InstructionWidth)
	}

	imms, ins, outs := operands.Classify(instr.Operands)
	shape := Shape{Immediates: len(imms), Inputs: len(ins), Outputs: len(outs)}
	sorted := sortImmediates(imms)

	format, err := selectFormat(instr.Name, shape, sorted)
	if err != nil {
		return nil, err
	}

	id, err := e.draw(format.Alloc)
	if err != nil {
		return nil, fmt.Errorf("instruction %s: %w", instr.Name, err)
	}

	snapped := make(map[string]int)
	var snaps []WidthSnap
	for i, n := range sorted {
		bucket := format.Buckets[i]
		if n.Operand.Width != bucket {
			snaps = append(snaps, WidthSnap{Operand: n.Name, From: n.Operand.Width, To: bucket})
			e.logger.Info().
				Str("instruction", instr.Name).
				Str("operand", n.Name).
				Int("from", n.Operand.Width).
				Int("to", bucket).
				Msg("increasing operand width to fit encoding")
		}
		snapped[n.Name] = bucket
	}

	ops := instr.Operands.Clone()
	for i, n := range ops {
		if w, ok := snapped[n.Name]; ok && n.Operand.Immediate {
			ops[i].Operand.Width = w
		}
	}

	enc := format.build(id, sorted, ins, outs)
	if err := enc.Validate(InstructionWidth); err != nil {
		return nil, fmt.Errorf("format %s: %w", format.Name, err)
	}

	e.logger.Debug().
		Str("instruction", instr.Name).
		Str("format", format.Name).
		Str("encoding", enc.CoreDSL()).
		Msg("encoded instruction")

	return &Allocation{
		Instruction: instr,
		Format:      format.Name,
		Encoding:    enc,
		Identity: Identity{
			Alloc:  format.Alloc,
			FunctN: id.functN,
			Funct3: id.funct3,
			Major:  id.major,
		},
		Snaps:    snaps,
		Operands: ops,
	}, nil
}

func (e *Encoder) draw(kind AllocKind) (fieldIdentity, error) {
	switch kind {
	case AllocF7:
		fn, f3, mj, err := e.pool.F7.Allocate()
		return fieldIdentity{functN: fn, funct3: f3, major: mj, n: e.pool.F7.N()}, err
	case AllocF2:
		fn, f3, mj, err := e.pool.F2.Allocate()
		return fieldIdentity{functN: fn, funct3: f3, major: mj, n: e.pool.F2.N()}, err
	default:
		f3, mj, err := e.pool.I.Allocate()
		return fieldIdentity{funct3: f3, major: mj}, err
	}
}
