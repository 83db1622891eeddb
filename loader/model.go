// Package loader reads and writes instruction-set models as JSON files.
package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sarchlab/m2isa/arch"
	"github.com/sarchlab/m2isa/operands"
)

type options struct {
	logger zerolog.Logger
}

// Option configures Load and Decode.
type Option func(*options)

// WithLogger sets the logger receiving the version mismatch warning.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Load reads a model file.
func Load(path string, opts ...Option) (*arch.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer func() { _ = f.Close() }()

	model, err := Decode(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

// Decode reads a model. A version other than arch.ModelVersion is logged
// as a warning and loading continues.
func Decode(r io.Reader, opts ...Option) (*arch.Model, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	var file File
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}

	if file.ModelVersion != arch.ModelVersion {
		o.logger.Warn().
			Int("file", file.ModelVersion).
			Int("supported", arch.ModelVersion).
			Msg("loaded model version mismatch")
	}

	model := arch.NewModel()
	for _, sf := range file.Cores {
		set, err := toSet(sf)
		if err != nil {
			return nil, err
		}
		model.Cores = append(model.Cores, set)
	}
	for _, sf := range file.Sets {
		set, err := toSet(sf)
		if err != nil {
			return nil, err
		}
		model.Sets = append(model.Sets, set)
	}
	return model, nil
}

func toSet(sf SetFile) (*arch.InstructionSet, error) {
	set := arch.NewInstructionSet(sf.Name)
	names := make(map[string]bool)
	for _, inf := range sf.Instructions {
		instrs, err := toInstructions(inf)
		if err != nil {
			return nil, fmt.Errorf("instruction set %s: %w", sf.Name, err)
		}
		for _, instr := range instrs {
			if names[instr.Name] {
				return nil, fmt.Errorf("instruction set %s: duplicate instruction %s", sf.Name, instr.Name)
			}
			names[instr.Name] = true
			if err := set.Add(instr); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}

// isImmediate treats operands as immediates when flagged, or when the flag
// is absent and the name contains "imm".
func isImmediate(of OperandFile) bool {
	if of.Immediate != nil {
		return *of.Immediate
	}
	return strings.Contains(of.Name, "imm")
}

func toComplex(of OperandFile) operands.NamedComplex {
	c := operands.ComplexOperand{
		Widths:    of.Widths,
		Signs:     of.Signs,
		Immediate: isImmediate(of),
	}
	if len(c.Widths) == 0 && of.Width != 0 {
		c.Widths = []int{of.Width}
	}
	if len(c.Signs) == 0 {
		sign := of.Sign
		if sign == "" {
			sign = operands.SignUnsigned
		}
		c.Signs = []string{sign}
	}
	return operands.NamedComplex{Name: of.Name, Operand: c}
}

// toInstructions expands an instruction declaration into one instruction
// per concrete operand set.
func toInstructions(inf InstructionFile) ([]*arch.Instruction, error) {
	decls := make([]operands.NamedComplex, len(inf.Operands))
	for i, of := range inf.Operands {
		decls[i] = toComplex(of)
	}
	sets, err := operands.Expand(decls)
	if err != nil {
		return nil, fmt.Errorf("instruction %s: %w", inf.Name, err)
	}

	var enc arch.Encoding
	if len(inf.Encoding) > 0 {
		if len(sets) > 1 {
			return nil, fmt.Errorf("instruction %s: an encoding cannot be shared by %d variants", inf.Name, len(sets))
		}
		enc, err = toEncoding(inf.Encoding)
		if err != nil {
			return nil, fmt.Errorf("instruction %s: %w", inf.Name, err)
		}
	}

	instrs := make([]*arch.Instruction, 0, len(sets))
	for _, s := range sets {
		instr := &arch.Instruction{
			Name:     variantName(inf.Name, s),
			Size:     inf.Size,
			Operands: s,
		}
		if enc != nil {
			if err := instr.SetEncoding(enc); err != nil {
				return nil, err
			}
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

// variantName fills {op.width} and {op.sign} placeholders.
func variantName(template string, s operands.Set) string {
	if !strings.Contains(template, "{") {
		return template
	}
	pairs := make([]string, 0, 4*len(s))
	for _, n := range s {
		pairs = append(pairs,
			"{"+n.Name+".width}", n.Operand.PrettyWidth(),
			"{"+n.Name+".sign}", n.Operand.SignString())
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func toEncoding(fields []FieldFile) (arch.Encoding, error) {
	enc := make(arch.Encoding, 0, len(fields))
	for i, ff := range fields {
		switch {
		case ff.Value != nil:
			if ff.Length <= 0 {
				return nil, fmt.Errorf("encoding field %d: constant without length", i)
			}
			enc = append(enc, arch.BitVal{Length: ff.Length, Value: *ff.Value})
		case ff.Field != "":
			enc = append(enc, arch.BitField{
				Name:  ff.Field,
				Range: arch.RangeSpec{Upper: ff.Upper, Lower: ff.Lower},
				Type:  arch.TypeOf(ff.Signed),
			})
		default:
			return nil, fmt.Errorf("encoding field %d: neither a value nor an operand", i)
		}
	}
	return enc, nil
}

// Save writes a model file.
func Save(path string, model *arch.Model) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}

	if err := Encode(f, model); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// Encode writes a model as indented JSON. Encoded instructions come first,
// ordered by name, followed by the unencoded ones in declaration order.
func Encode(w io.Writer, model *arch.Model) error {
	file := File{ModelVersion: arch.ModelVersion}
	for _, set := range model.Cores {
		file.Cores = append(file.Cores, fromSet(set))
	}
	for _, set := range model.Sets {
		file.Sets = append(file.Sets, fromSet(set))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("failed to serialize model: %w", err)
	}
	return nil
}

func fromSet(set *arch.InstructionSet) SetFile {
	sf := SetFile{Name: set.Name, Instructions: []InstructionFile{}}
	for _, instr := range set.Encoded() {
		sf.Instructions = append(sf.Instructions, fromInstruction(instr))
	}
	for _, instr := range set.Unencoded {
		sf.Instructions = append(sf.Instructions, fromInstruction(instr))
	}
	return sf
}

func fromInstruction(instr *arch.Instruction) InstructionFile {
	inf := InstructionFile{Name: instr.Name, Size: instr.Size}
	for _, n := range instr.Operands {
		imm := n.Operand.Immediate
		inf.Operands = append(inf.Operands, OperandFile{
			Name:      n.Name,
			Width:     n.Operand.Width,
			Sign:      n.Operand.SignString(),
			Immediate: &imm,
		})
	}
	for _, f := range instr.Encoding {
		switch f := f.(type) {
		case arch.BitVal:
			v := f.Value
			inf.Encoding = append(inf.Encoding, FieldFile{Length: f.Length, Value: &v})
		case arch.BitField:
			inf.Encoding = append(inf.Encoding, FieldFile{
				Field:  f.Name,
				Upper:  f.Range.Upper,
				Lower:  f.Range.Lower,
				Signed: f.Type == arch.Signed,
			})
		}
	}
	return inf
}
