package loader

// File is the on-disk layout of a model.
type File struct {
	ModelVersion int       `json:"model_version"`
	Cores        []SetFile `json:"cores,omitempty"`
	Sets         []SetFile `json:"sets,omitempty"`
}

// SetFile is one core or instruction set.
type SetFile struct {
	Name         string            `json:"name"`
	Instructions []InstructionFile `json:"instructions"`
}

// InstructionFile declares an instruction, or a family of instructions when
// an operand lists several widths or an ambiguous sign. The name of a family
// member may refer to its operands with {op.width} and {op.sign}.
type InstructionFile struct {
	Name     string        `json:"name"`
	Size     int           `json:"size,omitempty"`
	Operands []OperandFile `json:"operands,omitempty"`
	Encoding []FieldFile   `json:"encoding,omitempty"`
}

// OperandFile declares one operand. Either Width or Widths is set; Sign is
// one of u, s, us or su and applies to every width unless Signs is given.
type OperandFile struct {
	Name      string   `json:"name"`
	Width     int      `json:"width,omitempty"`
	Widths    []int    `json:"widths,omitempty"`
	Sign      string   `json:"sign,omitempty"`
	Signs     []string `json:"signs,omitempty"`
	Immediate *bool    `json:"immediate,omitempty"`
}

// FieldFile is one encoding field, most significant first: a constant when
// Value is set, otherwise bits Upper..Lower of operand Field.
type FieldFile struct {
	Length int     `json:"length,omitempty"`
	Value  *uint64 `json:"value,omitempty"`

	Field  string `json:"field,omitempty"`
	Upper  int    `json:"upper,omitempty"`
	Lower  int    `json:"lower,omitempty"`
	Signed bool   `json:"signed,omitempty"`
}
