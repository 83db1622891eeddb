package alloc

import (
	"fmt"
)

// AlreadyEncodedError is returned when an instruction that already has an
// encoding, or that was already handed to the encoder, is allocated again.
type AlreadyEncodedError struct {
	Instruction string
}

func (e *AlreadyEncodedError) Error() string {
	return fmt.Sprintf("instruction %s is already encoded", e.Instruction)
}

// UnsupportedFormatError is returned when no template matches the operand
// shape of an instruction.
type UnsupportedFormatError struct {
	Instruction string
	Immediates  int
	Inputs      int
	Outputs     int
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("instruction %s: no encoding format for %d immediates, %d input registers, %d output registers",
		e.Instruction, e.Immediates, e.Inputs, e.Outputs)
}

// PoolExhaustedError is returned when no major opcode is left.
type PoolExhaustedError struct {
	Allocated int // (funct3, major) pairs handed out before exhaustion
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("major opcode pool exhausted after %d allocations", e.Allocated)
}

// ImmediateWidthOverflowError is returned when an immediate is wider than
// the largest bucket of every format for its operand shape.
type ImmediateWidthOverflowError struct {
	Instruction string
	Operand     string
	Width       int
	Max         int
}

func (e *ImmediateWidthOverflowError) Error() string {
	return fmt.Sprintf("instruction %s: immediate %s is %d bits, at most %d bits fit",
		e.Instruction, e.Operand, e.Width, e.Max)
}
