package enctree

import (
	"fmt"
	"strings"
)

// Conflict describes one instruction of an unresolvable group.
type Conflict struct {
	Index int // position in the entries passed to Build
	Name  string
	Mask  uint64
	Match uint64
}

// EncodingSpaceConflictError is returned when no field, fixed or
// synthesized, separates the instructions of a group.
type EncodingSpaceConflictError struct {
	Width     int
	Conflicts []Conflict
}

func (e *EncodingSpaceConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("%s (#%d mask=%0*x match=%0*x)",
			c.Name, c.Index, (e.Width+3)/4, c.Mask, (e.Width+3)/4, c.Match)
	}
	return fmt.Sprintf("encoding space conflict between %d instructions: %s",
		len(e.Conflicts), strings.Join(parts, ", "))
}

// Names returns the names of the conflicting instructions.
func (e *EncodingSpaceConflictError) Names() []string {
	names := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		names[i] = c.Name
	}
	return names
}
