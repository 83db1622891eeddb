// Package behav provides the small slice of the behavior IR that operand
// references are expressed in.
//
// The node set is closed: every variant implements Node, and transformation
// code lives in Visitor implementations instead of on the nodes themselves.
//
// Usage:
//
//	ref := behav.IndexedReference{Memory: "X", Index: behav.NamedReference{Name: "rs1", Width: 5}}
//	text := behav.Print(ref) // X[rs1]
package behav

import (
	"fmt"
	"strings"
)

// Node is a behavior IR node. The unexported marker keeps the variant set
// closed to this package.
type Node interface {
	Accept(v Visitor) any
	node()
}

// Visitor dispatches over every Node variant.
type Visitor interface {
	VisitNamedReference(n NamedReference) any
	VisitIndexedReference(n IndexedReference) any
	VisitTypeConv(n TypeConv) any
	VisitIntLiteral(n IntLiteral) any
	VisitSliceOperation(n SliceOperation) any
}

// NamedReference refers to an encoding bit-field or other named value.
type NamedReference struct {
	Name   string
	Width  int
	Signed bool
}

// IndexedReference indexes a memory or register file.
type IndexedReference struct {
	Memory string
	Index  Node
}

// TypeConv converts Expr to the given signedness. Width 0 keeps the width
// of Expr.
type TypeConv struct {
	Signed bool
	Width  int
	Expr   Node
}

// IntLiteral is an integer constant.
type IntLiteral struct {
	Value int64
}

// SliceOperation extracts bits [Left:Right] of Expr.
type SliceOperation struct {
	Expr  Node
	Left  Node
	Right Node
}

func (NamedReference) node()   {}
func (IndexedReference) node() {}
func (TypeConv) node()         {}
func (IntLiteral) node()       {}
func (SliceOperation) node()   {}

// Accept implements Node.
func (n NamedReference) Accept(v Visitor) any { return v.VisitNamedReference(n) }

// Accept implements Node.
func (n IndexedReference) Accept(v Visitor) any { return v.VisitIndexedReference(n) }

// Accept implements Node.
func (n TypeConv) Accept(v Visitor) any { return v.VisitTypeConv(n) }

// Accept implements Node.
func (n IntLiteral) Accept(v Visitor) any { return v.VisitIntLiteral(n) }

// Accept implements Node.
func (n SliceOperation) Accept(v Visitor) any { return v.VisitSliceOperation(n) }

// Print renders a node in CoreDSL-like syntax.
func Print(n Node) string {
	return n.Accept(printer{}).(string)
}

type printer struct{}

func (p printer) VisitNamedReference(n NamedReference) any {
	return n.Name
}

func (p printer) VisitIndexedReference(n IndexedReference) any {
	return fmt.Sprintf("%s[%s]", n.Memory, Print(n.Index))
}

func (p printer) VisitTypeConv(n TypeConv) any {
	var b strings.Builder
	b.WriteByte('(')
	if n.Signed {
		b.WriteString("signed")
	} else {
		b.WriteString("unsigned")
	}
	if n.Width > 0 {
		fmt.Fprintf(&b, "<%d>", n.Width)
	}
	b.WriteByte(')')
	b.WriteString(Print(n.Expr))
	return b.String()
}

func (p printer) VisitIntLiteral(n IntLiteral) any {
	return fmt.Sprintf("%d", n.Value)
}

func (p printer) VisitSliceOperation(n SliceOperation) any {
	return fmt.Sprintf("%s[%s:%s]", Print(n.Expr), Print(n.Left), Print(n.Right))
}
