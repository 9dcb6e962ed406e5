package token

import "fmt"

// Pos is a 1-based line/column source position. The zero value means
// unknown.
type Pos struct {
	Line, Col int
}

// Unknown reports whether either coordinate is unset.
func (p Pos) Unknown() bool {
	return p.Line == 0 || p.Col == 0
}

func (p Pos) String() string {
	if p.Unknown() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}
