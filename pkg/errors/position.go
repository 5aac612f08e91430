package errors

import "siskin/pkg/source"

// Position locates an error. Line and Column are 1-based, Column counting
// runes; StartPos and EndPos are byte offsets delimiting the span.
type Position struct {
	Line     int
	Column   int
	StartPos int
	EndPos   int
	Source   *source.SourceFile
}

// PositionAt builds a Position for a byte offset in sf.
func PositionAt(sf *source.SourceFile, start, end int) Position {
	line, col := sf.Position(start)
	return Position{Line: line, Column: col, StartPos: start, EndPos: end, Source: sf}
}
