package source

import "testing"

func TestPosition(t *testing.T) {
	sf := NewEvalSource("let a = 1;\nlet é = 2;\n\nx")

	tests := []struct {
		offset int
		line   int
		column int
	}{
		{0, 1, 1},
		{4, 1, 5},
		{11, 2, 1},
		{17, 2, 6}, // é is two bytes but one column
		{24, 4, 1},
		{100, 4, 2},
	}

	for _, tt := range tests {
		line, col := sf.Position(tt.offset)
		if line != tt.line || col != tt.column {
			t.Errorf("Position(%d): expected %d:%d, got %d:%d", tt.offset, tt.line, tt.column, line, col)
		}
	}
}

func TestFromFileGoal(t *testing.T) {
	tests := []struct {
		path string
		goal Goal
	}{
		{"/tmp/main.js", GoalScript},
		{"/tmp/main.mjs", GoalModule},
		{"/tmp/data.JSON", GoalJSON},
	}
	for _, tt := range tests {
		sf := FromFile(tt.path, "")
		if sf.Goal != tt.goal {
			t.Errorf("FromFile(%q): expected goal %s, got %s", tt.path, tt.goal, sf.Goal)
		}
		if !sf.IsFile() {
			t.Errorf("FromFile(%q): expected IsFile", tt.path)
		}
	}
}
