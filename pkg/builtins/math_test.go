package builtins

import (
	"math"
	"testing"
	"unicode/utf16"
)

var negZero = math.Copysign(0, -1)

// same compares floats treating NaN as equal to itself and -0 as distinct
// from +0.
func same(x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.IsNaN(x) && math.IsNaN(y)
	}
	return x == y && math.Signbit(x) == math.Signbit(y)
}

func TestMathRound(t *testing.T) {
	tests := []struct{ in, expected float64 }{
		{2.5, 3},
		{-2.5, -2},
		{-0.5, negZero},
		{-0.2, negZero},
		{0.49999999999999994, 0},
		{negZero, negZero},
		{math.Inf(1), math.Inf(1)},
		{math.NaN(), math.NaN()},
	}
	for _, test := range tests {
		if got := mathRound(test.in); !same(got, test.expected) {
			t.Errorf("mathRound(%v): expected %v, got %v", test.in, test.expected, got)
		}
	}
}

func TestMathSign(t *testing.T) {
	tests := []struct{ in, expected float64 }{
		{3, 1},
		{-0.1, -1},
		{0, 0},
		{negZero, negZero},
		{math.NaN(), math.NaN()},
	}
	for _, test := range tests {
		if got := mathSign(test.in); !same(got, test.expected) {
			t.Errorf("mathSign(%v): expected %v, got %v", test.in, test.expected, got)
		}
	}
}

func TestMathMaxMin(t *testing.T) {
	tests := []struct {
		in       []float64
		max, min float64
	}{
		{nil, math.Inf(-1), math.Inf(1)},
		{[]float64{1, 3, 2}, 3, 1},
		{[]float64{0, negZero}, 0, negZero},
		{[]float64{negZero, 0}, 0, negZero},
		{[]float64{1, math.NaN(), 2}, math.NaN(), math.NaN()},
	}
	for _, test := range tests {
		if got := mathMax(test.in); !same(got, test.max) {
			t.Errorf("mathMax(%v): expected %v, got %v", test.in, test.max, got)
		}
		if got := mathMin(test.in); !same(got, test.min) {
			t.Errorf("mathMin(%v): expected %v, got %v", test.in, test.min, got)
		}
	}
}

func TestMathHypot(t *testing.T) {
	tests := []struct {
		in       []float64
		expected float64
	}{
		{nil, 0},
		{[]float64{3, 4}, 5},
		{[]float64{math.NaN(), math.Inf(-1)}, math.Inf(1)},
		{[]float64{math.NaN(), 1}, math.NaN()},
	}
	for _, test := range tests {
		if got := mathHypot(test.in); !same(got, test.expected) {
			t.Errorf("mathHypot(%v): expected %v, got %v", test.in, test.expected, got)
		}
	}
}

func TestMathSumPrecise(t *testing.T) {
	tests := []struct {
		in       []float64
		expected float64
	}{
		{nil, negZero},
		{[]float64{negZero, negZero}, negZero},
		{[]float64{1e20, 0.1, -1e20}, 0.1},
		{[]float64{math.Inf(1), math.Inf(-1)}, math.NaN()},
	}
	for _, test := range tests {
		if got := mathSumPrecise(test.in); !same(got, test.expected) {
			t.Errorf("mathSumPrecise(%v): expected %v, got %v", test.in, test.expected, got)
		}
	}
}

func TestParseFloatPrefix(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
	}{
		{"3.14abc", 3.14},
		{"-Infinityx", math.Inf(-1)},
		{".5", 0.5},
		{"5.", 5},
		{"1e3", 1000},
		{"1e", 1},
		{"1e+", 1},
		{"-.e1", math.NaN()},
		{"", math.NaN()},
		{"-0", negZero},
	}
	for _, test := range tests {
		if got := parseFloatPrefix(test.in); !same(got, test.expected) {
			t.Errorf("parseFloatPrefix(%q): expected %v, got %v", test.in, test.expected, got)
		}
	}
}

func TestParseIntPrefix(t *testing.T) {
	tests := []struct {
		in       string
		radix    int
		expected float64
	}{
		{"42px", 0, 42},
		{"-0x1F", 0, -31},
		{"0x1F", 16, 31},
		{"0x1F", 10, 0},
		{"z", 36, 35},
		{"12", 1, math.NaN()},
		{"12", 37, math.NaN()},
		{"g", 16, math.NaN()},
		{"101", 2, 5},
	}
	for _, test := range tests {
		if got := parseIntPrefix(test.in, test.radix); !same(got, test.expected) {
			t.Errorf("parseIntPrefix(%q, %d): expected %v, got %v", test.in, test.radix, test.expected, got)
		}
	}
}

func TestURICoding(t *testing.T) {
	units := func(s string) []uint16 { return utf16.Encode([]rune(s)) }

	encoded, ok := encodeURIUnits(units("a b/ü€"), "")
	if !ok || encoded != "a%20b%2F%C3%BC%E2%82%AC" {
		t.Errorf("Expected a%%20b%%2F%%C3%%BC%%E2%%82%%AC, got %q (ok=%v)", encoded, ok)
	}
	if _, ok := encodeURIUnits([]uint16{0xD800}, ""); ok {
		t.Error("Expected a lone surrogate to fail encoding")
	}

	decoded, ok := decodeURIUnits(units("%2F%20%E2%82%AC"), "/")
	if !ok || string(utf16.Decode(decoded)) != "%2F €" {
		t.Errorf("Expected %%2F €, got %q (ok=%v)", string(utf16.Decode(decoded)), ok)
	}
	for _, bad := range []string{"%", "%4", "%G0", "%C3"} {
		if _, ok := decodeURIUnits(units(bad), ""); ok {
			t.Errorf("Expected %q to fail decoding", bad)
		}
	}
}
