package vm

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/dop251/goja/unistring"
)

// String is a sequence of UTF-16 code units. It shares goja's hybrid
// representation: ASCII text is stored as-is, anything else as UTF-16
// prefixed with a byte order mark. Every constructor here returns the
// canonical form, so == compares code unit sequences.
type String unistring.String

func (String) Type() ValueType { return TypeString }
func (String) isPropertyKey()  {}

// NewString converts a Go string. Invalid UTF-8 bytes become U+FFFD.
func NewString(s string) String {
	return String(unistring.NewFromString(s))
}

// StringFromUnits builds a String from UTF-16 code units.
func StringFromUnits(units []uint16) String {
	ascii := true
	for _, u := range units {
		if u >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		b := make([]byte, len(units))
		for i, u := range units {
			b[i] = byte(u)
		}
		return String(b)
	}
	buf := make([]uint16, len(units)+1)
	buf[0] = unistring.BOM
	copy(buf[1:], units)
	return String(unistring.FromUtf16(buf))
}

func (s String) utf16() []uint16 {
	if u := unistring.String(s).AsUtf16(); u != nil {
		return u[1:]
	}
	return nil
}

// Units returns the code units of s. The result must not be modified.
func (s String) Units() []uint16 {
	if u := s.utf16(); u != nil {
		return u
	}
	units := make([]uint16, len(s))
	for i := 0; i < len(s); i++ {
		units[i] = uint16(s[i])
	}
	return units
}

// IsASCII reports whether s is stored as plain ASCII.
func (s String) IsASCII() bool {
	return s.utf16() == nil
}

// Length is the number of code units.
func (s String) Length() int {
	if u := s.utf16(); u != nil {
		return len(u)
	}
	return len(s)
}

// At returns the code unit at index i.
func (s String) At(i int) uint16 {
	if u := s.utf16(); u != nil {
		return u[i]
	}
	return uint16(s[i])
}

// CodePointAt decodes the code point starting at index i and returns it
// with its length in code units.
func (s String) CodePointAt(i int) (rune, int) {
	first := s.At(i)
	if !utf16.IsSurrogate(rune(first)) || first >= 0xDC00 || i+1 >= s.Length() {
		return rune(first), 1
	}
	second := s.At(i + 1)
	if second < 0xDC00 || second > 0xDFFF {
		return rune(first), 1
	}
	return utf16.DecodeRune(rune(first), rune(second)), 2
}

// Concat appends t to s.
func (s String) Concat(t String) String {
	if s == "" {
		return t
	}
	if t == "" {
		return s
	}
	su, tu := s.utf16(), t.utf16()
	if su == nil && tu == nil {
		return s + t
	}
	buf := make([]uint16, 1, s.Length()+t.Length()+1)
	buf[0] = unistring.BOM
	buf = append(buf, s.Units()...)
	buf = append(buf, t.Units()...)
	return String(unistring.FromUtf16(buf))
}

// Substring returns the code units in [start, end).
func (s String) Substring(start, end int) String {
	if u := s.utf16(); u != nil {
		return StringFromUnits(u[start:end])
	}
	return s[start:end]
}

// IndexOf finds t in s at or after from, or returns -1.
func (s String) IndexOf(t String, from int) int {
	if from < 0 {
		from = 0
	}
	if s.IsASCII() && t.IsASCII() {
		if from > len(s) {
			return -1
		}
		i := strings.Index(string(s[from:]), string(t))
		if i < 0 {
			return -1
		}
		return i + from
	}
	su, tu := s.Units(), t.Units()
	for i := from; i+len(tu) <= len(su); i++ {
		match := true
		for j := range tu {
			if su[i+j] != tu[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// LastIndexOf finds the last t in s starting at or before from.
func (s String) LastIndexOf(t String, from int) int {
	su, tu := s.Units(), t.Units()
	if from > len(su)-len(tu) {
		from = len(su) - len(tu)
	}
	for i := from; i >= 0; i-- {
		match := true
		for j := range tu {
			if su[i+j] != tu[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Compare orders two strings by code units.
func (s String) Compare(t String) int {
	if s.IsASCII() && t.IsASCII() {
		return strings.Compare(string(s), string(t))
	}
	su, tu := s.Units(), t.Units()
	for i := 0; i < len(su) && i < len(tu); i++ {
		if su[i] != tu[i] {
			if su[i] < tu[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(su) < len(tu):
		return -1
	case len(su) > len(tu):
		return 1
	}
	return 0
}

// String converts to a Go string. Lone surrogates become U+FFFD.
func (s String) String() string {
	return unistring.String(s).String()
}

// Unistring exposes the underlying representation for AST lookups.
func (s String) Unistring() unistring.String {
	return unistring.String(s)
}

// ArrayIndex reports whether s is a canonical array index and returns it.
func (s String) ArrayIndex() (uint32, bool) {
	n := len(s)
	if n == 0 || n > 10 || !s.IsASCII() {
		return 0, false
	}
	if n > 1 && s[0] == '0' {
		return 0, false
	}
	var v uint64
	for i := 0; i < n; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	if v >= 1<<32-1 {
		return 0, false
	}
	return uint32(v), true
}

func isWhiteSpaceOrLineTerminator(u uint16) bool {
	switch u {
	case 0x09, 0x0B, 0x0C, 0x20, 0xA0, 0xFEFF, 0x0A, 0x0D, 0x2028, 0x2029,
		0x1680, 0x202F, 0x205F, 0x3000:
		return true
	}
	return u >= 0x2000 && u <= 0x200A
}

// TrimString removes leading and/or trailing white space and line
// terminators.
func TrimString(s String, start, end bool) String {
	lo, hi := 0, s.Length()
	if start {
		for lo < hi && isWhiteSpaceOrLineTerminator(s.At(lo)) {
			lo++
		}
	}
	if end {
		for hi > lo && isWhiteSpaceOrLineTerminator(s.At(hi-1)) {
			hi--
		}
	}
	return s.Substring(lo, hi)
}
