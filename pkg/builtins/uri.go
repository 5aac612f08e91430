package builtins

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"siskin/pkg/vm"
)

const (
	uriReserved  = ";/?:@&=+$,"
	uriUnescaped = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_.!~*'()"
)

func uriEncoder(extra string) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		s, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		out, ok := encodeURIUnits(s.Units(), extra)
		if !ok {
			return nil, a.ThrowURIError("URI malformed")
		}
		return vm.NewString(out), nil
	}
}

func uriDecoder(reserved string) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		s, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		out, ok := decodeURIUnits(s.Units(), reserved)
		if !ok {
			return nil, a.ThrowURIError("URI malformed")
		}
		return vm.StringFromUnits(out), nil
	}
}

// encodeURIUnits percent-encodes every code point outside the unescaped
// set and extra. It fails on a lone surrogate.
func encodeURIUnits(units []uint16, extra string) (string, bool) {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	var buf [utf8.UTFMax]byte
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u < utf8.RuneSelf && (strings.IndexByte(uriUnescaped, byte(u)) >= 0 || strings.IndexByte(extra, byte(u)) >= 0) {
			b.WriteByte(byte(u))
			continue
		}
		r := rune(u)
		switch {
		case utf16.IsSurrogate(r):
			if u >= 0xDC00 || i+1 >= len(units) {
				return "", false
			}
			r = utf16.DecodeRune(r, rune(units[i+1]))
			if r == utf8.RuneError {
				return "", false
			}
			i++
		}
		n := utf8.EncodeRune(buf[:], r)
		for _, c := range buf[:n] {
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
		}
	}
	return b.String(), true
}

func unhex(u uint16) (byte, bool) {
	switch {
	case u >= '0' && u <= '9':
		return byte(u - '0'), true
	case u >= 'a' && u <= 'f':
		return byte(u-'a') + 10, true
	case u >= 'A' && u <= 'F':
		return byte(u-'A') + 10, true
	}
	return 0, false
}

// percentByte reads the %XX escape at units[i].
func percentByte(units []uint16, i int) (byte, bool) {
	if i+2 >= len(units) || units[i] != '%' {
		return 0, false
	}
	hi, ok1 := unhex(units[i+1])
	lo, ok2 := unhex(units[i+2])
	return hi<<4 | lo, ok1 && ok2
}

// decodeURIUnits reverses percent-encoding. Escapes that decode to an
// ASCII character in reserved are left as written.
func decodeURIUnits(units []uint16, reserved string) ([]uint16, bool) {
	out := make([]uint16, 0, len(units))
	for i := 0; i < len(units); i++ {
		if units[i] != '%' {
			out = append(out, units[i])
			continue
		}
		b, ok := percentByte(units, i)
		if !ok {
			return nil, false
		}
		if b < utf8.RuneSelf {
			if strings.IndexByte(reserved, b) >= 0 {
				out = append(out, units[i:i+3]...)
			} else {
				out = append(out, uint16(b))
			}
			i += 2
			continue
		}
		// Multi-byte sequence: the leading byte gives the length.
		var n int
		switch {
		case b&0xE0 == 0xC0:
			n = 2
		case b&0xF0 == 0xE0:
			n = 3
		case b&0xF8 == 0xF0:
			n = 4
		default:
			return nil, false
		}
		seq := []byte{b}
		j := i + 3
		for k := 1; k < n; k++ {
			c, ok := percentByte(units, j)
			if !ok || c&0xC0 != 0x80 {
				return nil, false
			}
			seq = append(seq, c)
			j += 3
		}
		r, size := utf8.DecodeRune(seq)
		if r == utf8.RuneError || size != n {
			return nil, false
		}
		out = utf16.AppendRune(out, r)
		i = j - 1
	}
	return out, true
}
