// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package host

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/google/c4jit/internal/runtime/vm"
)

// Sprintf formats the C format string at addr, fetching each argument word
// from next.  Conversions are d i u x X o c s p and %, with the flags
// -+ #0, a width, and a precision, either of which may be *.  Length
// modifiers are accepted and ignored since every argument is one word.
func Sprintf(mem *vm.Memory, addr uint32, next func() (uint32, error)) ([]byte, error) {
	f, err := mem.CString(addr)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	for i := 0; i < len(f); i++ {
		if f[i] != '%' {
			out.WriteByte(f[i])
			continue
		}
		start := i
		i++
		spec := []byte{'%'}
		for i < len(f) && bytes.IndexByte([]byte("-+ #0"), f[i]) >= 0 {
			spec = append(spec, f[i])
			i++
		}
		// Width, then precision.
		for part := 0; part < 2; part++ {
			if part == 1 {
				if i >= len(f) || f[i] != '.' {
					break
				}
				spec = append(spec, '.')
				i++
			}
			if i < len(f) && f[i] == '*' {
				v, err := next()
				if err != nil {
					return nil, err
				}
				spec = strconv.AppendInt(spec, int64(int32(v)), 10)
				i++
				continue
			}
			for i < len(f) && f[i] >= '0' && f[i] <= '9' {
				spec = append(spec, f[i])
				i++
			}
		}
		for i < len(f) && (f[i] == 'l' || f[i] == 'h') {
			i++
		}
		if i >= len(f) {
			out.WriteString(f[start:])
			break
		}
		verb := f[i]
		if verb == '%' {
			out.WriteByte('%')
			continue
		}
		if bytes.IndexByte([]byte("diuxXocsp"), verb) < 0 {
			out.WriteString(f[start : i+1])
			continue
		}
		v, err := next()
		if err != nil {
			return nil, err
		}
		switch verb {
		case 'd', 'i':
			fmt.Fprintf(&out, string(append(spec, 'd')), int32(v))
		case 'u':
			fmt.Fprintf(&out, string(append(spec, 'd')), v)
		case 'x', 'X', 'o':
			fmt.Fprintf(&out, string(append(spec, verb)), v)
		case 'c':
			fmt.Fprintf(&out, string(append(spec, 's')), string([]byte{byte(v)}))
		case 'p':
			p := append([]byte{'%', '#'}, spec[1:]...)
			fmt.Fprintf(&out, string(append(p, 'x')), v)
		case 's':
			s, err := mem.CString(v)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&out, string(append(spec, 's')), s)
		}
	}
	return out.Bytes(), nil
}
