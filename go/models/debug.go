package models

import (
	"fmt"
	"strings"
)

// HexDump formats mem as 16-byte lines labeled from base.
// bits selects the address column width.
func HexDump(base uint64, mem []byte, bits int) []string {
	clean := func(p []byte) string {
		o := make([]byte, len(p))
		for i, c := range p {
			if c >= 0x20 && c <= 0x7e {
				o[i] = c
			} else {
				o[i] = '.'
			}
		}
		return string(o)
	}
	addrFmt := fmt.Sprintf("0x%%0%dx:", bits/4)
	var out []string
	for i := 0; i < len(mem); i += 16 {
		end := i + 16
		if end > len(mem) {
			end = len(mem)
		}
		line := mem[i:end]
		hex := make([]string, 16)
		for j := range hex {
			if j < len(line) {
				hex[j] = fmt.Sprintf("%02x", line[j])
			} else {
				hex[j] = "  "
			}
		}
		addr := fmt.Sprintf(addrFmt, base+uint64(i))
		out = append(out, fmt.Sprintf("%s %s  %s", addr, strings.Join(hex, " "), clean(line)))
	}
	return out
}

// Repr quotes p with non-printable bytes escaped, truncating past strsize.
func Repr(p []byte, strsize int) string {
	tmp := make([]string, len(p))
	for i, b := range p {
		if b >= 0x20 && b <= 0x7e {
			tmp[i] = string(b)
		} else {
			tmp[i] = fmt.Sprintf("\\x%02x", b)
		}
	}
	if strsize > 0 && len(tmp) > strsize {
		return "\"" + strings.Join(tmp[:strsize], "") + "\"..."
	}
	return "\"" + strings.Join(tmp, "") + "\""
}
