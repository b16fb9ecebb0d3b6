// Package hexcodec converts between user-entered hex text and the canonical
// form used everywhere in the hub: uppercase, space-separated two-digit
// bytes ("DE AD BE EF").
package hexcodec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Canonicalize validates text as a hex byte sequence and returns both the
// canonical string form and the decoded bytes. Whitespace anywhere in the
// input is ignored; odd-length or non-hex input is an error.
func Canonicalize(text string) (string, []byte, error) {
	compact := strings.ToUpper(strings.Join(strings.Fields(text), ""))
	if compact == "" {
		return "", nil, fmt.Errorf("empty hex input")
	}
	raw, err := hex.DecodeString(compact)
	if err != nil {
		return "", nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return Format(raw), raw, nil
}

// Format renders bytes in canonical form.
func Format(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw) * 3)
	for i, c := range raw {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}
