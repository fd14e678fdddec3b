package texlog

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decode returns raw as UTF-8 text. Engine logs are mostly ASCII, but TeX
// happily emits T1-encoded bytes in messages and source echoes; anything that
// is not valid UTF-8 is re-read as Latin-1 so no byte is dropped.
func decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
