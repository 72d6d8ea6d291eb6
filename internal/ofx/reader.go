package ofx

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts raw statement bytes into a string. Input that is valid
// UTF-8 passes through unchanged (minus a leading BOM). Anything else is
// decoded as Windows-1252, the character set real bank exports actually use
// when they are not UTF-8. Binary input (embedded NUL bytes) fails with a
// StageDecode error; no partial output is produced.
func Decode(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ParseError{Stage: StageDecode, Msg: "input is empty"}
	}

	data = bytes.TrimPrefix(data, utf8BOM)

	// NUL bytes mean the upload is not a text export at all (a PDF, a
	// UTF-16 dump, or plain binary). Windows-1252 would "decode" it into
	// garbage, so reject it here instead.
	if bytes.IndexByte(data, 0) >= 0 {
		return "", &ParseError{
			Stage: StageDecode,
			Msg:   "input contains NUL bytes and cannot be interpreted as text",
		}
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", &ParseError{
			Stage: StageDecode,
			Msg:   "input is neither valid UTF-8 nor decodable Windows-1252",
			Err:   err,
		}
	}
	return string(decoded), nil
}
