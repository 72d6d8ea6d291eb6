package ofx

import (
	"regexp"
	"strings"
)

// headerLinePattern matches one KEY:VALUE prologue line. OFX v1 headers use
// bare uppercase keys (OFXHEADER, DATA, SECURITY, CHARSET, ...) but some
// exporters emit mixed case, so letters of either case are accepted.
var headerLinePattern = regexp.MustCompile(`^[A-Za-z0-9]+:`)

// Header is the ordered KEY:VALUE prologue of an OFX file. Keys preserve
// first-appearance order; duplicate keys keep the last value seen.
type Header struct {
	keys   []string
	values map[string]string
}

// Get returns the value for key, or "" if the key is absent.
func (h *Header) Get(key string) string {
	if h == nil || h.values == nil {
		return ""
	}
	return h.values[key]
}

// Has reports whether key appeared in the prologue.
func (h *Header) Has(key string) bool {
	if h == nil || h.values == nil {
		return false
	}
	_, ok := h.values[key]
	return ok
}

// Keys returns the header keys in first-appearance order.
func (h *Header) Keys() []string {
	return append([]string(nil), h.keys...)
}

// Len returns the number of distinct header keys.
func (h *Header) Len() int {
	return len(h.keys)
}

func (h *Header) add(key, value string) {
	if _, seen := h.values[key]; !seen {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// ExtractHeader scans the KEY:VALUE prologue at the start of doc and returns
// it together with the byte offset where the SGML body begins. Scanning stops
// at the first line that is not a header line; blank separator lines between
// the prologue and the body are skipped. This never fails: a file with no
// prologue yields an empty Header and offset 0. Absence of a header is not
// an error because some exports omit it entirely.
func ExtractHeader(doc string) (*Header, int) {
	header := &Header{values: make(map[string]string)}

	offset := 0
	rest := doc
	for rest != "" {
		line := rest
		advance := len(rest)
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			line = rest[:nl]
			advance = nl + 1
		}
		trimmed := strings.TrimRight(line, "\r")

		switch {
		case strings.TrimSpace(trimmed) == "":
			// Blank separator between prologue and body.
		case strings.HasPrefix(strings.TrimSpace(trimmed), "<"):
			return header, offset
		case headerLinePattern.MatchString(trimmed):
			key, value, _ := strings.Cut(trimmed, ":")
			header.add(key, strings.TrimSpace(value))
		default:
			return header, offset
		}

		offset += advance
		rest = rest[advance:]
	}

	return header, offset
}
