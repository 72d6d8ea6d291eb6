// Package currency provides the known-currency lookup the normalizer resolves
// statement CURDEF codes against.
package currency

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed currencies.yaml
var embeddedCurrencies []byte

// DefaultFallback is the currency used when a statement declares a code the
// set does not know and the caller configured nothing else.
const DefaultFallback = "USD"

// entry is one currency in the YAML config.
type entry struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type config struct {
	Currencies []entry `yaml:"currencies"`
}

// Set is a request-scoped lookup table of known currency codes with a
// configured fallback. It is passed into the normalizer explicitly so that
// parsing stays a pure function of its inputs; there is no module-level
// singleton.
type Set struct {
	codes    map[string]string // code -> display name
	fallback string
}

// NewSet builds a set from explicit codes. The fallback must be a member of
// the set, otherwise the fallback policy itself could emit an unknown code.
func NewSet(codes []string, fallback string) (*Set, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("currency set cannot be empty")
	}
	s := &Set{codes: make(map[string]string, len(codes)), fallback: fallback}
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, fmt.Errorf("currency code cannot be empty")
		}
		s.codes[code] = code
	}
	if _, ok := s.codes[fallback]; !ok {
		return nil, fmt.Errorf("fallback currency %q is not in the known set", fallback)
	}
	return s, nil
}

// LoadEmbedded loads the built-in currency list. An empty fallback selects
// DefaultFallback.
func LoadEmbedded(fallback string) (*Set, error) {
	return load(embeddedCurrencies, fallback)
}

// LoadFromFile loads a caller-supplied currency list in the same YAML shape
// as the embedded one.
func LoadFromFile(path, fallback string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read currency file %s: %w", path, err)
	}
	set, err := load(data, fallback)
	if err != nil {
		return nil, fmt.Errorf("invalid currency file %s: %w", path, err)
	}
	return set, nil
}

func load(data []byte, fallback string) (*Set, error) {
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse currency YAML: %w", err)
	}
	if len(cfg.Currencies) == 0 {
		return nil, fmt.Errorf("currency config contains no currencies")
	}

	if fallback == "" {
		fallback = DefaultFallback
	}

	s := &Set{codes: make(map[string]string, len(cfg.Currencies)), fallback: fallback}
	for i, e := range cfg.Currencies {
		code := strings.TrimSpace(e.Code)
		if code == "" {
			return nil, fmt.Errorf("currency entry %d has an empty code", i)
		}
		name := e.Name
		if name == "" {
			name = code
		}
		s.codes[code] = name
	}

	if _, ok := s.codes[fallback]; !ok {
		return nil, fmt.Errorf("fallback currency %q is not in the known set", fallback)
	}
	return s, nil
}

// Fallback returns the configured fallback code.
func (s *Set) Fallback() string {
	return s.fallback
}

// Len returns the number of known codes.
func (s *Set) Len() int {
	return len(s.codes)
}

// Known reports whether code is in the set. Matching is case-sensitive and
// exact: "usd" is not "USD".
func (s *Set) Known(code string) bool {
	_, ok := s.codes[code]
	return ok
}

// Resolve maps a statement's declared currency code to a known code. Unknown
// or empty codes resolve to the fallback with ok=false; a bad CURDEF must
// never block transaction recovery.
func (s *Set) Resolve(code string) (resolved string, ok bool) {
	if s.Known(code) {
		return code, true
	}
	return s.fallback, false
}
