// Package rules provides a YAML-based rules engine that assigns categories
// to normalized transactions by matching their descriptions.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/ofximport/internal/domain"
)

//go:embed rules.yaml
var embeddedRules []byte

// MatchType defines how patterns are matched against transaction descriptions
type MatchType string

const (
	// MatchTypeExact requires the pattern to match the entire description exactly
	MatchTypeExact MatchType = "exact"
	// MatchTypeContains requires the pattern to be a substring of the description
	MatchTypeContains MatchType = "contains"
)

// Rule represents a single categorization rule. Matching is case-insensitive
// on trimmed descriptions. Higher priority wins; equal priorities keep their
// YAML file order.
type Rule struct {
	Name      string    `yaml:"name"`
	Pattern   string    `yaml:"pattern"`
	MatchType MatchType `yaml:"match_type"`
	Priority  int       `yaml:"priority"`
	Category  string    `yaml:"category"`
}

func (r *Rule) validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("pattern cannot be empty")
	}
	if r.MatchType != MatchTypeExact && r.MatchType != MatchTypeContains {
		return fmt.Errorf("invalid match_type %q (must be 'exact' or 'contains')", r.MatchType)
	}
	if r.Priority < 0 || r.Priority > 999 {
		return fmt.Errorf("priority must be in [0,999], got %d", r.Priority)
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("category cannot be empty")
	}
	return nil
}

// ruleSet is the top-level YAML structure
type ruleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine performs rule matching on transaction descriptions
type Engine struct {
	rules []Rule // sorted by priority, highest first
}

// NewEngine creates a rules engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var set ruleSet
	if err := yaml.Unmarshal(rulesData, &set); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}

	for i, rule := range set.Rules {
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
	}

	// SliceStable preserves YAML file order for equal priorities, which keeps
	// matching deterministic.
	sorted := make([]Rule, len(set.Rules))
	copy(sorted, set.Rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Engine{rules: sorted}, nil
}

// LoadEmbedded loads the built-in rule table
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules: %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Match returns the category and rule name for the first rule matching the
// description, in priority order. Returns ok=false when no rule matches.
func (e *Engine) Match(description string) (category, ruleName string, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(description))

	for _, rule := range e.rules {
		pattern := strings.ToLower(strings.TrimSpace(rule.Pattern))

		matched := false
		switch rule.MatchType {
		case MatchTypeExact:
			matched = normalized == pattern
		case MatchTypeContains:
			matched = strings.Contains(normalized, pattern)
		}

		if matched {
			return rule.Category, rule.Name, true
		}
	}

	return "", "", false
}

// ApplyStats reports how a batch fared against the rule table
type ApplyStats struct {
	Matched   int
	Unmatched int
	// UnmatchedExamples holds up to a handful of distinct descriptions no
	// rule covered, for building new rules.
	UnmatchedExamples []string
}

const maxUnmatchedExamples = 5

// Apply categorizes records in place. Records that already carry a category
// are left alone so user edits survive a re-run.
func (e *Engine) Apply(records []domain.TransactionRecord) ApplyStats {
	var stats ApplyStats
	seen := make(map[string]bool)

	for i := range records {
		if records[i].Category != "" {
			continue
		}

		category, _, ok := e.Match(records[i].Description)
		if !ok {
			stats.Unmatched++
			if !seen[records[i].Description] && len(stats.UnmatchedExamples) < maxUnmatchedExamples {
				seen[records[i].Description] = true
				stats.UnmatchedExamples = append(stats.UnmatchedExamples, records[i].Description)
			}
			continue
		}

		records[i].Category = category
		stats.Matched++
	}

	return stats
}

// Rules returns a copy of the rules in matching order, for inspection.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
