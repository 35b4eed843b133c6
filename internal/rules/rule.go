// Package rules provides the line classification rule sets.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// MatchType defines how a rule set's patterns are applied to a line.
type MatchType string

const (
	// MatchRegex treats patterns as case-insensitive regular expressions.
	MatchRegex MatchType = "regex"
	// MatchContains treats patterns as literal substrings.
	MatchContains MatchType = "contains"
	// MatchKeyword treats patterns as case-insensitive substrings.
	MatchKeyword MatchType = "keyword"
)

// MITREMapping maps the rule set to MITRE ATT&CK.
type MITREMapping struct {
	TacticID    string `yaml:"tactic_id"`
	TacticName  string `yaml:"tactic_name"`
	TechniqueID string `yaml:"technique_id"`
}

// RuleSet is an ordered group of patterns for one concern. The first pattern
// that matches decides the result; sets are immutable once compiled.
type RuleSet struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Priority    int             `yaml:"priority"`
	Category    schema.Category `yaml:"category"`
	Match       MatchType       `yaml:"match"`
	Patterns    []string        `yaml:"patterns"`
	Tags        []string        `yaml:"tags,omitempty"`
	MITRE       *MITREMapping   `yaml:"mitre,omitempty"`

	compiled []*regexp.Regexp
}

// Result describes a matched line.
type Result struct {
	RuleSet  string
	Category schema.Category
	Pattern  string
	// Target is the literal text matched by substring rule sets, such as a
	// honeypot path.
	Target string
}

// Validate validates the rule set definition.
func (s *RuleSet) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("rule set name is required")
	}
	if !s.Category.IsValid() {
		return fmt.Errorf("rule set %s: unknown category %q", s.Name, s.Category)
	}
	if len(s.Patterns) == 0 {
		return fmt.Errorf("rule set %s: at least one pattern is required", s.Name)
	}

	switch s.Match {
	case MatchRegex:
		for i, p := range s.Patterns {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return fmt.Errorf("rule set %s: pattern %d: %w", s.Name, i, err)
			}
		}
	case MatchContains, MatchKeyword:
		for i, p := range s.Patterns {
			if p == "" {
				return fmt.Errorf("rule set %s: pattern %d is empty", s.Name, i)
			}
		}
	default:
		return fmt.Errorf("rule set %s: unknown match type: %s", s.Name, s.Match)
	}

	return nil
}

// Compile validates the set and prepares its patterns. Regex patterns are
// compiled case-insensitive.
func (s *RuleSet) Compile() error {
	if s.Match == "" {
		s.Match = MatchRegex
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Match != MatchRegex {
		return nil
	}

	s.compiled = make([]*regexp.Regexp, len(s.Patterns))
	for i, p := range s.Patterns {
		s.compiled[i] = regexp.MustCompile("(?i)" + p)
	}
	return nil
}

// MatchLine reports the first pattern in the set matching line.
func (s *RuleSet) MatchLine(line string) (Result, bool) {
	switch s.Match {
	case MatchContains:
		for _, p := range s.Patterns {
			if strings.Contains(line, p) {
				return s.result(p, p), true
			}
		}
	case MatchKeyword:
		lower := strings.ToLower(line)
		for _, p := range s.Patterns {
			if strings.Contains(lower, strings.ToLower(p)) {
				return s.result(p, ""), true
			}
		}
	default:
		for i, re := range s.compiled {
			if re.MatchString(line) {
				return s.result(s.Patterns[i], ""), true
			}
		}
	}
	return Result{}, false
}

func (s *RuleSet) result(pattern, target string) Result {
	return Result{
		RuleSet:  s.Name,
		Category: s.Category,
		Pattern:  pattern,
		Target:   target,
	}
}

// ParseRuleSet parses a rule set from YAML bytes.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	if err := set.Compile(); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}
	return &set, nil
}

// ParseRuleSets parses a list of rule sets from YAML bytes. A document
// holding a single rule set is also accepted.
func ParseRuleSets(data []byte) ([]*RuleSet, error) {
	var sets []*RuleSet
	if err := yaml.Unmarshal(data, &sets); err != nil {
		set, singleErr := ParseRuleSet(data)
		if singleErr != nil {
			return nil, fmt.Errorf("failed to parse rule sets: %w", err)
		}
		return []*RuleSet{set}, nil
	}

	for i, set := range sets {
		if err := set.Compile(); err != nil {
			return nil, fmt.Errorf("rule set %d: %w", i, err)
		}
	}
	return sets, nil
}
