package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

var sourcePattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// ExtractSource returns the first IPv4-shaped token in line, or
// schema.UnknownSource when there is none.
func ExtractSource(line string) string {
	if m := sourcePattern.FindString(line); m != "" {
		return m
	}
	return schema.UnknownSource
}

// escalationTerms mark a credential attack line as a failed login.
var escalationTerms = []string{"failed", "invalid", "authentication failure"}

// IsFailedLogin reports whether a credential attack line describes a failed
// or invalid login, which escalates it to a brute-force detection.
func IsFailedLogin(line string) bool {
	lower := strings.ToLower(line)
	for _, term := range escalationTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Classifier evaluates rule sets in ascending priority order. The first set
// with any matching pattern decides the category.
type Classifier struct {
	sets []*RuleSet
}

// NewClassifier orders sets by priority. Sets with equal priority keep their
// given order.
func NewClassifier(sets ...*RuleSet) *Classifier {
	ordered := make([]*RuleSet, len(sets))
	copy(ordered, sets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return &Classifier{sets: ordered}
}

// Classify returns the result of the highest priority matching set.
func (c *Classifier) Classify(line string) (Result, bool) {
	for _, set := range c.sets {
		if res, ok := set.MatchLine(line); ok {
			return res, true
		}
	}
	return Result{}, false
}

// RuleSets returns the sets in evaluation order.
func (c *Classifier) RuleSets() []*RuleSet {
	return c.sets
}
