// ABOUTME: Local compliance checker for outbound lead communication
// ABOUTME: Case-insensitive phrase matching with safe-alternative rewriting, no I/O
package compliance

import (
	"regexp"
	"strings"

	"github.com/harperreed/leadpilot/models"
)

type compiledRule struct {
	Rule
	lower   string
	pattern *regexp.Regexp
}

// Checker scans free text against an immutable rule table.
// It is safe for concurrent use.
type Checker struct {
	rules []compiledRule
}

// NewChecker builds a checker over rules; nil or empty uses DefaultRules.
func NewChecker(rules []Rule) *Checker {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		compiled = append(compiled, compiledRule{
			Rule:    r,
			lower:   strings.ToLower(r.Phrase),
			pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(r.Phrase)),
		})
	}
	return &Checker{rules: compiled}
}

// Check returns one violation per matching rule, in rule-table order.
func (c *Checker) Check(content string) []models.ComplianceViolation {
	lower := strings.ToLower(content)

	var violations []models.ComplianceViolation
	for _, r := range c.rules {
		if !strings.Contains(lower, r.lower) {
			continue
		}
		violations = append(violations, models.ComplianceViolation{
			Phrase:     r.Phrase,
			Rule:       r.Rule.Rule,
			Severity:   r.Severity,
			Suggestion: r.Suggestion,
		})
	}
	return violations
}

// CheckAll checks several texts and merges violations, one per phrase.
func (c *Checker) CheckAll(texts ...string) []models.ComplianceViolation {
	seen := make(map[string]bool)
	var violations []models.ComplianceViolation
	for _, text := range texts {
		for _, v := range c.Check(text) {
			if seen[v.Phrase] {
				continue
			}
			seen[v.Phrase] = true
			violations = append(violations, v)
		}
	}
	return violations
}

// IsCompliant reports whether content has no error-severity violations.
func (c *Checker) IsCompliant(content string) bool {
	return models.ComplianceStatusFor(c.Check(content)) == models.ComplianceSafe
}

// SafeAlternative rewrites every error-severity phrase in content with its suggestion.
// Content without error violations is returned unchanged.
func (c *Checker) SafeAlternative(content string) string {
	out := content
	for _, r := range c.rules {
		if r.Severity != models.SeverityError {
			continue
		}
		out = r.pattern.ReplaceAllLiteralString(out, r.Suggestion)
	}
	return out
}
