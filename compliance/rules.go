// ABOUTME: Compliance rule table for regulated insurance communication
// ABOUTME: Ships the IRDAI phrase list and loads optional YAML rule packs
package compliance

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harperreed/leadpilot/models"
)

// Rule is one banned phrase with its citation and a safe rewrite.
type Rule struct {
	Phrase     string `yaml:"phrase"`
	Rule       string `yaml:"rule"`
	Severity   string `yaml:"severity"`
	Suggestion string `yaml:"suggestion"`
}

const (
	ruleMisSelling    = "IRDAI (Protection of Policyholders' Interests) Regulations: no promise of returns or guarantees not in the policy contract"
	ruleMisleadingAd  = "IRDAI Insurance Advertisements and Disclosure Regulations: no misleading or superlative claims"
	ruleTaxDisclosure = "IRDAI disclosure norms: tax benefits must be stated as per prevailing tax laws"
	rulePressureSales = "IRDAI fair-dealing guidelines: avoid undue pressure on prospects"
)

// DefaultRules is the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		{Phrase: "guaranteed returns", Rule: ruleMisSelling, Severity: models.SeverityError, Suggestion: "potential returns based on market performance"},
		{Phrase: "assured profit", Rule: ruleMisSelling, Severity: models.SeverityError, Suggestion: "opportunity for growth"},
		{Phrase: "100% safe", Rule: ruleMisleadingAd, Severity: models.SeverityError, Suggestion: "designed with risk management features"},
		{Phrase: "no risk", Rule: ruleMisleadingAd, Severity: models.SeverityError, Suggestion: "managed risk approach"},
		{Phrase: "risk-free", Rule: ruleMisleadingAd, Severity: models.SeverityError, Suggestion: "risk-managed"},
		{Phrase: "guaranteed income", Rule: ruleMisSelling, Severity: models.SeverityError, Suggestion: "regular income options available"},
		{Phrase: "tax free", Rule: ruleTaxDisclosure, Severity: models.SeverityError, Suggestion: "tax benefits as per prevailing tax laws"},
		{Phrase: "best policy", Rule: ruleMisleadingAd, Severity: models.SeverityError, Suggestion: "suitable policy option"},
		{Phrase: "highest returns", Rule: ruleMisleadingAd, Severity: models.SeverityError, Suggestion: "competitive returns"},
		{Phrase: "zero risk", Rule: ruleMisleadingAd, Severity: models.SeverityError, Suggestion: "risk-managed investment"},
		{Phrase: "guaranteed growth", Rule: ruleMisSelling, Severity: models.SeverityError, Suggestion: "growth potential based on market conditions"},
		{Phrase: "limited time offer", Rule: rulePressureSales, Severity: models.SeverityWarning, Suggestion: "offer available for the current plan year"},
		{Phrase: "act now", Rule: rulePressureSales, Severity: models.SeverityWarning, Suggestion: "at your convenience"},
	}
}

type rulePack struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule pack of the form `rules: [{phrase, rule, severity, suggestion}]`.
func LoadRules(path string) ([]Rule, error) {
	// #nosec G304 -- operator-provided rule pack path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule pack: %w", err)
	}

	var pack rulePack
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse rule pack: %w", err)
	}
	if len(pack.Rules) == 0 {
		return nil, fmt.Errorf("rule pack %s has no rules", path)
	}

	for i, r := range pack.Rules {
		if strings.TrimSpace(r.Phrase) == "" {
			return nil, fmt.Errorf("rule %d: phrase is required", i)
		}
		switch r.Severity {
		case models.SeverityError, models.SeverityWarning:
		case "":
			pack.Rules[i].Severity = models.SeverityError
		default:
			return nil, fmt.Errorf("rule %d: invalid severity %q", i, r.Severity)
		}
	}
	return pack.Rules, nil
}
