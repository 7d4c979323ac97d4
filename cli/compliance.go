// ABOUTME: Compliance CLI command
// ABOUTME: Checks text from arguments or stdin against the active rule table
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harperreed/leadpilot/compliance"
	"github.com/harperreed/leadpilot/models"
)

// ErrNotCompliant is returned when checked text contains an error-severity phrase.
var ErrNotCompliant = errors.New("content is not compliant")

// ComplianceCheckCommand checks text and prints violations plus a safe rewrite.
func ComplianceCheckCommand(checker *compliance.Checker, args []string) error {
	fs := flag.NewFlagSet("compliance check", flag.ExitOnError)
	_ = fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return fmt.Errorf("usage: compliance check <text> (or pipe text on stdin)")
	}

	return reportCompliance(os.Stdout, checker, text)
}

func reportCompliance(w io.Writer, checker *compliance.Checker, text string) error {
	violations := checker.Check(text)
	if len(violations) == 0 {
		_, _ = fmt.Fprintln(w, "✓ No compliance issues found")
		return nil
	}

	for _, v := range violations {
		_, _ = fmt.Fprintf(w, "%s: %q (%s)\n", strings.ToUpper(v.Severity), v.Phrase, v.Rule)
		_, _ = fmt.Fprintf(w, "  Suggestion: %s\n", v.Suggestion)
	}
	if models.ComplianceStatusFor(violations) != models.ComplianceFlagged {
		_, _ = fmt.Fprintln(w, "✓ Compliant with warnings")
		return nil
	}

	_, _ = fmt.Fprintf(w, "\nSafe alternative:\n  %s\n", checker.SafeAlternative(text))
	return ErrNotCompliant
}
