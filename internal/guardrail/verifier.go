// Package guardrail checks candidate rewrites against required/banned
// term constraints. The check is advisory-corrective: the pipeline uses
// violations to trigger a single strengthened retry, it never blocks
// the response outright.
package guardrail

import (
	"strings"

	"github.com/davidbz/tonepipe/internal/domain"
)

// Verify compares a candidate rewrite against the guardrails. A
// required term that occurs (case-insensitively) in the original but
// not in the candidate yields a removed violation; a required term
// absent from the original is never flagged, there is nothing to
// preserve. A banned term occurring in the candidate yields a present
// violation. Returns an empty slice on full compliance.
func Verify(originalText, candidateText string, guardrails domain.Guardrails) []domain.Violation {
	canonical := guardrails.Canonical()
	original := strings.ToLower(originalText)
	candidate := strings.ToLower(candidateText)

	violations := make([]domain.Violation, 0)

	for _, term := range canonical.Required {
		if strings.Contains(original, term) && !strings.Contains(candidate, term) {
			violations = append(violations, domain.Violation{
				Type: domain.ViolationRequiredRemoved,
				Term: term,
			})
		}
	}

	for _, term := range canonical.Banned {
		if strings.Contains(candidate, term) {
			violations = append(violations, domain.Violation{
				Type: domain.ViolationBannedPresent,
				Term: term,
			})
		}
	}

	return violations
}
