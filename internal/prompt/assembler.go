// Package prompt renders resolved tone instructions, guardrails and
// source text into the instruction payload sent to the text-generation
// provider. Assembly is deterministic: byte-identical inputs always
// produce byte-identical output. The cache key is derived from the
// request, not the payload, so nothing here may introduce
// nondeterminism (no timestamps, no random ordering).
package prompt

import (
	"fmt"
	"strings"

	"github.com/davidbz/tonepipe/internal/domain"
)

const (
	preamble = "You are a precise text rewriting assistant. Rewrite the text below " +
		"so that its tone matches the requested profile."

	closing = "Preserve the original meaning of the text. Comply with every term " +
		"constraint. Respond with the rewritten text only, with no explanations " +
		"or commentary."

	subordinationNote = "apply only if compatible with the primary directives"
)

// Assemble renders the instruction payload. Optional blocks (primary,
// secondary, required terms, banned terms) are emitted only when
// non-empty.
func Assemble(sourceText string, resolution domain.ConflictResolution, guardrails domain.Guardrails) string {
	var b strings.Builder

	b.WriteString(preamble)
	b.WriteString("\n")

	writeToneBlock(&b, "PRIMARY TONE DIRECTIVES:", resolution.Primary)
	writeToneBlock(&b, fmt.Sprintf("SECONDARY TONE DIRECTIVES (%s):", subordinationNote), resolution.Secondary)

	canonical := guardrails.Canonical()
	writeTermBlock(&b, "REQUIRED TERMS (every term must survive the rewrite):", canonical.Required)
	writeTermBlock(&b, "BANNED TERMS (no term may appear in the output):", canonical.Banned)

	b.WriteString("\n")
	b.WriteString(closing)
	b.WriteString("\n\nTEXT:\n")
	b.WriteString(fmt.Sprintf("%q", sourceText))

	return b.String()
}

// AssembleRetry renders a strengthened payload for the single
// compliance retry, appending a block that names each violated term.
// Equally deterministic.
func AssembleRetry(
	sourceText string,
	resolution domain.ConflictResolution,
	guardrails domain.Guardrails,
	violations []domain.Violation,
) string {
	var b strings.Builder

	b.WriteString(Assemble(sourceText, resolution, guardrails))
	b.WriteString("\n\nCOMPLIANCE NOTICE: your previous rewrite violated the term constraints below. These constraints are mandatory.\n")

	for _, v := range violations {
		switch v.Type {
		case domain.ViolationRequiredRemoved:
			b.WriteString(fmt.Sprintf("- the required term %q was removed; it must appear in the output\n", v.Term))
		case domain.ViolationBannedPresent:
			b.WriteString(fmt.Sprintf("- the banned term %q was present; it must not appear in the output\n", v.Term))
		}
	}

	return b.String()
}

func writeToneBlock(b *strings.Builder, header string, weights []domain.ToneWeight) {
	if len(weights) == 0 {
		return
	}

	b.WriteString("\n")
	b.WriteString(header)
	b.WriteString("\n")
	for _, w := range weights {
		b.WriteString(fmt.Sprintf("- %s: %s\n", w.Dimension, w.Level))
	}
}

func writeTermBlock(b *strings.Builder, header string, terms []string) {
	if len(terms) == 0 {
		return
	}

	b.WriteString("\n")
	b.WriteString(header)
	b.WriteString("\n")
	for _, term := range terms {
		b.WriteString(fmt.Sprintf("- %s\n", term))
	}
}
