package domain

import (
	"sort"
	"strings"
)

// Default dial domain. Individual dimensions may override the range.
const (
	DefaultDialMin = 0
	DefaultDialMax = 100
)

// Level is the qualitative strength label derived from a tone weight.
type Level string

const (
	LevelVeryLow  Level = "very low"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very high"
)

// ToneDimension is one user-adjustable tone dial, supplied per request.
type ToneDimension struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
	Min   int    `json:"min,omitempty"`
	Max   int    `json:"max,omitempty"`
}

// Range returns the dial domain, falling back to the default when unset.
func (d ToneDimension) Range() (int, int) {
	if d.Min == 0 && d.Max == 0 {
		return DefaultDialMin, DefaultDialMax
	}
	return d.Min, d.Max
}

// ToneWeight is the normalized signed strength of a dimension's setting.
type ToneWeight struct {
	Dimension string  `json:"dimension"`
	Weight    float64 `json:"weight"`
	Level     Level   `json:"level"`
}

// ConflictResolution splits weighted dimensions into authoritative and
// advisory instruction sets. Primary holds at most three entries; both
// slices are sorted descending by absolute weight.
type ConflictResolution struct {
	Primary   []ToneWeight `json:"primary"`
	Secondary []ToneWeight `json:"secondary"`
}

// Guardrails are term constraints on the rewritten output. Terms are
// matched case-insensitively; duplicates carry no extra meaning.
type Guardrails struct {
	Required []string `json:"required,omitempty"`
	Banned   []string `json:"banned,omitempty"`
}

// Empty reports whether no guardrail terms are set.
func (g Guardrails) Empty() bool {
	return len(g.Required) == 0 && len(g.Banned) == 0
}

// Canonical returns a copy with both term sets lowercased, trimmed,
// deduplicated and sorted. Every consumer (assembly, verification,
// fingerprinting) works off this form so term list ordering never leaks
// into output or cache keys.
func (g Guardrails) Canonical() Guardrails {
	return Guardrails{
		Required: canonicalTerms(g.Required),
		Banned:   canonicalTerms(g.Banned),
	}
}

func canonicalTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))

	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	sort.Strings(out)
	return out
}

// RewriteRequest is one validated tone-rewrite request. It is immutable
// for the life of a pipeline run. Dimension order is preserved as
// submitted; it breaks ties during conflict resolution.
type RewriteRequest struct {
	Text       string          `json:"text"`
	Dimensions []ToneDimension `json:"dimensions"`
	Guardrails Guardrails      `json:"guardrails"`
	Model      string          `json:"model"`
	UserID     string          `json:"user_id"`
	Tier       string          `json:"tier"`
}

// ViolationType classifies a guardrail violation.
type ViolationType string

const (
	ViolationRequiredRemoved ViolationType = "required_term_removed"
	ViolationBannedPresent   ViolationType = "banned_term_present"
)

// Violation records a single guardrail non-compliance in a candidate
// rewrite. Violations that survive the retry are returned as data, not
// as an error.
type Violation struct {
	Type ViolationType `json:"type"`
	Term string        `json:"term"`
}

// RewriteResult is the pipeline outcome returned to callers.
type RewriteResult struct {
	RewrittenText string      `json:"rewritten_text"`
	OriginalText  string      `json:"original_text"`
	Model         string      `json:"model"`
	ProcessingMS  int64       `json:"processing_ms"`
	TokensUsed    int         `json:"tokens_used"`
	Violations    []Violation `json:"violations,omitempty"`
}

// ProviderResult is the raw outcome of one text-generation call.
// InputTokens/OutputTokens are zero when the provider reports only a
// total.
type ProviderResult struct {
	Text         string `json:"text"`
	TotalTokens  int    `json:"total_tokens"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}
