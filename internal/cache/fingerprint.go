// Package cache provides request fingerprinting and the response cache
// used for request deduplication.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/davidbz/tonepipe/internal/domain"
)

// canonicalDimension carries the resolved dial range, not the raw
// Min/Max fields: a request that spells out the default range and one
// that omits it mean the same thing, while a custom range changes the
// normalized weight and therefore must change the key.
type canonicalDimension struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// canonicalRequest is the stable serialized form a fingerprint is
// derived from. Field order is fixed by the struct definition and
// encoding/json preserves it.
type canonicalRequest struct {
	Text       string               `json:"text"`
	Dimensions []canonicalDimension `json:"dimensions"`
	Required   []string             `json:"required"`
	Banned     []string             `json:"banned"`
	Model      string               `json:"model"`
}

// Fingerprint canonicalizes a request into a stable cache key. Two
// semantically identical requests (same text modulo case/whitespace,
// same dial values and resolved ranges regardless of submission order,
// same guardrail sets regardless of ordering, same model) always yield
// the same key; any difference in any field changes the key.
func Fingerprint(req *domain.RewriteRequest) string {
	dims := make([]canonicalDimension, 0, len(req.Dimensions))
	for _, dim := range req.Dimensions {
		min, max := dim.Range()
		dims = append(dims, canonicalDimension{ID: dim.ID, Value: dim.Value, Min: min, Max: max})
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i].ID < dims[j].ID })

	guardrails := req.Guardrails.Canonical()

	canonical := canonicalRequest{
		Text:       strings.ToLower(strings.TrimSpace(req.Text)),
		Dimensions: dims,
		Required:   guardrails.Required,
		Banned:     guardrails.Banned,
		Model:      req.Model,
	}

	// Marshal of a struct with no maps cannot fail.
	data, _ := json.Marshal(canonical)

	hash := sha256.Sum256(data)
	return fmt.Sprintf("rewrite:%s", hex.EncodeToString(hash[:]))
}
