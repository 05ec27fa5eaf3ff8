package cache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/tonepipe/internal/cache"
	"github.com/davidbz/tonepipe/internal/domain"
)

func baseRequest() *domain.RewriteRequest {
	return &domain.RewriteRequest{
		Text: "Thanks for the update",
		Dimensions: []domain.ToneDimension{
			{ID: "formality", Value: 80},
			{ID: "conversational", Value: 30},
		},
		Guardrails: domain.Guardrails{
			Required: []string{"update"},
			Banned:   []string{"asap"},
		},
		Model:  "gpt-3.5-turbo",
		UserID: "user-1",
		Tier:   "free",
	}
}

func TestFingerprint(t *testing.T) {
	t.Run("should be stable for identical requests", func(t *testing.T) {
		require.Equal(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(baseRequest()))
	})

	t.Run("should ignore text case and surrounding whitespace", func(t *testing.T) {
		modified := baseRequest()
		modified.Text = "  THANKS for the Update \n"

		require.Equal(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(modified))
	})

	t.Run("should ignore dimension submission order", func(t *testing.T) {
		modified := baseRequest()
		modified.Dimensions = []domain.ToneDimension{
			{ID: "conversational", Value: 30},
			{ID: "formality", Value: 80},
		}

		require.Equal(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(modified))
	})

	t.Run("should ignore guardrail term order and case", func(t *testing.T) {
		modified := baseRequest()
		modified.Guardrails = domain.Guardrails{
			Required: []string{"UPDATE"},
			Banned:   []string{"Asap"},
		}

		require.Equal(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(modified))
	})

	t.Run("should ignore user identity", func(t *testing.T) {
		modified := baseRequest()
		modified.UserID = "user-2"
		modified.Tier = "pro"

		require.Equal(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(modified))
	})

	t.Run("should change when the text differs", func(t *testing.T) {
		modified := baseRequest()
		modified.Text = "Thanks for the updates"

		require.NotEqual(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(modified))
	})

	t.Run("should change when a dial value differs", func(t *testing.T) {
		modified := baseRequest()
		modified.Dimensions[0].Value = 81

		require.NotEqual(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(modified))
	})

	t.Run("should change when a dial range differs", func(t *testing.T) {
		// The same raw value on a narrower range normalizes to a
		// different weight, so the keys must not collide.
		base := baseRequest()
		base.Dimensions = []domain.ToneDimension{{ID: "formality", Value: 50}}

		modified := baseRequest()
		modified.Dimensions = []domain.ToneDimension{{ID: "formality", Value: 50, Min: 0, Max: 50}}

		require.NotEqual(t, cache.Fingerprint(base), cache.Fingerprint(modified))
	})

	t.Run("should ignore an explicitly spelled-out default range", func(t *testing.T) {
		modified := baseRequest()
		modified.Dimensions = []domain.ToneDimension{
			{ID: "formality", Value: 80, Min: 0, Max: 100},
			{ID: "conversational", Value: 30, Min: 0, Max: 100},
		}

		require.Equal(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(modified))
	})

	t.Run("should change when a guardrail term differs", func(t *testing.T) {
		modified := baseRequest()
		modified.Guardrails.Banned = []string{"soon"}

		require.NotEqual(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(modified))
	})

	t.Run("should change when the model differs", func(t *testing.T) {
		modified := baseRequest()
		modified.Model = "gpt-4"

		require.NotEqual(t, cache.Fingerprint(baseRequest()), cache.Fingerprint(modified))
	})
}
