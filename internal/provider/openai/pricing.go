package openai

import (
	"context"
	"fmt"

	"github.com/davidbz/tonepipe/internal/domain"
)

// Static per-1K token USD prices for supported models. This table is
// the model price configuration: it drives both model-support checks
// and the cost the usage meter charges against tier budgets.
//
//nolint:gochecknoglobals // Static lookup data, read-only after init
var modelPricing = map[string]domain.PricingConfig{
	"gpt-4": {
		InputCostPer1K:  0.03,
		OutputCostPer1K: 0.06,
	},
	"gpt-4-turbo": {
		InputCostPer1K:  0.01,
		OutputCostPer1K: 0.03,
	},
	"gpt-3.5-turbo": {
		InputCostPer1K:  0.0005,
		OutputCostPer1K: 0.0015,
	},
}

// RegisterPricing registers OpenAI model pricing with the registry.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	for model, config := range modelPricing {
		if err := registry.RegisterPricing(ctx, model, config); err != nil {
			return fmt.Errorf("failed to register pricing for %s: %w", model, err)
		}
	}
	return nil
}
