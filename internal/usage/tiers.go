package usage

// TierPolicy governs quotas, budget and model access for one
// subscription tier. Policies are static configuration, read-only at
// runtime.
type TierPolicy struct {
	ID                string
	MonthlyRewriteCap int
	MonthlyBudgetUSD  float64
	AllowedModels     map[string]bool
	HourlyRateCap     int

	// FailOpen controls the policy when usage state cannot be read:
	// paid tiers are not blocked on transient storage issues, while the
	// free tier stays closed to bound cost exposure.
	FailOpen bool
}

// Tier identifiers.
const (
	TierFree     = "free"
	TierPro      = "pro"
	TierBusiness = "business"
)

// DefaultTierPolicies returns the built-in tier table.
func DefaultTierPolicies() map[string]TierPolicy {
	return map[string]TierPolicy{
		TierFree: {
			ID:                TierFree,
			MonthlyRewriteCap: 50,
			MonthlyBudgetUSD:  1.00,
			AllowedModels: map[string]bool{
				"gpt-3.5-turbo": true,
			},
			HourlyRateCap: 10,
			FailOpen:      false,
		},
		TierPro: {
			ID:                TierPro,
			MonthlyRewriteCap: 1000,
			MonthlyBudgetUSD:  25.00,
			AllowedModels: map[string]bool{
				"gpt-3.5-turbo": true,
				"gpt-4-turbo":   true,
			},
			HourlyRateCap: 120,
			FailOpen:      true,
		},
		TierBusiness: {
			ID:                TierBusiness,
			MonthlyRewriteCap: 10000,
			MonthlyBudgetUSD:  250.00,
			AllowedModels: map[string]bool{
				"gpt-3.5-turbo": true,
				"gpt-4-turbo":   true,
				"gpt-4":         true,
			},
			HourlyRateCap: 600,
			FailOpen:      true,
		},
	}
}
