package history

import (
	"math"

	"genstudio/internal/generation"
)

const CurrencyUSD = "USD"

// EstimateCost prices the token counters of perf with the model's published
// rates. It returns nil when no counter is known or the model has no token
// pricing, so that an unpriced generation is never shown as free.
func EstimateCost(modelID string, perf Performance) *Cost {
	model, ok := generation.LookupModel(modelID)
	if !ok || (model.InputPerMillion == 0 && model.OutputPerMillion == 0) {
		return nil
	}
	var total float64
	switch {
	case perf.InputTokens != nil || perf.OutputTokens != nil:
		if perf.InputTokens != nil {
			total += float64(*perf.InputTokens) * model.InputPerMillion / 1e6
		}
		if perf.OutputTokens != nil {
			total += float64(*perf.OutputTokens) * model.OutputPerMillion / 1e6
		}
	case perf.TokensUsed != nil:
		total = float64(*perf.TokensUsed) * model.OutputPerMillion / 1e6
	default:
		return nil
	}
	return &Cost{
		EstimatedCost: math.Round(total*1e6) / 1e6,
		Currency:      CurrencyUSD,
	}
}
