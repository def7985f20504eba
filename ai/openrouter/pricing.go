package openrouter

// ModelPricing is USD per million tokens.
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

// Free reports whether the model costs nothing to call.
func (p ModelPricing) Free() bool {
	return p.PromptPrice == 0 && p.CompletionPrice == 0
}

// Prices for the catalog models with published OpenRouter rates.
// TODO: refresh from the /models endpoint instead of hardcoding.
var modelPricing = map[string]ModelPricing{
	"anthropic/claude-3.5-sonnet": {3.00, 15.00},
	"anthropic/claude-3.5-haiku":  {0.80, 4.00},
	"anthropic/claude-3-opus":     {15.00, 75.00},
	"anthropic/claude-3-sonnet":   {3.00, 15.00},
	"anthropic/claude-3-haiku":    {0.25, 1.25},

	"openai/o1-pro":        {150.00, 600.00},
	"openai/o1-mini":       {1.10, 4.40},
	"openai/gpt-4o":        {2.50, 10.00},
	"openai/gpt-4o-mini":   {0.15, 0.60},
	"openai/gpt-4-turbo":   {10.00, 30.00},
	"openai/gpt-3.5-turbo": {0.50, 1.50},

	"google/gemini-2.5-pro":   {1.25, 10.00},
	"google/gemini-pro-1.5":   {1.25, 5.00},
	"google/gemini-flash-1.5": {0.075, 0.30},
	"google/gemma-2-9b-it":    {0, 0},

	"deepseek/deepseek-r1":   {0.55, 2.19},
	"deepseek/deepseek-chat": {0.27, 1.10},

	"meta-llama/llama-3.3-70b-instruct":  {0.13, 0.40},
	"meta-llama/llama-3.1-405b-instruct": {2.70, 2.70},
	"meta-llama/llama-3.1-70b-instruct":  {0.52, 0.75},
	"meta-llama/llama-3.1-8b-instruct":   {0, 0},

	"mistralai/mistral-large-2407":    {2.00, 6.00},
	"mistralai/mixtral-8x7b-instruct": {0.24, 0.24},
	"mistralai/mistral-7b-instruct":   {0, 0},
}

// DefaultPricingFallback is charged per request when the model has no known
// price, so unknown models still show up in cost totals.
const DefaultPricingFallback = 0.01

// CalculateCost returns the USD cost of one call.
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, found := modelPricing[model]
	if !found {
		return DefaultPricingFallback
	}
	return float64(promptTokens)/1_000_000*pricing.PromptPrice +
		float64(completionTokens)/1_000_000*pricing.CompletionPrice
}

// GetPricing returns the known price for model.
func GetPricing(model string) (ModelPricing, bool) {
	pricing, found := modelPricing[model]
	return pricing, found
}
