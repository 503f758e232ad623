// Package cost estimates model spend for a batch before it runs.
package cost

import "github.com/andydreyson/v0-safetydatas-sub001/constants"

const (
	TokensPerPage        = 500
	PromptOverheadTokens = 150
	// MaxInputTokens caps the input side: only the first pages are ever sent.
	MaxInputTokens = 1200
)

// PriceTable is USD per one million tokens.
type PriceTable struct {
	Model          string
	InputPerMTok   float64
	OutputPerMTok  float64
	OutputTokens   int // tokens billed per answer
	MaxInputTokens int
}

// DefaultPrices is gpt-4o-mini list pricing.
func DefaultPrices() PriceTable {
	return PriceTable{
		Model:          "gpt-4o-mini",
		InputPerMTok:   0.15,
		OutputPerMTok:  0.60,
		OutputTokens:   constants.MaxOutputTokens,
		MaxInputTokens: MaxInputTokens,
	}
}

type Estimate struct {
	Documents      int     `json:"documents"`
	AvgPages       float64 `json:"avg_pages"`
	InputTokens    int     `json:"input_tokens_per_document"`
	OutputTokens   int     `json:"output_tokens_per_document"`
	CostPerDoc     float64 `json:"cost_per_document_usd"`
	TotalCost      float64 `json:"total_cost_usd"`
	TotalTokens    int64   `json:"total_tokens"`
	Model          string  `json:"model"`
	InputTokensCap bool    `json:"input_tokens_capped"`
}

// Compute assumes every document reaches the model, so it is an upper bound.
// Negative inputs count as zero.
func Compute(docs int, avgPages float64, prices PriceTable) Estimate {
	if docs < 0 {
		docs = 0
	}
	if avgPages < 0 || avgPages != avgPages { // NaN
		avgPages = 0
	}
	if prices.MaxInputTokens <= 0 {
		prices.MaxInputTokens = MaxInputTokens
	}
	if prices.OutputTokens < 0 {
		prices.OutputTokens = 0
	}

	in := float64(PromptOverheadTokens) + avgPages*TokensPerPage
	capped := false
	if in > float64(prices.MaxInputTokens) {
		in = float64(prices.MaxInputTokens)
		capped = true
	}
	inTok := int(in + 0.5)
	outTok := prices.OutputTokens

	perDoc := float64(inTok)/1e6*prices.InputPerMTok + float64(outTok)/1e6*prices.OutputPerMTok
	return Estimate{
		Documents:      docs,
		AvgPages:       avgPages,
		InputTokens:    inTok,
		OutputTokens:   outTok,
		CostPerDoc:     perDoc,
		TotalCost:      perDoc * float64(docs),
		TotalTokens:    int64(inTok+outTok) * int64(docs),
		Model:          prices.Model,
		InputTokensCap: capped,
	}
}

// MaxCostPerDoc is the most any single document can cost under prices.
func MaxCostPerDoc(prices PriceTable) float64 {
	if prices.MaxInputTokens <= 0 {
		prices.MaxInputTokens = MaxInputTokens
	}
	return float64(prices.MaxInputTokens)/1e6*prices.InputPerMTok + float64(prices.OutputTokens)/1e6*prices.OutputPerMTok
}
