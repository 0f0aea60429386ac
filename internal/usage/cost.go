package usage

import (
	"fmt"
	"sort"
	"strings"
)

// Pricing holds published per-million-token rates for a model, in USD.
type Pricing struct {
	InputPerMtok       *float64 `yaml:"input_per_mtok" json:"input_per_mtok,omitempty"`
	OutputPerMtok      *float64 `yaml:"output_per_mtok" json:"output_per_mtok,omitempty"`
	CachedInputPerMtok *float64 `yaml:"cached_input_per_mtok" json:"cached_input_per_mtok,omitempty"`
}

// CostResult holds an estimate split by side.
type CostResult struct {
	InputCost  *float64
	OutputCost *float64
	TotalCost  *float64
	Caveat     string
}

// Extra counter keys produced by FromGeminiResponse.
const (
	ExtraThoughtsTokens = "thoughts_tokens"
	ExtraCachedTokens   = "cached_tokens"
	ExtraToolUseTokens  = "tool_use_prompt_tokens"
)

// PriceTable maps model ids to pricing.
type PriceTable map[string]Pricing

func ptr(f float64) *float64 { return &f }

// DefaultPriceTable returns the published Gemini rates the service ships with.
// Config may override or extend them.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		"gemini-2.5-pro":        {InputPerMtok: ptr(1.25), OutputPerMtok: ptr(10.0), CachedInputPerMtok: ptr(0.31)},
		"gemini-2.5-flash":      {InputPerMtok: ptr(0.30), OutputPerMtok: ptr(2.50), CachedInputPerMtok: ptr(0.075)},
		"gemini-2.5-flash-lite": {InputPerMtok: ptr(0.10), OutputPerMtok: ptr(0.40), CachedInputPerMtok: ptr(0.025)},
		"gemini-2.0-flash":      {InputPerMtok: ptr(0.10), OutputPerMtok: ptr(0.40), CachedInputPerMtok: ptr(0.025)},
	}
}

// Lookup finds pricing for model. "models/" prefixes are ignored and versioned ids
// such as "gemini-2.5-flash-preview-05-20" fall back to the longest known prefix.
func (t PriceTable) Lookup(model string) (*Pricing, bool) {
	model = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(model)), "models/")
	if p, ok := t[model]; ok {
		return &p, true
	}
	best := ""
	for id := range t {
		if strings.HasPrefix(model, id+"-") && len(id) > len(best) {
			best = id
		}
	}
	if best == "" {
		return nil, false
	}
	p := t[best]
	return &p, true
}

// CalculateCost computes tokens/1e6 × rate per side. Thinking tokens bill at the output
// rate and cached prompt tokens at the cached rate when one is published. Unpriced
// extra counters are listed in Caveat.
func CalculateCost(inputTokens, outputTokens int, extra map[string]int, pricing *Pricing) CostResult {
	if pricing == nil {
		return CostResult{Caveat: "no pricing for model"}
	}

	var inputCost, outputCost float64
	var hasInput, hasOutput bool
	var caveats []string

	if pricing.InputPerMtok != nil {
		billable := inputTokens
		if cached := extra[ExtraCachedTokens]; cached > 0 && pricing.CachedInputPerMtok != nil {
			billable -= min(cached, inputTokens)
			inputCost += float64(min(cached, inputTokens)) * *pricing.CachedInputPerMtok / 1_000_000
		}
		inputCost += float64(billable) * *pricing.InputPerMtok / 1_000_000
		hasInput = true
	}

	if pricing.OutputPerMtok != nil {
		outputCost += float64(outputTokens+extra[ExtraThoughtsTokens]) * *pricing.OutputPerMtok / 1_000_000
		hasOutput = true
	}

	for key, count := range extra {
		switch key {
		case ExtraThoughtsTokens, ExtraCachedTokens:
			continue
		}
		if count > 0 {
			caveats = append(caveats, fmt.Sprintf("unpriced token field: %s", key))
		}
	}

	result := CostResult{}
	if hasInput {
		result.InputCost = &inputCost
	}
	if hasOutput {
		result.OutputCost = &outputCost
	}
	if hasInput || hasOutput {
		total := inputCost + outputCost
		result.TotalCost = &total
	}

	sort.Strings(caveats)
	result.Caveat = strings.Join(caveats, "; ")
	return result
}
