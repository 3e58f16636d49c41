package bedrock

// Usage tracks token consumption for one invocation.
type Usage struct {
	InputTokens  int
	OutputTokens int

	// Estimated is true when either count was derived from text length
	// rather than reported by the model.
	Estimated bool
}

// estimateTokens approximates a token count from text length. Four
// characters per token is close enough for billing floor purposes.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// fillEstimates replaces zero counts with length-based estimates so
// usage records never silently under-report to billing.
func (u *Usage) fillEstimates(prompt, completion string) {
	if u.InputTokens == 0 && prompt != "" {
		u.InputTokens = estimateTokens(prompt)
		u.Estimated = true
	}
	if u.OutputTokens == 0 && completion != "" {
		u.OutputTokens = estimateTokens(completion)
		u.Estimated = true
	}
}
