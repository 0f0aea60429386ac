package usage

import (
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"adcreative/internal/core"
)

// FromGeminiResponse reads usageMetadata from a generateContent response body.
// Missing counters are zero.
func FromGeminiResponse(body []byte) (core.Usage, map[string]int) {
	meta := gjson.GetBytes(body, "usageMetadata")
	u := core.Usage{
		InputTokens:  int(meta.Get("promptTokenCount").Int()),
		OutputTokens: int(meta.Get("candidatesTokenCount").Int()),
	}

	extra := map[string]int{}
	for key, path := range map[string]string{
		ExtraThoughtsTokens: "thoughtsTokenCount",
		ExtraCachedTokens:   "cachedContentTokenCount",
		ExtraToolUseTokens:  "toolUsePromptTokenCount",
	} {
		if n := meta.Get(path).Int(); n > 0 {
			extra[key] = int(n)
		}
	}
	if len(extra) == 0 {
		extra = nil
	}
	return u, extra
}

// NewEntry builds an entry for one generation call.
func NewEntry(requestID, model, endpoint, stage string, u core.Usage, extra map[string]int) *Entry {
	return &Entry{
		ID:           uuid.New().String(),
		RequestID:    requestID,
		Timestamp:    time.Now().UTC(),
		Model:        model,
		Endpoint:     endpoint,
		Stage:        stage,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens + extra[ExtraThoughtsTokens],
		Extra:        extra,
	}
}
