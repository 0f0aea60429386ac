package generation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adcreative/internal/core"
	"adcreative/internal/usage"
)

type fakeClient struct {
	body  string
	err   error
	model string
	req   *core.GenerationRequest
}

func (f *fakeClient) GenerateContent(_ context.Context, model string, req *core.GenerationRequest) ([]byte, error) {
	f.model = model
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []*usage.Entry
}

func (c *captureRecorder) Write(e *usage.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureRecorder) Close() error { return nil }

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		text   string
		source core.TextSource
	}{
		{
			name:   "concatenates parts",
			body:   `{"candidates":[{"content":{"parts":[{"text":"Hello, "},{"inlineData":{}},{"text":"world"}]}}]}`,
			text:   "Hello, world",
			source: core.TextFromParts,
		},
		{
			name:   "skips thought parts",
			body:   `{"candidates":[{"content":{"parts":[{"text":"thinking...","thought":true},{"text":"answer"}]}}]}`,
			text:   "answer",
			source: core.TextFromParts,
		},
		{
			name:   "only first candidate",
			body:   `{"candidates":[{"content":{"parts":[{"text":"one"}]}},{"content":{"parts":[{"text":"two"}]}}]}`,
			text:   "one",
			source: core.TextFromParts,
		},
		{
			name:   "flat text fallback",
			body:   `{"text":"  flat  "}`,
			text:   "flat",
			source: core.TextFromFlatField,
		},
		{
			name:   "parts without text fall back to flat",
			body:   `{"candidates":[{"content":{"parts":[{"functionCall":{}}]}}],"text":"flat"}`,
			text:   "flat",
			source: core.TextFromFlatField,
		},
		{
			name:   "no candidates",
			body:   `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`,
			source: core.TextAbsent,
		},
		{
			name:   "candidate without content",
			body:   `{"candidates":[{"finishReason":"SAFETY"}]}`,
			source: core.TextAbsent,
		},
		{
			name:   "non-string text",
			body:   `{"candidates":[{"content":{"parts":[{"text":42}]}}]}`,
			source: core.TextAbsent,
		},
		{
			name:   "invalid json",
			body:   `not json`,
			source: core.TextAbsent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Extract([]byte(tt.body))
			assert.Equal(t, tt.text, r.Text)
			assert.Equal(t, tt.source, r.Source)
			assert.Equal(t, tt.text == "", r.Empty())
		})
	}
}

func TestGenerate(t *testing.T) {
	client := &fakeClient{body: `{"candidates":[{"content":{"parts":[{"text":"done"}]}}],"usageMetadata":{"promptTokenCount":1000000,"candidatesTokenCount":1000000}}`}
	rec := &captureRecorder{}
	svc := NewService(client, Config{DefaultModel: "gemini-2.5-flash"}, rec)

	ctx := usage.WithStage(usage.WithEndpoint(core.WithRequestID(context.Background(), "req-1"), "/analyze"), "analysis")
	asset := &core.AssetHandle{Name: "files/a", URI: "https://files.test/a", MIMEType: "video/mp4", State: core.AssetActive}

	res, err := svc.Generate(ctx, "analyze", []*core.AssetHandle{asset}, "")
	require.NoError(t, err)

	assert.Equal(t, "done", res.Text)
	assert.Equal(t, "gemini-2.5-flash", res.Model)
	assert.Equal(t, "gemini-2.5-flash", client.model)
	assert.Equal(t, core.Usage{InputTokens: 1000000, OutputTokens: 1000000}, res.Usage)
	assert.InDelta(t, 2.80, res.CostUSD, 1e-9)

	parts := client.req.Parts()
	require.Len(t, parts, 2)
	assert.Equal(t, "https://files.test/a", parts[0].Asset.URI)
	assert.Equal(t, "analyze", parts[1].Text)

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Equal(t, "/analyze", entry.Endpoint)
	assert.Equal(t, "analysis", entry.Stage)
	require.NotNil(t, entry.CostUSD)
}

func TestGenerate_EmptyIsNotAnError(t *testing.T) {
	svc := NewService(&fakeClient{body: `{"candidates":[]}`}, Config{DefaultModel: "m"}, nil)
	res, err := svc.Generate(context.Background(), "p", nil, "")
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, core.TextAbsent, res.Source)
}

func TestGenerate_RejectsPendingAsset(t *testing.T) {
	client := &fakeClient{body: `{}`}
	svc := NewService(client, Config{DefaultModel: "m"}, nil)

	_, err := svc.Generate(context.Background(), "p", []*core.AssetHandle{{Name: "files/a", State: core.AssetPending}}, "")
	assert.True(t, core.Is(err, core.KindInternal))
	assert.Nil(t, client.req, "no remote call for a pending asset")
}

func TestGenerate_ErrorsAreClassified(t *testing.T) {
	upstream := core.NewUpstreamAuthError("gemini", "API key not valid")
	svc := NewService(&fakeClient{err: upstream}, Config{DefaultModel: "m"}, nil)
	_, err := svc.Generate(context.Background(), "p", nil, "")
	assert.True(t, core.Is(err, core.KindUpstreamAuth))

	svc = NewService(&fakeClient{err: errors.New("connection reset")}, Config{DefaultModel: "m"}, nil)
	_, err = svc.Generate(context.Background(), "p", nil, "")
	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, core.KindRemoteCall, coreErr.Kind)
	assert.Equal(t, "gemini", coreErr.Upstream)

	svc = NewService(&fakeClient{err: context.DeadlineExceeded}, Config{DefaultModel: "m"}, nil)
	_, err = svc.Generate(context.Background(), "p", nil, "")
	assert.True(t, core.Is(err, core.KindUpstreamConnectivity))
}

func TestGenerate_NoModel(t *testing.T) {
	svc := NewService(&fakeClient{}, Config{}, nil)
	_, err := svc.Generate(context.Background(), "p", nil, "")
	assert.True(t, core.Is(err, core.KindInternal))
}
