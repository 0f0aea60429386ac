package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"adcreative/internal/core"
	"adcreative/internal/providers/firecrawl"
	"adcreative/internal/ratelimit"
)

const (
	testAdID    = "1234567890123"
	testAdURL   = "https://www.facebook.com/ads/library/?id=" + testAdID
	testVideo   = "https://video.cdn.test/ad.mp4"
	testPNGData = "data:image/png;base64,iVBORw0KGgo="
)

var testAdPayload = json.RawMessage(`{"ad_archive_id":"` + testAdID + `","snapshot":{"videos":[{"video_hd_url":"` + testVideo + `"}]}}`)

type fakeAds struct {
	ad            json.RawMessage
	adErr         error
	transcript    string
	transcriptErr error
	requestedAd   string
}

func (f *fakeAds) FacebookAd(_ context.Context, adID string) (json.RawMessage, error) {
	f.requestedAd = adID
	if f.adErr != nil {
		return nil, f.adErr
	}
	return f.ad, nil
}

func (f *fakeAds) TikTokTranscript(context.Context, string) (string, error) {
	if f.transcriptErr != nil {
		return "", f.transcriptErr
	}
	return f.transcript, nil
}

type fakePages struct {
	page *firecrawl.Page
	err  error
}

func (f *fakePages) Summarize(_ context.Context, pageURL string) (*firecrawl.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.page
	p.URL = pageURL
	return &p, nil
}

type fakeMedia struct {
	err     error
	fetched []string
	mu      sync.Mutex
}

func (f *fakeMedia) Fetch(_ context.Context, target string) ([]byte, string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, target)
	f.mu.Unlock()
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("video bytes"), "video/mp4", nil
}

// fakeFiles accepts every upload as immediately ACTIVE.
type fakeFiles struct {
	mu        sync.Mutex
	uploads   map[string]string
	failNames map[string]error
}

func (f *fakeFiles) UploadFile(_ context.Context, _ []byte, mimeType, displayName string) (*core.AssetHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNames[displayName]; err != nil {
		return nil, err
	}
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[displayName] = mimeType
	return &core.AssetHandle{
		Name:     "files/" + displayName,
		URI:      "https://files.test/v1beta/files/" + displayName,
		MIMEType: mimeType,
		State:    core.AssetActive,
	}, nil
}

func (f *fakeFiles) GetFile(_ context.Context, id string) (*core.AssetHandle, error) {
	return &core.AssetHandle{Name: "files/" + id, State: core.AssetActive}, nil
}

type genCall struct {
	prompt string
	assets []string
}

type genReply struct {
	text string
	err  error
}

// fakeGenerator replays queued replies and records every call.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []genReply
	calls   []genCall
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, assets []*core.AssetHandle, _ string) (*core.GenerationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(assets))
	for _, a := range assets {
		names = append(names, a.Name)
	}
	g.calls = append(g.calls, genCall{prompt: prompt, assets: names})
	if len(g.replies) == 0 {
		return &core.GenerationResult{}, nil
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &core.GenerationResult{Text: r.text, Usage: core.Usage{InputTokens: 100, OutputTokens: 20}}, nil
}

type testEnv struct {
	ads   *fakeAds
	pages *fakePages
	media *fakeMedia
	files *fakeFiles
	gen   *fakeGenerator
}

func newTestEnv(replies ...genReply) *testEnv {
	return &testEnv{
		ads:   &fakeAds{ad: testAdPayload, transcript: "you will not believe this trick"},
		pages: &fakePages{page: &firecrawl.Page{Title: "Shop", Summary: "A shop selling serums."}},
		media: &fakeMedia{},
		files: &fakeFiles{},
		gen:   &fakeGenerator{replies: replies},
	}
}

func (e *testEnv) deps() Deps {
	return Deps{
		Ads:       e.ads,
		Pages:     e.pages,
		Media:     e.media,
		Files:     e.files,
		Generator: e.gen,
	}
}

func (e *testEnv) server(limiter *ratelimit.Limiter, cfg *Config) *Server {
	return New(NewHandler(e.deps()), limiter, cfg)
}

func doJSON(t *testing.T, srv http.Handler, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var payload string
	switch b := body.(type) {
	case string:
		payload = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		payload = string(raw)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
