package scrapecreators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adcreative/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{APIKey: "sc-key", BaseURL: server.URL})
}

func TestFacebookAd(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/facebook/adLibrary/ad", r.URL.Path)
		assert.Equal(t, "123456789", r.URL.Query().Get("id"))
		assert.Equal(t, "sc-key", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"adArchiveID":"123456789","snapshot":{"videos":[{"video_hd_url":"https://cdn.test/v.mp4"}]}}`))
	})

	raw, err := client.FacebookAd(context.Background(), "123456789")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "video_hd_url")
}

func TestFacebookAd_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		kind    core.ErrorKind
		message string
		code    int
	}{
		{"invalid key", http.StatusUnauthorized, core.KindUpstreamAuth, "Invalid ScrapeCreators API key", http.StatusUnauthorized},
		{"no credits", http.StatusPaymentRequired, core.KindUpstreamQuota, "No credits in ScrapeCreators", http.StatusPaymentRequired},
		{"not found", http.StatusNotFound, core.KindUpstreamNotFound, "Ad not found in Facebook Ad Library", http.StatusNotFound},
		{"server error", http.StatusInternalServerError, core.KindRemoteCall, "boom", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"boom"}`))
			})

			_, err := client.FacebookAd(context.Background(), "1")
			var coreErr *core.Error
			require.ErrorAs(t, err, &coreErr)
			assert.Equal(t, tt.kind, coreErr.Kind)
			assert.Equal(t, tt.message, coreErr.Message)
			assert.Equal(t, tt.code, coreErr.HTTPStatusCode())
		})
	}
}

func TestFacebookAd_InvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := client.FacebookAd(context.Background(), "1")
	assert.True(t, core.Is(err, core.KindRemoteCall))
}

func TestTikTokTranscript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tiktok/video/transcript", r.URL.Path)
		assert.Equal(t, "https://www.tiktok.com/@x/video/1", r.URL.Query().Get("url"))
		_, _ = w.Write([]byte(`{"id":"1","transcript":"WEBVTT\n\n00:00:00.120 --> 00:00:01.500\nStop scrolling\n\n00:00:01.500 --> 00:00:03.000\nthis changed my mornings\n"}`))
	})

	text, err := client.TikTokTranscript(context.Background(), "https://www.tiktok.com/@x/video/1")
	require.NoError(t, err)
	assert.Equal(t, "Stop scrolling this changed my mornings", text)
}

func TestTikTokTranscript_Missing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1","transcript":null}`))
	})

	_, err := client.TikTokTranscript(context.Background(), "https://www.tiktok.com/@x/video/1")
	assert.True(t, core.Is(err, core.KindUpstreamNotFound))
}

func TestFlattenWebVTT(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "cues with ids and tags",
			in:   "WEBVTT\r\n\r\n1\r\n00:01.000 --> 00:02.000\r\n<v Speaker>Hello</v> there\r\n\r\n2\r\n00:02.000 --> 00:03.000\r\nfriend",
			want: "Hello there friend",
		},
		{
			name: "note blocks skipped",
			in:   "WEBVTT\n\nNOTE generated\nby a tool\n\n00:00:01.000 --> 00:00:02.000\nBuy now",
			want: "Buy now",
		},
		{
			name: "numeric speech kept",
			in:   "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\n42\n",
			want: "42",
		},
		{
			name: "plain text",
			in:   "just   some\ntext",
			want: "just some text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlattenWebVTT(tt.in))
		})
	}
}
