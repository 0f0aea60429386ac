package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeouts(t *testing.T) {
	base := DefaultConfig()

	cfg := base.WithTimeouts(30*time.Second, 0)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, base.ResponseHeaderTimeout, cfg.ResponseHeaderTimeout)
	assert.Equal(t, 5*time.Minute, base.Timeout, "receiver is not modified")
}

func TestNewHTTPClient_SetsUserAgent(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.Header.Get("User-Agent"))
		mu.Unlock()
	}))
	defer srv.Close()

	client := NewDefaultHTTPClient()
	assert.Equal(t, 5*time.Minute, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom/2")
	resp, err = client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{DefaultUserAgent, "custom/2"}, got)
	assert.Equal(t, "custom/2", req.Header.Get("User-Agent"))
}
