package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adcreative/internal/core"
)

// fakeStore records uploads and replays a scripted sequence of status responses.
type fakeStore struct {
	mu        sync.Mutex
	uploads   []string
	uploadErr error
	upload    func(mimeType, name string) *core.AssetHandle

	statuses []core.AssetState
	errs     []error
	getCalls atomic.Int32
	// hang makes GetFile block until its context is done.
	hang bool
}

func (f *fakeStore) UploadFile(_ context.Context, _ []byte, mimeType, displayName string) (*core.AssetHandle, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, mimeType)
	f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if f.upload != nil {
		return f.upload(mimeType, displayName), nil
	}
	return &core.AssetHandle{Name: "files/" + displayName, URI: "https://files.test/files/" + displayName, State: core.AssetPending}, nil
}

func (f *fakeStore) GetFile(ctx context.Context, id string) (*core.AssetHandle, error) {
	n := int(f.getCalls.Add(1)) - 1
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	state := core.AssetPending
	if len(f.statuses) > 0 {
		state = f.statuses[min(n, len(f.statuses)-1)]
	}
	return &core.AssetHandle{Name: "files/" + id, URI: "https://files.test/files/" + id, State: state}, nil
}

func TestNormalizeMIME(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"image/png", "image/png"},
		{"IMAGE/JPEG", "image/jpeg"},
		{"image/jpg", "image/jpeg"},
		{"image/webp", "image/webp"},
		{"image/heic", "image/heic"},
		{"image/heif", "image/heif"},
		{"image/gif", FallbackImageMIME},
		{"image/avif", FallbackImageMIME},
		{"image/bmp", FallbackImageMIME},
		{"image/tiff", FallbackImageMIME},
		{"image/svg+xml", FallbackImageMIME},
		{"image/x-icon", FallbackImageMIME},
		{"", FallbackImageMIME},
		{"video/mp4", "video/mp4"},
		{"video/MP4; codecs=avc1", "video/mp4"},
		{"application/pdf", "application/pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMIME(tt.in))
		})
	}
}

func TestUpload_NormalizesBeforeSending(t *testing.T) {
	store := &fakeStore{}
	u := NewUploader(store)

	for _, mt := range []string{"image/gif", "image/avif", "image/bmp"} {
		h, err := u.Upload(context.Background(), []byte("x"), mt, "img")
		require.NoError(t, err)
		assert.Equal(t, FallbackImageMIME, h.MIMEType)
	}
	assert.Equal(t, []string{FallbackImageMIME, FallbackImageMIME, FallbackImageMIME}, store.uploads)
}

func TestUpload_EmptyData(t *testing.T) {
	_, err := NewUploader(&fakeStore{}).Upload(context.Background(), nil, "image/png", "x")
	assert.True(t, core.Is(err, core.KindValidation))
}

func TestUpload_RejectionBecomesUploadError(t *testing.T) {
	store := &fakeStore{uploadErr: core.NewRemoteCallError("gemini", "Unsupported file", nil)}
	_, err := NewUploader(store).Upload(context.Background(), []byte("x"), "image/png", "x")

	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, core.KindUpload, coreErr.Kind)
	assert.Contains(t, coreErr.Message, "Unsupported file")
}

func TestUpload_KeepsAuthAndConnectivityClasses(t *testing.T) {
	for _, upstream := range []*core.Error{
		core.NewUpstreamAuthError("gemini", "bad key"),
		core.NewConnectivityError("gemini", "down", nil),
	} {
		store := &fakeStore{uploadErr: upstream}
		_, err := NewUploader(store).Upload(context.Background(), []byte("x"), "image/png", "x")
		assert.True(t, core.Is(err, upstream.Kind))
	}
}

func TestUpload_PlainErrorBecomesUploadError(t *testing.T) {
	store := &fakeStore{uploadErr: errors.New("boom")}
	_, err := NewUploader(store).Upload(context.Background(), []byte("x"), "image/png", "x")
	assert.True(t, core.Is(err, core.KindUpload))
}

func TestDecodeBase64(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	encoded := base64.StdEncoding.EncodeToString(png)

	data, mt, err := DecodeBase64("data:image/webp;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.Equal(t, "image/webp", mt)

	data, mt, err = DecodeBase64(encoded)
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.Equal(t, "image/png", mt)

	data, _, err = DecodeBase64(base64.RawStdEncoding.EncodeToString([]byte("ab")))
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), data)

	for _, bad := range []string{"", "   ", "data:image/png,plain", "!!!not-base64!!!"} {
		_, _, err := DecodeBase64(bad)
		assert.True(t, core.Is(err, core.KindValidation), "input %q", bad)
	}
}

func TestUploadBase64(t *testing.T) {
	store := &fakeStore{}
	payload := "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("GIF89a"))

	h, err := NewUploader(store).UploadBase64(context.Background(), payload, "product")
	require.NoError(t, err)
	assert.Equal(t, FallbackImageMIME, h.MIMEType)
}

func TestUploadAll_PreservesOrder(t *testing.T) {
	store := &fakeStore{}
	handles, err := NewUploader(store).UploadAll(context.Background(),
		Blob{Data: []byte("a"), MIMEType: "video/mp4", DisplayName: "video"},
		Blob{Data: []byte("b"), MIMEType: "image/png", DisplayName: "product"},
	)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Equal(t, "files/video", handles[0].Name)
	assert.Equal(t, "files/product", handles[1].Name)
}

func TestUploadAll_Failure(t *testing.T) {
	store := &fakeStore{uploadErr: core.NewRemoteCallError("gemini", "nope", nil)}
	_, err := NewUploader(store).UploadAll(context.Background(),
		Blob{Data: []byte("a"), MIMEType: "video/mp4", DisplayName: "video"},
	)
	assert.True(t, core.Is(err, core.KindUpload))
}

func fastPoller(store FileStore) *Poller {
	return NewPoller(store, PollerConfig{Interval: 5 * time.Millisecond, Budget: 60 * time.Millisecond})
}

func TestWaitActive_AlreadyActiveMakesNoCalls(t *testing.T) {
	store := &fakeStore{}
	h := &core.AssetHandle{Name: "files/a", URI: "https://files.test/files/a", State: core.AssetActive}

	got, err := fastPoller(store).WaitActive(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, got.Ready())
	assert.Equal(t, int32(0), store.getCalls.Load())
}

func TestWaitActive_BecomesActive(t *testing.T) {
	store := &fakeStore{statuses: []core.AssetState{core.AssetPending, core.AssetPending, core.AssetActive}}
	h := &core.AssetHandle{Name: "files/a", URI: "https://files.test/files/a", State: core.AssetPending}

	got, err := fastPoller(store).WaitActive(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, got.Ready())
	assert.Equal(t, int32(3), store.getCalls.Load())
	assert.Equal(t, core.AssetPending, h.State, "input handle must not be mutated")
}

func TestWaitActive_DerivesIdentifierFromURI(t *testing.T) {
	store := &fakeStore{statuses: []core.AssetState{core.AssetActive}}
	h := &core.AssetHandle{URI: "https://files.test/v1beta/files/xyz", State: core.AssetPending}

	got, err := fastPoller(store).WaitActive(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, got.Ready())
}

func TestWaitActive_MissingIdentifierFailsFast(t *testing.T) {
	store := &fakeStore{}
	_, err := fastPoller(store).WaitActive(context.Background(), &core.AssetHandle{State: core.AssetPending})

	assert.True(t, core.Is(err, core.KindMissingIdentifier))
	assert.Equal(t, int32(0), store.getCalls.Load())
}

func TestWaitActive_Failed(t *testing.T) {
	store := &fakeStore{statuses: []core.AssetState{core.AssetPending, core.AssetFailed}}
	h := &core.AssetHandle{Name: "files/a", State: core.AssetPending}

	_, err := fastPoller(store).WaitActive(context.Background(), h)
	assert.True(t, core.Is(err, core.KindAssetFailed))
	assert.Equal(t, int32(2), store.getCalls.Load())
}

func TestWaitActive_TransientErrorsDoNotAbort(t *testing.T) {
	store := &fakeStore{
		errs:     []error{errors.New("network blip"), errors.New("network blip")},
		statuses: []core.AssetState{core.AssetPending, core.AssetPending, core.AssetActive},
	}
	h := &core.AssetHandle{Name: "files/a", State: core.AssetPending}

	got, err := fastPoller(store).WaitActive(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, got.Ready())
}

func TestWaitActive_Timeout(t *testing.T) {
	store := &fakeStore{statuses: []core.AssetState{core.AssetPending}}
	h := &core.AssetHandle{Name: "files/a", State: core.AssetPending}
	p := NewPoller(store, PollerConfig{Interval: 10 * time.Millisecond, Budget: 50 * time.Millisecond})

	start := time.Now()
	_, err := p.WaitActive(context.Background(), h)
	elapsed := time.Since(start)

	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, core.KindReadinessTimeout, coreErr.Kind)
	assert.Contains(t, coreErr.Details, "PENDING")
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 50*time.Millisecond+10*time.Millisecond+100*time.Millisecond)
}

func TestWaitActive_HungStatusCheckStillTimesOut(t *testing.T) {
	store := &fakeStore{hang: true}
	p := NewPoller(store, PollerConfig{Interval: 20 * time.Millisecond, Budget: 100 * time.Millisecond})

	start := time.Now()
	_, err := p.WaitActive(context.Background(), &core.AssetHandle{Name: "files/a", State: core.AssetPending})
	elapsed := time.Since(start)

	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, core.KindReadinessTimeout, coreErr.Kind)
	assert.Equal(t, int32(1), store.getCalls.Load())
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 100*time.Millisecond+20*time.Millisecond+100*time.Millisecond)
}

func TestWaitActive_ContextCancelled(t *testing.T) {
	store := &fakeStore{}
	p := NewPoller(store, PollerConfig{Interval: time.Hour, Budget: 2 * time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.WaitActive(ctx, &core.AssetHandle{Name: "files/a", State: core.AssetPending})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(&fakeStore{}, PollerConfig{})
	assert.Equal(t, DefaultPollInterval, p.cfg.Interval)
	assert.Equal(t, DefaultPollBudget, p.cfg.Budget)
}

func TestWaitAll(t *testing.T) {
	store := &fakeStore{statuses: []core.AssetState{core.AssetActive}}
	handles, err := fastPoller(store).WaitAll(context.Background(),
		&core.AssetHandle{Name: "files/a", State: core.AssetActive},
		&core.AssetHandle{Name: "files/b", State: core.AssetPending},
	)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.True(t, handles[1].Ready())
	assert.Equal(t, int32(1), store.getCalls.Load())
}
