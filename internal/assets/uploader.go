// Package assets uploads binaries to the remote AI file store and waits for them to become usable.
package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"adcreative/internal/core"
	"adcreative/internal/observability"
)

// FallbackImageMIME is used for image types the file store does not accept.
const FallbackImageMIME = "image/png"

var supportedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/heic": {},
	"image/heif": {},
}

// FileStore is the remote file service the uploader and poller talk to.
type FileStore interface {
	UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*core.AssetHandle, error)
	GetFile(ctx context.Context, id string) (*core.AssetHandle, error)
}

// NormalizeMIME returns the MIME type to send for an upload. Parameters are dropped;
// empty and unsupported image types become FallbackImageMIME. It never rejects.
func NormalizeMIME(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	} else if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "image/jpg" || mt == "image/pjpeg" {
		return "image/jpeg"
	}
	if mt == "" || strings.HasPrefix(mt, "image/") {
		if _, ok := supportedImageTypes[mt]; ok {
			return mt
		}
		return FallbackImageMIME
	}
	return mt
}

// Uploader sends binaries to the file store.
type Uploader struct {
	store FileStore
}

// NewUploader creates an uploader backed by store.
func NewUploader(store FileStore) *Uploader {
	return &Uploader{store: store}
}

// Upload sends data and returns the remote handle, which may already be ACTIVE.
// The buffer is not retained after the call returns.
func (u *Uploader) Upload(ctx context.Context, data []byte, mimeType, displayName string) (*core.AssetHandle, error) {
	if len(data) == 0 {
		return nil, core.NewValidationError("cannot upload an empty file", nil)
	}
	mt := NormalizeMIME(mimeType)

	handle, err := u.store.UploadFile(ctx, data, mt, displayName)
	if err != nil {
		observability.AssetUploads.WithLabelValues(mt, "error").Inc()
		return nil, uploadError(err)
	}
	if handle.MIMEType == "" {
		handle.MIMEType = mt
	}
	observability.AssetUploads.WithLabelValues(mt, "ok").Inc()
	slog.DebugContext(ctx, "asset uploaded",
		"name", handle.Name,
		"mime_type", mt,
		"size", len(data),
		"state", handle.State,
		"request_id", core.GetRequestID(ctx),
	)
	return handle, nil
}

// UploadBase64 decodes a raw base64 string or a data URL and uploads it. The MIME type
// comes from the data URL header, else from content sniffing.
func (u *Uploader) UploadBase64(ctx context.Context, payload, displayName string) (*core.AssetHandle, error) {
	data, mimeType, err := DecodeBase64(payload)
	if err != nil {
		return nil, err
	}
	return u.Upload(ctx, data, mimeType, displayName)
}

// DecodeBase64 decodes a raw base64 string or a data:<mime>;base64,<data> URL.
func DecodeBase64(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", core.NewValidationError("image data is empty", nil)
	}

	var mimeType string
	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", core.NewValidationError("image must be a base64 data URL", nil)
		}
		mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients strip padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, "", core.NewValidationError("image is not valid base64", err)
	}
	if len(data) == 0 {
		return nil, "", core.NewValidationError("image data is empty", nil)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

// Blob is one pending upload for UploadAll.
type Blob struct {
	Data        []byte
	MIMEType    string
	DisplayName string
}

// UploadAll uploads independent blobs concurrently. Handles are returned in input order.
// The first failure cancels the remaining uploads.
func (u *Uploader) UploadAll(ctx context.Context, blobs ...Blob) ([]*core.AssetHandle, error) {
	handles := make([]*core.AssetHandle, len(blobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range blobs {
		i, b := i, b
		g.Go(func() error {
			h, err := u.Upload(gctx, b.Data, b.MIMEType, b.DisplayName)
			if err != nil {
				return fmt.Errorf("upload %q: %w", b.DisplayName, err)
			}
			handles[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return handles, nil
}

// uploadError keeps auth, quota and connectivity classes and reports every other
// rejection as an upload error carrying the upstream message.
func uploadError(err error) error {
	var e *core.Error
	if !errors.As(err, &e) {
		return core.NewUploadError("", "failed to upload file", err).WithDetails(err.Error())
	}
	switch e.Kind {
	case core.KindUpstreamAuth, core.KindUpstreamQuota, core.KindUpstreamConnectivity, core.KindValidation:
		return e
	}
	return core.NewUploadError(e.Upstream, "failed to upload file: "+e.Message, err).WithDetails(e.Details)
}
