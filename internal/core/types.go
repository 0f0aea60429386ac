package core

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// AssetState is the readiness state of an uploaded asset.
type AssetState string

const (
	AssetPending AssetState = "PENDING"
	AssetActive  AssetState = "ACTIVE"
	AssetFailed  AssetState = "FAILED"
)

// ParseAssetState maps the remote file-service state onto AssetState.
// Anything that is neither ACTIVE nor FAILED is still processing.
func ParseAssetState(remote string) AssetState {
	switch strings.ToUpper(strings.TrimSpace(remote)) {
	case "ACTIVE":
		return AssetActive
	case "FAILED":
		return AssetFailed
	default:
		return AssetPending
	}
}

// AssetHandle references a binary uploaded to the remote AI content service.
// A handle is owned by the request that created it and never persisted.
type AssetHandle struct {
	Name     string     `json:"name,omitempty"`
	URI      string     `json:"uri"`
	MIMEType string     `json:"mimeType"`
	State    AssetState `json:"state"`
}

// Identifier returns the remote file identifier. When Name is absent it is derived
// from the trailing path segment of URI. Returns "" when neither yields a value.
func (h *AssetHandle) Identifier() string {
	if h == nil {
		return ""
	}
	if name := strings.TrimPrefix(strings.TrimSpace(h.Name), "files/"); name != "" {
		return name
	}
	if h.URI == "" {
		return ""
	}
	p := h.URI
	if u, err := url.Parse(h.URI); err == nil && u.Path != "" {
		p = u.Path
	}
	seg := path.Base(strings.TrimRight(p, "/"))
	if seg == "." || seg == "/" || seg == "files" {
		return ""
	}
	return seg
}

// Ready reports whether the handle may be referenced in a generation request.
func (h *AssetHandle) Ready() bool {
	return h != nil && h.State == AssetActive
}

// Part is either inline text or a reference to an ACTIVE asset.
type Part struct {
	Text  string
	Asset *AssetHandle
}

// GenerationRequest is the immutable input of a single generation call.
type GenerationRequest struct {
	role  string
	parts []Part
}

// NewGenerationRequest builds a user-role request from a prompt and optional assets.
// Assets precede the prompt text. Every asset must already be ACTIVE.
func NewGenerationRequest(prompt string, assets ...*AssetHandle) (*GenerationRequest, error) {
	parts := make([]Part, 0, len(assets)+1)
	for i, a := range assets {
		if a == nil {
			continue
		}
		if !a.Ready() {
			return nil, fmt.Errorf("asset %d (%s) is %s, not ACTIVE", i, a.URI, a.State)
		}
		cp := *a
		parts = append(parts, Part{Asset: &cp})
	}
	if strings.TrimSpace(prompt) != "" {
		parts = append(parts, Part{Text: prompt})
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("generation request has no parts")
	}
	return &GenerationRequest{role: "user", parts: parts}, nil
}

// Role returns the request role, always "user".
func (r *GenerationRequest) Role() string { return r.role }

// Parts returns a copy of the request parts.
func (r *GenerationRequest) Parts() []Part {
	out := make([]Part, len(r.parts))
	copy(out, r.parts)
	return out
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// TextSource records where extracted text came from.
type TextSource int

const (
	// TextAbsent means neither candidate parts nor a flat text field held text.
	TextAbsent TextSource = iota
	// TextFromParts means text was concatenated from candidates[0].content.parts.
	TextFromParts
	// TextFromFlatField means text came from a top-level text field.
	TextFromFlatField
)

func (s TextSource) String() string {
	switch s {
	case TextFromParts:
		return "parts"
	case TextFromFlatField:
		return "flat"
	default:
		return "absent"
	}
}

// GenerationResult wraps a remote generation response.
type GenerationResult struct {
	Model  string
	Text   string
	Source TextSource
	Usage  Usage
	// CostUSD is an estimate for logging only.
	CostUSD float64
	Raw     []byte
}

// Empty reports whether the result carries no usable text.
func (r *GenerationResult) Empty() bool {
	return r == nil || strings.TrimSpace(r.Text) == ""
}
