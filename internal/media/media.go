// Package media resolves ad identifiers and playable video locations from ad-library
// metadata, and downloads the referenced media.
package media

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"adcreative/internal/core"
)

// minAdIDDigits is the shortest digit run accepted as an ad identifier.
const minAdIDDigits = 8

var digitRun = regexp.MustCompile(`\d{8,}`)

// ResolveAdID extracts the numeric ad identifier from an ad-library URL. The id query
// parameter wins; otherwise the longest run of at least eight digits anywhere in the URL
// is used.
func ResolveAdID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", core.NewValidationError("URL is required", nil)
	}

	if u, err := url.Parse(raw); err == nil {
		if id := strings.TrimSpace(u.Query().Get("id")); isDigits(id) && len(id) >= minAdIDDigits {
			return id, nil
		}
	}

	best := ""
	for _, run := range digitRun.FindAllString(raw, -1) {
		if len(run) > len(best) {
			best = run
		}
	}
	if best == "" {
		return "", core.NewValidationError("Could not extract ad ID from URL", nil).
			WithDetails("expected an ad-library URL carrying a numeric id, e.g. https://www.facebook.com/ads/library/?id=1234567890")
	}
	return best, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// videoPaths lists where ad-library payloads carry playable video URLs, in preference
// order. High definition beats standard definition within each shape.
var videoPaths = []string{
	"snapshot.videos.#.video_hd_url",
	"snapshot.videos.#.video_sd_url",
	"snapshot.cards.#.video_hd_url",
	"snapshot.cards.#.video_sd_url",
	"videos.#.video_hd_url",
	"videos.#.video_sd_url",
	"video_hd_url",
	"video_sd_url",
	"video_url",
	"snapshot.extra_videos.#.video_hd_url",
	"snapshot.extra_videos.#.video_sd_url",
	"extra_videos.#.video_hd_url",
	"extra_videos.#.video_sd_url",
}

// FindVideoURL returns the first playable video URL found in an ad-library payload, and
// false when the payload carries none.
func FindVideoURL(raw []byte) (string, bool) {
	if !gjson.ValidBytes(raw) {
		return "", false
	}
	for _, path := range videoPaths {
		if u, ok := firstURL(gjson.GetBytes(raw, path)); ok {
			return u, true
		}
	}
	return "", false
}

func firstURL(r gjson.Result) (string, bool) {
	if r.IsArray() {
		for _, item := range r.Array() {
			if u, ok := firstURL(item); ok {
				return u, true
			}
		}
		return "", false
	}
	if r.Type != gjson.String {
		return "", false
	}
	u := strings.TrimSpace(r.String())
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u, true
	}
	return "", false
}
