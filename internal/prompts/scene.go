// Package prompts assembles the natural-language instructions sent to the generative model.
// Every builder is a pure function of its arguments.
package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Duration is a scene length in seconds. DurationDefault means no duration guidance.
// In JSON it is a number, a numeric string or the string "default".
type Duration int

// DurationDefault omits the duration clause entirely.
const DurationDefault Duration = 0

func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*d = DurationDefault
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
		if s == "" || s == "default" {
			*d = DurationDefault
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}
		return d.set(n)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	return d.set(int(f))
}

func (d *Duration) set(n int) error {
	if n < 0 {
		return fmt.Errorf("duration must not be negative, got %d", n)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	if d == DurationDefault {
		return []byte(`"default"`), nil
	}
	return []byte(strconv.Itoa(int(d))), nil
}

// Tags is a list of style tags. In JSON it may also be a single string.
type Tags []string

func (t *Tags) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*t = nil
			return nil
		}
		*t = Tags{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*t = list
	return nil
}

// SceneParams are the optional knobs of a scene description. Each one adds a clause.
type SceneParams struct {
	Composition        Tags     `json:"composition,omitempty"`
	Lighting           string   `json:"lighting,omitempty"`
	Duration           Duration `json:"duration,omitempty"`
	ConsistencyContext string   `json:"consistencyContext,omitempty"`
	SceneCount         int      `json:"sceneCount,omitempty"`
}

var compositionLabels = map[string]string{
	"close-up":          "a close-up",
	"extreme-close-up":  "an extreme close-up",
	"medium-shot":       "a medium shot",
	"wide-shot":         "a wide establishing shot",
	"over-the-shoulder": "an over-the-shoulder shot",
	"pov":               "a first-person point-of-view shot",
	"low-angle":         "a low-angle shot",
	"high-angle":        "a high-angle shot",
	"dutch-angle":       "a tilted dutch-angle shot",
	"tracking":          "a smooth tracking shot",
	"top-down":          "a top-down flat-lay shot",
}

var lightingLabels = map[string]string{
	"natural":     "soft natural daylight",
	"golden-hour": "warm golden-hour sunlight",
	"studio":      "clean, even studio lighting",
	"neon":        "saturated neon lighting",
	"low-key":     "moody low-key lighting with deep shadows",
	"high-key":    "bright high-key lighting with minimal shadows",
	"backlit":     "backlighting that rims the subject",
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return strings.Join(strings.FieldsFunc(tag, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), "-")
}

func label(labels map[string]string, tag string) string {
	if l, ok := labels[normalizeTag(tag)]; ok {
		return l
	}
	return strings.TrimSpace(tag)
}

// ConcisenessWords returns the per-scene word target for a storyboard of sceneCount scenes.
func ConcisenessWords(sceneCount int) int {
	switch {
	case sceneCount >= 6:
		return 50
	case sceneCount >= 4:
		return 80
	default:
		return 120
	}
}

// BuildScene appends the clauses derived from p to base. Clause order is fixed:
// composition, lighting, consistency, duration, conciseness. p is not modified.
func BuildScene(base string, p SceneParams) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))

	clause := func(s string) {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}

	if c := compositionClause(p.Composition); c != "" {
		clause(c)
	}
	if l := strings.TrimSpace(p.Lighting); l != "" {
		clause(fmt.Sprintf("Lighting: use %s throughout the scene.", label(lightingLabels, l)))
	}
	if ctx := strings.TrimSpace(p.ConsistencyContext); ctx != "" {
		clause("Continuity: this scene follows the previous one described below. Keep the same subject, wardrobe, props and location so the scenes read as one continuous story.\nPrevious scene: " + ctx)
	}
	if p.Duration != DurationDefault {
		clause(fmt.Sprintf("Duration: the scene lasts %d seconds. Pace the action so it completes naturally within that time.", int(p.Duration)))
	}
	scenes := max(p.SceneCount, 1)
	clause(fmt.Sprintf("Length: keep the scene description under %d words.", ConcisenessWords(scenes)))

	return b.String()
}

func compositionClause(tags []string) string {
	labels := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		key := normalizeTag(t)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		labels = append(labels, label(compositionLabels, t))
	}

	switch len(labels) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("Composition: frame the scene as %s.", labels[0])
	}
	return fmt.Sprintf("Composition: use %s. Distribute these framings across the action in the order listed and say which moment of the action each framing covers, so every cut has a clear purpose.",
		joinList(labels))
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
