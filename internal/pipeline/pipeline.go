// Package pipeline runs chains of generation stages where each stage builds its prompt
// from the previous stage's text.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"adcreative/internal/core"
	"adcreative/internal/observability"
	"adcreative/internal/usage"
)

// Generator performs one generation call.
type Generator interface {
	Generate(ctx context.Context, prompt string, assets []*core.AssetHandle, model string) (*core.GenerationResult, error)
}

// Outcome tags how a stage ended.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Empty     Outcome = "empty"
	Failed    Outcome = "failed"
	// Skipped marks stages after an optional stage that degraded.
	Skipped Outcome = "skipped"
)

// LengthLimit bounds a stage's decoded output in characters (runes).
type LengthLimit struct {
	MaxChars int
	// Reoptimize builds the prompt for the single shortening call.
	Reoptimize func(text string, maxChars int) string
	// Marker is the optional section label the shortened output may carry.
	Marker string
}

// Stage is one round trip to the model.
type Stage struct {
	Name string
	// Optional stages degrade the run instead of failing it.
	Optional bool
	Model    string
	Assets   []*core.AssetHandle

	// Override, when set, is used as the stage's text without calling the model.
	Override string

	// Prompt builds the instruction from the previous stage's result. The first stage
	// receives a zero StageResult.
	Prompt func(prev StageResult) (string, error)

	// Decode extracts the usable artifact from the raw model text.
	Decode func(text string) (string, error)

	Limit *LengthLimit

	// EmptyMessage is reported when a mandatory stage yields no text.
	EmptyMessage string
}

// StageResult is the tagged outcome of one stage.
type StageResult struct {
	Name    string
	Outcome Outcome
	// Text is the decoded artifact; only meaningful when Outcome is Succeeded.
	Text  string
	Raw   string
	Usage core.Usage
	Err   error

	Reoptimized bool
	Truncated   bool
}

// OK reports whether downstream stages may consume the result.
func (r StageResult) OK() bool {
	return r.Outcome == Succeeded
}

// Report summarizes a run.
type Report struct {
	Stages []StageResult
	// Degraded is set when an optional stage did not succeed.
	Degraded bool
	Usage    core.Usage
}

// Stage returns the named stage result, or nil.
func (r *Report) Stage(name string) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// Final returns the last succeeded stage, or nil.
func (r *Report) Final() *StageResult {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].OK() {
			return &r.Stages[i]
		}
	}
	return nil
}

// Orchestrator runs stages in order.
type Orchestrator struct {
	gen Generator
}

// New creates an orchestrator over gen.
func New(gen Generator) *Orchestrator {
	return &Orchestrator{gen: gen}
}

// Run executes stages sequentially. A mandatory stage that fails or yields nothing
// fails the run; the report is still returned. An optional stage that does not
// succeed is logged, marks the report degraded and ends the run without error.
func (o *Orchestrator) Run(ctx context.Context, stages ...Stage) (*Report, error) {
	report := &Report{Stages: make([]StageResult, 0, len(stages))}
	var prev StageResult

	for i, st := range stages {
		res := o.runStage(ctx, st, prev)
		report.Usage = report.Usage.Add(res.Usage)
		report.Stages = append(report.Stages, res)
		observability.PipelineStages.WithLabelValues(st.Name, string(res.Outcome)).Inc()

		if res.OK() {
			prev = res
			continue
		}

		if !st.Optional {
			return report, stageError(st, res)
		}

		report.Degraded = true
		slog.WarnContext(ctx, "optional stage did not succeed, returning previous result",
			"stage", st.Name,
			"outcome", res.Outcome,
			"error", res.Err,
			"request_id", core.GetRequestID(ctx),
		)
		for _, rest := range stages[i+1:] {
			report.Stages = append(report.Stages, StageResult{Name: rest.Name, Outcome: Skipped})
		}
		break
	}
	return report, nil
}

func (o *Orchestrator) runStage(ctx context.Context, st Stage, prev StageResult) StageResult {
	res := StageResult{Name: st.Name}
	ctx = usage.WithStage(ctx, st.Name)

	if override := strings.TrimSpace(st.Override); override != "" {
		res.Outcome = Succeeded
		res.Text = override
		res.Raw = override
		return res
	}

	if st.Prompt == nil {
		return failed(res, core.NewInternalError("stage "+st.Name+" has no prompt builder", nil))
	}
	prompt, err := st.Prompt(prev)
	if err != nil {
		return failed(res, err)
	}

	gen, err := o.gen.Generate(ctx, prompt, st.Assets, st.Model)
	if err != nil {
		return failed(res, err)
	}
	res.Usage = gen.Usage
	res.Raw = gen.Text
	if gen.Empty() {
		res.Outcome = Empty
		return res
	}

	text := gen.Text
	if st.Decode != nil {
		text, err = st.Decode(gen.Text)
		if err != nil {
			return failed(res, err)
		}
	}
	if strings.TrimSpace(text) == "" {
		res.Outcome = Empty
		return res
	}

	if st.Limit != nil && st.Limit.MaxChars > 0 && utf8.RuneCountInString(text) > st.Limit.MaxChars {
		text = o.enforceLimit(ctx, st, text, &res)
	}

	res.Outcome = Succeeded
	res.Text = text
	return res
}

// enforceLimit issues exactly one re-optimization call, then truncates at a word
// boundary if the output is still too long.
func (o *Orchestrator) enforceLimit(ctx context.Context, st Stage, text string, res *StageResult) string {
	limit := st.Limit
	res.Reoptimized = true

	candidate := text
	if limit.Reoptimize != nil {
		gen, err := o.gen.Generate(ctx, limit.Reoptimize(text, limit.MaxChars), nil, st.Model)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "re-optimization call failed, truncating original",
				"stage", st.Name, "error", err)
		case gen.Empty():
			slog.WarnContext(ctx, "re-optimization returned no text, truncating original", "stage", st.Name)
		default:
			res.Usage = res.Usage.Add(gen.Usage)
			if shorter := cleanReoptimized(gen.Text, limit.Marker); shorter != "" {
				candidate = shorter
			}
		}
	}

	if utf8.RuneCountInString(candidate) <= limit.MaxChars {
		observability.Reoptimizations.WithLabelValues(st.Name, "reoptimized").Inc()
		return candidate
	}
	res.Truncated = true
	observability.Reoptimizations.WithLabelValues(st.Name, "truncated").Inc()
	slog.InfoContext(ctx, "output still over limit after re-optimization, truncating",
		"stage", st.Name,
		"chars", utf8.RuneCountInString(candidate),
		"limit", limit.MaxChars,
	)
	return TruncateAtWord(candidate, limit.MaxChars)
}

func cleanReoptimized(text, marker string) string {
	text = strings.TrimSpace(text)
	if marker != "" {
		if i := strings.Index(text, marker+":"); i >= 0 {
			text = text[i+len(marker)+1:]
		}
	}
	text = strings.Trim(strings.TrimSpace(text), `"*`)
	return strings.Join(strings.Fields(text), " ")
}

// TruncateAtWord cuts s to at most maxChars runes, ending on a word boundary. Trailing
// whitespace is dropped. A first word longer than maxChars is the only case cut mid-word.
func TruncateAtWord(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	cut := runes[:maxChars]
	if unicode.IsSpace(runes[maxChars]) {
		return strings.TrimRightFunc(string(cut), unicode.IsSpace)
	}
	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			if out := strings.TrimRightFunc(string(cut[:i]), unicode.IsSpace); out != "" {
				return out
			}
			break
		}
	}
	return string(cut)
}

func failed(res StageResult, err error) StageResult {
	res.Outcome = Failed
	res.Err = err
	return res
}

func stageError(st Stage, res StageResult) error {
	if res.Outcome == Empty {
		msg := st.EmptyMessage
		if msg == "" {
			msg = "could not extract text from " + st.Name
		}
		return core.NewEmptyGenerationError(msg)
	}
	var e *core.Error
	if errors.As(res.Err, &e) {
		return e
	}
	return core.NewInternalError(fmt.Sprintf("stage %s failed", st.Name), res.Err)
}
