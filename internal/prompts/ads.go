package prompts

import (
	"fmt"
	"strings"

	"adcreative/internal/core"
)

// AnalysisType selects the lens used to analyze a reference ad.
type AnalysisType string

const (
	AnalysisPsychological AnalysisType = "psychological"
	AnalysisStorytelling  AnalysisType = "storytelling"
	AnalysisProduction    AnalysisType = "production"
)

// ParseAnalysisType validates a client-supplied analysis type.
func ParseAnalysisType(s string) (AnalysisType, error) {
	switch t := AnalysisType(strings.ToLower(strings.TrimSpace(s))); t {
	case AnalysisPsychological, AnalysisStorytelling, AnalysisProduction:
		return t, nil
	}
	return "", core.NewValidationError("Invalid analysis type", nil).
		WithDetails(fmt.Sprintf("type must be one of %s, %s, %s; got %q",
			AnalysisPsychological, AnalysisStorytelling, AnalysisProduction, s))
}

// AnalysisPrompt is the first-stage instruction for a reference ad video.
func AnalysisPrompt(t AnalysisType) string {
	switch t {
	case AnalysisPsychological:
		return `You are a direct-response advertising strategist. Watch this video ad and explain why it works on a psychological level.

Cover:
1. The hook in the first three seconds and the attention mechanism it relies on.
2. The core desire or pain point the ad targets and how it is framed.
3. Persuasion principles used (social proof, scarcity, authority, reciprocity, contrast) with the exact moments they appear.
4. Emotional arc from start to finish.
5. The call to action and what makes it feel low-risk.
6. Who the ideal viewer is.

Be specific and reference concrete moments, lines and visuals from the video.`
	case AnalysisStorytelling:
		return `You are a creative director who specializes in short-form video storytelling. Break this video ad down as a story.

Cover:
1. Narrative structure, beat by beat, with approximate timestamps.
2. The protagonist, their problem and the transformation shown.
3. How tension is built and released.
4. Dialogue, voice-over and on-screen text, quoted where possible.
5. Pacing, cuts and how music or sound supports the story.
6. Why the ending makes the viewer act.

Be specific and reference concrete moments from the video.`
	default:
		return `You are a commercial video producer. Reverse-engineer this video ad so it can be recreated shot for shot.

For every shot describe:
- Timestamp range
- Framing and camera movement
- Subject, action and wardrobe
- Setting, props and set dressing
- Lighting and color grade
- On-screen text, voice-over or dialogue

Finish with the overall format (aspect ratio, length, editing rhythm) and the production level required (UGC, prosumer or studio).`
	}
}

// AdaptationPrompt is the second-stage instruction that moves a production breakdown
// onto the client's product or service.
func AdaptationPrompt(analysis, productService string) string {
	return fmt.Sprintf(`You are adapting a proven video ad to a new product.

Original ad breakdown:
%s

New product or service:
%s

Rewrite the breakdown as a ready-to-shoot video generation prompt for the new product. Keep the structure, pacing, framing and emotional beats that made the original work, and replace every product-specific element (props, claims, dialogue, on-screen text) with equivalents for the new product. Write it as one continuous prompt a video model can follow, without commentary.`,
		strings.TrimSpace(analysis), strings.TrimSpace(productService))
}

// ViralScriptPrompt turns a viral video's transcript into a script for a product.
func ViralScriptPrompt(transcript, product string) string {
	return fmt.Sprintf(`You write short-form video scripts that go viral.

Transcript of a viral video:
%s

Product to promote:
%s

Write a new spoken script for the product that reuses the viral video's hook style, rhythm and structure. Keep it natural and conversational, under 150 words, and end with a clear call to action. Return only the script as a single paragraph with no line breaks, headings, stage directions or quotation marks.`,
		strings.TrimSpace(transcript), strings.TrimSpace(product))
}

// AdaptScriptPrompt rewrites an existing script for a different product.
func AdaptScriptPrompt(script, product, tone string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You adapt proven short-form video scripts to new products.

Original script:
%s

New product:
%s

Rewrite the script for the new product. Keep the hook pattern, sentence rhythm and length of the original, swap every product-specific claim for an accurate one about the new product, and keep the call to action.`,
		strings.TrimSpace(script), strings.TrimSpace(product))
	if t := strings.TrimSpace(tone); t != "" {
		fmt.Fprintf(&b, " Use a %s tone.", t)
	}
	b.WriteString(" Return only the script as a single paragraph with no line breaks, headings or quotation marks.")
	return b.String()
}

// ProductAnalysisPrompt describes a product photo for later video prompting.
func ProductAnalysisPrompt(description string) string {
	var b strings.Builder
	b.WriteString(`Study this product photo. Describe the product precisely: category, shape, materials, colors, finish, branding and packaging details a video model must reproduce faithfully, plus who it is for and the main benefit it offers.`)
	if d := strings.TrimSpace(description); d != "" {
		fmt.Fprintf(&b, "\n\nThe seller describes it as: %s", d)
	}
	b.WriteString("\n\n")
	b.WriteString(outputContract(MarkerAnalysis))
	return b.String()
}

// ProductVideoPrompt turns a product analysis into a video generation prompt.
func ProductVideoPrompt(analysis string, scene SceneParams, maxChars int) string {
	base := fmt.Sprintf(`You write prompts for an AI video generator. Create a short product video prompt for the product below. Show the product in use in a realistic setting, with a clear hook in the first second and the product clearly visible.

Product:
%s`, strings.TrimSpace(analysis))
	return BuildScene(base, scene) + fmt.Sprintf("\n\nThe prompt must be a single paragraph under %d characters.\n\n", maxChars) +
		outputContract(MarkerVideoPrompt)
}

// StaticAdAnalysisPrompt analyzes a reference static ad image.
func StaticAdAnalysisPrompt() string {
	return `Analyze this static image ad so it can be recreated for another product. Describe the layout and visual hierarchy, subject and product placement, background, color palette, typography and copy (quote the headline and any text), lighting, camera angle and overall style.

` + outputContract(MarkerAnalysis)
}

// StaticAdAdaptPrompt adapts a reference ad analysis into an image-model prompt.
func StaticAdAdaptPrompt(analysis, productDescription string, hasProductImage bool, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You write prompts for an AI image generator. Using the reference ad analysis below, write one prompt that recreates the same layout, style, lighting and copy structure for a new product.

Reference ad analysis:
%s`, strings.TrimSpace(analysis))
	if d := strings.TrimSpace(productDescription); d != "" {
		fmt.Fprintf(&b, "\n\nNew product:\n%s", d)
	}
	if hasProductImage {
		b.WriteString("\n\nThe attached image shows the new product; describe it exactly as it appears.")
	}
	fmt.Fprintf(&b, "\n\nThe prompt must be a single paragraph under %d characters.\n\n", maxChars)
	b.WriteString(outputContract(MarkerImagePrompt))
	return b.String()
}

// ReoptimizePrompt asks the model to shorten text that broke a length limit.
func ReoptimizePrompt(text string, maxChars int) string {
	return fmt.Sprintf(`The following prompt is %d characters long, which is over the hard limit of %d characters. Rewrite it as a single paragraph under %d characters. Keep every visual detail that matters and drop filler words. Return only the rewritten prompt with no label, commentary or quotation marks.

%s`, len([]rune(text)), maxChars, maxChars, strings.TrimSpace(text))
}

// EnhancePrompt enriches a user's scene prompt with the configured clauses.
func EnhancePrompt(userPrompt string, scene SceneParams) string {
	base := fmt.Sprintf(`You improve prompts for AI video generators. Rewrite the scene below into a vivid, specific prompt that describes subject, action, setting and camera in concrete visual terms. Follow every instruction that follows the scene.

Scene:
%s`, strings.TrimSpace(userPrompt))
	return BuildScene(base, scene) + "\n\nReturn only the improved prompt with no commentary or quotation marks."
}
