package advisory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gramvani/kisan/internal/locale"
)

// Diagnosis is the structured result of a crop-image classification, plus an
// optional elaborated advice text from a follow-up call.
type Diagnosis struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Symptoms   []string `json:"symptoms"`
	Treatment  []string `json:"treatment"`
	Prevention []string `json:"prevention"`
	Advice     string   `json:"advice,omitempty"`
}

const classifyPrompt = `You are a plant pathologist. Examine the crop photo and classify the most likely disease or disorder.

Reply with a single JSON object, no prose, with exactly these fields:
"category" (string, the disease name, or "healthy"),
"confidence" (number between 0 and 1),
"symptoms" (array of strings),
"treatment" (array of strings, immediate steps),
"prevention" (array of strings).`

// Diagnose runs the two-phase disease pipeline: classify the image into a
// structured Diagnosis, then ask for elaborated treatment advice keyed off the
// classified category. The second phase is best-effort: if it fails, the
// classification is returned as-is with Advice empty, because a partial
// result is still useful to the farmer.
func (c *Client) Diagnose(ctx context.Context, notes, language string, image []byte) (Diagnosis, error) {
	if len(image) == 0 {
		return Diagnosis{}, fmt.Errorf("no image provided")
	}

	userText := classifyPrompt
	if strings.TrimSpace(notes) != "" {
		userText += "\n\nFarmer's notes: " + notes
	}

	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	req := chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{
			{Role: "user", Content: []map[string]any{
				{"type": "text", "text": userText},
				{"type": "image_url", "image_url": map[string]string{"url": dataURI}},
			}},
		},
		MaxTokens:      1024,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	raw, err := c.complete(ctx, req)
	if err != nil {
		return Diagnosis{}, err
	}

	var d Diagnosis
	if err := json.Unmarshal([]byte(stripFences(raw)), &d); err != nil {
		return Diagnosis{}, &ProtocolError{Err: fmt.Errorf("parsing classification: %w", err)}
	}
	if d.Category == "" {
		return Diagnosis{}, &ProtocolError{Err: fmt.Errorf("classification has no category")}
	}

	advice, err := c.elaborate(ctx, d, language)
	if err != nil {
		slog.Warn("diagnosis elaboration failed, returning classification only", "category", d.Category, "error", err)
		return d, nil
	}
	d.Advice = advice
	return d, nil
}

// elaborate asks the text model for a fuller treatment plan for the
// classified category, in the farmer's language.
func (c *Client) elaborate(ctx context.Context, d Diagnosis, language string) (string, error) {
	prompt := fmt.Sprintf(
		"A farmer's crop has been diagnosed with %q (confidence %.0f%%). Explain in practical terms how to treat it this week and how to prevent it next season. Respond in %s.",
		d.Category, d.Confidence*100, locale.LanguageName(language),
	)
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt(language)},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   1024,
	}
	return c.complete(ctx, req)
}

// stripFences removes a markdown code fence if the model wrapped its JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
