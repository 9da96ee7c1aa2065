package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/sorobansecurityportal/reportpipeline/internal/gcp"
)

// ErrModelRefused is returned when the model answers with a refusal instead of
// the converted document.
var ErrModelRefused = errors.New("model refused to convert document")

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// ContentGenerator is the part of *genai.GenerativeModel used for conversion.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiConverter sends PDF payloads inline to a Gemini model and returns the
// markdown it produces.
type GeminiConverter struct {
	model  ContentGenerator
	prompt string
}

func NewGeminiConverter(model ContentGenerator) *GeminiConverter {
	return &GeminiConverter{model: model, prompt: gcp.ConverterUserPrompt}
}

func (c *GeminiConverter) Convert(ctx context.Context, document []byte) (string, error) {
	resp, err := c.model.GenerateContent(ctx,
		genai.Blob{MIMEType: "application/pdf", Data: document},
		genai.Text(c.prompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini content generation failed: %w", err)
	}

	markdown := extractMarkdown(resp)
	if markdown == "" {
		return "", ErrEmptyDocument
	}

	// Long reports can legitimately quote these phrases; only the opening is checked.
	opening := strings.ToLower(markdown)
	if len(opening) > 512 {
		opening = opening[:512]
	}
	for _, phrase := range refusalPhrases {
		if strings.Contains(opening, phrase) {
			return "", fmt.Errorf("%w: response contains %q", ErrModelRefused, phrase)
		}
	}
	return markdown, nil
}

func extractMarkdown(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var markdownContent strings.Builder
	var textPartsFound int
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			markdownContent.WriteString(string(txt))
			textPartsFound++
		}
	}
	if textPartsFound > 1 {
		slog.Debug("Gemini response contained multiple text parts; they have been concatenated.", "parts", textPartsFound)
	}

	contentStr := strings.TrimSpace(markdownContent.String())
	contentStr = strings.TrimPrefix(contentStr, "```markdown")
	contentStr = strings.TrimPrefix(contentStr, "```")
	contentStr = strings.TrimSuffix(contentStr, "```")
	return strings.TrimSpace(contentStr)
}
