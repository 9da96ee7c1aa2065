package convert

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
)

type fakeGenerator struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]genai.Part, len(texts))
	for i, s := range texts {
		parts[i] = genai.Text(s)
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestGeminiConverterStripsFences(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("```markdown\n# Report\n", "Body\n```")}

	got, err := NewGeminiConverter(gen).Convert(context.Background(), []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got != "# Report\nBody" {
		t.Fatalf("unexpected markdown %q", got)
	}

	blob, ok := gen.parts[0].(genai.Blob)
	if !ok || blob.MIMEType != "application/pdf" || string(blob.Data) != "%PDF-1.7" {
		t.Fatalf("expected inline pdf blob, got %#v", gen.parts[0])
	}
}

func TestGeminiConverterFailures(t *testing.T) {
	apiErr := errors.New("quota exceeded")

	tests := []struct {
		name    string
		gen     *fakeGenerator
		wantErr error
	}{
		{"refusal", &fakeGenerator{resp: textResponse("I am unable to process this file.")}, ErrModelRefused},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}, ErrEmptyDocument},
		{"api error", &fakeGenerator{err: apiErr}, apiErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGeminiConverter(tt.gen).Convert(context.Background(), []byte("%PDF-1.7"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
