package gcp

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// --- Report Converter Model Prompts ---
const ConverterSystemPrompt = "You are a document parser for smart-contract security audit reports. Your task is to translate the content of a PDF report into markdown. Accuracy, detail, and information preservation are of utmost importance."
const ConverterUserPrompt = `You will be provided with a PDF audit report.

Follow these instructions to translate its content into markdown format:

Text: Parse all text content directly into markdown text.
Findings: Keep every finding with its title, severity, status, description and recommendation. Do not merge or summarise findings.
Code: Put source code excerpts in fenced code blocks and keep them verbatim.
Tables: Parse all tables into markdown tables. If a table contains merged cells, copy the parent cell content into each child cell.
Images: Replace each image with a short description of what it shows.
Headers and Footers: Ignore page numbers, repeated logos and running headers or footers.

Return ONLY the markdown content. Do not include any preamble.`

// VertexClient holds the pre-configured generative model used to convert reports.
type VertexClient struct {
	ConverterModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a new client holding the converter model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	converterModel := baseClient.GenerativeModel(modelName)
	converterModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ConverterSystemPrompt)},
	}
	converterModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		ConverterModel: converterModel,
		baseClient:     baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// NewPredictionClient creates a regional Vertex AI prediction client. Text
// embedding models are served through its Predict method.
func NewPredictionClient(ctx context.Context, region string) (*aiplatform.PredictionClient, error) {
	if region == "" {
		return nil, fmt.Errorf("NewPredictionClient: region cannot be empty")
	}
	endpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", region)
	client, err := aiplatform.NewPredictionClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("aiplatform.NewPredictionClient: %w", err)
	}
	return client, nil
}

// EmbeddingEndpoint is the resource name of a Google-published embedding model.
func EmbeddingEndpoint(projectID, region, model string) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", projectID, region, model)
}
