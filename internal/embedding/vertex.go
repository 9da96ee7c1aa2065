package embedding

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/structpb"
)

// TaskRetrievalDocument tunes the vector for documents stored for later search.
const TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"

// Predictor is the part of *aiplatform.PredictionClient used for embeddings.
type Predictor interface {
	Predict(ctx context.Context, req *aiplatformpb.PredictRequest, opts ...gax.CallOption) (*aiplatformpb.PredictResponse, error)
}

// VertexEmbedder generates embeddings with a Google-published text embedding
// model served by Vertex AI.
type VertexEmbedder struct {
	client    Predictor
	endpoint  string
	dimension int
	limiter   *rate.Limiter
}

// NewVertexEmbedder uses endpoint, a publisher model resource name such as
// gcp.EmbeddingEndpoint returns.
func NewVertexEmbedder(client Predictor, endpoint string, dimension int, ratePerSecond float64) *VertexEmbedder {
	return &VertexEmbedder{
		client:    client,
		endpoint:  endpoint,
		dimension: dimension,
		limiter:   newLimiter(ratePerSecond),
	}
}

func (e *VertexEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	instance, err := structpb.NewValue(map[string]any{
		"content":   text,
		"task_type": TaskRetrievalDocument,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build prediction instance: %w", err)
	}
	params := map[string]any{"autoTruncate": true}
	if e.dimension > 0 {
		params["outputDimensionality"] = e.dimension
	}
	parameters, err := structpb.NewValue(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build prediction parameters: %w", err)
	}

	resp, err := e.client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   e.endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex predict failed: %w", err)
	}
	return parsePrediction(resp, e.dimension)
}

// parsePrediction reads predictions[0].embeddings.values.
func parsePrediction(resp *aiplatformpb.PredictResponse, dimension int) ([]float32, error) {
	if resp == nil || len(resp.GetPredictions()) == 0 {
		return nil, ErrNoEmbedding
	}
	prediction := resp.GetPredictions()[0].GetStructValue()
	if prediction == nil {
		return nil, errors.New("prediction is not an object")
	}
	embeddings := prediction.GetFields()["embeddings"].GetStructValue()
	if embeddings == nil {
		return nil, errors.New("prediction has no embeddings field")
	}
	values := embeddings.GetFields()["values"].GetListValue().GetValues()

	vector := make([]float32, len(values))
	for i, v := range values {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("embedding value %d is not a number", i)
		}
		vector[i] = float32(n.NumberValue)
	}
	return checkVector(vector, dimension)
}
