//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
)

// Runs against the Firestore emulator only.
func TestVulnerabilityEmbeddingAgainstEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()

	client, err := firestore.NewClient(ctx, "demo-reportpipeline")
	if err != nil {
		t.Fatalf("firestore.NewClient: %v", err)
	}
	defer client.Close()

	collection := fmt.Sprintf("vulnerabilities-%d", time.Now().UnixNano())
	ref, _, err := client.Collection(collection).Add(ctx, map[string]any{
		"title":       "Unchecked return value",
		"description": "The result of transfer is ignored.",
	})
	if err != nil {
		t.Fatalf("seed vulnerability: %v", err)
	}

	s := New(client, nil, Config{ReportsCollection: "reports", VulnerabilitiesCollection: collection})
	sess, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer sess.Close()
	vulns := sess.Vulnerabilities()

	got, err := vulns.ListEmbeddingCandidates(ctx, 0)
	if err != nil || len(got) != 1 || got[0].ID != ref.ID {
		t.Fatalf("ListEmbeddingCandidates = %+v, %v", got, err)
	}
	if err := vulns.UpdateEmbedding(ctx, ref.ID, models.Embedding{0.1, 0.2}); err != nil {
		t.Fatalf("UpdateEmbedding: %v", err)
	}
	if got, _ := vulns.ListEmbeddingCandidates(ctx, 0); len(got) != 0 {
		t.Fatalf("expected no candidates after embedding, got %+v", got)
	}
	if err := vulns.UpdateEmbedding(ctx, "missing", models.Embedding{1}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
