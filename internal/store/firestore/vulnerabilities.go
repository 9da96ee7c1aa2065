package firestore

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
	"github.com/sorobansecurityportal/reportpipeline/internal/store"
)

type vulnerabilityRepository struct {
	vulns   *firestore.CollectionRef
	sources *store.SourceHashes
}

// ListEmbeddingCandidates hashes each description on the client, since the
// description is written by the portal without a hash.
func (r *vulnerabilityRepository) ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Vulnerability, error) {
	var vulns []models.Vulnerability
	err := collect(r.vulns.Documents(ctx), limit, func(snap *firestore.DocumentSnapshot) (bool, error) {
		var doc vulnerabilityDoc
		if err := snap.DataTo(&doc); err != nil {
			slog.Warn("Failed to decode vulnerability. Skipping.", "vulnerabilityId", snap.Ref.ID, "error", err)
			return false, nil
		}
		hash := models.ContentHash([]byte(doc.Description))
		if doc.EmbeddingSourceHash == hash {
			return false, nil
		}
		r.sources.Remember(snap.Ref.ID, hash)
		vulns = append(vulns, models.Vulnerability{ID: snap.Ref.ID, Title: doc.Title, Description: doc.Description})
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list vulnerability embedding candidates: %w", err)
	}
	return vulns, nil
}

func (r *vulnerabilityRepository) UpdateEmbedding(ctx context.Context, vulnerabilityID string, embedding models.Embedding) error {
	docRef := r.vulns.Doc(vulnerabilityID)

	sourceHash, ok := r.sources.Lookup(vulnerabilityID)
	if !ok {
		snap, err := docRef.Get(ctx)
		if err != nil {
			return wrapUpdateErr("vulnerability", vulnerabilityID, err)
		}
		var doc vulnerabilityDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to decode vulnerability %s: %w", vulnerabilityID, err)
		}
		sourceHash = models.ContentHash([]byte(doc.Description))
	}

	updates := []firestore.Update{
		{Path: "embedding", Value: firestore.Vector32(embedding.Slice())},
		{Path: "embeddingSourceHash", Value: sourceHash},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return wrapUpdateErr("vulnerability", vulnerabilityID, err)
	}
	return nil
}
