package firestore

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"

	"github.com/sorobansecurityportal/reportpipeline/internal/gcp"
	"github.com/sorobansecurityportal/reportpipeline/internal/models"
	"github.com/sorobansecurityportal/reportpipeline/internal/store"
)

type reportRepository struct {
	store            *Store
	reports          *firestore.CollectionRef
	textSources      *store.SourceHashes
	embeddingSources *store.SourceHashes
}

// ListConversionCandidates loads the binary of every report whose mdSourceHash
// does not match its binFileHash. Documents that cannot be decoded or whose
// binary cannot be read are logged and left out.
func (r *reportRepository) ListConversionCandidates(ctx context.Context, limit int) ([]models.Report, error) {
	var reports []models.Report
	err := collect(r.reports.Where("binFileHash", "!=", "").Documents(ctx), limit, func(snap *firestore.DocumentSnapshot) (bool, error) {
		var doc reportDoc
		if err := snap.DataTo(&doc); err != nil {
			slog.Warn("Failed to decode report. Skipping.", "reportId", snap.Ref.ID, "error", err)
			return false, nil
		}
		report, ok, err := r.conversionCandidate(ctx, snap.Ref.ID, doc)
		if ok {
			reports = append(reports, report)
		}
		return ok, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversion candidates: %w", err)
	}
	return reports, nil
}

func (r *reportRepository) conversionCandidate(ctx context.Context, id string, doc reportDoc) (models.Report, bool, error) {
	if doc.MdSourceHash == doc.BinFileHash || doc.BinFileURI == "" {
		return models.Report{}, false, nil
	}
	logCtx := slog.With("reportId", id, "reportName", doc.Name)
	bin, ok, err := r.store.loadBlob(ctx, logCtx, doc.BinFileURI)
	if !ok || err != nil {
		return models.Report{}, false, err
	}
	r.textSources.Remember(id, doc.BinFileHash)
	return models.Report{ID: id, Name: doc.Name, BinFile: bin}, true, nil
}

// UpdateDerivedText writes the markdown to <bucket>/<reportId>/<hash>.md and
// points the document at it.
func (r *reportRepository) UpdateDerivedText(ctx context.Context, reportID, text string) error {
	docRef := r.reports.Doc(reportID)

	sourceHash, ok := r.textSources.Lookup(reportID)
	if !ok {
		snap, err := docRef.Get(ctx)
		if err != nil {
			return wrapUpdateErr("report", reportID, err)
		}
		var doc reportDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to decode report %s: %w", reportID, err)
		}
		sourceHash = doc.BinFileHash
	}

	mdHash := models.ContentHash([]byte(text))
	objectName := fmt.Sprintf("%s/%s.md", reportID, mdHash)
	bucket := r.store.storageClient.Bucket(r.store.config.MarkdownBucket)
	if err := gcp.SaveToGCSAtomically(ctx, bucket, objectName, []byte(text)); err != nil {
		return fmt.Errorf("failed to save markdown for report %s: %w", reportID, err)
	}

	updates := []firestore.Update{
		{Path: "mdFileUri", Value: fmt.Sprintf("gs://%s/%s", r.store.config.MarkdownBucket, objectName)},
		{Path: "mdFileHash", Value: mdHash},
		{Path: "mdSourceHash", Value: sourceHash},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return wrapUpdateErr("report", reportID, err)
	}
	return nil
}

// ListEmbeddingCandidates loads the markdown of every report whose
// embeddingSourceHash does not match its mdFileHash.
func (r *reportRepository) ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Report, error) {
	var reports []models.Report
	err := collect(r.reports.Where("mdFileHash", "!=", "").Documents(ctx), limit, func(snap *firestore.DocumentSnapshot) (bool, error) {
		var doc reportDoc
		if err := snap.DataTo(&doc); err != nil {
			slog.Warn("Failed to decode report. Skipping.", "reportId", snap.Ref.ID, "error", err)
			return false, nil
		}
		report, ok, err := r.embeddingCandidate(ctx, snap.Ref.ID, doc)
		if ok {
			reports = append(reports, report)
		}
		return ok, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list report embedding candidates: %w", err)
	}
	return reports, nil
}

func (r *reportRepository) embeddingCandidate(ctx context.Context, id string, doc reportDoc) (models.Report, bool, error) {
	if doc.EmbeddingSourceHash == doc.MdFileHash || doc.MdFileURI == "" {
		return models.Report{}, false, nil
	}
	logCtx := slog.With("reportId", id, "reportName", doc.Name)
	md, ok, err := r.store.loadBlob(ctx, logCtx, doc.MdFileURI)
	if !ok || err != nil {
		return models.Report{}, false, err
	}
	r.embeddingSources.Remember(id, doc.MdFileHash)
	return models.Report{ID: id, Name: doc.Name, MdFile: string(md)}, true, nil
}

func (r *reportRepository) UpdateEmbedding(ctx context.Context, reportID string, embedding models.Embedding) error {
	docRef := r.reports.Doc(reportID)

	sourceHash, ok := r.embeddingSources.Lookup(reportID)
	if !ok {
		snap, err := docRef.Get(ctx)
		if err != nil {
			return wrapUpdateErr("report", reportID, err)
		}
		var doc reportDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to decode report %s: %w", reportID, err)
		}
		sourceHash = doc.MdFileHash
	}

	updates := []firestore.Update{
		{Path: "embedding", Value: firestore.Vector32(embedding.Slice())},
		{Path: "embeddingSourceHash", Value: sourceHash},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return wrapUpdateErr("report", reportID, err)
	}
	return nil
}
