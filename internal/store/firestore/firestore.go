// Package firestore is the work-item store for deployments that keep reports in
// Firestore. Documents hold metadata only; report binaries and derived markdown
// live in Cloud Storage because a document is capped at 1 MiB.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sorobansecurityportal/reportpipeline/internal/gcp"
	"github.com/sorobansecurityportal/reportpipeline/internal/models"
	"github.com/sorobansecurityportal/reportpipeline/internal/services"
	"github.com/sorobansecurityportal/reportpipeline/internal/store"
)

// Config names the collections and the bucket derived markdown is written to.
type Config struct {
	ReportsCollection         string
	VulnerabilitiesCollection string
	MarkdownBucket            string
}

// reportDoc is the stored shape of a report. binFileUri and binFileHash are
// written by the upload flow.
type reportDoc struct {
	Name                string             `firestore:"name"`
	BinFileURI          string             `firestore:"binFileUri,omitempty"`
	BinFileHash         string             `firestore:"binFileHash,omitempty"`
	MdFileURI           string             `firestore:"mdFileUri,omitempty"`
	MdFileHash          string             `firestore:"mdFileHash,omitempty"`
	MdSourceHash        string             `firestore:"mdSourceHash,omitempty"`
	Embedding           firestore.Vector32 `firestore:"embedding,omitempty"`
	EmbeddingSourceHash string             `firestore:"embeddingSourceHash,omitempty"`
}

type vulnerabilityDoc struct {
	Title               string             `firestore:"title"`
	Description         string             `firestore:"description"`
	Embedding           firestore.Vector32 `firestore:"embedding,omitempty"`
	EmbeddingSourceHash string             `firestore:"embeddingSourceHash,omitempty"`
}

// Store reads and writes report documents and their blobs.
type Store struct {
	firestoreClient *firestore.Client
	storageClient   *storage.Client
	config          Config
	readObject      func(ctx context.Context, uri string) ([]byte, error)
}

func New(firestoreClient *firestore.Client, storageClient *storage.Client, config Config) *Store {
	return &Store{
		firestoreClient: firestoreClient,
		storageClient:   storageClient,
		config:          config,
		readObject: func(ctx context.Context, uri string) ([]byte, error) {
			return gcp.ReadObject(ctx, storageClient, uri)
		},
	}
}

// Begin opens a session. Firestore clients are safe for concurrent use, so the
// session only scopes the remembered source hashes.
func (s *Store) Begin(_ context.Context) (services.Session, error) {
	return &session{
		reports: &reportRepository{
			store:            s,
			reports:          s.firestoreClient.Collection(s.config.ReportsCollection),
			textSources:      store.NewSourceHashes(),
			embeddingSources: store.NewSourceHashes(),
		},
		vulns: &vulnerabilityRepository{
			vulns:   s.firestoreClient.Collection(s.config.VulnerabilitiesCollection),
			sources: store.NewSourceHashes(),
		},
	}, nil
}

type session struct {
	reports *reportRepository
	vulns   *vulnerabilityRepository
}

func (s *session) Reports() services.ReportRepository                { return s.reports }
func (s *session) Vulnerabilities() services.VulnerabilityRepository { return s.vulns }
func (s *session) Close() error                                      { return nil }

// collect walks docs, keeping up to limit documents accepted by keep. A limit
// <= 0 walks the whole query.
func collect(docs *firestore.DocumentIterator, limit int, keep func(*firestore.DocumentSnapshot) (bool, error)) error {
	defer docs.Stop()
	kept := 0
	for limit <= 0 || kept < limit {
		snap, err := docs.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		ok, err := keep(snap)
		if err != nil {
			return err
		}
		if ok {
			kept++
		}
	}
	return nil
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// loadBlob reads the object behind one candidate. A missing object yields nil
// data so the item is skipped as having no payload. Any other read failure is
// logged and the candidate is left for a later cycle; only cancellation is
// returned.
func (s *Store) loadBlob(ctx context.Context, logCtx *slog.Logger, uri string) ([]byte, bool, error) {
	data, err := s.readObject(ctx, uri)
	switch {
	case err == nil:
		return data, true, nil
	case ctx.Err() != nil:
		return nil, false, ctx.Err()
	case errors.Is(err, storage.ErrObjectNotExist):
		logCtx.Warn("Referenced object does not exist.", "gcsUri", uri)
		return nil, true, nil
	default:
		logCtx.Warn("Failed to read referenced object. Leaving it for a later cycle.", "gcsUri", uri, "error", err)
		return nil, false, nil
	}
}

func wrapUpdateErr(kind, id string, err error) error {
	if notFound(err) {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
}
