package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
)

type reportRow struct {
	name        string
	bin         []byte
	md          string
	mdSource    string
	embedding   models.Embedding
	embSource   string
	dropPayload bool
}

type vulnRow struct {
	title       string
	description string
	embedding   models.Embedding
	embSource   string
}

// fakeStore keeps staleness by content hash, like the real backends.
type fakeStore struct {
	mu      sync.Mutex
	reports map[string]*reportRow
	vulns   map[string]*vulnRow

	beginErr              error
	listConversionErr     error
	listReportEmbedErr    error
	listVulnEmbedErr      error
	updateTextErr         map[string]error
	updateEmbeddingErr    map[string]error
	begins, closes        int
	textWrites, embWrites int
	beginCh               chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reports:            make(map[string]*reportRow),
		vulns:              make(map[string]*vulnRow),
		updateTextErr:      make(map[string]error),
		updateEmbeddingErr: make(map[string]error),
	}
}

func (s *fakeStore) addReport(id, name string, bin []byte) *reportRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &reportRow{name: name, bin: bin}
	s.reports[id] = r
	return r
}

func (s *fakeStore) addVuln(id, title, description string) *vulnRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &vulnRow{title: title, description: description}
	s.vulns[id] = v
	return v
}

func (s *fakeStore) report(id string) reportRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.reports[id]
}

func (s *fakeStore) vuln(id string) vulnRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.vulns[id]
}

func (s *fakeStore) counts() (begins, closes, textWrites, embWrites int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins, s.closes, s.textWrites, s.embWrites
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *fakeStore) Begin(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.begins++
	if s.beginCh != nil {
		select {
		case s.beginCh <- struct{}{}:
		default:
		}
	}
	return &fakeSession{store: s}, nil
}

type fakeSession struct{ store *fakeStore }

func (f *fakeSession) Reports() ReportRepository                { return fakeReports{f.store} }
func (f *fakeSession) Vulnerabilities() VulnerabilityRepository { return fakeVulns{f.store} }
func (f *fakeSession) Close() error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.closes++
	return nil
}

type fakeReports struct{ s *fakeStore }

func (f fakeReports) ListConversionCandidates(ctx context.Context, limit int) ([]models.Report, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listConversionErr != nil {
		return nil, f.s.listConversionErr
	}
	var out []models.Report
	for _, id := range sortedKeys(f.s.reports) {
		r := f.s.reports[id]
		if r.bin == nil || r.mdSource == models.ContentHash(r.bin) {
			continue
		}
		report := models.Report{ID: id, Name: r.name, BinFile: r.bin}
		if r.dropPayload {
			report.BinFile = nil
		}
		out = append(out, report)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f fakeReports) UpdateDerivedText(ctx context.Context, reportID, text string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.updateTextErr[reportID]; err != nil {
		return err
	}
	r, ok := f.s.reports[reportID]
	if !ok {
		return models.ErrNotFound
	}
	r.md = text
	r.mdSource = models.ContentHash(r.bin)
	f.s.textWrites++
	return nil
}

func (f fakeReports) ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Report, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listReportEmbedErr != nil {
		return nil, f.s.listReportEmbedErr
	}
	var out []models.Report
	for _, id := range sortedKeys(f.s.reports) {
		r := f.s.reports[id]
		if r.md == "" || r.embSource == models.ContentHash([]byte(r.md)) {
			continue
		}
		out = append(out, models.Report{ID: id, Name: r.name, MdFile: r.md})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f fakeReports) UpdateEmbedding(ctx context.Context, reportID string, embedding models.Embedding) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.updateEmbeddingErr[reportID]; err != nil {
		return err
	}
	r, ok := f.s.reports[reportID]
	if !ok {
		return models.ErrNotFound
	}
	r.embedding = embedding
	r.embSource = models.ContentHash([]byte(r.md))
	f.s.embWrites++
	return nil
}

type fakeVulns struct{ s *fakeStore }

func (f fakeVulns) ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Vulnerability, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listVulnEmbedErr != nil {
		return nil, f.s.listVulnEmbedErr
	}
	var out []models.Vulnerability
	for _, id := range sortedKeys(f.s.vulns) {
		v := f.s.vulns[id]
		if v.embSource == models.ContentHash([]byte(v.description)) {
			continue
		}
		out = append(out, models.Vulnerability{ID: id, Title: v.title, Description: v.description})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f fakeVulns) UpdateEmbedding(ctx context.Context, vulnerabilityID string, embedding models.Embedding) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.updateEmbeddingErr[vulnerabilityID]; err != nil {
		return err
	}
	v, ok := f.s.vulns[vulnerabilityID]
	if !ok {
		return models.ErrNotFound
	}
	v.embedding = embedding
	v.embSource = models.ContentHash([]byte(v.description))
	f.s.embWrites++
	return nil
}

// fakeConverter returns "text:" + payload unless fn is set.
type fakeConverter struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, doc []byte) (string, error)
}

func (c *fakeConverter) Convert(ctx context.Context, doc []byte) (string, error) {
	c.mu.Lock()
	c.calls++
	fn := c.fn
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, doc)
	}
	return "text:" + string(doc), nil
}

func (c *fakeConverter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeEmbedder returns [len(text), 1] unless fn is set.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, text string) ([]float32, error)
}

func (e *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	fn := e.fn
	e.mu.Unlock()
	if fn != nil {
		return fn(ctx, text)
	}
	return []float32{float32(len(text)), 1}, nil
}

func (e *fakeEmbedder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var errBoom = errors.New("boom")
