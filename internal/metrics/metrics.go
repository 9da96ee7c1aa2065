package metrics

import (
	"expvar"
)

var (
	// CyclesTotal counts completed pipeline cycles
	CyclesTotal = expvar.NewInt("pipeline_cycles_total")

	// DocumentsConverted counts reports whose derived text was written
	DocumentsConverted = expvar.NewInt("documents_converted_total")

	// EmbeddingsGenerated counts embeddings written for reports and vulnerabilities
	EmbeddingsGenerated = expvar.NewInt("embeddings_generated_total")

	// ItemsSkipped counts candidates skipped because their source was missing
	ItemsSkipped = expvar.NewInt("items_skipped_total")

	// ItemFailures counts candidates that failed conversion, embedding or persistence
	ItemFailures = expvar.NewInt("item_failures_total")

	// FetchFailures counts stages or sessions that could not reach the store
	FetchFailures = expvar.NewInt("fetch_failures_total")

	// HeapReclaims counts requested heap compactions
	HeapReclaims = expvar.NewInt("heap_reclaims_total")
)
