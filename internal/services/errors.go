package services

import (
	"errors"
	"fmt"
)

// ErrPayloadMissing marks a candidate whose binary payload disappeared between
// listing and processing. It is skipped silently.
var ErrPayloadMissing = errors.New("binary payload missing")

// FetchError is returned when a stage cannot list its candidates. The stage is
// skipped for the current cycle.
type FetchError struct {
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch candidates: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConversionError is returned when the document converter rejects a payload.
type ConversionError struct {
	ItemID string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert document %s: %v", e.ItemID, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ProviderError is returned when the embedding provider fails for an item.
type ProviderError struct {
	ItemID string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("generate embedding for %s: %v", e.ItemID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError is returned when writing a derived field back fails.
type PersistenceError struct {
	ItemID string
	Field  string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for %s: %v", e.Field, e.ItemID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
